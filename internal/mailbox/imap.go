package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Account holds mailbox connection parameters. TLS is always used.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// Session is an authenticated connection to one selected mailbox.
type Session interface {
	ListUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Session, error)
}

// IMAPDialer connects over implicit TLS.
type IMAPDialer struct {
	Timeout time.Duration
}

// Dial connects, logs in and selects the account's mailbox read-write.
func (d IMAPDialer) Dial(ctx context.Context, account Account) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(account.Host, strconv.Itoa(account.Port))
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: d.Timeout}, addr, &tls.Config{ServerName: account.Host})
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	c.Timeout = d.Timeout

	// Tear the connection down if the caller gives up mid-command.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })

	if err := c.Login(account.Username, account.Password); err != nil {
		stop()
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mailbox := account.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		stop()
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	return &imapSession{c: c, stop: stop}, nil
}

type imapSession struct {
	c    *client.Client
	stop func() bool
}

func (s *imapSession) ListUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	return uids, nil
}

// Fetch reads the full message without setting \Seen.
func (s *imapSession) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, messages)
	}()

	var (
		raw     []byte
		readErr error
	)
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, errors.New("message body not returned"))
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap mark seen %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	s.stop()
	return s.c.Logout()
}
