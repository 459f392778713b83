package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/spec-kit/support-desk/internal/domain"
)

const defaultSubject = "No Subject"

// ErrNoSender is returned for messages without a usable From address.
var ErrNoSender = errors.New("message has no sender address")

// ParseMessage extracts intake facts from a raw RFC 5322 message. Charset and
// transfer-encoding problems degrade to replacement characters; only a
// missing sender or an unreadable header fails the message. now is used when
// the Date header is missing or unparsable.
func ParseMessage(raw []byte, now time.Time) (domain.IntakeFacts, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return domain.IntakeFacts{}, fmt.Errorf("read message header: %w", err)
	}
	if mr == nil {
		return domain.IntakeFacts{}, fmt.Errorf("read message header: %w", err)
	}
	defer mr.Close()

	facts := domain.IntakeFacts{ReceivedAt: now}

	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) == 0 || strings.TrimSpace(from[0].Address) == "" {
		addr, name := looseAddress(mr.Header.Get("From"))
		if addr == "" {
			return domain.IntakeFacts{}, ErrNoSender
		}
		facts.SenderEmail, facts.SenderName = addr, name
	} else {
		facts.SenderEmail = strings.TrimSpace(from[0].Address)
		facts.SenderName = strings.TrimSpace(from[0].Name)
	}

	subject, err := mr.Header.Subject()
	if err != nil {
		subject = toValidUTF8(mr.Header.Get("Subject"))
	}
	facts.Subject = strings.TrimSpace(subject)
	if facts.Subject == "" {
		facts.Subject = defaultSubject
	}

	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		facts.ReceivedAt = date.UTC()
	}

	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		facts.MessageID = "<" + id + ">"
	} else if rawID := strings.TrimSpace(mr.Header.Get("Message-Id")); rawID != "" {
		facts.MessageID = rawID
	}

	facts.Body = readBody(mr)
	return facts, nil
}

// readBody returns the first inline text/plain part, falling back to the
// first other inline text part.
func readBody(mr *mail.Reader) string {
	var fallback string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && part == nil {
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		if !strings.HasPrefix(contentType, "text/") {
			continue
		}

		data, _ := io.ReadAll(part.Body)
		text := strings.TrimSpace(toValidUTF8(string(data)))
		if contentType == "text/plain" {
			return text
		}
		if fallback == "" {
			fallback = text
		}
	}
	return fallback
}

func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// looseAddress recovers "Name <addr>" or a bare address from a From header
// the strict parser rejected.
func looseAddress(header string) (addr, name string) {
	header = strings.TrimSpace(toValidUTF8(header))
	if lt := strings.LastIndex(header, "<"); lt >= 0 {
		if gt := strings.Index(header[lt:], ">"); gt > 0 {
			addr = strings.TrimSpace(header[lt+1 : lt+gt])
			name = strings.Trim(strings.TrimSpace(header[:lt]), `"`)
		}
	} else if strings.Contains(header, "@") && !strings.ContainsAny(header, " \t") {
		addr = header
	}
	if !strings.Contains(addr, "@") {
		return "", ""
	}
	return addr, name
}
