package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Relay holds outbound SMTP parameters.
type Relay struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Sender delivers one reply.
type Sender interface {
	Send(ctx context.Context, relay Relay, reply Reply) error
}

// SMTPSender delivers over authenticated SMTP. Port 465 uses implicit TLS,
// every other port requires STARTTLS.
type SMTPSender struct {
	Timeout time.Duration
}

// Send implements Sender.
func (s SMTPSender) Send(ctx context.Context, relay Relay, reply Reply) error {
	msg, err := BuildMessage(reply)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(relay.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(relay.Username),
		mail.WithPassword(relay.Password),
	}
	if relay.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}

	client, err := mail.NewClient(relay.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", reply.To, err)
	}
	return nil
}

// BuildMessage renders reply as a multipart/alternative message.
func BuildMessage(reply Reply) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(reply.FromName, reply.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(reply.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(reply.Subject)
	msg.SetMessageID()
	msg.SetDate()
	if reply.InReplyTo != "" {
		msg.SetGenHeader(mail.HeaderInReplyTo, reply.InReplyTo)
		msg.SetGenHeader(mail.HeaderReferences, reply.InReplyTo)
	}
	msg.SetBodyString(mail.TypeTextPlain, reply.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, reply.HTML)
	return msg, nil
}
