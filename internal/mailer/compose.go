package mailer

import (
	"html"
	"strings"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Reply is a composed outbound message.
type Reply struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	Text      string
	HTML      string
	InReplyTo string
}

// ComposeReply builds the reply to ticket's sender from its approved response.
func ComposeReply(cfg domain.MailConfig, ticket *domain.Ticket) Reply {
	var body string
	if ticket.ApprovedResponse != nil {
		body = *ticket.ApprovedResponse
	}
	r := Reply{
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		To:        ticket.SenderEmail,
		Subject:   ReplySubject(ticket.Subject),
		Text:      body,
		HTML:      RenderHTML(body),
	}
	if ticket.MessageID != nil {
		r.InReplyTo = *ticket.MessageID
	}
	return r
}

// ReplySubject prefixes subject with "Re: " unless it already carries one.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

// RenderHTML escapes text and keeps its line breaks.
func RenderHTML(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
	return "<html><body>" + escaped + "</body></html>"
}
