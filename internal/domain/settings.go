package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultIMAPPort        = 993
	DefaultSMTPPort        = 587
	DefaultFromName        = "Support Team"
	DefaultIntervalMinutes = 5
	MaxIntervalMinutes     = 24 * 60
	redactedSecretSentinel = "********"
)

// ErrInvalidInterval is returned for scheduler intervals outside 1..MaxIntervalMinutes.
var ErrInvalidInterval = errors.New("interval must be between 1 and 1440 minutes")

// MailConfig is the single active mailbox and outbound relay configuration.
type MailConfig struct {
	ID           int64
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Normalize applies default ports and sender name.
func (c *MailConfig) Normalize() {
	c.IMAPHost = strings.TrimSpace(c.IMAPHost)
	c.SMTPHost = strings.TrimSpace(c.SMTPHost)
	c.FromEmail = strings.TrimSpace(c.FromEmail)
	if c.IMAPPort <= 0 {
		c.IMAPPort = DefaultIMAPPort
	}
	if c.SMTPPort <= 0 {
		c.SMTPPort = DefaultSMTPPort
	}
	if strings.TrimSpace(c.FromName) == "" {
		c.FromName = DefaultFromName
	}
}

// MissingFields lists required fields that are empty.
func (c MailConfig) MissingFields() []string {
	var missing []string
	required := map[string]string{
		"imap_host":     c.IMAPHost,
		"imap_username": c.IMAPUsername,
		"imap_password": c.IMAPPassword,
		"smtp_host":     c.SMTPHost,
		"smtp_username": c.SMTPUsername,
		"smtp_password": c.SMTPPassword,
		"from_email":    c.FromEmail,
	}
	for _, key := range []string{"imap_host", "imap_username", "imap_password", "smtp_host", "smtp_username", "smtp_password", "from_email"} {
		if strings.TrimSpace(required[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Redacted returns a copy safe to show to operators.
func (c MailConfig) Redacted() MailConfig {
	if c.IMAPPassword != "" {
		c.IMAPPassword = redactedSecretSentinel
	}
	if c.SMTPPassword != "" {
		c.SMTPPassword = redactedSecretSentinel
	}
	return c
}

// IsRedactedSecret reports whether s is the placeholder returned by Redacted.
func IsRedactedSecret(s string) bool {
	return s == redactedSecretSentinel
}

// SchedulerConfig is the singleton auto-fetch configuration and last-run telemetry.
type SchedulerConfig struct {
	Enabled         bool
	IntervalMinutes int
	LastRunAt       *time.Time
	LastRunCount    int
	UpdatedAt       time.Time
}

// DefaultSchedulerConfig is used when no record exists yet.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Enabled: false, IntervalMinutes: DefaultIntervalMinutes}
}

// Interval returns the configured period.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ValidateInterval checks an operator-supplied interval.
func ValidateInterval(minutes int) error {
	if minutes < 1 || minutes > MaxIntervalMinutes {
		return ErrInvalidInterval
	}
	return nil
}
