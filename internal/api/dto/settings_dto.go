package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// MailConfigRequest replaces the active mail configuration. Blank passwords
// keep the stored values.
type MailConfigRequest struct {
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	FromEmail    string `json:"from_email"`
	FromName     string `json:"from_name"`
}

// ToDomain converts the request.
func (r MailConfigRequest) ToDomain() domain.MailConfig {
	return domain.MailConfig{
		IMAPHost:     r.IMAPHost,
		IMAPPort:     r.IMAPPort,
		IMAPUsername: r.IMAPUsername,
		IMAPPassword: r.IMAPPassword,
		SMTPHost:     r.SMTPHost,
		SMTPPort:     r.SMTPPort,
		SMTPUsername: r.SMTPUsername,
		SMTPPassword: r.SMTPPassword,
		FromEmail:    r.FromEmail,
		FromName:     r.FromName,
	}
}

// MailConfigResponse shows the active configuration with redacted passwords.
type MailConfigResponse struct {
	MailConfigRequest
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMailConfigResponse maps an already redacted configuration.
func NewMailConfigResponse(c *domain.MailConfig) MailConfigResponse {
	return MailConfigResponse{
		MailConfigRequest: MailConfigRequest{
			IMAPHost:     c.IMAPHost,
			IMAPPort:     c.IMAPPort,
			IMAPUsername: c.IMAPUsername,
			IMAPPassword: c.IMAPPassword,
			SMTPHost:     c.SMTPHost,
			SMTPPort:     c.SMTPPort,
			SMTPUsername: c.SMTPUsername,
			SMTPPassword: c.SMTPPassword,
			FromEmail:    c.FromEmail,
			FromName:     c.FromName,
		},
		UpdatedAt: c.UpdatedAt,
	}
}

// SchedulerRequest updates auto-fetch settings.
type SchedulerRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// SchedulerResponse shows auto-fetch settings and telemetry.
type SchedulerResponse struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastRunAt       *time.Time `json:"last_run_at"`
	LastRunCount    int        `json:"last_run_count"`
	NextRunAt       *time.Time `json:"next_run_at"`
	MailConfigured  bool       `json:"mail_configured"`
}
