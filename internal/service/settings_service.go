package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/secrets"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// SchedulerReconfigurer is notified after the scheduler record changes.
type SchedulerReconfigurer interface {
	Reconfigure(ctx context.Context, cfg domain.SchedulerConfig) error
}

// SettingsService owns the mail and scheduler configuration records.
// Passwords are sealed before they reach the store and only opened for
// the ingestion and dispatch pipelines.
type SettingsService struct {
	config            repository.ConfigRepository
	sealer            secrets.Sealer
	schedulerDefaults domain.SchedulerConfig
	logger            *zap.Logger
	now               func() time.Time
	reconfigurer      SchedulerReconfigurer

	// schedulerMu keeps the stored schedule and the live one in step.
	schedulerMu sync.Mutex
}

// SettingsDependencies bundles collaborators for the settings service.
type SettingsDependencies struct {
	ConfigRepo        repository.ConfigRepository
	Sealer            secrets.Sealer
	SchedulerDefaults domain.SchedulerConfig
	Logger            *zap.Logger
	Clock             func() time.Time
}

// NewSettingsService constructs the service.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	sealer := deps.Sealer
	if sealer == nil {
		sealer = secrets.PlainSealer{}
	}
	defaults := deps.SchedulerDefaults
	if domain.ValidateInterval(defaults.IntervalMinutes) != nil {
		defaults.IntervalMinutes = domain.DefaultIntervalMinutes
	}
	return &SettingsService{
		config:            deps.ConfigRepo,
		sealer:            sealer,
		schedulerDefaults: defaults,
		logger:            loggerOrNop(deps.Logger),
		now:               clockOrDefault(deps.Clock),
	}
}

// SetReconfigurer registers the scheduler to notify on interval changes.
func (s *SettingsService) SetReconfigurer(r SchedulerReconfigurer) {
	s.reconfigurer = r
}

// MailConfig returns the active configuration with passwords redacted.
func (s *SettingsService) MailConfig(ctx context.Context) (*domain.MailConfig, error) {
	cfg, err := s.config.GetActiveMailConfig(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("mail configuration", nil)
		}
		return nil, apperrors.MapError(err)
	}
	redacted := cfg.Redacted()
	return &redacted, nil
}

// UpdateMailConfig replaces the active configuration as a whole. A blank or
// redacted password keeps the stored one.
func (s *SettingsService) UpdateMailConfig(ctx context.Context, input domain.MailConfig) (*domain.MailConfig, error) {
	cfg := input
	cfg.Normalize()

	current, err := s.config.GetActiveMailConfig(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}
	imapPassword, err := s.resolvePassword(cfg.IMAPPassword, current, func(c *domain.MailConfig) string { return c.IMAPPassword })
	if err != nil {
		return nil, err
	}
	smtpPassword, err := s.resolvePassword(cfg.SMTPPassword, current, func(c *domain.MailConfig) string { return c.SMTPPassword })
	if err != nil {
		return nil, err
	}
	cfg.IMAPPassword = imapPassword
	cfg.SMTPPassword = smtpPassword

	if missing := cfg.MissingFields(); len(missing) > 0 {
		return nil, apperrors.NewValidationError("mail configuration incomplete", map[string]any{"missing": missing})
	}
	if !validEmail(cfg.FromEmail) {
		return nil, apperrors.NewValidationError("from_email is not a valid address", map[string]any{"from_email": cfg.FromEmail})
	}
	if !validPort(cfg.IMAPPort) || !validPort(cfg.SMTPPort) {
		return nil, apperrors.NewValidationError("ports must be between 1 and 65535", nil)
	}

	now := s.now()
	cfg.ID = 0
	cfg.Active = true
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := s.config.ReplaceMailConfig(ctx, &cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("mail configuration replaced",
		zap.Int64("config_id", cfg.ID),
		zap.String("imap_host", cfg.IMAPHost),
		zap.String("smtp_host", cfg.SMTPHost))

	redacted := cfg.Redacted()
	return &redacted, nil
}

// resolvePassword returns the sealed value to store.
func (s *SettingsService) resolvePassword(input string, current *domain.MailConfig, pick func(*domain.MailConfig) string) (string, error) {
	if input == "" || domain.IsRedactedSecret(input) {
		if current == nil {
			return "", nil
		}
		return pick(current), nil
	}
	sealed, err := s.sealer.Seal(input)
	if err != nil {
		return "", apperrors.NewInternalError(fmt.Errorf("seal password: %w", err))
	}
	return sealed, nil
}

// ActiveMailConfig returns the configuration with passwords opened, or a
// CONFIG_MISSING error when nothing usable is stored.
func (s *SettingsService) ActiveMailConfig(ctx context.Context) (*domain.MailConfig, error) {
	cfg, err := s.config.GetActiveMailConfig(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewConfigMissing("no active mail configuration")
		}
		return nil, apperrors.MapError(err)
	}
	if missing := cfg.MissingFields(); len(missing) > 0 {
		return nil, apperrors.NewConfigMissing("mail configuration incomplete: " + strings.Join(missing, ", "))
	}
	if cfg.IMAPPassword, err = s.sealer.Open(cfg.IMAPPassword); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("open imap password: %w", err))
	}
	if cfg.SMTPPassword, err = s.sealer.Open(cfg.SMTPPassword); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("open smtp password: %w", err))
	}
	return cfg, nil
}

// MailConfigured reports whether an active configuration exists.
func (s *SettingsService) MailConfigured(ctx context.Context) (bool, error) {
	cfg, err := s.config.GetActiveMailConfig(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(cfg.MissingFields()) == 0, nil
}

// SchedulerSettings returns the scheduler record, creating it with defaults.
func (s *SettingsService) SchedulerSettings(ctx context.Context) (domain.SchedulerConfig, error) {
	cfg, err := s.config.EnsureSchedulerConfig(ctx, s.schedulerDefaults)
	if err != nil {
		return domain.SchedulerConfig{}, apperrors.MapError(err)
	}
	return cfg, nil
}

// UpdateSchedulerSettings stores enabled and interval, then replaces the
// running schedule.
func (s *SettingsService) UpdateSchedulerSettings(ctx context.Context, enabled bool, intervalMinutes int) (domain.SchedulerConfig, error) {
	if err := domain.ValidateInterval(intervalMinutes); err != nil {
		return domain.SchedulerConfig{}, apperrors.NewValidationError(err.Error(), map[string]any{"interval_minutes": intervalMinutes})
	}
	s.schedulerMu.Lock()
	defer s.schedulerMu.Unlock()

	if _, err := s.config.EnsureSchedulerConfig(ctx, s.schedulerDefaults); err != nil {
		return domain.SchedulerConfig{}, apperrors.MapError(err)
	}
	cfg, err := s.config.SaveSchedulerSettings(ctx, enabled, intervalMinutes, s.now())
	if err != nil {
		return domain.SchedulerConfig{}, apperrors.MapError(err)
	}
	s.logger.Info("scheduler settings updated",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("interval_minutes", cfg.IntervalMinutes))

	if s.reconfigurer != nil {
		if err := s.reconfigurer.Reconfigure(ctx, cfg); err != nil {
			return cfg, apperrors.NewInternalError(fmt.Errorf("reschedule: %w", err))
		}
	}
	return cfg, nil
}

// RecordSchedulerRun stores last-run telemetry.
func (s *SettingsService) RecordSchedulerRun(ctx context.Context, at time.Time, processed int) error {
	if _, err := s.config.EnsureSchedulerConfig(ctx, s.schedulerDefaults); err != nil {
		return err
	}
	return s.config.RecordSchedulerRun(ctx, at, processed)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
