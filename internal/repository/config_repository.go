package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ConfigRepository persists the active mail configuration and the scheduler singleton.
type ConfigRepository interface {
	// GetActiveMailConfig returns ErrNotFound when nothing has been saved.
	GetActiveMailConfig(ctx context.Context) (*domain.MailConfig, error)
	// ReplaceMailConfig deactivates every record and stores cfg as the only active one.
	ReplaceMailConfig(ctx context.Context, cfg *domain.MailConfig) error
	// EnsureSchedulerConfig seeds the singleton with defaults if absent and returns it.
	EnsureSchedulerConfig(ctx context.Context, defaults domain.SchedulerConfig) (domain.SchedulerConfig, error)
	SaveSchedulerSettings(ctx context.Context, enabled bool, intervalMinutes int, now time.Time) (domain.SchedulerConfig, error)
	RecordSchedulerRun(ctx context.Context, at time.Time, count int) error
}

const mailConfigColumns = `id, imap_host, imap_port, imap_username, imap_password, smtp_host, smtp_port,
        smtp_username, smtp_password, from_email, from_name, is_active, created_at, updated_at`

const schedulerColumns = `enabled, interval_minutes, last_run_at, last_run_count, updated_at`

type configRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository instantiates the postgres repository.
func NewConfigRepository(pool *pgxpool.Pool) ConfigRepository {
	return &configRepository{pool: pool}
}

func (r *configRepository) GetActiveMailConfig(ctx context.Context) (*domain.MailConfig, error) {
	query := `SELECT ` + mailConfigColumns + ` FROM mail_config WHERE is_active ORDER BY id DESC LIMIT 1`
	cfg, err := scanMailConfig(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: mail config", ErrNotFound)
	}
	return cfg, err
}

func (r *configRepository) ReplaceMailConfig(ctx context.Context, cfg *domain.MailConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Concurrent replacements queue here; the partial unique index on
	// is_active rejects anything that slips past.
	if _, err := tx.Exec(ctx, `LOCK TABLE mail_config IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE mail_config SET is_active=FALSE, updated_at=$1 WHERE is_active`, cfg.UpdatedAt.UTC()); err != nil {
		return err
	}

	const insert = `
        INSERT INTO mail_config (imap_host, imap_port, imap_username, imap_password, smtp_host, smtp_port,
            smtp_username, smtp_password, from_email, from_name, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,$11,$12)
        RETURNING id`
	if err := tx.QueryRow(ctx, insert,
		cfg.IMAPHost,
		cfg.IMAPPort,
		cfg.IMAPUsername,
		cfg.IMAPPassword,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUsername,
		cfg.SMTPPassword,
		cfg.FromEmail,
		cfg.FromName,
		cfg.CreatedAt.UTC(),
		cfg.UpdatedAt.UTC(),
	).Scan(&cfg.ID); err != nil {
		return err
	}
	cfg.Active = true
	return tx.Commit(ctx)
}

func (r *configRepository) EnsureSchedulerConfig(ctx context.Context, defaults domain.SchedulerConfig) (domain.SchedulerConfig, error) {
	const insert = `
        INSERT INTO scheduler_config (id, enabled, interval_minutes, last_run_count, updated_at)
        VALUES (1, $1, $2, 0, $3)
        ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, defaults.Enabled, defaults.IntervalMinutes, time.Now().UTC()); err != nil {
		return domain.SchedulerConfig{}, err
	}
	return r.getScheduler(ctx)
}

func (r *configRepository) SaveSchedulerSettings(ctx context.Context, enabled bool, intervalMinutes int, now time.Time) (domain.SchedulerConfig, error) {
	const upsert = `
        INSERT INTO scheduler_config (id, enabled, interval_minutes, last_run_count, updated_at)
        VALUES (1, $1, $2, 0, $3)
        ON CONFLICT (id) DO UPDATE SET enabled=EXCLUDED.enabled, interval_minutes=EXCLUDED.interval_minutes,
            updated_at=EXCLUDED.updated_at`
	if _, err := r.pool.Exec(ctx, upsert, enabled, intervalMinutes, now.UTC()); err != nil {
		return domain.SchedulerConfig{}, err
	}
	return r.getScheduler(ctx)
}

func (r *configRepository) RecordSchedulerRun(ctx context.Context, at time.Time, count int) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE scheduler_config SET last_run_at=$1, last_run_count=$2 WHERE id=1`, at.UTC(), count)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: scheduler config", ErrNotFound)
	}
	return nil
}

func (r *configRepository) getScheduler(ctx context.Context) (domain.SchedulerConfig, error) {
	cfg, err := scanSchedulerConfig(r.pool.QueryRow(ctx, `SELECT `+schedulerColumns+` FROM scheduler_config WHERE id=1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SchedulerConfig{}, fmt.Errorf("%w: scheduler config", ErrNotFound)
	}
	return cfg, err
}

func scanMailConfig(row rowScanner) (*domain.MailConfig, error) {
	var cfg domain.MailConfig
	if err := row.Scan(
		&cfg.ID,
		&cfg.IMAPHost,
		&cfg.IMAPPort,
		&cfg.IMAPUsername,
		&cfg.IMAPPassword,
		&cfg.SMTPHost,
		&cfg.SMTPPort,
		&cfg.SMTPUsername,
		&cfg.SMTPPassword,
		&cfg.FromEmail,
		&cfg.FromName,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func scanSchedulerConfig(row rowScanner) (domain.SchedulerConfig, error) {
	var cfg domain.SchedulerConfig
	if err := row.Scan(
		&cfg.Enabled,
		&cfg.IntervalMinutes,
		&cfg.LastRunAt,
		&cfg.LastRunCount,
		&cfg.UpdatedAt,
	); err != nil {
		return domain.SchedulerConfig{}, err
	}
	if cfg.LastRunAt != nil {
		at := cfg.LastRunAt.UTC()
		cfg.LastRunAt = &at
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}
