package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

type sqliteConfigRepository struct {
	db *sql.DB
}

// NewSQLiteConfigRepository instantiates the embedded-database repository.
func NewSQLiteConfigRepository(db *sql.DB) ConfigRepository {
	return &sqliteConfigRepository{db: db}
}

func (r *sqliteConfigRepository) GetActiveMailConfig(ctx context.Context) (*domain.MailConfig, error) {
	query := `SELECT ` + mailConfigColumns + ` FROM mail_config WHERE is_active ORDER BY id DESC LIMIT 1`
	cfg, err := scanMailConfig(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: mail config", ErrNotFound)
	}
	return cfg, err
}

func (r *sqliteConfigRepository) ReplaceMailConfig(ctx context.Context, cfg *domain.MailConfig) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE mail_config SET is_active=0, updated_at=? WHERE is_active`, cfg.UpdatedAt.UTC()); err != nil {
		return err
	}

	const insert = `
        INSERT INTO mail_config (imap_host, imap_port, imap_username, imap_password, smtp_host, smtp_port,
            smtp_username, smtp_password, from_email, from_name, is_active, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,1,?,?)`
	res, err := tx.ExecContext(ctx, insert,
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
	)
	if err != nil {
		return err
	}
	if cfg.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	cfg.Active = true
	return tx.Commit()
}

func (r *sqliteConfigRepository) EnsureSchedulerConfig(ctx context.Context, defaults domain.SchedulerConfig) (domain.SchedulerConfig, error) {
	const insert = `
        INSERT OR IGNORE INTO scheduler_config (id, enabled, interval_minutes, last_run_count, updated_at)
        VALUES (1, ?, ?, 0, ?)`
	if _, err := r.db.ExecContext(ctx, insert, defaults.Enabled, defaults.IntervalMinutes, time.Now().UTC()); err != nil {
		return domain.SchedulerConfig{}, err
	}
	return r.getScheduler(ctx)
}

func (r *sqliteConfigRepository) SaveSchedulerSettings(ctx context.Context, enabled bool, intervalMinutes int, now time.Time) (domain.SchedulerConfig, error) {
	const upsert = `
        INSERT INTO scheduler_config (id, enabled, interval_minutes, last_run_count, updated_at)
        VALUES (1, ?, ?, 0, ?)
        ON CONFLICT (id) DO UPDATE SET enabled=excluded.enabled, interval_minutes=excluded.interval_minutes,
            updated_at=excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, upsert, enabled, intervalMinutes, now.UTC()); err != nil {
		return domain.SchedulerConfig{}, err
	}
	return r.getScheduler(ctx)
}

func (r *sqliteConfigRepository) RecordSchedulerRun(ctx context.Context, at time.Time, count int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduler_config SET last_run_at=?, last_run_count=? WHERE id=1`, at.UTC(), count)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: scheduler config", ErrNotFound)
	}
	return nil
}

func (r *sqliteConfigRepository) getScheduler(ctx context.Context) (domain.SchedulerConfig, error) {
	cfg, err := scanSchedulerConfig(r.db.QueryRowContext(ctx, `SELECT `+schedulerColumns+` FROM scheduler_config WHERE id=1`))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SchedulerConfig{}, fmt.Errorf("%w: scheduler config", ErrNotFound)
	}
	return cfg, err
}
