package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// OperatorRepository persists operator accounts.
type OperatorRepository interface {
	Create(ctx context.Context, op *domain.Operator) error
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	Count(ctx context.Context) (int, error)
}

const operatorColumns = `id, email, display_name, password_hash, role, is_active, created_at, updated_at`

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the postgres repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

func (r *operatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	const query = `
        INSERT INTO operators (` + operatorColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		op.ID, op.Email, op.DisplayName, op.PasswordHash, string(op.Role), op.Active,
		op.CreatedAt.UTC(), op.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: operator %s", ErrConflict, op.Email)
	}
	return err
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	op, err := scanOperator(r.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE lower(email)=lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: operator %s", ErrNotFound, email)
	}
	return op, err
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	op, err := scanOperator(r.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: operator %s", ErrNotFound, id)
	}
	return op, err
}

func (r *operatorRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}

type sqliteOperatorRepository struct {
	db *sql.DB
}

// NewSQLiteOperatorRepository instantiates the embedded-database repository.
func NewSQLiteOperatorRepository(db *sql.DB) OperatorRepository {
	return &sqliteOperatorRepository{db: db}
}

func (r *sqliteOperatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	const query = `
        INSERT INTO operators (` + operatorColumns + `)
        VALUES (?,?,?,?,?,?,?,?)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.Email, op.DisplayName, op.PasswordHash, string(op.Role), op.Active,
		op.CreatedAt.UTC(), op.UpdatedAt.UTC(),
	)
	if isSQLiteUniqueViolation(err) {
		return fmt.Errorf("%w: operator %s", ErrConflict, op.Email)
	}
	return err
}

func (r *sqliteOperatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	op, err := scanOperator(r.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE lower(email)=lower(?)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: operator %s", ErrNotFound, email)
	}
	return op, err
}

func (r *sqliteOperatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	op, err := scanOperator(r.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: operator %s", ErrNotFound, id)
	}
	return op, err
}

func (r *sqliteOperatorRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}

func scanOperator(row rowScanner) (*domain.Operator, error) {
	var op domain.Operator
	if err := row.Scan(
		&op.ID,
		&op.Email,
		&op.DisplayName,
		&op.PasswordHash,
		&op.Role,
		&op.Active,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		return nil, err
	}
	op.CreatedAt = op.CreatedAt.UTC()
	op.UpdatedAt = op.UpdatedAt.UTC()
	return &op, nil
}
