package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories of one backend.
type Store struct {
	Tickets   TicketRepository
	Config    ConfigRepository
	Operators OperatorRepository

	ping  func(context.Context) error
	close func()
}

// NewPostgresStore builds repositories over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:   NewTicketRepository(pool),
		Config:    NewConfigRepository(pool),
		Operators: NewOperatorRepository(pool),
		ping:      pool.Ping,
		close:     pool.Close,
	}
}

// NewSQLiteStore builds repositories over an open SQLite handle.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Tickets:   NewSQLiteTicketRepository(db),
		Config:    NewSQLiteConfigRepository(db),
		Operators: NewSQLiteOperatorRepository(db),
		ping:      db.PingContext,
		close:     func() { _ = db.Close() },
	}
}

// NewMemoryStore builds empty in-memory repositories.
func NewMemoryStore() *Store {
	return &Store{
		Tickets:   NewMemoryTicketRepository(),
		Config:    NewMemoryConfigRepository(),
		Operators: NewMemoryOperatorRepository(),
	}
}

// Ping checks backend connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases backend resources.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}
