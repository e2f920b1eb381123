// Package pg implements the durable projections and the append-only event
// log on PostgreSQL.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store bundles all table access over one connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Companies returns the company projection store.
func (s *Store) Companies() *CompanyStore { return &CompanyStore{db: s.db} }

// Users returns the user projection store.
func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

// Grants returns the permission-table store.
func (s *Store) Grants() *GrantStore { return &GrantStore{db: s.db} }

// Events returns the append-only event log.
func (s *Store) Events() *EventLog { return &EventLog{db: s.db} }

// Notifications returns the notification record table.
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
