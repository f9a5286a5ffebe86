package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite/gen"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	q   *gen.Queries
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection serialises writers so concurrent requests queue
	// instead of failing with SQLITE_BUSY. It also keeps ":memory:" databases
	// alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{
		db:  db,
		q:   gen.New(db),
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() store.Users { return &usersRepo{q: s.q} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func mapStringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func mapUnixNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func mapNullUnixPtr(n sql.NullInt64) *time.Time {
	if n.Valid {
		val := time.Unix(n.Int64, 0).UTC()
		return &val
	}
	return nil
}

func mapUser(row gen.User) domain.User {
	return domain.User{
		ID:              row.ID,
		Email:           row.Email,
		DisplayName:     row.DisplayName,
		PasswordHash:    mapNullString(row.PasswordHash),
		Provider:        domain.Provider(row.Provider),
		MFAEnabled:      row.MfaEnabled,
		MFASecret:       mapNullString(row.MfaSecret),
		MFALastStep:     row.MfaLastStep,
		MFAPendingSince: mapNullUnixPtr(row.MfaPendingSince),
		MFAEnabledAt:    mapNullUnixPtr(row.MfaEnabledAt),
		CreatedAt:       time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(row.UpdatedAt, 0).UTC(),
	}
}
