package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, mongo)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
//
// There is no transaction API. Every mutation the auth core needs is a single
// record operation, and each driver makes those atomic: a unique index on
// email, and conditional updates for MFA enable and step advance.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used by every login path. Matching is exact.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateMFASecret stores a candidate secret and when it was generated.
	// It leaves mfa_enabled untouched and resets the accepted step.
	UpdateMFASecret(ctx context.Context, userID string, secret string, pendingSince time.Time) error

	// EnableMFA flips mfa_enabled only if the stored secret is still secret
	// and resets the accepted step. Returns ErrNotFound when the candidate
	// was replaced or MFA is already enabled.
	EnableMFA(ctx context.Context, userID string, secret string, at time.Time) error

	// DisableMFA clears mfa_enabled and mfa_secret.
	DisableMFA(ctx context.Context, userID string) error

	// AdvanceMFAStep records step as accepted if it is newer than the last
	// accepted step. Returns false when another request already used it.
	AdvanceMFAStep(ctx context.Context, userID string, step int64) (bool, error)

	// ClearStaleEnrollments drops candidate secrets generated before the
	// cutoff on users that never confirmed them.
	ClearStaleEnrollments(ctx context.Context, before time.Time) (int64, error)
}
