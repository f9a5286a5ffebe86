package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite/gen"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type usersRepo struct {
	q *gen.Queries
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row, err := r.q.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row, err := r.q.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	err := r.q.CreateUser(ctx, gen.CreateUserParams{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: mapStringNull(u.PasswordHash),
		Provider:     string(u.Provider),
		CreatedAt:    u.CreatedAt.Unix(),
		UpdatedAt:    u.UpdatedAt.Unix(),
	})
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, secret string, pendingSince time.Time) error {
	n, err := r.q.UpdateUserMFASecret(ctx, gen.UpdateUserMFASecretParams{
		MfaSecret:       mapStringNull(secret),
		MfaPendingSince: mapUnixNull(pendingSince),
		ID:              userID,
	})
	return rowsOrNotFound(n, err)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, secret string, at time.Time) error {
	n, err := r.q.EnableUserMFA(ctx, gen.EnableUserMFAParams{
		MfaEnabledAt: mapUnixNull(at),
		ID:           userID,
		MfaSecret:    mapStringNull(secret),
	})
	return rowsOrNotFound(n, err)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	n, err := r.q.DisableUserMFA(ctx, userID)
	return rowsOrNotFound(n, err)
}

func (r *usersRepo) AdvanceMFAStep(ctx context.Context, userID string, step int64) (bool, error) {
	n, err := r.q.AdvanceUserMFAStep(ctx, gen.AdvanceUserMFAStepParams{
		Step: step,
		ID:   userID,
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) ClearStaleEnrollments(ctx context.Context, before time.Time) (int64, error) {
	return r.q.ClearStaleMFAEnrollments(ctx, mapUnixNull(before))
}

func rowsOrNotFound(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
