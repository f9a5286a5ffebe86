// Package storetest holds the behavioural suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

var epoch = time.Unix(1_700_000_000, 0).UTC()

func newLocalUser(email string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: "$argon2id$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA",
		Provider:     domain.ProviderLocal,
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
}

// Run exercises the store.Users contract against a driver.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and fetch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newLocalUser("alice@example.com")

		require.NoError(t, s.Users().CreateUser(ctx, u))

		byID, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, byID.Email)
		require.Equal(t, u.PasswordHash, byID.PasswordHash)
		require.Equal(t, domain.ProviderLocal, byID.Provider)
		require.False(t, byID.MFAEnabled)
		require.Empty(t, byID.MFASecret)
		require.True(t, byID.CreatedAt.Equal(epoch))

		byEmail, err := s.Users().GetUserByEmail(ctx, u.Email)
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Users().GetUserByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("external user without password", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newLocalUser("sso@example.com")
		u.Provider = domain.ProviderExternal
		u.PasswordHash = ""

		require.NoError(t, s.Users().CreateUser(ctx, u))
		got, err := s.Users().GetUserByEmail(ctx, u.Email)
		require.NoError(t, err)
		require.Equal(t, domain.ProviderExternal, got.Provider)
		require.Empty(t, got.PasswordHash)
	})

	t.Run("rejects invalid records", func(t *testing.T) {
		s := newStore(t)
		u := newLocalUser("nohash@example.com")
		u.PasswordHash = ""
		require.ErrorIs(t, s.Users().CreateUser(context.Background(), u), domain.ErrPasswordHashRequired)
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Users().CreateUser(ctx, newLocalUser("dup@example.com")))
		err := s.Users().CreateUser(ctx, newLocalUser("dup@example.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("email match is case sensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Users().CreateUser(ctx, newLocalUser("Case@example.com")))
		require.NoError(t, s.Users().CreateUser(ctx, newLocalUser("case@example.com")))

		_, err := s.Users().GetUserByEmail(ctx, "CASE@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent duplicate inserts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 8
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			conflicts atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Users().CreateUser(ctx, newLocalUser("race@example.com"))
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, store.ErrAlreadyExists):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, succeeded.Load())
		require.EqualValues(t, workers-1, conflicts.Load())
	})

	t.Run("mfa lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newLocalUser("mfa@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		pending := epoch.Add(time.Minute)
		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "FIRSTSECRET", pending))
		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "SECONDSECRET", pending))

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.MFAPending())
		require.Equal(t, "SECONDSECRET", got.MFASecret)
		require.NotNil(t, got.MFAPendingSince)
		require.True(t, got.MFAPendingSince.Equal(pending))

		// A replaced candidate cannot be confirmed.
		err = s.Users().EnableMFA(ctx, u.ID, "FIRSTSECRET", pending)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.Users().EnableMFA(ctx, u.ID, "SECONDSECRET", pending))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.MFAEnabled)
		require.Nil(t, got.MFAPendingSince)
		require.NotNil(t, got.MFAEnabledAt)
		require.Zero(t, got.MFALastStep, "replay tracking starts at the first redemption")

		// Enabled secrets are permanent until disabled.
		require.ErrorIs(t, s.Users().UpdateMFASecret(ctx, u.ID, "THIRD", pending), store.ErrNotFound)
		require.ErrorIs(t, s.Users().EnableMFA(ctx, u.ID, "SECONDSECRET", pending), store.ErrNotFound)

		require.NoError(t, s.Users().DisableMFA(ctx, u.ID))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.MFAEnabled)
		require.Empty(t, got.MFASecret)
		require.Nil(t, got.MFAEnabledAt)
	})

	t.Run("advance step rejects replays", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newLocalUser("step@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "SECRET", epoch))

		ok, err := s.Users().AdvanceMFAStep(ctx, u.ID, 100)
		require.NoError(t, err)
		require.False(t, ok, "steps only advance once MFA is enabled")

		require.NoError(t, s.Users().EnableMFA(ctx, u.ID, "SECRET", epoch))

		for _, tc := range []struct {
			step int64
			want bool
		}{
			{100, true},
			{100, false},
			{99, false},
			{101, true},
			{101, false},
			{103, true},
		} {
			ok, err := s.Users().AdvanceMFAStep(ctx, u.ID, tc.step)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok, "step %d", tc.step)
		}

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.EqualValues(t, 103, got.MFALastStep)
	})

	t.Run("concurrent step advance", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newLocalUser("race-step@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "SECRET", epoch))
		require.NoError(t, s.Users().EnableMFA(ctx, u.ID, "SECRET", epoch))

		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := s.Users().AdvanceMFAStep(ctx, u.ID, 2); err == nil && ok {
					won.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, won.Load())
	})

	t.Run("clear stale enrollments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		stale := newLocalUser("stale@example.com")
		fresh := newLocalUser("fresh@example.com")
		enabled := newLocalUser("enabled@example.com")
		for _, u := range []domain.User{stale, fresh, enabled} {
			require.NoError(t, s.Users().CreateUser(ctx, u))
		}

		require.NoError(t, s.Users().UpdateMFASecret(ctx, stale.ID, "STALE", epoch))
		require.NoError(t, s.Users().UpdateMFASecret(ctx, fresh.ID, "FRESH", epoch.Add(2*time.Hour)))
		require.NoError(t, s.Users().UpdateMFASecret(ctx, enabled.ID, "ENABLED", epoch))
		require.NoError(t, s.Users().EnableMFA(ctx, enabled.ID, "ENABLED", epoch))

		n, err := s.Users().ClearStaleEnrollments(ctx, epoch.Add(time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		got, err := s.Users().GetUserByID(ctx, stale.ID)
		require.NoError(t, err)
		require.Empty(t, got.MFASecret)
		require.Nil(t, got.MFAPendingSince)

		got, err = s.Users().GetUserByID(ctx, fresh.ID)
		require.NoError(t, err)
		require.Equal(t, "FRESH", got.MFASecret)

		got, err = s.Users().GetUserByID(ctx, enabled.ID)
		require.NoError(t, err)
		require.True(t, got.MFAEnabled)
		require.Equal(t, "ENABLED", got.MFASecret)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}
