package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testIssuer = "miniokta-test"

// testStart sits on a 30s boundary so one Advance(30s) moves exactly one
// TOTP step.
var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	clock  clockwork.FakeClock
	store  *sqlite.Store
	tokens *TokenService
	mfa    *MFAService
	auth   *AuthService
	users  *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewSignerHS256("test", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(cryptox.AlgorithmArgon2id, "")
	require.NoError(t, err)
	hasher.Argon2 = cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 16, SaltLength: 8}

	clock := clockwork.NewFakeClockAt(testStart)
	tokens := NewTokenService(signer, testIssuer, time.Hour, clock)
	mfa := NewMFAService(st, testIssuer, clock)

	return &testEnv{
		clock:  clock,
		store:  st,
		tokens: tokens,
		mfa:    mfa,
		auth: &AuthService{
			Store:  st,
			Hasher: hasher,
			Tokens: tokens,
			MFA:    mfa,
			Clock:  clock,
		},
		users: &UserService{Store: st},
	}
}

// register creates a local user and returns its id.
func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	res, err := e.auth.Register(context.Background(), RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)
	return res.User.ID
}

// enableMFA runs a full enrollment and returns the permanent secret.
func (e *testEnv) enableMFA(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.mfa.BeginEnrollment(ctx, userID, "")
	require.NoError(t, err)
	require.NoError(t, e.mfa.ConfirmEnrollment(ctx, userID, e.code(t, enrollment.Secret)))
	return enrollment.Secret
}

// code returns the current TOTP code for secret on the fake clock.
func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, e.clock.Now())
	require.NoError(t, err)
	return c
}
