package http_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	httpapi "github.com/aussiebroadwan/miniokta/internal/auth/http"
	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/crewjam/saml"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	clock  clockwork.FakeClock
	store  *sqlite.Store
	router *httpapi.Router
}

type option func(*httpapi.Router)

func withRateLimits(l httpx.RateLimits) option {
	return func(r *httpapi.Router) { r.RateLimits = l }
}

func withSAML(p *identity.SAMLProvider) option {
	return func(r *httpapi.Router) { r.SAML = p }
}

func newTestServer(t *testing.T, opts ...option) *testServer {
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

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	tokens := service.NewTokenService(signer, "miniokta-test", time.Hour, clock)
	mfa := service.NewMFAService(st, "miniokta-test", clock)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := httpapi.NewRouter(tokens, "test", st, logger)
	router.RateLimits = httpx.RateLimits{}
	router.AuthService = &service.AuthService{
		Store:  st,
		Hasher: hasher,
		Tokens: tokens,
		MFA:    mfa,
		Clock:  clock,
	}
	router.MFAService = mfa
	router.UserService = &service.UserService{Store: st}
	for _, o := range opts {
		o(router)
	}
	router.ApplyRoutes()

	return &testServer{t: t, clock: clock, store: st, router: router}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(email, password string) authsdk.TokenResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/register", "", authsdk.RegisterRequest{Email: email, Password: password})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authsdk.TokenResponse](s.t, rec)
}

func (s *testServer) code(secret string) string {
	s.t.Helper()
	c, err := totp.GenerateCode(secret, s.clock.Now())
	require.NoError(s.t, err)
	return c
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decode[authsdk.ErrorResponse](t, rec).Error)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	tok := s.register("alice@example.com", "pw1")
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.EqualValues(t, 3600, tok.ExpiresIn)
	require.Equal(t, "alice@example.com", tok.User.Email)
	require.Equal(t, "local", tok.User.Provider)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"duplicate registration", "/api/auth/register", authsdk.RegisterRequest{Email: "alice@example.com", Password: "other"}, http.StatusConflict, authsdk.ErrorCodeConflict},
		{"invalid email", "/api/auth/register", authsdk.RegisterRequest{Email: "not-an-email", Password: "pw1"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"empty password", "/api/auth/register", authsdk.RegisterRequest{Email: "bob@example.com"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"wrong password", "/api/auth/login", authsdk.LoginRequest{Email: "alice@example.com", Password: "nope"}, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials},
		{"unknown email", "/api/auth/login", authsdk.LoginRequest{Email: "nobody@example.com", Password: "pw1"}, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials},
		{"missing password", "/api/auth/login", authsdk.LoginRequest{Email: "alice@example.com"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, s.do(http.MethodPost, tt.path, "", tt.body), tt.status, tt.code)
		})
	}

	t.Run("login succeeds", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/auth/login", "", authsdk.LoginRequest{Email: "alice@example.com", Password: "pw1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		body := rec.Body.String()
		require.NotContains(t, body, "password")
		require.NotContains(t, body, "mfa_secret")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})
}

func TestMFAFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.register("carol@example.com", "pw1")

	// Validating before enrollment is a state error, not a bad code.
	requireError(t, s.do(http.MethodPost, "/api/auth/mfa/validate", "", authsdk.MFAValidateRequest{Email: "carol@example.com", Code: "123456"}),
		http.StatusBadRequest, authsdk.ErrorCodeMFANotEnabled)

	requireError(t, s.do(http.MethodPost, "/api/auth/mfa/verify-setup", tok.AccessToken, authsdk.MFACodeRequest{Code: "123456"}),
		http.StatusBadRequest, authsdk.ErrorCodeMFANotEnrolled)

	rec := s.do(http.MethodPost, "/api/auth/mfa/setup", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	setup := decode[authsdk.MFASetupResponse](t, rec)
	require.NotEmpty(t, setup.Secret)
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	require.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	require.Equal(t, "carol@example.com", setup.Account)

	requireError(t, s.do(http.MethodPost, "/api/auth/mfa/verify-setup", tok.AccessToken, authsdk.MFACodeRequest{Code: "000000"}),
		http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	rec = s.do(http.MethodPost, "/api/auth/mfa/verify-setup", tok.AccessToken, authsdk.MFACodeRequest{Code: s.code(setup.Secret)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[authsdk.MFAStatusResponse](t, rec).MFAEnabled)

	requireError(t, s.do(http.MethodPost, "/api/auth/mfa/setup", tok.AccessToken, nil),
		http.StatusBadRequest, authsdk.ErrorCodeMFAAlreadyEnabled)

	// Password login now stops at the second factor.
	rec = s.do(http.MethodPost, "/api/auth/login", "", authsdk.LoginRequest{Email: "carol@example.com", Password: "pw1"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	challenge := decode[authsdk.MFARequiredResponse](t, rec)
	require.Equal(t, authsdk.ErrorCodeMFARequired, challenge.Error)
	require.True(t, challenge.MFARequired)
	require.Equal(t, "carol@example.com", challenge.Email)
	require.NotContains(t, rec.Body.String(), "access_token")

	// The confirmation step is still current; it completes the login.
	code := s.code(setup.Secret)

	rec = s.do(http.MethodPost, "/api/auth/mfa/validate", "", authsdk.MFAValidateRequest{Email: "carol@example.com", Code: code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mfaTok := decode[authsdk.TokenResponse](t, rec)
	require.NotEmpty(t, mfaTok.AccessToken)
	require.True(t, mfaTok.User.MFAEnabled)

	rec = s.do(http.MethodGet, "/api/auth/profile", mfaTok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[authsdk.ProfileResponse](t, rec).MFAVerified)

	// The same code cannot be redeemed twice.
	requireError(t, s.do(http.MethodPost, "/api/auth/mfa/validate", "", authsdk.MFAValidateRequest{Email: "carol@example.com", Code: code}),
		http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	s.clock.Advance(30 * time.Second)
	rec = s.do(http.MethodDelete, "/api/auth/mfa", mfaTok.AccessToken, authsdk.MFACodeRequest{Code: s.code(setup.Secret)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decode[authsdk.MFAStatusResponse](t, rec).MFAEnabled)

	rec = s.do(http.MethodPost, "/api/auth/login", "", authsdk.LoginRequest{Email: "carol@example.com", Password: "pw1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBearerErrors(t *testing.T) {
	s := newTestServer(t)
	tok := s.register("dave@example.com", "pw1")

	t.Run("missing token", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/auth/profile", "", nil)
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)
		require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("tampered token", func(t *testing.T) {
		requireError(t, s.do(http.MethodGet, "/api/auth/profile", tok.AccessToken+"x", nil),
			http.StatusForbidden, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("mfa routes need a token", func(t *testing.T) {
		requireError(t, s.do(http.MethodPost, "/api/auth/mfa/setup", "", nil),
			http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)
	})

	t.Run("profile", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/auth/profile", tok.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		profile := decode[authsdk.ProfileResponse](t, rec)
		require.Equal(t, tok.User.ID, profile.ID)
		require.Equal(t, "dave@example.com", profile.Email)
		require.False(t, profile.MFAEnabled)
		require.False(t, profile.MFAVerified)
	})

	t.Run("expired token", func(t *testing.T) {
		s.clock.Advance(time.Hour)
		requireError(t, s.do(http.MethodGet, "/api/auth/profile", tok.AccessToken, nil),
			http.StatusForbidden, authsdk.ErrorCodeTokenExpired)
	})
}

func TestLoginRateLimited(t *testing.T) {
	one := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	s := newTestServer(t, withRateLimits(httpx.RateLimits{Strict: one}))

	login := func(email string) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/api/auth/login", "", authsdk.LoginRequest{Email: email, Password: "guess"})
	}

	require.Equal(t, http.StatusUnauthorized, login("erin@example.com").Code)
	requireError(t, login("ERIN@example.com"), http.StatusTooManyRequests, authsdk.ErrorCodeRateLimited)
	require.Equal(t, http.StatusUnauthorized, login("frank@example.com").Code)
}

func TestMFAValidateLimitHoldsAcrossForwardedAddresses(t *testing.T) {
	strict := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	tests := []struct {
		name    string
		proxies []string
	}{
		{"no trusted proxies", nil},
		{"peer is a trusted proxy", []string{"203.0.113.7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trusted, err := httpx.ParseTrustedProxies(tt.proxies)
			require.NoError(t, err)
			s := newTestServer(t,
				withRateLimits(httpx.RateLimits{Strict: strict}),
				func(r *httpapi.Router) { r.TrustedProxies = trusted },
			)

			codes := map[int]int{}
			for i := range 50 {
				body := strings.NewReader(`{"email":"victim@example.com","code":"123456"}`)
				req := httptest.NewRequest(http.MethodPost, "/api/auth/mfa/validate", body)
				req.RemoteAddr = "203.0.113.7:5555"
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))

				rec := httptest.NewRecorder()
				s.router.ServeHTTP(rec, req)
				codes[rec.Code]++
			}

			require.Equal(t, 5, codes[http.StatusBadRequest], "codes: %v", codes)
			require.Equal(t, 45, codes[http.StatusTooManyRequests], "codes: %v", codes)
		})
	}
}

func newSAMLProvider(t *testing.T) *identity.SAMLProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "miniokta-sp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	p, err := identity.NewSAMLProviderWithMetadata(identity.SAMLConfig{
		BaseURL: "https://auth.example.com/api/auth",
	}, key, cert, &saml.EntityDescriptor{EntityID: "https://idp.example.com/metadata"})
	require.NoError(t, err)
	return p
}

func TestSAMLRoutes(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t)
		requireError(t, s.do(http.MethodGet, "/api/auth/saml/metadata", "", nil), http.StatusNotFound, authsdk.ErrorCodeNotConfigured)
		requireError(t, s.do(http.MethodGet, "/api/auth/saml/login", "", nil), http.StatusNotFound, authsdk.ErrorCodeNotConfigured)
		requireError(t, s.do(http.MethodPost, "/api/auth/saml/acs", "", nil), http.StatusNotFound, authsdk.ErrorCodeNotConfigured)
	})

	t.Run("configured", func(t *testing.T) {
		s := newTestServer(t, withSAML(newSAMLProvider(t)))

		rec := s.do(http.MethodGet, "/api/auth/saml/metadata", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "https://auth.example.com/api/auth/saml/acs")

		form := url.Values{"SAMLResponse": {"bm90LXNhbWw="}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/saml/acs", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec = httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[authsdk.HealthResponse](t, rec).Status)

	rec = s.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)

	require.NoError(t, s.store.Close())
	rec = s.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", decode[authsdk.HealthResponse](t, rec).Status)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/livez", "", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
