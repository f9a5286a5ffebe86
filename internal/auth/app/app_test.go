package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/app"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := app.DefaultConfig()
	cfg.Algorithm = jwtx.AlgHS256
	cfg.DatabaseFile = filepath.Join(dir, "auth.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.PasswordAlgorithm = cryptox.AlgorithmBcrypt
	cfg.BcryptCost = 4
	cfg.MFAIssuer = cfg.Issuer
	cfg.Port = 0
	cfg.ShutdownGracePeriod = time.Second
	return cfg
}

func TestApplicationServesRequests(t *testing.T) {
	application, err := app.NewWithLogger(testConfig(t), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.RunContext(ctx) }()

	h := application.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, app.BuildVersion, health.Version)

	body := `{"email":"app@example.com","password":"long enough pw","display_name":"App"}`
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tok authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.AccessToken)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not shut down")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "postgres"

	_, err := app.NewWithLogger(cfg, discardLogger())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestNewFailsOnUnusableSigningKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.SigningKey = "short"

	_, err := app.NewWithLogger(cfg, discardLogger())
	require.ErrorContains(t, err, "signing key")
}
