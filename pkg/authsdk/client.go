package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the miniokta authentication service.
// It provides access to unauthenticated operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a local account and returns a session for it.
// Returns an *APIError matching ErrConflict if the email is taken.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/register", "", req)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusCreated); err != nil {
		return nil, err
	}

	return newSession(c, &tokenResp), nil
}

// Login authenticates with email and password.
// If the account has MFA enabled the returned error is a *MFARequiredError;
// finish the login with ValidateMFA.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return newSession(c, &tokenResp), nil
}

// ValidateMFA completes a login that stopped at the second factor.
func (c *SDKClient) ValidateMFA(ctx context.Context, email, code string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/mfa/validate", "", MFAValidateRequest{
		Email: email,
		Code:  code,
	})
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return newSession(c, &tokenResp), nil
}

// NewSessionFromToken wraps an access token obtained elsewhere, e.g. from
// the SAML ACS response handed to a browser.
func (c *SDKClient) NewSessionFromToken(accessToken string, expiresAt time.Time) *Session {
	return &Session{
		client:      c,
		accessToken: accessToken,
		expiresAt:   expiresAt,
	}
}
