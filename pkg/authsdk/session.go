package authsdk

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrSessionExpired is returned before a request is sent if the session's
// access token is already past its expiry. There is no refresh; log in again.
var ErrSessionExpired = errors.New("authsdk: access token expired")

// Session is an authenticated view of the service, holding one bearer token.
// It is safe for concurrent use; the token never changes after creation.
type Session struct {
	client *SDKClient

	accessToken string
	expiresAt   time.Time
	user        *ProfileResponse
}

// newSession creates a session from a token response.
func newSession(client *SDKClient, tokenResp *TokenResponse) *Session {
	expiresAt := tokenResp.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &Session{
		client:      client,
		accessToken: tokenResp.AccessToken,
		expiresAt:   expiresAt,
		user:        tokenResp.User,
	}
}

// AccessToken returns the bearer token.
func (s *Session) AccessToken() string { return s.accessToken }

// ExpiresAt returns when the bearer token stops being accepted.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// User returns the profile sent with the token, if the server included one.
func (s *Session) User() *ProfileResponse { return s.user }

// Expired reports whether the token is past its expiry.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && !time.Now().Before(s.expiresAt)
}

func (s *Session) do(ctx context.Context, method, path string, body, target any, expectedStatus int) error {
	if s.Expired() {
		return ErrSessionExpired
	}

	resp, err := s.client.doRequest(ctx, method, path, s.accessToken, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expectedStatus)
}

// Profile fetches the authenticated user's profile.
func (s *Session) Profile(ctx context.Context) (*ProfileResponse, error) {
	var profile ProfileResponse
	if err := s.do(ctx, http.MethodGet, "/api/auth/profile", nil, &profile, http.StatusOK); err != nil {
		return nil, err
	}
	return &profile, nil
}

// BeginMFAEnrollment creates a fresh candidate secret. Calling it again
// before confirming replaces the previous candidate.
func (s *Session) BeginMFAEnrollment(ctx context.Context) (*MFASetupResponse, error) {
	var setup MFASetupResponse
	if err := s.do(ctx, http.MethodPost, "/api/auth/mfa/setup", nil, &setup, http.StatusOK); err != nil {
		return nil, err
	}
	return &setup, nil
}

// ConfirmMFAEnrollment enables MFA once the user proves possession of the
// candidate secret.
func (s *Session) ConfirmMFAEnrollment(ctx context.Context, code string) error {
	return s.do(ctx, http.MethodPost, "/api/auth/mfa/verify-setup", MFACodeRequest{Code: code}, nil, http.StatusOK)
}

// DisableMFA turns MFA off. A current code is required.
func (s *Session) DisableMFA(ctx context.Context, code string) error {
	return s.do(ctx, http.MethodDelete, "/api/auth/mfa", MFACodeRequest{Code: code}, nil, http.StatusOK)
}
