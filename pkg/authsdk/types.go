package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the wire form of every failure.
// Client code should use the APIError type from errors.go instead.
type ErrorResponse struct {
	// Error is the machine readable code (e.g. "invalid_code")
	Error string `json:"error" example:"invalid_credentials"`

	// ErrorDescription is a human readable description of the error
	ErrorDescription string `json:"error_description" example:"invalid email or password"`
}

// MFARequiredResponse is the 409 body returned when login stops at the
// second factor.
type MFARequiredResponse struct {
	Error            string `json:"error" example:"mfa_required"`
	ErrorDescription string `json:"error_description"`
	MFARequired      bool   `json:"mfa_required" example:"true"`
	Email            string `json:"email" example:"alice@example.com"`
}

// ============================================================================
// Authentication Types
// ============================================================================

// RegisterRequest creates a local account.
type RegisterRequest struct {
	Email       string `json:"email" example:"alice@example.com"`
	Password    string `json:"password" example:"correct horse battery staple"`
	DisplayName string `json:"display_name,omitempty" example:"Alice"`
}

// LoginRequest is a password login attempt.
type LoginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password"`
}

// MFAValidateRequest completes a login that returned mfa_required.
type MFAValidateRequest struct {
	Email string `json:"email" example:"alice@example.com"`
	Code  string `json:"code" example:"123456"`
}

// TokenResponse is returned on every successful login, registration and
// second factor validation.
type TokenResponse struct {
	// AccessToken is the signed bearer token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type" example:"Bearer"`

	// ExpiresIn is the lifetime of the token in seconds
	ExpiresIn int64 `json:"expires_in" example:"3600"`

	// ExpiresAt is the absolute expiry of the token
	ExpiresAt time.Time `json:"expires_at"`

	// User is the profile of the authenticated user
	User *ProfileResponse `json:"user,omitempty"`
}

// ============================================================================
// User Types
// ============================================================================

// ProfileResponse is the caller-visible view of an account.
type ProfileResponse struct {
	ID          string    `json:"id" example:"01JH5Y2Q9V8W7X6Z5A4B3C2D1E"`
	Email       string    `json:"email" example:"alice@example.com"`
	DisplayName string    `json:"display_name,omitempty" example:"Alice"`
	Provider    string    `json:"provider" example:"local"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	CreatedAt   time.Time `json:"created_at"`

	// MFAVerified reports whether the presented token was issued after a
	// second factor. Only set by the profile endpoint.
	MFAVerified bool `json:"mfa_verified"`
}

// ============================================================================
// MFA Types
// ============================================================================

// MFASetupResponse carries the candidate secret. It is shown once.
type MFASetupResponse struct {
	Secret          string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	ProvisioningURI string `json:"provisioning_uri" example:"otpauth://totp/miniokta:alice@example.com?secret=JBSWY3DPEHPK3PXP&issuer=miniokta"`
	QRCode          string `json:"qr_code" example:"data:image/png;base64,iVBORw0KGgo..."`
	Issuer          string `json:"issuer" example:"miniokta"`
	Account         string `json:"account" example:"alice@example.com"`
}

// MFACodeRequest carries a TOTP code for an authenticated MFA operation.
type MFACodeRequest struct {
	Code string `json:"code" example:"123456"` // 6-digit TOTP code
}

// MFAStatusResponse reports the MFA state after a change.
type MFAStatusResponse struct {
	MFAEnabled bool `json:"mfa_enabled"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the store connection status
	Database string `json:"database"`

	// Signer indicates the token signing capability status
	Signer string `json:"signer"`
}
