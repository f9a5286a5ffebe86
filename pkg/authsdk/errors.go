package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/miniokta/pkg/httpx"
)

// Error codes carried in the "error" field of every failure response.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeConflict           = "conflict"
	ErrorCodeMFARequired        = "mfa_required"
	ErrorCodeMFANotEnabled      = "mfa_not_enabled"
	ErrorCodeMFAAlreadyEnabled  = "mfa_already_enabled"
	ErrorCodeMFANotEnrolled     = "mfa_not_enrolled"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeTokenExpired       = "token_expired"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
	ErrorCodeUnavailable        = "temporarily_unavailable"
	ErrorCodeNotConfigured      = "not_configured"
)

// APIError is the {"error","error_description"} envelope. The server writes
// it with WriteError and the client decodes failures back into it.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine readable error code, e.g. "invalid_code"
	Code string `json:"error"`

	// Description is a human readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches any *APIError with the same Code, so callers can write
// errors.Is(err, authsdk.ErrInvalidCode).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes this error to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	return &APIError{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required fields",
	}

	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "an account with this email already exists",
	}

	ErrMFANotEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotEnabled,
		Description: "multi-factor authentication is not enabled for this account",
	}

	ErrMFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFAAlreadyEnabled,
		Description: "multi-factor authentication is already enabled",
	}

	ErrMFANotEnrolled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotEnrolled,
		Description: "no pending enrollment; call setup first",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "the verification code is invalid",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "user not found",
	}

	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "missing bearer token",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is invalid",
	}

	ErrTokenExpired = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeTokenExpired,
		Description: "the access token has expired",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrUnavailable means a collaborator (store, hasher) failed or timed
	// out. The request can be retried.
	ErrUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeUnavailable,
		Description: "the service is temporarily unavailable, try again",
	}

	// ErrNotConfigured is returned by optional endpoints, such as SAML,
	// when the feature is switched off.
	ErrNotConfigured = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotConfigured,
		Description: "this login method is not configured",
	}
)

// MFARequiredError is returned with HTTP 409 Conflict when the first factor
// succeeded but the account has MFA enabled. The caller must retry with
// ValidateMFA using the same email.
type MFARequiredError struct {
	Email string `json:"email"`
}

// Error implements the error interface.
func (e *MFARequiredError) Error() string {
	return "mfa required for " + e.Email
}

// WriteError writes the challenge as a 409 with the standard envelope.
func (e *MFARequiredError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusConflict, MFARequiredResponse{
		Error:            ErrorCodeMFARequired,
		ErrorDescription: "a second factor is required to complete login",
		MFARequired:      true,
		Email:            e.Email,
	})
}

// parseErrorResponse turns a non-success response into a typed error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusConflict {
		var mfaResp MFARequiredResponse
		if err := json.Unmarshal(body, &mfaResp); err == nil && mfaResp.Error == ErrorCodeMFARequired {
			return &MFARequiredError{Email: mfaResp.Email}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
