package http

import (
	"net/http"

	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
)

// AuthHandler serves the unauthenticated login endpoints.
type AuthHandler struct {
	AuthService *service.AuthService
}

// HandleRegister handles POST /api/auth/register
//
//	@Summary		Register a local account
//	@Description	Creates a user with an email and password and returns a bearer token straight away.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	authsdk.TokenResponse	"Account created"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid email or password"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable"
//	@Router			/api/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadBody(w, r, err)
		return
	}

	res, err := h.AuthService.Register(r.Context(), service.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeLoginResult(w, http.StatusCreated, res)
}

// HandleLogin handles POST /api/auth/login
//
//	@Summary		Log in with email and password
//	@Description	Returns a bearer token, or 409 mfa_required when the account has MFA enabled.
//	@Description	In that case call /api/auth/mfa/validate with the same email and a TOTP code.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest		true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse		"Token issued"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Invalid email or password"
//	@Failure		409		{object}	authsdk.MFARequiredResponse	"Second factor required"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse		"Store unavailable"
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadBody(w, r, err)
		return
	}

	res, err := h.AuthService.Login(r.Context(), service.PasswordCredential{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeLoginResult(w, http.StatusOK, res)
}

// HandleValidateMFA handles POST /api/auth/mfa/validate
//
//	@Summary		Complete login with a TOTP code
//	@Description	Second step of a login that returned mfa_required. Each code is accepted once.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAValidateRequest	true	"Email and TOTP code"
//	@Success		200		{object}	authsdk.TokenResponse		"Token issued"
//	@Failure		400		{object}	authsdk.ErrorResponse		"mfa_not_enabled or invalid_code"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse		"Store unavailable"
//	@Router			/api/auth/mfa/validate [post].
func (h *AuthHandler) HandleValidateMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAValidateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadBody(w, r, err)
		return
	}

	res, err := h.AuthService.CompleteSecondFactor(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeLoginResult(w, http.StatusOK, res)
}

// writeLoginResult writes a token, or the 409 challenge when the login
// stopped at the second factor.
func writeLoginResult(w http.ResponseWriter, status int, res service.LoginResult) {
	if res.Outcome == service.OutcomeSecondFactorPending {
		(&authsdk.MFARequiredError{Email: res.User.Email}).WriteError(w)
		return
	}

	profile := toProfileResponse(res.User.Profile())
	httpx.WriteJSON(w, status, authsdk.TokenResponse{
		AccessToken: res.Token.AccessToken,
		TokenType:   res.Token.TokenType,
		ExpiresIn:   res.Token.ExpiresIn,
		ExpiresAt:   res.Token.ExpiresAt,
		User:        &profile,
	})
}
