package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
)

// SAMLHandler serves the service-provider side of SAML login. A nil
// Provider means SAML is switched off and every route answers 404.
type SAMLHandler struct {
	Provider    *identity.SAMLProvider
	AuthService *service.AuthService
}

// HandleMetadata handles GET /api/auth/saml/metadata
//
//	@Summary		SAML service provider metadata
//	@Tags			SAML
//	@Produce		xml
//	@Success		200	{string}	string					"SP metadata document"
//	@Failure		404	{object}	authsdk.ErrorResponse	"SAML not configured"
//	@Router			/api/auth/saml/metadata [get].
func (h *SAMLHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		authsdk.ErrNotConfigured.WriteError(w)
		return
	}
	h.Provider.ServeMetadata(w, r)
}

// HandleLogin handles GET /api/auth/saml/login
//
//	@Summary		Start SAML login
//	@Description	Redirects the browser to the identity provider.
//	@Tags			SAML
//	@Success		302
//	@Failure		404	{object}	authsdk.ErrorResponse	"SAML not configured"
//	@Router			/api/auth/saml/login [get].
func (h *SAMLHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		authsdk.ErrNotConfigured.WriteError(w)
		return
	}
	h.Provider.StartLogin(w, r)
}

// HandleACS handles POST /api/auth/saml/acs
//
//	@Summary		SAML assertion consumer service
//	@Description	Validates the posted SAMLResponse, provisions the user on first login and returns a bearer token,
//	@Description	or 409 mfa_required when the account has MFA enabled.
//	@Tags			SAML
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			SAMLResponse	formData	string						true	"Base64 encoded SAML response"
//	@Success		200				{object}	authsdk.TokenResponse		"Token issued"
//	@Failure		401				{object}	authsdk.ErrorResponse		"Assertion rejected"
//	@Failure		404				{object}	authsdk.ErrorResponse		"SAML not configured"
//	@Failure		409				{object}	authsdk.MFARequiredResponse	"Second factor required"
//	@Router			/api/auth/saml/acs [post].
func (h *SAMLHandler) HandleACS(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		authsdk.ErrNotConfigured.WriteError(w)
		return
	}

	assertion, err := h.Provider.Assert(w, r)
	if err != nil {
		log := slogx.FromContext(r.Context())
		desc := "the identity assertion was rejected"
		switch {
		case errors.Is(err, identity.ErrDomainNotAllow):
			desc = "this email domain may not sign in"
		case errors.Is(err, identity.ErrNoEmail):
			desc = "the identity provider did not supply an email"
		}
		log.Info("saml assertion rejected", slog.Any("err", err))
		authsdk.ErrInvalidCredentials.WithDescription(desc).WriteError(w)
		return
	}

	res, err := h.AuthService.Login(r.Context(), service.ExternalCredential{Assertion: assertion})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeLoginResult(w, http.StatusOK, res)
}
