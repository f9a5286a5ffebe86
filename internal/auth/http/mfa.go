package http

import (
	"net/http"

	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
)

// MFAHandler handles the authenticated MFA management endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleSetup handles POST /api/auth/mfa/setup
//
//	@Summary		Begin TOTP enrollment
//	@Description	Generates a candidate secret for the authenticated user and returns it with a provisioning URI and QR code.
//	@Description	MFA is not enabled until the secret is confirmed with /api/auth/mfa/verify-setup.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFASetupResponse	"Candidate secret and QR code"
//	@Failure		400	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Missing bearer token"
//	@Failure		403	{object}	authsdk.ErrorResponse		"Invalid or expired token"
//	@Failure		404	{object}	authsdk.ErrorResponse		"User no longer exists"
//	@Router			/api/auth/mfa/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	enrollment, err := h.MFAService.BeginEnrollment(ctx, claims.Subject, claims.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
		Issuer:          enrollment.Issuer,
		Account:         enrollment.Account,
	})
}

// HandleVerifySetup handles POST /api/auth/mfa/verify-setup
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Enables MFA if the code matches the candidate secret. A wrong code leaves the candidate in place.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFACodeRequest		true	"TOTP code"
//	@Success		200		{object}	authsdk.MFAStatusResponse	"MFA enabled"
//	@Failure		400		{object}	authsdk.ErrorResponse		"invalid_code, mfa_not_enrolled or mfa_already_enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Missing bearer token"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Invalid or expired token"
//	@Router			/api/auth/mfa/verify-setup [post].
func (h *MFAHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFACodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadBody(w, r, err)
		return
	}

	if err := h.MFAService.ConfirmEnrollment(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAStatusResponse{MFAEnabled: true})
}

// HandleDisable handles DELETE /api/auth/mfa
//
//	@Summary		Disable MFA
//	@Description	Turns MFA off and discards the secret. Requires a current TOTP code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFACodeRequest		true	"TOTP code"
//	@Success		200		{object}	authsdk.MFAStatusResponse	"MFA disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse		"invalid_code or mfa_not_enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Missing bearer token"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Invalid or expired token"
//	@Router			/api/auth/mfa [delete].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFACodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadBody(w, r, err)
		return
	}

	if err := h.MFAService.Disable(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAStatusResponse{MFAEnabled: false})
}
