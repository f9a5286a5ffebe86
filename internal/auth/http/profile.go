package http

import (
	"net/http"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
)

type ProfileHandler struct {
	UserService *service.UserService
}

// ServeHTTP handles GET /api/auth/profile
//
//	@Summary		Get the caller's profile
//	@Description	Returns the account behind the bearer token. Never includes the password hash or MFA secret.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ProfileResponse	"Profile"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing bearer token"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Invalid or expired token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/api/auth/profile [get].
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	profile, err := h.UserService.Profile(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := toProfileResponse(profile)
	resp.MFAVerified = claims.HasAMR(jwtx.AMRMFA)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func toProfileResponse(p domain.Profile) authsdk.ProfileResponse {
	return authsdk.ProfileResponse{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Provider:    string(p.Provider),
		MFAEnabled:  p.MFAEnabled,
		CreatedAt:   p.CreatedAt,
	}
}
