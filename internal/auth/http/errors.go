package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/pkg/authsdk"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
)

// serviceErrors maps service outcomes onto wire errors. Order does not
// matter; the sentinels are disjoint.
var serviceErrors = []struct {
	target error
	api    *authsdk.APIError
}{
	{service.ErrInvalidRequest, authsdk.ErrInvalidRequest},
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrConflict, authsdk.ErrConflict},
	{service.ErrMFANotEnabled, authsdk.ErrMFANotEnabled},
	{service.ErrMFAAlreadyEnabled, authsdk.ErrMFAAlreadyEnabled},
	{service.ErrMFANotEnrolled, authsdk.ErrMFANotEnrolled},
	{service.ErrInvalidCode, authsdk.ErrInvalidCode},
	{service.ErrNotFound, authsdk.ErrNotFound},
}

// writeServiceError writes err as the error envelope. Expected outcomes are
// logged at Info; anything unrecognised is treated as an upstream failure.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	for _, m := range serviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		log.Info("request rejected", slog.String("error", m.api.Code))
		if m.api == authsdk.ErrInvalidRequest {
			m.api.WithDescription(describe(err)).WriteError(w)
			return
		}
		m.api.WriteError(w)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, service.ErrUpstream) {
		log.Error("upstream failure", slog.Any("err", err))
		authsdk.ErrUnavailable.WriteError(w)
		return
	}

	log.Error("unhandled error", slog.Any("err", err))
	authsdk.ErrServerError.WriteError(w)
}

// describe strips the sentinel prefix from a wrapped invalid_request error
// so the client sees only the reason.
func describe(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, service.ErrInvalidRequest.Error()+": "); ok {
		return rest
	}
	return msg
}

// writeBadBody reports a body that could not be decoded.
func writeBadBody(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Info("failed to parse request", slog.Any("err", err))
	authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
}
