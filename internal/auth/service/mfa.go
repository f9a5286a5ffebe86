package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20 // 160 bits
	totpDigits     = otp.DigitsSix
	qrCodeSize     = 256
)

// MFAService drives the per-user TOTP state machine:
// Disabled -> PendingEnrollment -> Enabled.
type MFAService struct {
	Store  store.Store
	Issuer string // shown in authenticator apps
	Clock  clockwork.Clock

	// Skew is how many 30s steps either side of now are accepted.
	Skew uint

	// AllowReplay turns off last-accepted-step tracking, so a code can be
	// used more than once inside its window.
	AllowReplay bool
}

// NewMFAService returns a service accepting one step of clock skew with
// replay protection on.
func NewMFAService(st store.Store, issuer string, clock clockwork.Clock) *MFAService {
	return &MFAService{Store: st, Issuer: issuer, Clock: clock, Skew: 1}
}

func (s *MFAService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// BeginEnrollment generates a fresh candidate secret for the user, replacing
// any unconfirmed one. It does NOT enable MFA; ConfirmEnrollment does.
func (s *MFAService) BeginEnrollment(ctx context.Context, userID, label string) (domain.MFAEnrollment, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}
	if u.MFAEnabled {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}
	if label == "" {
		label = u.Email
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: label,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, upstream("generate totp key", err)
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return domain.MFAEnrollment{}, upstream("render qr code", err)
	}

	err = s.Store.Users().UpdateMFASecret(ctx, u.ID, key.Secret(), s.now())
	if errors.Is(err, store.ErrNotFound) {
		// The user exists, so the guarded update lost to a concurrent confirm.
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}
	if err != nil {
		return domain.MFAEnrollment{}, upstream("store mfa secret", err)
	}

	slogx.FromContext(ctx).Info("mfa enrollment started", slog.String("user_id", u.ID))

	return domain.MFAEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
		Issuer:          s.Issuer,
		Account:         label,
	}, nil
}

// ConfirmEnrollment proves possession of the candidate secret and enables
// MFA. A wrong code leaves the candidate in place so the user can retry.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == "" {
		return ErrMFANotEnrolled
	}

	now := s.now()
	if _, ok := s.matchStep(u.MFASecret, code, now, 0); !ok {
		slogx.FromContext(ctx).Info("mfa enrollment code rejected", slog.String("user_id", u.ID))
		return ErrInvalidCode
	}

	// Replay tracking starts with the first redemption, so the code that
	// confirmed enrollment can still complete the login that follows.
	err = s.Store.Users().EnableMFA(ctx, u.ID, u.MFASecret, now)
	if errors.Is(err, store.ErrNotFound) {
		// The candidate was replaced by a newer BeginEnrollment between our
		// read and the update; the code belongs to a discarded secret.
		return ErrInvalidCode
	}
	if err != nil {
		return upstream("enable mfa", err)
	}

	slogx.FromContext(ctx).Info("mfa enabled", slog.String("user_id", u.ID))
	return nil
}

// ValidateCode checks code against the user's permanent secret and returns
// the matched time step. It never mutates state.
func (s *MFAService) ValidateCode(ctx context.Context, userID, code string) (int64, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.check(u, code)
}

// RedeemCode validates code and, unless AllowReplay is set, atomically
// records its step so the same code cannot be used again.
func (s *MFAService) RedeemCode(ctx context.Context, userID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.redeem(ctx, u, code)
}

// Disable turns MFA off. A valid current code is required.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.redeem(ctx, u, code); err != nil {
		return err
	}

	if err := s.Store.Users().DisableMFA(ctx, u.ID); err != nil {
		return upstream("disable mfa", err)
	}

	slogx.FromContext(ctx).Info("mfa disabled", slog.String("user_id", u.ID))
	return nil
}

func (s *MFAService) redeem(ctx context.Context, u domain.User, code string) error {
	step, err := s.check(u, code)
	if err != nil {
		slogx.FromContext(ctx).Info("mfa code rejected", slog.String("user_id", u.ID), slog.String("reason", err.Error()))
		return err
	}
	if s.AllowReplay {
		return nil
	}

	advanced, err := s.Store.Users().AdvanceMFAStep(ctx, u.ID, step)
	if err != nil {
		return upstream("advance mfa step", err)
	}
	if !advanced {
		slogx.FromContext(ctx).Warn("mfa code replay rejected", slog.String("user_id", u.ID))
		return ErrInvalidCode
	}
	return nil
}

func (s *MFAService) check(u domain.User, code string) (int64, error) {
	if !u.MFAEnabled || u.MFASecret == "" {
		return 0, ErrMFANotEnabled
	}

	var after int64
	if !s.AllowReplay {
		after = u.MFALastStep
	}

	step, ok := s.matchStep(u.MFASecret, code, s.now(), after)
	if !ok {
		return 0, ErrInvalidCode
	}
	return step, nil
}

// matchStep returns the time step within the skew window whose code equals
// code. Steps at or before `after` are skipped.
func (s *MFAService) matchStep(secret, code string, now time.Time, after int64) (int64, bool) {
	if secret == "" || len(code) != totpDigits.Length() {
		return 0, false
	}

	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
	current := now.Unix() / totpPeriod
	skew := int64(s.Skew)

	for step := current - skew; step <= current+skew; step++ {
		if step <= after {
			continue
		}
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func (s *MFAService) loadUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, upstream("load user", err)
	}
	return u, nil
}

// qrDataURL renders the provisioning URI as a PNG data URL.
func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
