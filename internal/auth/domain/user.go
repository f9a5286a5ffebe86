package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider records where a user's identity is proven.
type Provider string

const (
	// ProviderLocal users log in with a password held in PasswordHash.
	ProviderLocal Provider = "local"
	// ProviderExternal users are asserted by an identity provider and have no
	// password.
	ProviderExternal Provider = "external"
)

var (
	ErrEmailRequired        = errors.New("email is required")
	ErrPasswordHashRequired = errors.New("local users require a password hash")
	ErrUnknownProvider      = errors.New("unknown identity provider")
	ErrMFASecretRequired    = errors.New("mfa enabled without a secret")
)

type User struct {
	ID           string // ULID
	Email        string // unique, case-sensitive as stored
	DisplayName  string
	PasswordHash string // argon2id or bcrypt encoded, empty for external users
	Provider     Provider

	MFAEnabled      bool
	MFASecret       string     // base32 TOTP secret, candidate or permanent
	MFALastStep     int64      // last accepted TOTP time step
	MFAPendingSince *time.Time // set while MFASecret is an unconfirmed candidate
	MFAEnabledAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail trims surrounding whitespace. Case is preserved.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// Validate checks the record invariants a store relies on.
func (u User) Validate() error {
	if u.Email == "" {
		return ErrEmailRequired
	}
	switch u.Provider {
	case ProviderLocal:
		if u.PasswordHash == "" {
			return ErrPasswordHashRequired
		}
	case ProviderExternal:
	default:
		return ErrUnknownProvider
	}
	if u.MFAEnabled && u.MFASecret == "" {
		return ErrMFASecretRequired
	}
	return nil
}

// MFAPending reports whether a candidate secret awaits confirmation.
func (u User) MFAPending() bool {
	return !u.MFAEnabled && u.MFASecret != ""
}

// Profile is the caller-visible projection of a User. It never carries the
// password hash or the TOTP secret.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Provider    Provider  `json:"provider"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Provider:    u.Provider,
		MFAEnabled:  u.MFAEnabled,
		CreatedAt:   u.CreatedAt,
	}
}
