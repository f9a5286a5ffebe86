package jwtx

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/miniokta/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of a bearer token unless configured otherwise.
const DefaultAccessTokenTTL = time.Hour

// Authentication Methods Reference values carried in the "amr" claim.
//
//	"pwd": password verified against the stored digest
//	"ext": identity asserted by an external identity provider
//	"mfa": a TOTP second factor was redeemed
const (
	AMRPassword = "pwd"
	AMRExternal = "ext"
	AMRMFA      = "mfa"
)

// Claims are the bearer-token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated user at the time of issue.
	Email string `json:"email,omitempty"`

	// AMR lists how the user authenticated, e.g. ["pwd","mfa"].
	AMR []string `json:"amr,omitempty"`
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(
	subject, email string,
	amr []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.NewAt(now).String(),
		},
		Email: email,
		AMR:   amr,
	}
}

// HasAMR reports whether method is present in the amr claim.
func (c Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}
