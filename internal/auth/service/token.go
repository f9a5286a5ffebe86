package service

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/jonboulle/clockwork"
)

// TokenService mints and checks stateless bearer tokens.
type TokenService struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Issuer   string
	TTL      time.Duration
	Clock    clockwork.Clock
}

// NewTokenService wires a verifier for signer that reads time from clock.
// A zero ttl means jwtx.DefaultAccessTokenTTL.
func NewTokenService(signer jwtx.Signer, issuer string, ttl time.Duration, clock clockwork.Clock) *TokenService {
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &TokenService{
		Signer: signer,
		Verifier: jwtx.NewVerifier(signer, jwtx.VerifyOptions{
			Issuer: issuer,
			Now:    clock.Now,
		}),
		Issuer: issuer,
		TTL:    ttl,
		Clock:  clock,
	}
}

// Issue signs a token for u. amr records how the user authenticated.
func (s *TokenService) Issue(u domain.User, amr ...string) (domain.IssuedToken, error) {
	now := s.Clock.Now()
	claims := jwtx.NewAccessClaims(u.ID, u.Email, amr, s.TTL, s.Issuer, now)

	signed, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.IssuedToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.TTL / time.Second),
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Verify checks a token and returns its claims. Errors are the jwtx
// sentinels, so callers can tell expiry (re-login) from tampering.
func (s *TokenService) Verify(token string) (jwtx.Claims, error) {
	return s.Verifier.Verify(token)
}
