package domain

import "time"

// IssuedToken is what a successful login or registration returns.
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"` // always "Bearer"
	ExpiresIn   int64     `json:"expires_in"` // seconds until expiry
	ExpiresAt   time.Time `json:"expires_at"`
}
