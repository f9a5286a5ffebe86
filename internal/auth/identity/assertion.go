// Package identity turns a completed external login into an Assertion the
// auth service can consume in place of a password check.
package identity

import (
	"errors"
	"strings"
)

var (
	ErrNoEmail        = errors.New("identity: assertion carries no email")
	ErrDomainNotAllow = errors.New("identity: email domain not allowed")
)

// Assertion is a verified identity claim from an external provider. It is
// trusted as much as a verified password.
type Assertion struct {
	Email    string
	Name     string
	Provider string // e.g. "saml"
	Subject  string // provider-side identifier, informational only
}

// DomainPolicy restricts which email domains may sign in externally. An
// empty policy allows everything.
type DomainPolicy struct {
	AllowedDomains []string
}

// Check returns ErrDomainNotAllow when the email's domain is not listed.
// Domains compare case-insensitively.
func (p DomainPolicy) Check(email string) error {
	if len(p.AllowedDomains) == 0 {
		return nil
	}

	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ErrDomainNotAllow
	}
	domain := email[at+1:]

	for _, allowed := range p.AllowedDomains {
		if strings.EqualFold(strings.TrimSpace(allowed), domain) {
			return nil
		}
	}
	return ErrDomainNotAllow
}
