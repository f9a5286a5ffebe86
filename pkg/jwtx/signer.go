package jwtx

import (
	"fmt"
	"strings"
)

// Supported signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgEdDSA = "EdDSA"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error

	// VerificationKey returns the key a Verifier needs to check tokens
	// produced by this signer (the shared secret for HMAC, the public key
	// for EdDSA).
	VerificationKey() any
}

// NewSignerHS256 creates an HS256 signer from a shared secret.
func NewSignerHS256(kid string, secret []byte) (Signer, error) {
	return newHS256Signer(kid, secret)
}

// NewSignerEdDSA creates an EdDSA signer from PEM bytes.
// Ed25519 keys must be in PKCS8 format.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	return newEdDSASigner(kid, pemKey)
}

// NewSigner picks the implementation by algorithm name. For HS256 key is the
// raw secret, for EdDSA it is a PKCS8 PEM block.
func NewSigner(alg, kid string, key []byte) (Signer, error) {
	switch {
	case strings.EqualFold(alg, AlgHS256):
		return NewSignerHS256(kid, key)
	case strings.EqualFold(alg, AlgEdDSA):
		return NewSignerEdDSA(kid, key)
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}
}
