package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

var (
	// ErrPasswordMismatch is returned by Verify when the password does not
	// match the stored digest.
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrMalformedHash wraps ErrPasswordMismatch so callers that only care
	// about "did it verify" can treat both the same way.
	ErrMalformedHash = fmt.Errorf("%w: malformed hash", ErrPasswordMismatch)

	ErrUnknownAlgorithm = errors.New("cryptox: unknown password hashing algorithm")
)

// Argon2Params are the tunables for Argon2id hashing.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2Params follow the OWASP minimum for Argon2id (19 MiB, t=2, p=1).
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// Upper bounds on parameters read back from a stored Argon2id digest. A
// digest outside them is treated as malformed rather than evaluated.
const (
	maxArgon2Memory      = 1 << 20 // KiB, 1 GiB
	maxArgon2Iterations  = 64
	maxArgon2Parallelism = 16
	maxArgon2KeyLength   = 128
)

// PasswordHasher produces and checks password digests. The zero value hashes
// with Argon2id using DefaultArgon2Params and no pepper.
//
// Verify understands both PHC-encoded Argon2id digests and bcrypt digests
// ($2a$, $2b$, $2y$) regardless of which Algorithm is configured for new
// hashes, so switching algorithms never locks existing accounts out.
type PasswordHasher struct {
	Algorithm  string
	Argon2     Argon2Params
	BcryptCost int
	Pepper     string
}

// NewPasswordHasher returns a hasher for the given algorithm with default
// parameters.
func NewPasswordHasher(algorithm, pepper string) (*PasswordHasher, error) {
	h := &PasswordHasher{
		Algorithm:  strings.ToLower(strings.TrimSpace(algorithm)),
		Argon2:     DefaultArgon2Params,
		BcryptCost: bcrypt.DefaultCost,
		Pepper:     pepper,
	}
	if h.Algorithm == "" {
		h.Algorithm = AlgorithmArgon2id
	}
	if h.Algorithm != AlgorithmArgon2id && h.Algorithm != AlgorithmBcrypt {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	return h, nil
}

// Hash returns a salted digest of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	switch h.algorithm() {
	case AlgorithmBcrypt:
		digest, err := bcrypt.GenerateFromPassword(h.bcryptInput(password), h.bcryptCost())
		if err != nil {
			return "", fmt.Errorf("cryptox: bcrypt: %w", err)
		}
		return string(digest), nil
	default:
		return h.hashArgon2id(password)
	}
}

// Verify compares password against encoded. It returns nil on match,
// ErrPasswordMismatch on mismatch and ErrMalformedHash for digests it cannot
// parse. It never panics on bad input.
func (h *PasswordHasher) Verify(password, encoded string) error {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return h.verifyArgon2id(password, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), h.bcryptInput(password))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return ErrPasswordMismatch
		default:
			return fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	default:
		return ErrMalformedHash
	}
}

func (h *PasswordHasher) algorithm() string {
	if h.Algorithm == "" {
		return AlgorithmArgon2id
	}
	return h.Algorithm
}

func (h *PasswordHasher) params() Argon2Params {
	if h.Argon2 == (Argon2Params{}) {
		return DefaultArgon2Params
	}
	return h.Argon2
}

func (h *PasswordHasher) bcryptCost() int {
	if h.BcryptCost < bcrypt.MinCost || h.BcryptCost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return h.BcryptCost
}

// bcryptInput keeps peppered input under bcrypt's 72 byte limit by
// pre-hashing with HMAC-SHA256 when a pepper is configured.
func (h *PasswordHasher) bcryptInput(password string) []byte {
	if h.Pepper == "" {
		return []byte(password)
	}
	mac := hmac.New(sha256.New, []byte(h.Pepper))
	mac.Write([]byte(password))
	return []byte(base64.RawStdEncoding.EncodeToString(mac.Sum(nil)))
}

// hashArgon2id generates a PHC-format Argon2id hash string including salt and parameters.
func (h *PasswordHasher) hashArgon2id(password string) (string, error) {
	p := h.params()

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password+h.Pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash and recomputes.
func (h *PasswordHasher) verifyArgon2id(password, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return ErrMalformedHash
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return ErrMalformedHash
	}
	if mem == 0 || iters == 0 || par == 0 {
		return ErrMalformedHash
	}
	if mem > maxArgon2Memory || iters > maxArgon2Iterations || par > maxArgon2Parallelism {
		return ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrMalformedHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 || len(expected) > maxArgon2KeyLength {
		return ErrMalformedHash
	}

	computed := argon2.IDKey(
		[]byte(password+h.Pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - bounded by the decoded digest
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
