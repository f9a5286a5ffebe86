package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/idx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
)

// InitSigner builds the token signer from the configured key material.
//
// Key sources, in order:
//   - SigningKey: inline HS256 secret or EdDSA PKCS8 PEM
//   - SigningKeyFile: the same, read from disk
//   - neither: an ephemeral key generated at startup. Every token becomes
//     invalid when the service restarts, so this is only suitable for dev.
//
// Supported algorithms: HS256, EdDSA
func InitSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	key, source, err := loadKeyMaterial(cfg)
	if err != nil {
		return nil, err
	}

	kid := cfg.KeyID
	if key == nil {
		key, err = generateKey(cfg.Algorithm)
		if err != nil {
			return nil, err
		}
		if kid == "" {
			kid = idx.New().String()
		}
		logger.Warn("using an ephemeral signing key, tokens will not survive a restart",
			"algorithm", cfg.Algorithm,
			"kid", kid,
		)
	}

	signer, err := jwtx.NewSigner(cfg.Algorithm, kid, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s signer from %s: %w", cfg.Algorithm, source, err)
	}
	if err := signer.Validate(); err != nil {
		return nil, fmt.Errorf("signing key from %s is unusable: %w", source, err)
	}

	logger.Info("token signer ready",
		"algorithm", signer.Alg(),
		"kid", signer.KID(),
		"source", source,
		"issuer", cfg.Issuer,
	)
	return signer, nil
}

// loadKeyMaterial returns nil key bytes when no key is configured.
func loadKeyMaterial(cfg Config) ([]byte, string, error) {
	switch {
	case cfg.SigningKey != "":
		return []byte(strings.TrimSpace(cfg.SigningKey)), "config", nil
	case cfg.SigningKeyFile != "":
		data, err := os.ReadFile(filepath.Clean(cfg.SigningKeyFile))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read signing key file: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), cfg.SigningKeyFile, nil
	default:
		return nil, "ephemeral", nil
	}
}

func generateKey(alg string) ([]byte, error) {
	if strings.EqualFold(alg, jwtx.AlgHS256) {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		return []byte(secret), nil
	}
	return cryptox.GenerateEd25519Key()
}
