package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Issuer         string        // Issuer claim for tokens (default: miniokta)
	Algorithm      string        // JWT signing algorithm, HS256 or EdDSA (default: EdDSA)
	SigningKey     string        // Optional: inline key material (HS256 secret or EdDSA PKCS8 PEM)
	SigningKeyFile string        // Optional: path to key material; ephemeral key if neither is set
	KeyID          string        // Optional: kid header on issued tokens
	TokenTTL       time.Duration // Bearer token lifetime (default: 1h)

	PasswordAlgorithm string // argon2id or bcrypt (default: argon2id)
	BcryptCost        int    // Optional: bcrypt cost when PasswordAlgorithm is bcrypt
	PepperFile        string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	MinPasswordLength int    // Minimum length for new passwords (default: 8)

	StoreDriver   string // sqlite or mongo (default: sqlite)
	DatabaseFile  string // SQLite database file (default: ./auth.db)
	MongoURI      string // Required for the mongo driver
	MongoDatabase string // Mongo database name (default: miniokta)

	MFAIssuer               string        // Issuer shown in authenticator apps (default: Issuer)
	MFASkew                 uint          // TOTP steps accepted either side of now (default: 1)
	MFAReplayProtection     bool          // Reject a code once it has been used (default: true)
	PendingEnrollmentMaxAge time.Duration // Unconfirmed MFA secrets older than this are cleared (default: 24h)
	HousekeepingInterval    time.Duration // Housekeeping interval (default: 1h)

	SAML identity.SAMLConfig // Optional: SAML login, enabled when cert, key and IdP metadata are set

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	RequestTimeout      time.Duration // Per-request deadline for store and hashing calls (default: 5s)
	TrustedProxies      []string      // Optional: CIDRs or addresses whose X-Forwarded-For is believed
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Issuer:                  "miniokta",
		Algorithm:               jwtx.AlgEdDSA,
		TokenTTL:                jwtx.DefaultAccessTokenTTL,
		PasswordAlgorithm:       cryptox.AlgorithmArgon2id,
		PepperFile:              "pepper",
		MinPasswordLength:       8,
		StoreDriver:             StoreSQLite,
		DatabaseFile:            "auth.db",
		MFASkew:                 1,
		MFAReplayProtection:     true,
		PendingEnrollmentMaxAge: 24 * time.Hour,
		HousekeepingInterval:    time.Hour,
		Env:                     "dev",
		LogLevel:                "info",
		LogFormat:               "json",
		Port:                    8080,
		ShutdownGracePeriod:     10 * time.Second,
		RequestTimeout:          5 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, then the optional file
// named by AUTH_CONFIG_FILE (.toml, .yaml or .yml), then the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if cfg.MFAIssuer == "" {
		cfg.MFAIssuer = cfg.Issuer
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("issuer is required"))
	}
	if !strings.EqualFold(c.Algorithm, jwtx.AlgHS256) && !strings.EqualFold(c.Algorithm, jwtx.AlgEdDSA) {
		errs = append(errs, fmt.Errorf("unsupported signing algorithm %q", c.Algorithm))
	}
	if c.SigningKey != "" && c.SigningKeyFile != "" {
		errs = append(errs, errors.New("set only one of signing key and signing key file"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("sqlite driver needs a database file"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("mongo driver needs a URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	if c.SAML.Enabled() && c.SAML.BaseURL == "" {
		errs = append(errs, errors.New("saml needs a base url"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Issuer = getEnvOrDefault("AUTH_ISSUER", c.Issuer)
	c.Algorithm = getEnvOrDefault("AUTH_ALGORITHM", c.Algorithm)
	c.SigningKey = getEnvOrDefault("AUTH_SIGNING_KEY", c.SigningKey)
	c.SigningKeyFile = getEnvOrDefault("AUTH_SIGNING_KEY_FILE", c.SigningKeyFile)
	c.KeyID = getEnvOrDefault("AUTH_KEY_ID", c.KeyID)
	c.TokenTTL = getEnvDurationOrDefault("AUTH_TOKEN_TTL", c.TokenTTL)

	c.PasswordAlgorithm = getEnvOrDefault("AUTH_PASSWORD_ALGORITHM", c.PasswordAlgorithm)
	c.BcryptCost = getEnvIntOrDefault("AUTH_BCRYPT_COST", c.BcryptCost)
	c.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", c.PepperFile)
	c.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", c.MinPasswordLength)

	c.StoreDriver = strings.ToLower(getEnvOrDefault("AUTH_STORE_DRIVER", c.StoreDriver))
	c.DatabaseFile = getEnvOrDefault("AUTH_DATABASE_FILE", c.DatabaseFile)
	c.MongoURI = getEnvOrDefault("AUTH_MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnvOrDefault("AUTH_MONGO_DATABASE", c.MongoDatabase)

	c.MFAIssuer = getEnvOrDefault("AUTH_MFA_ISSUER", c.MFAIssuer)
	c.MFASkew = uint(getEnvIntOrDefault("AUTH_MFA_SKEW", int(c.MFASkew)))
	c.MFAReplayProtection = getEnvBoolOrDefault("AUTH_MFA_REPLAY_PROTECTION", c.MFAReplayProtection)
	c.PendingEnrollmentMaxAge = getEnvDurationOrDefault("AUTH_MFA_PENDING_MAX_AGE", c.PendingEnrollmentMaxAge)
	c.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", c.HousekeepingInterval)

	c.SAML.BaseURL = getEnvOrDefault("AUTH_SAML_BASE_URL", c.SAML.BaseURL)
	c.SAML.CertFile = getEnvOrDefault("AUTH_SAML_CERT_FILE", c.SAML.CertFile)
	c.SAML.KeyFile = getEnvOrDefault("AUTH_SAML_KEY_FILE", c.SAML.KeyFile)
	c.SAML.IDPMetadataURL = getEnvOrDefault("AUTH_SAML_IDP_METADATA_URL", c.SAML.IDPMetadataURL)
	c.SAML.AllowIDPInitiated = getEnvBoolOrDefault("AUTH_SAML_ALLOW_IDP_INITIATED", c.SAML.AllowIDPInitiated)
	if domains := os.Getenv("AUTH_SAML_ALLOWED_DOMAINS"); domains != "" {
		c.SAML.AllowedDomains = splitList(domains)
	}

	c.Env = getEnvOrDefault("ENV", c.Env)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
	c.Port = getEnvIntOrDefault("PORT", c.Port)
	c.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod)
	c.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", c.RequestTimeout)
	if proxies := os.Getenv("AUTH_TRUSTED_PROXIES"); proxies != "" {
		c.TrustedProxies = splitList(proxies)
	}
}

// fileConfig is the on-disk layout. Zero values leave the default alone;
// pointers are used where zero is a meaningful setting.
type fileConfig struct {
	Env string `toml:"env" yaml:"env"`

	Server struct {
		Port                int      `toml:"port" yaml:"port"`
		ShutdownGracePeriod duration `toml:"shutdown_grace_period" yaml:"shutdown_grace_period"`
		RequestTimeout      duration `toml:"request_timeout" yaml:"request_timeout"`
		TrustedProxies      []string `toml:"trusted_proxies" yaml:"trusted_proxies"`
	} `toml:"server" yaml:"server"`

	Log struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
	} `toml:"log" yaml:"log"`

	Token struct {
		Issuer    string   `toml:"issuer" yaml:"issuer"`
		Algorithm string   `toml:"algorithm" yaml:"algorithm"`
		Key       string   `toml:"key" yaml:"key"`
		KeyFile   string   `toml:"key_file" yaml:"key_file"`
		KeyID     string   `toml:"key_id" yaml:"key_id"`
		TTL       duration `toml:"ttl" yaml:"ttl"`
	} `toml:"token" yaml:"token"`

	Password struct {
		Algorithm  string  `toml:"algorithm" yaml:"algorithm"`
		BcryptCost int     `toml:"bcrypt_cost" yaml:"bcrypt_cost"`
		PepperFile *string `toml:"pepper_file" yaml:"pepper_file"`
		MinLength  *int    `toml:"min_length" yaml:"min_length"`
	} `toml:"password" yaml:"password"`

	Store struct {
		Driver        string `toml:"driver" yaml:"driver"`
		SQLiteFile    string `toml:"sqlite_file" yaml:"sqlite_file"`
		MongoURI      string `toml:"mongo_uri" yaml:"mongo_uri"`
		MongoDatabase string `toml:"mongo_database" yaml:"mongo_database"`
	} `toml:"store" yaml:"store"`

	MFA struct {
		Issuer               string   `toml:"issuer" yaml:"issuer"`
		Skew                 *uint    `toml:"skew" yaml:"skew"`
		ReplayProtection     *bool    `toml:"replay_protection" yaml:"replay_protection"`
		PendingMaxAge        duration `toml:"pending_max_age" yaml:"pending_max_age"`
		HousekeepingInterval duration `toml:"housekeeping_interval" yaml:"housekeeping_interval"`
	} `toml:"mfa" yaml:"mfa"`

	SAML struct {
		BaseURL           string   `toml:"base_url" yaml:"base_url"`
		CertFile          string   `toml:"cert_file" yaml:"cert_file"`
		KeyFile           string   `toml:"key_file" yaml:"key_file"`
		IDPMetadataURL    string   `toml:"idp_metadata_url" yaml:"idp_metadata_url"`
		AllowIDPInitiated bool     `toml:"allow_idp_initiated" yaml:"allow_idp_initiated"`
		AllowedDomains    []string `toml:"allowed_domains" yaml:"allowed_domains"`
	} `toml:"saml" yaml:"saml"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}

	c.merge(fc)
	return nil
}

func (c *Config) merge(fc fileConfig) {
	setString(&c.Env, fc.Env)
	setInt(&c.Port, fc.Server.Port)
	setDuration(&c.ShutdownGracePeriod, fc.Server.ShutdownGracePeriod)
	setDuration(&c.RequestTimeout, fc.Server.RequestTimeout)
	if len(fc.Server.TrustedProxies) > 0 {
		c.TrustedProxies = fc.Server.TrustedProxies
	}
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)

	setString(&c.Issuer, fc.Token.Issuer)
	setString(&c.Algorithm, fc.Token.Algorithm)
	setString(&c.SigningKey, fc.Token.Key)
	setString(&c.SigningKeyFile, fc.Token.KeyFile)
	setString(&c.KeyID, fc.Token.KeyID)
	setDuration(&c.TokenTTL, fc.Token.TTL)

	setString(&c.PasswordAlgorithm, fc.Password.Algorithm)
	setInt(&c.BcryptCost, fc.Password.BcryptCost)
	if fc.Password.PepperFile != nil {
		c.PepperFile = *fc.Password.PepperFile
	}
	if fc.Password.MinLength != nil {
		c.MinPasswordLength = *fc.Password.MinLength
	}

	setString(&c.StoreDriver, strings.ToLower(fc.Store.Driver))
	setString(&c.DatabaseFile, fc.Store.SQLiteFile)
	setString(&c.MongoURI, fc.Store.MongoURI)
	setString(&c.MongoDatabase, fc.Store.MongoDatabase)

	setString(&c.MFAIssuer, fc.MFA.Issuer)
	if fc.MFA.Skew != nil {
		c.MFASkew = *fc.MFA.Skew
	}
	if fc.MFA.ReplayProtection != nil {
		c.MFAReplayProtection = *fc.MFA.ReplayProtection
	}
	setDuration(&c.PendingEnrollmentMaxAge, fc.MFA.PendingMaxAge)
	setDuration(&c.HousekeepingInterval, fc.MFA.HousekeepingInterval)

	setString(&c.SAML.BaseURL, fc.SAML.BaseURL)
	setString(&c.SAML.CertFile, fc.SAML.CertFile)
	setString(&c.SAML.KeyFile, fc.SAML.KeyFile)
	setString(&c.SAML.IDPMetadataURL, fc.SAML.IDPMetadataURL)
	c.SAML.AllowIDPInitiated = c.SAML.AllowIDPInitiated || fc.SAML.AllowIDPInitiated
	if len(fc.SAML.AllowedDomains) > 0 {
		c.SAML.AllowedDomains = fc.SAML.AllowedDomains
	}
}

// duration accepts "90s", "1h30m" and friends in both file formats.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
