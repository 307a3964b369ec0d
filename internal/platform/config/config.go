// Package config loads server configuration from environment variables,
// optionally merged over a YAML file. Environment variables use the
// BIOANCHOR_ prefix and take precedence over file values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server settings
	Addr string `koanf:"addr"`
	Env  string `koanf:"env"`

	// Authentication
	JWTSigningKey string `koanf:"jwt_signing_key"`
	JWTIssuer     string `koanf:"jwt_issuer"`

	// Storage. Empty URLs select the in-memory stores.
	PostgresURL string `koanf:"postgres_url"`
	RedisURL    string `koanf:"redis_url"`

	// Audit trail. Empty brokers select the in-memory sink.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	AuditTopic   string   `koanf:"audit_topic"`

	// Anchor ledger. Empty RPC URL selects the in-memory ledger.
	LedgerRPCURL          string        `koanf:"ledger_rpc_url"`
	LedgerContractAddress string        `koanf:"ledger_contract_address"`
	LedgerPrivateKey      string        `koanf:"ledger_private_key"`
	LedgerChainID         int64         `koanf:"ledger_chain_id"`
	AnchorConfirmTimeout  time.Duration `koanf:"anchor_confirm_timeout"`

	// Matching thresholds. Zero selects the per-modality default.
	FaceThreshold        float64 `koanf:"face_threshold"`
	FingerprintThreshold float64 `koanf:"fingerprint_threshold"`

	// Fraud reports at or below this score are stored without anchoring.
	FraudAnchorThreshold float64 `koanf:"fraud_anchor_threshold"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSigningKey   = errors.New("BIOANCHOR_JWT_SIGNING_KEY is required")
	ErrMissingLedgerContract  = errors.New("BIOANCHOR_LEDGER_CONTRACT_ADDRESS is required when a ledger RPC URL is set")
	ErrMissingLedgerKey       = errors.New("BIOANCHOR_LEDGER_PRIVATE_KEY is required when a ledger RPC URL is set")
	ErrInvalidFraudThreshold  = errors.New("BIOANCHOR_FRAUD_ANCHOR_THRESHOLD must be between 0 and 1")
	ErrInvalidConfirmTimeout  = errors.New("BIOANCHOR_ANCHOR_CONFIRM_TIMEOUT must be positive")
	ErrInvalidMatchThresholds = errors.New("match thresholds must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultAddr                 = ":8080"
	DefaultEnv                  = "development"
	DefaultJWTIssuer            = "bioanchor"
	DefaultAuditTopic           = "bioanchor.audit"
	DefaultAnchorConfirmTimeout = 30 * time.Second
	DefaultFraudAnchorThreshold = 0.7
)

const envPrefix = "BIOANCHOR_"

// Load reads configuration from an optional YAML file and the environment,
// with environment variables taking precedence. A missing file path is fine;
// a path that cannot be read is an error.
func Load(configFilePath string) (*Config, error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFilePath, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{
		Addr:                 DefaultAddr,
		Env:                  DefaultEnv,
		JWTIssuer:            DefaultJWTIssuer,
		AuditTopic:           DefaultAuditTopic,
		AnchorConfirmTimeout: DefaultAnchorConfirmTimeout,
		FraudAnchorThreshold: DefaultFraudAnchorThreshold,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks that required values are present and thresholds are sane.
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSigningKey == "" {
		errs = append(errs, ErrMissingJWTSigningKey)
	}
	if c.LedgerRPCURL != "" {
		if c.LedgerContractAddress == "" {
			errs = append(errs, ErrMissingLedgerContract)
		}
		if c.LedgerPrivateKey == "" {
			errs = append(errs, ErrMissingLedgerKey)
		}
	}
	if c.FraudAnchorThreshold < 0 || c.FraudAnchorThreshold > 1 {
		errs = append(errs, ErrInvalidFraudThreshold)
	}
	if c.AnchorConfirmTimeout <= 0 {
		errs = append(errs, ErrInvalidConfirmTimeout)
	}
	if c.FaceThreshold < 0 || c.FaceThreshold > 1 || c.FingerprintThreshold < 0 || c.FingerprintThreshold > 1 {
		errs = append(errs, ErrInvalidMatchThresholds)
	}

	return errs
}

// LogSummary returns the configuration for startup logging with secrets masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"addr":                    c.Addr,
		"env":                     c.Env,
		"jwt_signing_key":         maskSecret(c.JWTSigningKey),
		"jwt_issuer":              c.JWTIssuer,
		"postgres_url":            maskURL(c.PostgresURL),
		"redis_url":               maskURL(c.RedisURL),
		"kafka_brokers":           strings.Join(c.KafkaBrokers, ","),
		"audit_topic":             c.AuditTopic,
		"ledger_rpc_url":          c.LedgerRPCURL,
		"ledger_contract_address": c.LedgerContractAddress,
		"ledger_private_key":      maskSecret(c.LedgerPrivateKey),
		"ledger_chain_id":         fmt.Sprintf("%d", c.LedgerChainID),
		"anchor_confirm_timeout":  c.AnchorConfirmTimeout.String(),
		"face_threshold":          fmt.Sprintf("%g", c.FaceThreshold),
		"fingerprint_threshold":   fmt.Sprintf("%g", c.FingerprintThreshold),
		"fraud_anchor_threshold":  fmt.Sprintf("%g", c.FraudAnchorThreshold),
	}
}

// maskSecret shows the first 4 characters of a secret, or masks it entirely
// when it is too short for that to be safe.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password portion of a user:password@host URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
