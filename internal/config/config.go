// Package config handles configuration loading for the security core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the security core.
type Config struct {
	Ledger     LedgerConfig     `yaml:"ledger"`
	Identity   IdentityConfig   `yaml:"identity"`
	SSO        SSOConfig        `yaml:"sso"`
	Threat     ThreatConfig     `yaml:"threat"`
	Team       TeamConfig       `yaml:"team"`
	Logging    LoggingConfig    `yaml:"logging"`
	Compliance ComplianceConfig `yaml:"compliance"`
}

// LedgerConfig configures the Audit Ledger's journal directory.
type LedgerConfig struct {
	Dir string `yaml:"dir"`
}

// IdentityConfig configures the Identity Store's scrypt cost knobs.
// Zero values fall back to the built-in defaults; non-zero values are
// used as given, so a lower cost than the defaults is not refused.
type IdentityConfig struct {
	ScryptN      int `yaml:"scrypt_n"`
	ScryptR      int `yaml:"scrypt_r"`
	ScryptP      int `yaml:"scrypt_p"`
	ScryptKeyLen int `yaml:"scrypt_key_len"`
	SaltBytes    int `yaml:"salt_bytes"`
}

// SSOConfig configures the broker's callback surface and timeouts.
type SSOConfig struct {
	CallbackBaseURL  string        `yaml:"callback_base_url"`
	DefaultScopes    []string      `yaml:"default_scopes"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	ExchangeTimeout  time.Duration `yaml:"exchange_timeout"`
}

// ThreatConfig configures the Threat Detector's thresholds.
type ThreatConfig struct {
	MaxFailedAuth        int           `yaml:"max_failed_auth"`
	AuthWindow           time.Duration `yaml:"auth_window"`
	BlockDuration        time.Duration `yaml:"block_duration"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
	ExfiltrationBytes    int64         `yaml:"exfiltration_bytes"`
	BaselineMinRequests  int64         `yaml:"baseline_min_requests"`
	MaxEvents            int           `yaml:"max_events"`
}

// TeamConfig configures the Team Registry's defaults.
type TeamConfig struct {
	DefaultMaxMembers int `yaml:"default_max_members"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ComplianceConfig is the configuration dictionary the Compliance
// Reporter consumes verbatim.
type ComplianceConfig struct {
	GatewayHost            string `yaml:"gateway_host"`
	SandboxEnabled         bool   `yaml:"sandbox_enabled"`
	PolicyEngineEnabled    bool   `yaml:"policy_engine_enabled"`
	CanaryTokensEnabled    bool   `yaml:"canary_tokens_enabled"`
	EgressFilteringEnabled bool   `yaml:"egress_filtering_enabled"`
	AuditLoggingEnabled    bool   `yaml:"audit_logging_enabled"`
	SkillSignatureRequired bool   `yaml:"skill_signature_required"`
}

// LoopbackOnly reports whether GatewayHost is the loopback address.
func (c ComplianceConfig) LoopbackOnly() bool {
	return c.GatewayHost == "127.0.0.1"
}

// Default returns the built-in defaults before any env/YAML override
// is applied.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{Dir: "./data/audit"},
		Identity: IdentityConfig{
			ScryptN: 1 << 14, ScryptR: 8, ScryptP: 1, ScryptKeyLen: 64, SaltBytes: 32,
		},
		SSO: SSOConfig{
			CallbackBaseURL:  "http://127.0.0.1:8080/auth/callback",
			DefaultScopes:    []string{"openid", "profile", "email"},
			DiscoveryTimeout: 10 * time.Second,
			ExchangeTimeout:  15 * time.Second,
		},
		Threat: ThreatConfig{
			MaxFailedAuth:        5,
			AuthWindow:           300 * time.Second,
			BlockDuration:        900 * time.Second,
			MaxRequestsPerMinute: 60,
			ExfiltrationBytes:    100_000,
			BaselineMinRequests:  50,
			MaxEvents:            10_000,
		},
		Team: TeamConfig{DefaultMaxMembers: 100},
		Logging: LoggingConfig{
			Level: "info", Format: "json",
		},
		Compliance: ComplianceConfig{GatewayHost: "127.0.0.1"},
	}
}

// Load builds configuration by starting from Default, layering a YAML
// file (if path is non-empty and exists), then applying environment
// overrides. Env wins so deployments can patch a single value without
// editing the file.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Ledger.Dir = getEnv("SECURITYCORE_LEDGER_DIR", cfg.Ledger.Dir)

	cfg.Identity.ScryptN = getIntEnv("SECURITYCORE_SCRYPT_N", cfg.Identity.ScryptN)
	cfg.Identity.ScryptR = getIntEnv("SECURITYCORE_SCRYPT_R", cfg.Identity.ScryptR)
	cfg.Identity.ScryptP = getIntEnv("SECURITYCORE_SCRYPT_P", cfg.Identity.ScryptP)
	cfg.Identity.ScryptKeyLen = getIntEnv("SECURITYCORE_SCRYPT_KEYLEN", cfg.Identity.ScryptKeyLen)
	cfg.Identity.SaltBytes = getIntEnv("SECURITYCORE_SALT_BYTES", cfg.Identity.SaltBytes)

	cfg.SSO.CallbackBaseURL = getEnv("SECURITYCORE_SSO_CALLBACK_URL", cfg.SSO.CallbackBaseURL)
	cfg.SSO.DiscoveryTimeout = getDurationEnv("SECURITYCORE_SSO_DISCOVERY_TIMEOUT", cfg.SSO.DiscoveryTimeout)
	cfg.SSO.ExchangeTimeout = getDurationEnv("SECURITYCORE_SSO_EXCHANGE_TIMEOUT", cfg.SSO.ExchangeTimeout)

	cfg.Threat.MaxFailedAuth = getIntEnv("SECURITYCORE_MAX_FAILED_AUTH", cfg.Threat.MaxFailedAuth)
	cfg.Threat.AuthWindow = getDurationEnv("SECURITYCORE_AUTH_WINDOW", cfg.Threat.AuthWindow)
	cfg.Threat.BlockDuration = getDurationEnv("SECURITYCORE_BLOCK_DURATION", cfg.Threat.BlockDuration)
	cfg.Threat.MaxRequestsPerMinute = getIntEnv("SECURITYCORE_MAX_RPM", cfg.Threat.MaxRequestsPerMinute)

	cfg.Team.DefaultMaxMembers = getIntEnv("SECURITYCORE_TEAM_MAX_MEMBERS", cfg.Team.DefaultMaxMembers)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Compliance.GatewayHost = getEnv("SECURITYCORE_GATEWAY_HOST", cfg.Compliance.GatewayHost)
	cfg.Compliance.SandboxEnabled = getBoolEnv("SECURITYCORE_SANDBOX_ENABLED", cfg.Compliance.SandboxEnabled)
	cfg.Compliance.PolicyEngineEnabled = getBoolEnv("SECURITYCORE_POLICY_ENGINE_ENABLED", cfg.Compliance.PolicyEngineEnabled)
	cfg.Compliance.CanaryTokensEnabled = getBoolEnv("SECURITYCORE_CANARY_TOKENS_ENABLED", cfg.Compliance.CanaryTokensEnabled)
	cfg.Compliance.EgressFilteringEnabled = getBoolEnv("SECURITYCORE_EGRESS_FILTERING_ENABLED", cfg.Compliance.EgressFilteringEnabled)
	cfg.Compliance.AuditLoggingEnabled = getBoolEnv("SECURITYCORE_AUDIT_LOGGING_ENABLED", cfg.Compliance.AuditLoggingEnabled)
	cfg.Compliance.SkillSignatureRequired = getBoolEnv("SECURITYCORE_SKILL_SIGNATURE_REQUIRED", cfg.Compliance.SkillSignatureRequired)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
