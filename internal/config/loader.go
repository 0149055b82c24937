package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${NAME} references for expansion during config load.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every ${NAME} occurrence in s with the value of the
// NAME environment variable. A reference to an unset variable expands to
// the empty string, matching os.Expand's behavior for os.Getenv.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		return os.Getenv(name)
	})
}

// expandServerStrings applies expandEnv to every string field of a
// ServerConfig that plausibly carries operator-supplied secrets or
// identifiers.
func expandServerStrings(s ServerConfig) ServerConfig {
	s.URL = expandEnv(s.URL)
	s.TokenEndpoint = expandEnv(s.TokenEndpoint)
	s.ClientID = expandEnv(s.ClientID)
	s.ClientSecret = expandEnv(s.ClientSecret)
	s.Scope = expandEnv(s.Scope)
	s.JWTPublicKey = expandEnv(s.JWTPublicKey)
	s.JWTAudience = expandEnv(s.JWTAudience)
	s.JWTIssuer = expandEnv(s.JWTIssuer)
	return s
}

// applyServerDefaults fills in zero-valued optional fields with the
// defaults named throughout spec §3/§4.
func applyServerDefaults(s ServerConfig) ServerConfig {
	if s.TokenRefreshBufferSeconds == 0 {
		s.TokenRefreshBufferSeconds = 300
	}
	if s.ProviderType == "" {
		s.ProviderType = ProviderAuto
	}
	if len(s.JWTAlgorithms) == 0 {
		s.JWTAlgorithms = []string{"RS256", "ES256"}
	}
	if s.Retry.MaxAttempts == 0 {
		s.Retry = mergeRetryDefaults(s.Retry)
	}
	if s.CircuitBreaker.FailureThreshold == 0 {
		s.CircuitBreaker = mergeBreakerDefaults(s.CircuitBreaker)
	}
	return s
}

func mergeRetryDefaults(r RetryConfig) RetryConfig {
	d := DefaultRetryConfig()
	if r.MaxAttempts != 0 {
		d.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelayMs != 0 {
		d.InitialDelayMs = r.InitialDelayMs
	}
	if r.MaxDelayMs != 0 {
		d.MaxDelayMs = r.MaxDelayMs
	}
	if r.Multiplier != 0 {
		d.Multiplier = r.Multiplier
	}
	if r.JitterRatio != 0 {
		d.JitterRatio = r.JitterRatio
	}
	return d
}

func mergeBreakerDefaults(c CircuitBreakerConfig) CircuitBreakerConfig {
	d := DefaultCircuitBreakerConfig()
	if c.FailureThreshold != 0 {
		d.FailureThreshold = c.FailureThreshold
	}
	if c.OpenDurationMs != 0 {
		d.OpenDurationMs = c.OpenDurationMs
	}
	return d
}

// LoadJSON parses the canonical JSON configuration document (spec §6.1),
// expands ${NAME} environment references, applies defaults, and validates
// the result. The returned GlobalConfig is ready to be frozen into the
// composition root.
func LoadJSON(data []byte) (GlobalConfig, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return GlobalConfig{}, fmt.Errorf("parsing configuration JSON: %w", err)
	}
	return finishLoad(doc)
}

// LoadYAML parses the same logical document as LoadJSON, written in YAML.
func LoadYAML(data []byte) (GlobalConfig, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return GlobalConfig{}, fmt.Errorf("parsing configuration YAML: %w", err)
	}
	return finishLoad(doc)
}

// LoadFile detects JSON vs YAML from the extension and delegates.
func LoadFile(path string) (GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("reading configuration file %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return LoadYAML(data)
	}
	return LoadJSON(data)
}

func finishLoad(doc document) (GlobalConfig, error) {
	raw := doc.DicomWebOAuth

	cfg := GlobalConfig{
		ConfigVersion:          raw.ConfigVersion,
		LogLevel:               raw.LogLevel,
		RateLimitRequests:      raw.RateLimitRequests,
		RateLimitWindowSeconds: raw.RateLimitWindowSeconds,
		EnableMetrics:          raw.EnableMetrics,
		Servers:                make(map[string]ServerConfig, len(raw.Servers)),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	for name, rawSC := range raw.Servers {
		sc := rawSC.toServerConfig(name)
		sc = expandServerStrings(sc)
		sc = applyServerDefaults(sc)
		cfg.Servers[name] = sc
	}

	if errs := Validate(cfg); errs.HasErrors() {
		return GlobalConfig{}, errs
	}
	return cfg, nil
}
