// Package config defines the broker's configuration surface: the typed
// structures consumed by the rest of the module, environment-variable
// expansion, and validation. Configuration is loaded once at startup and
// is immutable thereafter (§6.1 of the specification).
package config

import "time"

// ProviderType identifies which OAuth2 identity-provider adapter a server
// should use. "" or "auto" triggers host-based auto-detection.
type ProviderType string

const (
	ProviderAuto            ProviderType = "auto"
	ProviderAzure           ProviderType = "azure"
	ProviderGoogle          ProviderType = "google"
	ProviderAWS             ProviderType = "aws"
	ProviderKeycloak        ProviderType = "keycloak"
	ProviderGeneric         ProviderType = "generic"
	ProviderManagedIdentity ProviderType = "managed-identity"
)

var validProviderTypes = []string{
	string(ProviderAuto), string(ProviderAzure), string(ProviderGoogle),
	string(ProviderAWS), string(ProviderKeycloak), string(ProviderGeneric),
	string(ProviderManagedIdentity),
}

// RetryConfig controls the bounded, jittered exponential backoff around a
// single server's token acquisition (spec §4.6).
type RetryConfig struct {
	MaxAttempts    int     `json:"MaxAttempts" yaml:"MaxAttempts"`
	InitialDelayMs int     `json:"InitialDelayMs" yaml:"InitialDelayMs"`
	MaxDelayMs     int     `json:"MaxDelayMs" yaml:"MaxDelayMs"`
	Multiplier     float64 `json:"Multiplier" yaml:"Multiplier"`
	JitterRatio    float64 `json:"JitterRatio" yaml:"JitterRatio"`
}

// DefaultRetryConfig mirrors the defaults named in spec §4.6.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelayMs: 200,
		MaxDelayMs:     5000,
		Multiplier:     2,
		JitterRatio:    0.2,
	}
}

// CircuitBreakerConfig controls per-server failure isolation (spec §4.5).
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"FailureThreshold" yaml:"FailureThreshold"`
	OpenDurationMs   int `json:"OpenDurationMs" yaml:"OpenDurationMs"`
}

// OpenDuration returns OpenDurationMs as a time.Duration.
func (c CircuitBreakerConfig) OpenDuration() time.Duration {
	return time.Duration(c.OpenDurationMs) * time.Millisecond
}

// DefaultCircuitBreakerConfig mirrors the scenario defaults used in §8.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		OpenDurationMs:   30000,
	}
}

// ServerConfig describes one upstream DICOMweb endpoint. It is immutable
// once the GlobalConfig that contains it has been validated and frozen.
type ServerConfig struct {
	Name                      string               `json:"-" yaml:"-"`
	URL                       string               `json:"Url" yaml:"Url"`
	TokenEndpoint             string               `json:"TokenEndpoint" yaml:"TokenEndpoint"`
	ClientID                  string               `json:"ClientId" yaml:"ClientId"`
	ClientSecret              string               `json:"ClientSecret" yaml:"ClientSecret"`
	Scope                     string               `json:"Scope" yaml:"Scope"`
	ProviderType              ProviderType          `json:"ProviderType" yaml:"ProviderType"`
	TokenRefreshBufferSeconds int                   `json:"TokenRefreshBufferSeconds" yaml:"TokenRefreshBufferSeconds"`
	VerifySSL                 bool                  `json:"VerifySSL" yaml:"VerifySSL"`
	JWTPublicKey              string                `json:"JWTPublicKey" yaml:"JWTPublicKey"`
	JWTAudience               string                `json:"JWTAudience" yaml:"JWTAudience"`
	JWTIssuer                 string                `json:"JWTIssuer" yaml:"JWTIssuer"`
	JWTAlgorithms             []string              `json:"JWTAlgorithms" yaml:"JWTAlgorithms"`
	Retry                     RetryConfig           `json:"RetryConfig" yaml:"RetryConfig"`
	CircuitBreaker            CircuitBreakerConfig  `json:"CircuitBreakerConfig" yaml:"CircuitBreakerConfig"`
}

// RefreshBuffer returns TokenRefreshBufferSeconds as a time.Duration.
func (s ServerConfig) RefreshBuffer() time.Duration {
	return time.Duration(s.TokenRefreshBufferSeconds) * time.Second
}

// GlobalConfig is the root of the validated, frozen configuration object
// the rest of the module consumes (spec §6.1).
type GlobalConfig struct {
	ConfigVersion          string                  `json:"ConfigVersion"`
	LogLevel               string                  `json:"LogLevel"`
	RateLimitRequests      int                     `json:"RateLimitRequests"`
	RateLimitWindowSeconds int                     `json:"RateLimitWindowSeconds"`
	EnableMetrics          bool                    `json:"EnableMetrics"`
	Servers                map[string]ServerConfig `json:"Servers"`
}

// RateLimitWindow returns RateLimitWindowSeconds as a time.Duration.
func (g GlobalConfig) RateLimitWindow() time.Duration {
	return time.Duration(g.RateLimitWindowSeconds) * time.Second
}

// document is the on-disk JSON envelope: {"DicomWebOAuth": GlobalConfig}.
type document struct {
	DicomWebOAuth rawGlobalConfig `json:"DicomWebOAuth" yaml:"DicomWebOAuth"`
}

// rawGlobalConfig mirrors GlobalConfig but keeps Servers as a map of
// rawServerConfig so server names can be injected into each
// ServerConfig.Name, and VerifySSL's absence can be distinguished from an
// explicit false, after unmarshalling.
type rawGlobalConfig struct {
	ConfigVersion          string                     `json:"ConfigVersion" yaml:"ConfigVersion"`
	LogLevel               string                     `json:"LogLevel" yaml:"LogLevel"`
	RateLimitRequests      int                        `json:"RateLimitRequests" yaml:"RateLimitRequests"`
	RateLimitWindowSeconds int                        `json:"RateLimitWindowSeconds" yaml:"RateLimitWindowSeconds"`
	EnableMetrics          bool                       `json:"EnableMetrics" yaml:"EnableMetrics"`
	Servers                map[string]rawServerConfig `json:"Servers" yaml:"Servers"`
}

// rawServerConfig decodes a server entry with VerifySSL as *bool so an
// absent key can default to true instead of Go's bool zero value.
type rawServerConfig struct {
	URL                       string               `json:"Url" yaml:"Url"`
	TokenEndpoint             string               `json:"TokenEndpoint" yaml:"TokenEndpoint"`
	ClientID                  string               `json:"ClientId" yaml:"ClientId"`
	ClientSecret              string               `json:"ClientSecret" yaml:"ClientSecret"`
	Scope                     string               `json:"Scope" yaml:"Scope"`
	ProviderType              ProviderType         `json:"ProviderType" yaml:"ProviderType"`
	TokenRefreshBufferSeconds int                  `json:"TokenRefreshBufferSeconds" yaml:"TokenRefreshBufferSeconds"`
	VerifySSL                 *bool                `json:"VerifySSL" yaml:"VerifySSL"`
	JWTPublicKey              string               `json:"JWTPublicKey" yaml:"JWTPublicKey"`
	JWTAudience               string               `json:"JWTAudience" yaml:"JWTAudience"`
	JWTIssuer                 string               `json:"JWTIssuer" yaml:"JWTIssuer"`
	JWTAlgorithms             []string             `json:"JWTAlgorithms" yaml:"JWTAlgorithms"`
	Retry                     RetryConfig          `json:"RetryConfig" yaml:"RetryConfig"`
	CircuitBreaker            CircuitBreakerConfig `json:"CircuitBreakerConfig" yaml:"CircuitBreakerConfig"`
}

// toServerConfig materializes a rawServerConfig into the public
// ServerConfig, applying the VerifySSL default.
func (r rawServerConfig) toServerConfig(name string) ServerConfig {
	verifySSL := true
	if r.VerifySSL != nil {
		verifySSL = *r.VerifySSL
	}
	return ServerConfig{
		Name:                      name,
		URL:                       r.URL,
		TokenEndpoint:             r.TokenEndpoint,
		ClientID:                  r.ClientID,
		ClientSecret:              r.ClientSecret,
		Scope:                     r.Scope,
		ProviderType:              r.ProviderType,
		TokenRefreshBufferSeconds: r.TokenRefreshBufferSeconds,
		VerifySSL:                 verifySSL,
		JWTPublicKey:              r.JWTPublicKey,
		JWTAudience:               r.JWTAudience,
		JWTIssuer:                 r.JWTIssuer,
		JWTAlgorithms:             r.JWTAlgorithms,
		Retry:                     r.Retry,
		CircuitBreaker:            r.CircuitBreaker,
	}
}
