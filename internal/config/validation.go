package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMinLength checks if a string meets minimum length requirements
func ValidateMinLength(field, value string, minLength int) error {
	if len(strings.TrimSpace(value)) < minLength {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be at least %d characters long", minLength),
		}
	}
	return nil
}

// ValidateMaxLength checks if a string doesn't exceed maximum length
func ValidateMaxLength(field, value string, maxLength int) error {
	if len(value) > maxLength {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must not exceed %d characters", maxLength),
		}
	}
	return nil
}

// Validate checks a loaded GlobalConfig against the rules in spec §6.1:
// missing Url/TokenEndpoint, unknown ProviderType, negative numerics, and
// RateLimitRequests < 1 are all rejected. Errors accumulate rather than
// short-circuit, so a caller sees every problem in one pass.
func Validate(cfg GlobalConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.RateLimitRequests < 1 {
		errs.Add("RateLimitRequests", "must be >= 1", cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindowSeconds < 1 {
		errs.Add("RateLimitWindowSeconds", "must be >= 1", cfg.RateLimitWindowSeconds)
	}

	for name, sc := range cfg.Servers {
		prefix := fmt.Sprintf("Servers[%s]", name)
		if err := ValidateRequired(prefix+".Url", sc.URL, "server"); err != nil {
			errs.Add(prefix+".Url", err.Error())
		}
		if err := ValidateRequired(prefix+".TokenEndpoint", sc.TokenEndpoint, "server"); err != nil {
			errs.Add(prefix+".TokenEndpoint", err.Error())
		}
		if err := ValidateOneOf(prefix+".ProviderType", string(sc.ProviderType), validProviderTypes); err != nil {
			errs.Add(prefix+".ProviderType", err.Error())
		}
		if sc.ProviderType != ProviderManagedIdentity {
			if err := ValidateRequired(prefix+".ClientId", sc.ClientID, "server"); err != nil {
				errs.Add(prefix+".ClientId", err.Error())
			}
		}
		if sc.TokenRefreshBufferSeconds < 0 {
			errs.Add(prefix+".TokenRefreshBufferSeconds", "must not be negative", sc.TokenRefreshBufferSeconds)
		}
		if sc.Retry.MaxAttempts < 1 {
			errs.Add(prefix+".RetryConfig.MaxAttempts", "must be >= 1", sc.Retry.MaxAttempts)
		}
		if sc.CircuitBreaker.FailureThreshold < 1 {
			errs.Add(prefix+".CircuitBreakerConfig.FailureThreshold", "must be >= 1", sc.CircuitBreaker.FailureThreshold)
		}
		for field, v := range map[string]float64{
			"RetryConfig.InitialDelayMs":          float64(sc.Retry.InitialDelayMs),
			"RetryConfig.MaxDelayMs":              float64(sc.Retry.MaxDelayMs),
			"RetryConfig.Multiplier":              sc.Retry.Multiplier,
			"RetryConfig.JitterRatio":             sc.Retry.JitterRatio,
			"CircuitBreakerConfig.OpenDurationMs": float64(sc.CircuitBreaker.OpenDurationMs),
		} {
			if v < 0 {
				errs.Add(prefix+"."+field, "must not be negative", v)
			}
		}
		for _, alg := range sc.JWTAlgorithms {
			if strings.EqualFold(alg, "none") {
				errs.Add(prefix+".JWTAlgorithms", "algorithm \"none\" is refused unconditionally", alg)
			}
		}
	}

	return errs
}
