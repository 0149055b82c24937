// Package provider implements the client-credentials adapters that
// acquire access tokens from a specific identity provider (spec §4.4),
// and the host-based auto-detection factory that selects one.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
)

// TokenAcquisitionResult is the successful outcome of AcquireToken.
type TokenAcquisitionResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Adapter acquires tokens from one identity provider using the
// client-credentials (or platform-equivalent) grant.
type Adapter interface {
	AcquireToken(ctx context.Context) (TokenAcquisitionResult, error)
	Identify() config.ProviderType
}

// NewAdapter constructs the Adapter for cfg.ProviderType, auto-detecting
// from cfg.TokenEndpoint's host when ProviderType is empty or "auto"
// (spec §4.4).
func NewAdapter(cfg config.ServerConfig) (Adapter, error) {
	pt := cfg.ProviderType
	if pt == "" || pt == config.ProviderAuto {
		pt = detectProviderType(cfg.TokenEndpoint)
	}

	switch pt {
	case config.ProviderAzure:
		return newAzureAdapter(cfg), nil
	case config.ProviderGoogle:
		return newGoogleAdapter(cfg), nil
	case config.ProviderAWS:
		return newAWSCognitoAdapter(cfg), nil
	case config.ProviderKeycloak:
		return newKeycloakAdapter(cfg), nil
	case config.ProviderManagedIdentity:
		return newManagedIdentityAdapter(cfg), nil
	default:
		return newGenericAdapter(cfg), nil
	}
}

// detectProviderType inspects the token endpoint host, exactly per the
// rules in spec §4.4.
func detectProviderType(tokenEndpoint string) config.ProviderType {
	switch {
	case strings.Contains(tokenEndpoint, "login.microsoftonline.com"):
		return config.ProviderAzure
	case strings.Contains(tokenEndpoint, "oauth2.googleapis.com"):
		return config.ProviderGoogle
	case strings.Contains(tokenEndpoint, "cognito-idp.") && strings.Contains(tokenEndpoint, ".amazonaws.com"):
		return config.ProviderAWS
	case strings.Contains(tokenEndpoint, "/realms/"):
		return config.ProviderKeycloak
	default:
		return config.ProviderGeneric
	}
}
