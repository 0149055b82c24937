package provider

import (
	"context"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
)

// keycloakAdapter wraps genericAdapter: Keycloak's realm token endpoint
// (".../realms/{realm}/protocol/openid-connect/token") is plain RFC 6749
// client-credentials (spec §4.4).
type keycloakAdapter struct {
	inner *genericAdapter
}

func newKeycloakAdapter(cfg config.ServerConfig) *keycloakAdapter {
	inner := newGenericAdapter(cfg)
	inner.identifyAs = config.ProviderKeycloak
	return &keycloakAdapter{inner: inner}
}

func (a *keycloakAdapter) Identify() config.ProviderType { return config.ProviderKeycloak }

func (a *keycloakAdapter) AcquireToken(ctx context.Context) (TokenAcquisitionResult, error) {
	return a.inner.AcquireToken(ctx)
}
