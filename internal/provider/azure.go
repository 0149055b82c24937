package provider

import (
	"context"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
)

// azureAdapter wraps genericAdapter: Azure AD's v2.0 token endpoint speaks
// the same client-credentials wire format as any other RFC 6749 provider,
// it is only reachable via a tenant-scoped URL (spec §4.4).
type azureAdapter struct {
	inner *genericAdapter
}

func newAzureAdapter(cfg config.ServerConfig) *azureAdapter {
	inner := newGenericAdapter(cfg)
	inner.identifyAs = config.ProviderAzure
	return &azureAdapter{inner: inner}
}

func (a *azureAdapter) Identify() config.ProviderType { return config.ProviderAzure }

func (a *azureAdapter) AcquireToken(ctx context.Context) (TokenAcquisitionResult, error) {
	return a.inner.AcquireToken(ctx)
}
