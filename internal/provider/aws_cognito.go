package provider

import (
	"context"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
)

// awsCognitoAdapter wraps genericAdapter: a Cognito user pool's
// /oauth2/token endpoint accepts the standard client-credentials POST body
// (spec §4.4); full SigV4-signed access to AWS HealthImaging is out of
// scope for this adapter (no AWS SDK is present anywhere in the retrieved
// pack to ground that path on).
type awsCognitoAdapter struct {
	inner *genericAdapter
}

func newAWSCognitoAdapter(cfg config.ServerConfig) *awsCognitoAdapter {
	inner := newGenericAdapter(cfg)
	inner.identifyAs = config.ProviderAWS
	return &awsCognitoAdapter{inner: inner}
}

func (a *awsCognitoAdapter) Identify() config.ProviderType { return config.ProviderAWS }

func (a *awsCognitoAdapter) AcquireToken(ctx context.Context) (TokenAcquisitionResult, error) {
	return a.inner.AcquireToken(ctx)
}
