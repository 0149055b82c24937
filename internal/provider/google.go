package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/google"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

// googleAdapter acquires a token via the JWT-bearer grant using a service
// account key, per spec §4.4. ClientSecret carries the service-account
// JSON key material; this mirrors how the rest of the config treats
// "secret" as "whatever credential material this provider needs."
type googleAdapter struct {
	cfg config.ServerConfig
}

func newGoogleAdapter(cfg config.ServerConfig) *googleAdapter {
	return &googleAdapter{cfg: cfg}
}

func (a *googleAdapter) Identify() config.ProviderType { return config.ProviderGoogle }

func (a *googleAdapter) AcquireToken(ctx context.Context) (TokenAcquisitionResult, error) {
	var key struct {
		Email      string `json:"client_email"`
		PrivateKey string `json:"private_key"`
		TokenURI   string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(a.cfg.ClientSecret), &key); err != nil {
		return TokenAcquisitionResult{}, &errs.MalformedResponse{Err: fmt.Errorf("parsing service account key: %w", err)}
	}

	tokenURI := key.TokenURI
	if tokenURI == "" {
		tokenURI = a.cfg.TokenEndpoint
	}

	jwtConfig := &google.JWTConfig{
		Email:      key.Email,
		PrivateKey: []byte(key.PrivateKey),
		Scopes:     splitScope(a.cfg.Scope),
		TokenURL:   tokenURI,
	}

	httpClient := httpClientFor(a.cfg)
	ctx = contextWithHTTPClient(ctx, httpClient)

	token, err := jwtConfig.TokenSource(ctx).Token()
	if err != nil {
		return TokenAcquisitionResult{}, classifyOAuth2Error(err)
	}

	return TokenAcquisitionResult{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   expiresInFromToken(token),
	}, nil
}
