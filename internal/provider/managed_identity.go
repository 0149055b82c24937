package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

// managedIdentityMetadataURL is the Azure Instance Metadata Service token
// endpoint; no cloud SDK is present anywhere in the retrieved pack for
// this, so the documented HTTP contract is hit directly (spec §4.4).
const managedIdentityMetadataURL = "http://169.254.169.254/metadata/identity/oauth2/token"

// managedIdentityAdapter requests a token from the platform metadata
// endpoint. No client secret is configured or needed: the platform itself
// vouches for the caller's identity.
type managedIdentityAdapter struct {
	cfg    config.ServerConfig
	client *http.Client
}

func newManagedIdentityAdapter(cfg config.ServerConfig) *managedIdentityAdapter {
	return &managedIdentityAdapter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *managedIdentityAdapter) Identify() config.ProviderType { return config.ProviderManagedIdentity }

func (a *managedIdentityAdapter) AcquireToken(ctx context.Context) (TokenAcquisitionResult, error) {
	q := url.Values{}
	q.Set("api-version", "2018-02-01")
	if a.cfg.Scope != "" {
		q.Set("resource", a.cfg.Scope)
	}

	endpoint := managedIdentityMetadataURL
	if a.cfg.TokenEndpoint != "" {
		endpoint = a.cfg.TokenEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return TokenAcquisitionResult{}, &errs.NetworkError{Err: err}
	}
	req.Header.Set("Metadata", "true")

	resp, err := a.client.Do(req)
	if err != nil {
		return TokenAcquisitionResult{}, &errs.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenAcquisitionResult{}, &errs.NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return TokenAcquisitionResult{}, &errs.ProviderUnavailable{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode >= 400:
		return TokenAcquisitionResult{}, &errs.Unauthorized{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return TokenAcquisitionResult{}, &errs.MalformedResponse{Err: fmt.Errorf("decoding metadata response: %w", err)}
	}
	if payload.AccessToken == "" {
		return TokenAcquisitionResult{}, &errs.MalformedResponse{Err: fmt.Errorf("metadata response missing access_token")}
	}

	var expiresInSeconds int64
	fmt.Sscanf(payload.ExpiresIn, "%d", &expiresInSeconds)

	return TokenAcquisitionResult{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresIn:   time.Duration(expiresInSeconds) * time.Second,
	}, nil
}
