package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

func TestDetectProviderType(t *testing.T) {
	cases := []struct {
		endpoint string
		want     config.ProviderType
	}{
		{"https://login.microsoftonline.com/tenant/oauth2/v2.0/token", config.ProviderAzure},
		{"https://oauth2.googleapis.com/token", config.ProviderGoogle},
		{"https://cognito-idp.us-east-1.amazonaws.com/oauth2/token", config.ProviderAWS},
		{"https://idp.example.com/realms/myrealm/protocol/openid-connect/token", config.ProviderKeycloak},
		{"https://idp.example.com/oauth/token", config.ProviderGeneric},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, detectProviderType(c.endpoint), c.endpoint)
	}
}

func TestNewAdapter_DispatchesByConfiguredType(t *testing.T) {
	adapter, err := NewAdapter(config.ServerConfig{ProviderType: config.ProviderKeycloak, TokenEndpoint: "https://x/realms/r/token"})
	require.NoError(t, err)
	assert.Equal(t, config.ProviderKeycloak, adapter.Identify())
}

func TestNewAdapter_AutoDetectsFromEndpoint(t *testing.T) {
	adapter, err := NewAdapter(config.ServerConfig{TokenEndpoint: "https://login.microsoftonline.com/t/oauth2/v2.0/token"})
	require.NoError(t, err)
	assert.Equal(t, config.ProviderAzure, adapter.Identify())
}

func TestGenericAdapter_AcquireToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "abc123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	adapter := newGenericAdapter(config.ServerConfig{
		ClientID:      "client",
		ClientSecret:  "secret",
		TokenEndpoint: srv.URL,
		VerifySSL:     true,
	})

	result, err := adapter.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.AccessToken)
	assert.Greater(t, result.ExpiresIn.Seconds(), float64(0))
}

func TestGenericAdapter_AcquireToken_UnauthorizedMapsToErrsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
	}))
	defer srv.Close()

	adapter := newGenericAdapter(config.ServerConfig{
		ClientID:      "client",
		ClientSecret:  "wrong",
		TokenEndpoint: srv.URL,
		VerifySSL:     true,
	})

	_, err := adapter.AcquireToken(context.Background())
	require.Error(t, err)
	var unauthorized *errs.Unauthorized
	assert.ErrorAs(t, err, &unauthorized)
}

func TestGenericAdapter_AcquireToken_ScopeDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_scope"})
	}))
	defer srv.Close()

	adapter := newGenericAdapter(config.ServerConfig{
		ClientID:      "client",
		ClientSecret:  "secret",
		TokenEndpoint: srv.URL,
		VerifySSL:     true,
	})

	_, err := adapter.AcquireToken(context.Background())
	require.Error(t, err)
	var scopeDenied *errs.ScopeDenied
	assert.ErrorAs(t, err, &scopeDenied)
}

func TestGenericAdapter_AcquireToken_ServerErrorMapsToProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	adapter := newGenericAdapter(config.ServerConfig{
		ClientID:      "client",
		ClientSecret:  "secret",
		TokenEndpoint: srv.URL,
		VerifySSL:     true,
	})

	_, err := adapter.AcquireToken(context.Background())
	require.Error(t, err)
	var unavailable *errs.ProviderUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestManagedIdentityAdapter_AcquireToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("Metadata"))
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "managed-token",
			"token_type":   "Bearer",
			"expires_in":   "3600",
		})
	}))
	defer srv.Close()

	adapter := newManagedIdentityAdapter(config.ServerConfig{TokenEndpoint: srv.URL})
	result, err := adapter.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "managed-token", result.AccessToken)
	assert.Equal(t, 3600*1e9, float64(result.ExpiresIn))
}

func TestManagedIdentityAdapter_AcquireToken_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	adapter := newManagedIdentityAdapter(config.ServerConfig{TokenEndpoint: srv.URL})
	_, err := adapter.AcquireToken(context.Background())
	require.Error(t, err)
	var malformed *errs.MalformedResponse
	assert.ErrorAs(t, err, &malformed)
}
