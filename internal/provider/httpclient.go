package provider

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// insecureHTTPClient is used only when a ServerConfig explicitly sets
// VerifySSL: false (spec §6.1); an ssl_verification_failure security
// event is the caller's responsibility, not this package's, since only
// the Token Manager has the server context needed to emit it.
func insecureHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
}

// contextWithHTTPClient threads client through oauth2.HTTPClient so the
// clientcredentials/google token sources use it instead of
// http.DefaultClient.
func contextWithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// expiresInFromToken derives a relative duration from an absolute
// token.Expiry, since TokenAcquisitionResult deals in durations and
// oauth2.Token deals in absolute times.
func expiresInFromToken(token *oauth2.Token) time.Duration {
	if token.Expiry.IsZero() {
		return 0
	}
	d := time.Until(token.Expiry)
	if d < 0 {
		return 0
	}
	return d
}
