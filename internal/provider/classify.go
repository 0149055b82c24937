package provider

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

// classifyOAuth2Error maps golang.org/x/oauth2's error shapes onto the
// ProviderError taxonomy from spec §4.4/§7.
func classifyOAuth2Error(err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch {
		case retrieveErr.ErrorCode == "invalid_scope" || retrieveErr.ErrorCode == "access_denied":
			return &errs.ScopeDenied{Body: string(retrieveErr.Body)}
		case status >= 500:
			return &errs.ProviderUnavailable{StatusCode: status, Body: string(retrieveErr.Body)}
		case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
			return &errs.Unauthorized{StatusCode: status, Body: string(retrieveErr.Body)}
		default:
			return &errs.Unauthorized{StatusCode: status, Body: string(retrieveErr.Body)}
		}
	}

	return &errs.NetworkError{Err: err}
}
