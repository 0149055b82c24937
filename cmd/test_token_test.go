package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewTestTokenCmd(t *testing.T) {
	testTokenCmd := newTestTokenCmd()

	if testTokenCmd.Use != "test-token [server]" {
		t.Errorf("Expected Use to be 'test-token [server]', got %s", testTokenCmd.Use)
	}
	if testTokenCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}
	if testTokenCmd.RunE == nil {
		t.Error("Expected RunE function to be set")
	}
}

func TestRequestTestToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/dicomweb-oauth/servers/pacs-a/test" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"server":        "pacs-a",
				"token_preview": "abcd...wxyz",
				"breaker_state": "closed",
			},
		})
	}))
	defer server.Close()

	result, err := requestTestToken(server.URL, "pacs-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Data.Server != "pacs-a" {
		t.Errorf("expected server pacs-a, got %s", result.Data.Server)
	}
	if result.Data.BreakerState != "closed" {
		t.Errorf("expected breaker state closed, got %s", result.Data.BreakerState)
	}
}

func TestRequestTestToken_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"error":      "circuit open for server pacs-a",
				"error_type": "CircuitOpen",
			},
		})
	}))
	defer server.Close()

	_, err := requestTestToken(server.URL, "pacs-a")
	if err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestRequestTestToken_UnreachableServer(t *testing.T) {
	_, err := requestTestToken("http://127.0.0.1:1", "pacs-a")
	if err == nil {
		t.Error("expected error for unreachable server")
	}
}
