package proxy

import (
	"encoding/json"
	"net/http"
	"time"
)

const apiVersion = "2.0"

// envelope is the response shape for every admin endpoint (spec §6.2).
type envelope struct {
	PluginVersion string      `json:"plugin_version"`
	APIVersion    string      `json:"api_version"`
	Timestamp     string      `json:"timestamp"`
	Data          interface{} `json:"data"`
}

func writeEnvelope(w http.ResponseWriter, status int, pluginVersion string, data interface{}) {
	body := envelope{
		PluginVersion: pluginVersion,
		APIVersion:    apiVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Data:          data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// errorData is the "data" payload for the error envelope variant.
type errorData struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func writeErrorEnvelope(w http.ResponseWriter, status int, pluginVersion, message, errorType string) {
	writeEnvelope(w, status, pluginVersion, errorData{Error: message, ErrorType: errorType})
}
