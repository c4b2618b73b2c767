package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Plain-text bodies returned by the producer endpoint.
const (
	msgOK           = "OK"
	msgNotObject    = "Invalid JSON: must be an object."
	msgInvalidJSON  = "Invalid JSON format."
	msgTooLarge     = "Payload too large."
	msgInternal     = "Internal server error."
	msgNotAvailable = "Relay shutting down."
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Debug("failed to write text response", "error", err)
	}
}
