package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the single response shape every endpoint uses. Success
// responses carry data; failures carry an error block with a stable code.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, Envelope{Success: true, Data: data})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, r, status, Envelope{Success: false, Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "write response", "error", err)
	}
}
