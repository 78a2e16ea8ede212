// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope shared by every endpoint; the
// auth, rate-limit, and recovery middleware emit the same shape.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail carries a stable machine-readable code plus a
// human-readable message.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NotFound handles 404 responses for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already gone; nothing useful left to do
		_ = err
	}
}

// writeError writes an error response in the shared envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{
		Error: APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
