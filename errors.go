package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// Store-level sentinels. Adapters translate driver errors into these so
// handlers can map them to status codes without knowing the backend.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Verifier sentinels. All of them surface as 401 to the caller; the
// distinctions matter for logging and for tests.
var (
	ErrInvalidToken   = errors.New("token is invalid")
	ErrTokenExpired   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("unexpected token type")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrUnknownSubject = errors.New("token subject no longer exists")
)

// ErrForbidden is returned by the authorization guard for unsafe
// actions on a resource the identity does not own.
var ErrForbidden = errors.New("forbidden")

// APIError represents a structured API error response
type APIError struct {
	Code    string              `json:"error_code"`
	Message string              `json:"error_message"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeFieldErrors writes a 400 with every violated field reported
// together, one message list per field.
func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, APIError{
		Code:    "VALIDATION_FAILED",
		Message: "Validation failed",
		Fields:  fields,
	})
}
