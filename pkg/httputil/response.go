// Package httputil defines the JSON wire envelope shared by every
// endpoint: success bodies are written as-is, refusals carry a stable
// machine-readable code plus a human-readable message.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Refusal codes written by handlers. The authorization gate extends
// this set with its own codes (insufficient_tier, scope_violation, ...)
// through WriteRefusal; clients switch on the code, never the message.
const (
	CodeValidationFailed = "validation_failed"
	CodeNotFound         = "not_found"
	CodeUnauthenticated  = "unauthenticated"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// Refusal is the error envelope
type Refusal struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteRefusal writes the error envelope with an arbitrary code. The
// gate uses this to surface its authorization taxonomy; handlers
// normally go through the typed helpers below.
func WriteRefusal(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Refusal{Code: code, Message: message})
}

// WriteValidationError refuses a malformed or incomplete request (400)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteRefusal(w, http.StatusBadRequest, CodeValidationFailed, message)
}

// WriteNotFoundError refuses a request for a resource that does not
// exist or that the caller may not see (404)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteRefusal(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteUnauthenticated refuses a request with no usable credentials
// (401). The message says what was wrong with the credentials, never
// whether the token exists.
func WriteUnauthenticated(w http.ResponseWriter, message string) {
	WriteRefusal(w, http.StatusUnauthorized, CodeUnauthenticated, message)
}

// WriteInternalError refuses a request that failed on the server side
// (500). The error detail goes to the caller; anything sensitive must
// be wrapped before it reaches a handler.
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteRefusal(w, http.StatusInternalServerError, CodeInternal, err.Error())
}

// WriteRateLimited refuses a request over its rate budget (429) and
// sets Retry-After so well-behaved clients back off.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteRefusal(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}

// WriteSuccess writes a 200 response with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
