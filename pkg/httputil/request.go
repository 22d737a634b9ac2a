package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies; every body this API accepts is a
// small JSON document.
const maxBodyBytes = 1 << 20

// ParseJSON decodes the request body into dest. The body is capped at
// 1 MiB and must hold exactly one JSON value.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: trailing data after body")
	}
	return nil
}

// ParsePathInt64OrError reads an int64 path variable, writing the
// validation refusal itself when the variable is missing or malformed.
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	raw := mux.Vars(r)[key]
	if raw == "" {
		WriteValidationError(w, fmt.Sprintf("missing path parameter: %s", key))
		return 0, false
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		WriteValidationError(w, fmt.Sprintf("invalid integer for %s: %s", key, raw))
		return 0, false
	}
	return val, true
}
