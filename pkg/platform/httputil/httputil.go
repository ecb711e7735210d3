// Package httputil contains JSON request/response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	dErrors "eventpass/pkg/domain-errors"
)

// DefaultMaxBodyBytes bounds request bodies decoded by DecodeJSON.
const DefaultMaxBodyBytes = 4 << 10

// ErrorResponse is the error envelope used across the API.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP error response. Internal
// errors never leak their message to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	resp := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.Description = de.Message
		}
	}
	WriteJSON(w, status, resp)
}

// WriteErrorTag writes {"error": tag} with an explicit status, for endpoints
// whose contract defines their own error vocabulary.
func WriteErrorTag(w http.ResponseWriter, status int, tag string) {
	WriteJSON(w, status, ErrorResponse{Error: tag})
}

// DecodeJSON decodes a single JSON object from the request body into dst,
// reading at most maxBytes. Trailing data after the object is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return dErrors.New(dErrors.CodeBadRequest, "content type must be application/json")
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "request body too large")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeBadRequest, "request body must contain a single JSON object")
	}
	return nil
}
