// Package httputil carries the JSON helpers shared by all handlers: one
// encoder, one error envelope, one request decoder.
package httputil

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	dErrors "policydesk/pkg/domainerrors"
)

const maxBodyBytes = 1 << 20

// WriteJSON encodes v with the shared encoder and sets the status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error onto the envelope. Internal errors keep their
// message out of the response body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]any{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = dErrors.MessageOf(err)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// WriteErrorDetail is WriteError with endpoint-specific fields merged into
// the envelope.
func WriteErrorDetail(w http.ResponseWriter, status int, code, description string, extra map[string]any) {
	body := map[string]any{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into dst, rejecting oversized payloads.
func Decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return dErrors.Wrap(dErrors.CodeBadRequest, "could not read request body", err)
	}
	if len(body) > maxBodyBytes {
		return dErrors.New(dErrors.CodeBadRequest, "request body too large")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return dErrors.Wrap(dErrors.CodeBadRequest, "invalid JSON body", err)
	}
	return nil
}
