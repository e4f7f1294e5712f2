// Package rpc is the JSON-over-HTTP transport shared by the coordinator,
// workers and observers: a response envelope, the server-side helpers that
// write it, and typed clients for each surface.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"jobmesh/pkg/model"
)

// Error codes carried in APIError.Code.
const (
	CodeMalformedInput   = "malformed_input"
	CodeNotFound         = "not_found"
	CodeRetriesExhausted = "retries_exhausted"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// APIError is the error half of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap maps wire codes back to the sentinel errors callers match on.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeMalformedInput:
		return model.ErrMalformedInput
	case CodeRetriesExhausted:
		return model.ErrRetriesExhausted
	case CodeNotFound:
		return ErrNotFound
	}
	return nil
}

// ErrNotFound is matched by clients for 404 answers.
var ErrNotFound = errors.New("not found")

// Response is the envelope around every reply.
type Response struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *APIError       `json:"error,omitempty"`
}

// NewRequestID generates a short request identifier.
func NewRequestID() string {
	return "req_" + uuid.New().String()[:8]
}

// RespondOK writes a 200 envelope around data.
func RespondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

// RespondCreated writes a 201 envelope around data.
func RespondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil)
}

// RespondError writes an error envelope.
func RespondError(w http.ResponseWriter, reqID string, status int, code, msg string) {
	respondJSON(w, status, reqID, nil, &APIError{Code: code, Message: msg})
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *APIError) {
	resp := Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Error:     apiErr,
		Status:    "ok",
	}
	if apiErr != nil {
		resp.Status = "error"
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			status = http.StatusInternalServerError
			resp.Status = "error"
			resp.Error = &APIError{Code: CodeInternal, Message: fmt.Sprintf("encode response: %v", err)}
		} else {
			resp.Data = raw
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// MaxBodyBytes caps every request body. Operands far beyond this size would
// keep a worker busy in the primality test for minutes.
const MaxBodyBytes = 1 << 20

// DecodeJSON reads a request body of at most MaxBodyBytes into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", model.ErrMalformedInput, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrMalformedInput, err)
	}
	return nil
}
