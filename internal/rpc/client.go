package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// caller performs envelope-aware JSON requests against one base URL.
type caller struct {
	baseURL string
	http    *http.Client
}

func newCaller(baseURL string, hc *http.Client) caller {
	if hc == nil {
		hc = &http.Client{}
	}
	return caller{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// transportError marks failures where no envelope came back.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// do sends body as JSON and decodes the envelope's data into out. Transport
// failures come back as *transportError, server errors as *APIError.
func (c caller) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("read response: %w", err)}
	}

	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return &transportError{err: fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)}
	}
	if env.Error != nil {
		return env.Error
	}
	if resp.StatusCode >= 300 {
		return &APIError{Code: CodeInternal, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
