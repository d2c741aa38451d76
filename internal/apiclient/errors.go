package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
	// Message is the backend's human readable explanation, taken from
	// detail/error/message or the first field error.
	Message string
	// FieldErrors holds per-field messages from validation responses shaped
	// like {"email": ["already registered"]}.
	FieldErrors map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps the status code onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrServer:
		return e.StatusCode >= 500
	}
	return false
}

// AuthFailure reports whether the response invalidates the session.
func (e *APIError) AuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

var (
	messageKeys  = []string{"detail", "error", "message"}
	envelopeKeys = []string{"request_id", "code", "status"}
)

func newAPIError(status int, method, path string, body []byte) *APIError {
	e := &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Body:       body,
	}
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err == nil {
		for _, key := range messageKeys {
			if s, ok := generic[key].(string); ok && strings.TrimSpace(s) != "" {
				e.Message = s
				break
			}
		}
		for key, raw := range generic {
			if isMessageKey(key) {
				continue
			}
			if msgs := stringsOf(raw); len(msgs) > 0 {
				if e.FieldErrors == nil {
					e.FieldErrors = make(map[string][]string)
				}
				e.FieldErrors[key] = msgs
			}
		}
	}
	if e.Message == "" && len(e.FieldErrors) > 0 {
		keys := make([]string, 0, len(e.FieldErrors))
		for k := range e.FieldErrors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.Message = keys[0] + ": " + e.FieldErrors[keys[0]][0]
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func isMessageKey(k string) bool {
	for _, m := range messageKeys {
		if k == m {
			return true
		}
	}
	for _, m := range envelopeKeys {
		if k == m {
			return true
		}
	}
	return false
}

func stringsOf(raw any) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
