package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors the session layer classifies on.
var (
	// ErrNotFound maps 404 responses. A missing case is fatal to a session.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized maps 401/403 responses (missing or expired token).
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError carries a DRF-style field error map from a 400 response.
// Field messages are preserved verbatim so the editor can render them as-is.
type ValidationError struct {
	Detail string
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Detail != "" {
			return e.Detail
		}
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return strings.Join(parts, ", ")
}

// AsValidation unwraps err into a *ValidationError when possible.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// StatusError wraps any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}
