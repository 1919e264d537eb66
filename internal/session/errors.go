package session

import (
	"errors"
	"fmt"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/render"
)

// Origin tags which controller an error escaped from so presentation can
// decide fatal-vs-recoverable without inspecting transport detail.
type Origin string

const (
	OriginCase       Origin = "case"
	OriginReport     Origin = "report"
	OriginNavigation Origin = "navigation"
)

// Kind is the error classification that crosses the component boundary.
type Kind string

const (
	// KindFatal aborts the session (case not found, unauthenticated).
	KindFatal Kind = "fatal"
	// KindRecoverableFetch degrades to fallback/empty-state; user-retryable.
	KindRecoverableFetch Kind = "recoverable_fetch"
	// KindRecoverableWrite is a failed autosave; retried next debounce cycle.
	KindRecoverableWrite Kind = "recoverable_write"
	// KindValidation carries field-level submit errors, rendered verbatim.
	KindValidation Kind = "validation"
	// KindDecode is a single image failing to render.
	KindDecode Kind = "decode"
)

// Error is the classified error the coordinator's merged channel carries.
type Error struct {
	Origin    Origin
	Kind      Kind
	Err       error
	Retryable bool
}

func (e Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Origin, e.Kind, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// classify maps component-local failures onto the taxonomy. Raw transport
// errors stay wrapped inside; only the classification is acted upon.
func classify(origin Origin, err error) Error {
	out := Error{Origin: origin, Err: err}
	switch {
	case errors.Is(err, api.ErrNotFound), errors.Is(err, api.ErrUnauthorized):
		if origin == OriginCase {
			out.Kind = KindFatal
			return out
		}
		out.Kind = KindRecoverableFetch
		out.Retryable = true
	case errors.Is(err, render.ErrDecode):
		out.Kind = KindDecode
	default:
		if _, ok := api.AsValidation(err); ok {
			out.Kind = KindValidation
			return out
		}
		if origin == OriginCase {
			out.Kind = KindFatal
			return out
		}
		out.Kind = KindRecoverableFetch
		out.Retryable = true
	}
	return out
}
