package render

import (
	"context"
	"errors"
	"sync"

	"github.com/teachrad/radcase-console/internal/api"
)

// Viewport is the read-only readout re-derived after every successful
// display: never authoritative state, only a projection for presentation.
type Viewport struct {
	Scale        float64
	WindowWidth  float64
	WindowCenter float64
}

// Surface is the attachable drawing target. The TUI provides an adapter
// around its viewport widget; tests provide an in-memory one.
type Surface interface {
	SetText(text string)
	Clear()
}

// Engine is the image-rendering engine the navigation controller drives.
// Attach/Detach are idempotent; Display decode failures are localized to the
// displayed image and never invalidate the series.
type Engine interface {
	Attach(s Surface) error
	Detach()
	Display(ctx context.Context, ref api.ImageRef) (Viewport, error)
	SetTool(t Tool) error
	ActiveTool() Tool

	// OnRendered registers a render-complete observer and returns its
	// deregistration func. Detach drops all observers regardless.
	OnRendered(fn func(api.ImageRef, Viewport)) (remove func())
}

// ErrNotInitialized is returned by Attach before Initialize has run.
var ErrNotInitialized = errors.New("render: engine not initialized")

// ErrDecode wraps per-image decode failures.
var ErrDecode = errors.New("render: decode failed")

var (
	initMu      sync.Mutex
	initialized bool
)

// Initialize performs the process-wide engine/tool-registry setup exactly
// once. Repeat calls are no-ops. There is deliberately no teardown: engine
// initialization is process-lifetime, not session-lifetime.
func Initialize() {
	initMu.Lock()
	defer initMu.Unlock()
	if initialized {
		return
	}
	registerDefaultTools()
	initialized = true
}

// Initialized reports whether Initialize has run. Sessions check this before
// attaching a surface.
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// resetForTest clears process-wide state between tests.
func resetForTest() {
	initMu.Lock()
	initialized = false
	initMu.Unlock()
	resetToolsForTest()
}

// FallbackImage is the known-good placeholder displayed whenever real imaging
// data cannot be resolved, so the viewing surface is never left blank.
func FallbackImage() api.ImageRef {
	return api.ImageRef{
		SOPInstanceUID: "builtin.fallback",
		InstanceNumber: 1,
		FileURL:        "builtin:fallback",
	}
}

// IsFallback reports whether ref is the built-in placeholder.
func IsFallback(ref api.ImageRef) bool {
	return ref.FileURL == "builtin:fallback"
}
