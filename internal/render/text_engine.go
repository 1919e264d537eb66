package render

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/teachrad/radcase-console/internal/api"
)

// TextEngine renders image instances as a metadata card plus a synthetic
// grayscale preview onto a text Surface. True pixel rendering belongs to a
// dedicated viewer; the session core only needs a surface that displays
// whatever instance the navigation controller points at.
type TextEngine struct {
	mu        sync.Mutex
	surface   Surface
	attached  bool
	logger    *log.Logger
	scale     float64
	observers map[int]func(api.ImageRef, Viewport)
	nextObs   int

	// Fetcher, when set, stages/validates the image locator before the
	// preview is composed. Failures surface as decode errors for the one
	// image being displayed.
	Fetcher func(ctx context.Context, ref api.ImageRef) error
}

// NewTextEngine constructs an engine. The process-wide Initialize must have
// run before any surface attaches.
func NewTextEngine(logger *log.Logger) *TextEngine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TextEngine{
		logger:    logger,
		scale:     1.0,
		observers: make(map[int]func(api.ImageRef, Viewport)),
	}
}

// Attach binds the rendering surface. Attaching an already-attached surface
// is a no-op so repeated mount cycles cannot double-register anything.
func (e *TextEngine) Attach(s Surface) error {
	if !Initialized() {
		return ErrNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached {
		if e.surface == s {
			return nil
		}
		return fmt.Errorf("render: surface already attached")
	}
	e.surface = s
	e.attached = true
	return nil
}

// Detach releases the surface and every observer registered since attach.
// Idempotent: detaching a detached engine is a no-op.
func (e *TextEngine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	if e.surface != nil {
		e.surface.Clear()
	}
	e.surface = nil
	e.attached = false
	e.observers = make(map[int]func(api.ImageRef, Viewport))
}

// OnRendered registers a render-complete observer; the returned func removes
// exactly that observer and may be called more than once safely.
func (e *TextEngine) OnRendered(fn func(api.ImageRef, Viewport)) func() {
	e.mu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// ObserverCount reports registered observers (used by mount-cycle tests).
func (e *TextEngine) ObserverCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers)
}

// SetTool activates t exclusively in the shared tool registry.
func (e *TextEngine) SetTool(t Tool) error { return ActivatePrimary(t) }

// ActiveTool returns the current exclusive tool.
func (e *TextEngine) ActiveTool() Tool { return PrimaryTool() }

// Display decodes and renders one image reference, returning the re-derived
// viewport readout. A failure here is local to this image: the caller keeps
// the series and may display another instance.
func (e *TextEngine) Display(ctx context.Context, ref api.ImageRef) (Viewport, error) {
	e.mu.Lock()
	if !e.attached || e.surface == nil {
		e.mu.Unlock()
		return Viewport{}, fmt.Errorf("render: no surface attached")
	}
	surface := e.surface
	scale := e.scale
	fetch := e.Fetcher
	e.mu.Unlock()

	if ref.FileURL == "" {
		return Viewport{}, fmt.Errorf("%w: empty image locator", ErrDecode)
	}
	if fetch != nil && !IsFallback(ref) {
		if err := fetch(ctx, ref); err != nil {
			return Viewport{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	vp := deriveViewport(ref, scale)
	surface.SetText(composeFrame(ref, vp))

	e.mu.Lock()
	obs := make([]func(api.ImageRef, Viewport), 0, len(e.observers))
	for _, fn := range e.observers {
		obs = append(obs, fn)
	}
	e.mu.Unlock()
	for _, fn := range obs {
		fn(ref, vp)
	}
	return vp, nil
}

// deriveViewport computes the readout from image metadata with sane window
// defaults when the acquisition carried none.
func deriveViewport(ref api.ImageRef, scale float64) Viewport {
	vp := Viewport{Scale: scale, WindowWidth: 400, WindowCenter: 40}
	if ref.Metadata.WindowWidth != nil {
		vp.WindowWidth = *ref.Metadata.WindowWidth
	}
	if ref.Metadata.WindowCenter != nil {
		vp.WindowCenter = *ref.Metadata.WindowCenter
	}
	return vp
}

// composeFrame builds the text frame: header card + deterministic preview.
func composeFrame(ref api.ImageRef, vp Viewport) string {
	var b strings.Builder
	if IsFallback(ref) {
		b.WriteString("  (no imaging available - placeholder)\n\n")
	}
	fmt.Fprintf(&b, "  Instance #%d  UID %s\n", ref.InstanceNumber, shortUID(ref.SOPInstanceUID))
	if d := ref.Metadata.Dimensions; d != nil {
		fmt.Fprintf(&b, "  Matrix %dx%d", d.Rows, d.Columns)
	} else {
		b.WriteString("  Matrix n/a")
	}
	fmt.Fprintf(&b, "   WW %.0f / WC %.0f   Zoom %.2fx\n\n", vp.WindowWidth, vp.WindowCenter, vp.Scale)
	b.WriteString(preview(ref.SOPInstanceUID, 16, 8))
	return b.String()
}

func shortUID(uid string) string {
	if len(uid) <= 18 {
		return uid
	}
	return "..." + uid[len(uid)-15:]
}

// preview renders a deterministic halftone block so consecutive instances are
// visually distinguishable in the terminal.
var shades = []rune{' ', '░', '▒', '▓', '█'}

func preview(seed string, cols, rows int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	state := h.Sum64()

	var b strings.Builder
	for y := 0; y < rows; y++ {
		b.WriteString("  ")
		for x := 0; x < cols; x++ {
			state = state*6364136223846793005 + 1442695040888963407
			b.WriteRune(shades[int(state>>60)%len(shades)])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
