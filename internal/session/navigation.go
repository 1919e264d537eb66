package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/render"
)

// NavState is a read-only snapshot of navigation state for presentation.
type NavState struct {
	Series         []api.Series
	ActiveSeriesID int
	Images         []api.ImageRef
	Index          int // -1 when unset
	Viewport       render.Viewport
	Tool           render.Tool
	SingleImage    bool
	UsingFallback  bool
	Notice         string // non-fatal condition text, empty when none
}

// NavigationController owns series/image selection, lazy fetching, tool
// state, and the rendering surface for one session. All remote fetches run on
// the caller's goroutine; a generation counter discards stale responses when
// a newer selection has superseded them.
type NavigationController struct {
	store  Store
	engine render.Engine
	logger *log.Logger
	notify func(Error)

	mu            sync.Mutex
	caseID        int
	series        []api.Series
	activeSeries  int // series id; 0 when none
	images        []api.ImageRef
	index         int
	viewport      render.Viewport
	singleImage   bool
	usingFallback bool
	notice        string
	fetchGen      uint64
	closed        bool
	retry         func(ctx context.Context) error
}

// NewNavigationController wires the controller to its store and engine.
// notify receives classified non-fatal conditions; it may be nil.
func NewNavigationController(st Store, engine render.Engine, notify func(Error), logger *log.Logger) *NavigationController {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if notify == nil {
		notify = func(Error) {}
	}
	return &NavigationController{
		store:  st,
		engine: engine,
		logger: logger,
		notify: notify,
		index:  -1,
	}
}

// State returns a copy of the current navigation state.
func (nc *NavigationController) State() NavState {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	series := make([]api.Series, len(nc.series))
	copy(series, nc.series)
	images := make([]api.ImageRef, len(nc.images))
	copy(images, nc.images)
	return NavState{
		Series:         series,
		ActiveSeriesID: nc.activeSeries,
		Images:         images,
		Index:          nc.index,
		Viewport:       nc.viewport,
		Tool:           nc.engine.ActiveTool(),
		SingleImage:    nc.singleImage,
		UsingFallback:  nc.usingFallback,
		Notice:         nc.notice,
	}
}

// LoadForCase resolves the imaging for a case. A direct locator short-cuts to
// single-image mode. An empty series list or a fetch failure falls back to
// the placeholder image so the surface is never blank; the fetch failure is
// additionally surfaced as a retryable, non-fatal notice.
func (nc *NavigationController) LoadForCase(ctx context.Context, caseID int, directLocator string) error {
	nc.mu.Lock()
	if nc.closed {
		nc.mu.Unlock()
		return fmt.Errorf("navigation: controller closed")
	}
	nc.caseID = caseID
	gen := nc.bumpGenLocked()
	nc.retry = func(ctx context.Context) error { return nc.LoadForCase(ctx, caseID, directLocator) }
	nc.mu.Unlock()

	if directLocator != "" {
		ref := api.ImageRef{FileURL: directLocator, InstanceNumber: 1, SOPInstanceUID: "direct"}
		vp, err := nc.engine.Display(ctx, ref)
		if err != nil {
			nc.notify(classify(OriginNavigation, err))
			return err
		}
		nc.mu.Lock()
		if !nc.staleLocked(gen) {
			nc.singleImage = true
			nc.images = []api.ImageRef{ref}
			nc.index = 0
			nc.viewport = vp
			nc.notice = ""
		}
		nc.mu.Unlock()
		return nil
	}

	series, err := nc.store.ListSeries(ctx, caseID)
	if err != nil {
		nc.logger.Printf("navigation: series fetch for case %d failed: %v", caseID, err)
		nc.displayFallback(ctx, gen, "could not load image series")
		nc.notify(classify(OriginNavigation, err))
		return nil // degrade-gracefully: the session continues
	}

	nc.mu.Lock()
	if nc.staleLocked(gen) {
		nc.mu.Unlock()
		return nil
	}
	nc.series = series
	nc.mu.Unlock()

	if len(series) == 0 {
		// Deliberate degrade policy, not an error state.
		nc.displayFallback(ctx, gen, "case has no image series")
		return nil
	}
	return nc.selectSeriesGen(ctx, series[0].ID, gen)
}

// SelectSeries switches the active series, resetting the index and
// re-fetching that series's images. A late-arriving response for a superseded
// selection is discarded rather than applied.
func (nc *NavigationController) SelectSeries(ctx context.Context, seriesID int) error {
	nc.mu.Lock()
	if nc.closed {
		nc.mu.Unlock()
		return fmt.Errorf("navigation: controller closed")
	}
	gen := nc.bumpGenLocked()
	nc.retry = func(ctx context.Context) error { return nc.SelectSeries(ctx, seriesID) }
	nc.mu.Unlock()
	return nc.selectSeriesGen(ctx, seriesID, gen)
}

func (nc *NavigationController) selectSeriesGen(ctx context.Context, seriesID int, gen uint64) error {
	images, err := nc.store.ListImages(ctx, seriesID)
	if err != nil {
		nc.logger.Printf("navigation: image fetch for series %d failed: %v", seriesID, err)
		nc.mu.Lock()
		if !nc.staleLocked(gen) {
			// Keep the previously active series identity stable; only the
			// image list is known-bad now.
			nc.images = nil
			nc.index = -1
			nc.notice = "could not load series images"
		}
		nc.mu.Unlock()
		nc.notify(classify(OriginNavigation, err))
		return err
	}

	nc.mu.Lock()
	if nc.staleLocked(gen) {
		nc.mu.Unlock()
		return nil
	}
	nc.activeSeries = seriesID
	nc.images = images
	nc.usingFallback = false
	if len(images) == 0 {
		// Distinct from "no series at all": the series exists but is empty.
		nc.index = -1
		nc.notice = "no images in series"
		nc.mu.Unlock()
		return nil
	}
	nc.index = 0
	nc.notice = ""
	ref := images[0]
	nc.mu.Unlock()

	return nc.display(ctx, gen, ref)
}

// Next advances to the following image; a no-op at the last index.
func (nc *NavigationController) Next(ctx context.Context) error {
	return nc.move(ctx, +1)
}

// Previous retreats to the prior image; a no-op at index 0.
func (nc *NavigationController) Previous(ctx context.Context) error {
	return nc.move(ctx, -1)
}

func (nc *NavigationController) move(ctx context.Context, delta int) error {
	nc.mu.Lock()
	if nc.closed || nc.index < 0 || len(nc.images) == 0 {
		nc.mu.Unlock()
		return nil
	}
	next := nc.index + delta
	if next < 0 || next >= len(nc.images) {
		nc.mu.Unlock()
		return nil // boundary: index and displayed image unchanged
	}
	nc.index = next
	gen := nc.fetchGen
	ref := nc.images[next]
	nc.mu.Unlock()

	return nc.display(ctx, gen, ref)
}

// SetTool activates exactly one primary tool; secondary pan/zoom gestures
// stay bound regardless.
func (nc *NavigationController) SetTool(t render.Tool) error {
	return nc.engine.SetTool(t)
}

// Retry re-runs the last failed load/selection, if any.
func (nc *NavigationController) Retry(ctx context.Context) error {
	nc.mu.Lock()
	retry := nc.retry
	nc.mu.Unlock()
	if retry == nil {
		return nil
	}
	return retry(ctx)
}

// display renders ref and, when still current, records the re-derived
// viewport readout. Decode failures propagate to the caller so presentation
// can show a per-image error without abandoning the series.
func (nc *NavigationController) display(ctx context.Context, gen uint64, ref api.ImageRef) error {
	vp, err := nc.engine.Display(ctx, ref)
	if err != nil {
		nc.notify(classify(OriginNavigation, fmt.Errorf("%w: instance %d", err, ref.InstanceNumber)))
		return err
	}
	nc.mu.Lock()
	if !nc.staleLocked(gen) {
		nc.viewport = vp
	}
	nc.mu.Unlock()
	return nil
}

// displayFallback shows the placeholder and records the notice text.
func (nc *NavigationController) displayFallback(ctx context.Context, gen uint64, notice string) {
	ref := render.FallbackImage()
	vp, err := nc.engine.Display(ctx, ref)
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if nc.staleLocked(gen) {
		return
	}
	nc.images = nil
	nc.index = -1
	nc.usingFallback = true
	nc.notice = notice
	if err == nil {
		nc.viewport = vp
	}
}

func (nc *NavigationController) bumpGenLocked() uint64 {
	nc.fetchGen++
	return nc.fetchGen
}

// staleLocked reports whether gen has been superseded or the controller
// unmounted; stale completions must not mutate state.
func (nc *NavigationController) staleLocked(gen uint64) bool {
	return nc.closed || gen != nc.fetchGen
}

// Close detaches the rendering surface and drops the controller so late
// resolutions cannot mutate unmounted state. Idempotent.
func (nc *NavigationController) Close() {
	nc.mu.Lock()
	if nc.closed {
		nc.mu.Unlock()
		return
	}
	nc.closed = true
	nc.mu.Unlock()
	nc.engine.Detach()
}
