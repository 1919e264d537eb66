package render

import (
	"fmt"
	"sync"
)

// Tool identifies an interaction mode on the viewing surface.
type Tool string

// Primary tools are mutually exclusive: activating one deactivates the rest.
const (
	ToolWindowLevel Tool = "wwwc"
	ToolPan         Tool = "pan"
	ToolZoom        Tool = "zoom"
	ToolLength      Tool = "length"
	ToolMagnify     Tool = "magnify"
)

// Secondary bindings stay concurrently active regardless of the primary
// selection: pan and zoom remain reachable through their dedicated gestures.
const (
	BindingWheelZoom = "wheel-zoom"
	BindingTouchPan  = "touch-pan"
	BindingPinchZoom = "touch-pinch-zoom"
	BindingMiddlePan = "middle-pan"
	BindingRightZoom = "right-zoom"
)

var (
	toolMu        sync.Mutex
	primaryTools  map[Tool]bool // activation state per primary tool
	secondaryOn   []string
	activePrimary Tool
)

// registerDefaultTools installs the fixed tool set. Called from Initialize.
func registerDefaultTools() {
	toolMu.Lock()
	defer toolMu.Unlock()
	primaryTools = map[Tool]bool{
		ToolWindowLevel: false,
		ToolPan:         false,
		ToolZoom:        false,
		ToolLength:      false,
		ToolMagnify:     false,
	}
	secondaryOn = []string{
		BindingWheelZoom, BindingTouchPan, BindingPinchZoom,
		BindingMiddlePan, BindingRightZoom,
	}
	// Window/level is the conventional default on open.
	primaryTools[ToolWindowLevel] = true
	activePrimary = ToolWindowLevel
}

func resetToolsForTest() {
	toolMu.Lock()
	primaryTools = nil
	secondaryOn = nil
	activePrimary = ""
	toolMu.Unlock()
}

// ActivatePrimary activates exactly one primary tool, deactivating all
// others. Secondary bindings are untouched.
func ActivatePrimary(t Tool) error {
	toolMu.Lock()
	defer toolMu.Unlock()
	if primaryTools == nil {
		return ErrNotInitialized
	}
	if _, ok := primaryTools[t]; !ok {
		return fmt.Errorf("render: unknown tool %q", t)
	}
	for name := range primaryTools {
		primaryTools[name] = name == t
	}
	activePrimary = t
	return nil
}

// PrimaryTool returns the currently active exclusive tool.
func PrimaryTool() Tool {
	toolMu.Lock()
	defer toolMu.Unlock()
	return activePrimary
}

// SecondaryBindings returns the always-active gesture bindings.
func SecondaryBindings() []string {
	toolMu.Lock()
	defer toolMu.Unlock()
	out := make([]string, len(secondaryOn))
	copy(out, secondaryOn)
	return out
}
