package ui

import (
	"github.com/rivo/tview"
)

// viewportSurface adapts the viewport TextView into the rendering engine's
// Surface. Engine calls arrive from worker goroutines, so every mutation hops
// onto the tview event loop.
type viewportSurface struct {
	app *tview.Application
	tv  *tview.TextView
}

func (s *viewportSurface) SetText(text string) {
	s.app.QueueUpdateDraw(func() {
		s.tv.SetText(text)
	})
}

func (s *viewportSurface) Clear() {
	s.app.QueueUpdateDraw(func() {
		s.tv.Clear()
	})
}
