package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/teachrad/radcase-console/internal/render"
	"github.com/teachrad/radcase-console/internal/session"
)

// templateNeedsConfirm reports whether inserting the template would overwrite
// user-authored report text.
func templateNeedsConfirm(st session.ReportState) bool {
	return strings.TrimSpace(st.Report.Content) != ""
}

// quitNeedsPrompt reports whether exiting now would drop report edits. A
// persist already in flight counts: its result has not landed yet.
func quitNeedsPrompt(st session.ReportState) bool {
	return st.Dirty || st.Saving
}

// phaseLabel maps lifecycle phases onto the short badges the status bar shows.
func phaseLabel(p session.Phase) string {
	switch p {
	case session.PhaseReconciling:
		return "syncing"
	case session.PhaseDraft:
		return "draft"
	case session.PhaseSubmitting:
		return "submitting"
	case session.PhaseSubmitted:
		return "submitted"
	case session.PhaseFeedbackReady:
		return "feedback ready"
	default:
		return "loading"
	}
}

// reportStatusLine renders the editor pane's status text.
func reportStatusLine(st session.ReportState, theme Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]%s[-]", theme.TagAccent, phaseLabel(st.Phase))
	fmt.Fprintf(&b, "  lang %s", st.Report.Language)
	fmt.Fprintf(&b, "  %d words", wordCount(st.Report.Content))
	switch {
	case st.Saving:
		fmt.Fprintf(&b, "  [%s]saving...[-]", theme.TagWarning)
	case st.Dirty:
		fmt.Fprintf(&b, "  [%s]unsaved[-]", theme.TagWarning)
	case st.Phase == session.PhaseDraft:
		fmt.Fprintf(&b, "  [%s]saved[-]", theme.TagSuccess)
	}
	if st.LastErr != "" {
		fmt.Fprintf(&b, "  [%s]%s[-]", theme.TagError, tviewEscape(st.LastErr))
	}
	return b.String()
}

// navStatusLine renders the viewport pane's readout text.
func navStatusLine(st session.NavState) string {
	var b strings.Builder
	switch {
	case st.SingleImage:
		b.WriteString("single image")
	case st.Index >= 0:
		fmt.Fprintf(&b, "image %d/%d", st.Index+1, len(st.Images))
	default:
		b.WriteString("no image")
	}
	if st.ActiveSeriesID > 0 && !st.SingleImage {
		fmt.Fprintf(&b, "  series %d/%d", seriesPosition(st), len(st.Series))
	}
	fmt.Fprintf(&b, "  tool %s", st.Tool)
	fmt.Fprintf(&b, "  WW %.0f WC %.0f  zoom %.2fx", st.Viewport.WindowWidth, st.Viewport.WindowCenter, st.Viewport.Scale)
	if st.Notice != "" {
		fmt.Fprintf(&b, "  ! %s", st.Notice)
	}
	return b.String()
}

// seriesPosition is the 1-based position of the active series, 0 if unknown.
func seriesPosition(st session.NavState) int {
	for i, s := range st.Series {
		if s.ID == st.ActiveSeriesID {
			return i + 1
		}
	}
	return 0
}

// neighborSeries returns the series id delta steps away from the active one,
// clamped at the ends. ok is false when there is nothing to move to.
func neighborSeries(st session.NavState, delta int) (int, bool) {
	if len(st.Series) == 0 || st.SingleImage {
		return 0, false
	}
	pos := seriesPosition(st)
	if pos == 0 {
		return st.Series[0].ID, true
	}
	next := pos - 1 + delta
	if next < 0 || next >= len(st.Series) {
		return 0, false
	}
	id := st.Series[next].ID
	if id == st.ActiveSeriesID {
		return 0, false
	}
	return id, true
}

// toolForDigit maps the 1..5 shortcut row onto primary tools.
func toolForDigit(r rune) (render.Tool, bool) {
	switch r {
	case '1':
		return render.ToolWindowLevel, true
	case '2':
		return render.ToolPan, true
	case '3':
		return render.ToolZoom, true
	case '4':
		return render.ToolLength, true
	case '5':
		return render.ToolMagnify, true
	}
	return "", false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// tviewEscape neutralizes dynamic-color tags in server-supplied text.
func tviewEscape(s string) string {
	return tview.Escape(s)
}

// reportTemplate is the structured-report skeleton Ctrl+T drops into an empty
// draft.
const reportTemplate = `CLINICAL INDICATION:

TECHNIQUE:

COMPARISON:

FINDINGS:

IMPRESSION:
`
