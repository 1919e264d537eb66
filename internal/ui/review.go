package ui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/render"
	"github.com/teachrad/radcase-console/internal/session"
)

// ReviewUI is the interactive review screen: viewport and series rail on the
// left, report editor on the right, status bar underneath. All session work
// runs off the event loop; results hop back via QueueUpdateDraw.
type ReviewUI struct {
	app    *tview.Application
	sess   *session.Coordinator
	caseID int
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	theme     Theme
	themeName string

	header     *tview.TextView
	viewport   *tview.TextView
	viewStatus *tview.TextView
	seriesList *tview.List
	editor     *tview.TextArea
	editStatus *tview.TextView
	statusBar  *tview.TextView
	feedback   *tview.TextView
	pages      *tview.Pages
	root       *tview.Flex

	// hydrating guards programmatic editor writes so they do not re-enter the
	// report controller as user edits.
	hydrating int32
	hydrated  int32
	running   bool
}

// NewReviewUI assembles the screen for one session.
func NewReviewUI(ctx context.Context, sess *session.Coordinator, caseID int, logger *log.Logger) *ReviewUI {
	if logger == nil {
		logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &ReviewUI{
		app:       tview.NewApplication(),
		sess:      sess,
		caseID:    caseID,
		logger:    logger,
		ctx:       uiCtx,
		cancel:    cancel,
		themeName: "dark",
		theme:     themeDark(),
	}

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()

	return ui
}

// Surface returns the engine-facing adapter for the viewport widget.
func (ui *ReviewUI) Surface() render.Surface {
	return &viewportSurface{app: ui.app, tv: ui.viewport}
}

// Start opens the session and runs the event loop until quit or fatal error.
func (ui *ReviewUI) Start(ctx context.Context) error {
	ui.logger.Println("Starting review TUI")

	go func() {
		if err := ui.sess.Open(ui.ctx, ui.caseID); err != nil {
			ui.logger.Printf("session open failed: %v", err)
			ui.app.QueueUpdateDraw(func() {
				ui.showFatal(fmt.Sprintf("Could not open case %d:\n\n%v", ui.caseID, err))
			})
			return
		}
		ui.app.QueueUpdateDraw(func() {
			cs := ui.sess.Case()
			ui.header.SetText(fmt.Sprintf(" [::b]#%d  %s[-::-]  [%s]%s · %s[-]",
				cs.ID, tviewEscape(cs.Title), ui.theme.TagMuted, cs.ModalityDisplay, cs.DifficultyDisplay))
		})
		ui.watchSession()
	}()

	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.running = true
	err := ui.app.Run()
	ui.running = false
	ui.cancel()
	ui.sess.Close()
	return err
}

// Stop stops the TUI application
func (ui *ReviewUI) Stop() {
	ui.cancel()
	ui.app.Stop()
}

func (ui *ReviewUI) setupLayout() {
	ui.header = tview.NewTextView().SetDynamicColors(true)
	ui.header.SetText(fmt.Sprintf(" [::b]#%d[-::-]  loading case...", ui.caseID))

	ui.viewport = tview.NewTextView()
	ui.viewport.SetTitle(" Viewport ")
	ui.viewport.SetBorder(true)
	ui.viewport.SetTitleAlign(tview.AlignLeft)

	ui.viewStatus = tview.NewTextView().SetDynamicColors(true)

	ui.seriesList = tview.NewList().ShowSecondaryText(false)
	ui.seriesList.SetTitle(" Series ")
	ui.seriesList.SetBorder(true)
	ui.seriesList.SetTitleAlign(tview.AlignLeft)
	ui.seriesList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		st := ui.sess.Nav.State()
		if index < 0 || index >= len(st.Series) {
			return
		}
		id := st.Series[index].ID
		go func() {
			if err := ui.sess.Nav.SelectSeries(ui.ctx, id); err != nil {
				ui.logger.Printf("series select failed: %v", err)
			}
			ui.refresh()
		}()
	})

	ui.editor = tview.NewTextArea()
	ui.editor.SetTitle(" Report (draft) ")
	ui.editor.SetBorder(true)
	ui.editor.SetTitleAlign(tview.AlignLeft)
	ui.editor.SetChangedFunc(func() {
		if atomic.LoadInt32(&ui.hydrating) == 1 {
			return
		}
		ui.sess.Report.SetContent(ui.editor.GetText())
	})

	ui.editStatus = tview.NewTextView().SetDynamicColors(true)
	ui.statusBar = tview.NewTextView().SetDynamicColors(true)
	ui.setStatus("n/p image  prev/next series  1-5 tools  Ctrl+S save  Ctrl+B submit  ? help")

	ui.feedback = tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	ui.feedback.SetTitle(" Feedback ")
	ui.feedback.SetBorder(true)
	ui.feedback.SetTitleAlign(tview.AlignLeft)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.viewport, 0, 4, false).
		AddItem(ui.viewStatus, 1, 0, false).
		AddItem(ui.seriesList, 0, 1, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.editor, 0, 1, true).
		AddItem(ui.editStatus, 1, 0, false)

	body := tview.NewFlex().
		AddItem(left, 0, 1, false).
		AddItem(right, 0, 1, true)

	ui.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.header, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.pages = tview.NewPages().
		AddPage("main", ui.root, true, true)

	ui.app.SetRoot(ui.pages, true)
	ui.app.SetFocus(ui.editor)
}

func (ui *ReviewUI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Modal dialogs own the keyboard while they are up.
		if name, _ := ui.pages.GetFrontPage(); name == "confirm" || name == "quit" || name == "fatal" {
			return event
		}

		// Control chords work everywhere, including inside the editor.
		switch event.Key() {
		case tcell.KeyCtrlS:
			go func() {
				if err := ui.sess.Report.Save(ui.ctx); err != nil {
					ui.logger.Printf("save failed: %v", err)
				}
				ui.refresh()
			}()
			return nil
		case tcell.KeyCtrlB:
			ui.submit()
			return nil
		case tcell.KeyCtrlT:
			ui.applyTemplate()
			return nil
		case tcell.KeyCtrlL:
			ui.cycleLanguage()
			return nil
		case tcell.KeyEscape:
			if name, _ := ui.pages.GetFrontPage(); name == "feedback" || name == "help" {
				ui.pages.SwitchToPage("main")
				return nil
			}
			ui.setStatus("")
			return nil
		}

		// Everything else is editor input while the editor owns focus.
		if ui.app.GetFocus() == ui.editor {
			if event.Key() == tcell.KeyTab {
				ui.app.SetFocus(ui.seriesList)
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyTab:
			ui.app.SetFocus(ui.editor)
			return nil
		}

		switch event.Rune() {
		case 'n':
			ui.navigate(func(ctx context.Context) error { return ui.sess.Nav.Next(ctx) })
			return nil
		case 'p':
			ui.navigate(func(ctx context.Context) error { return ui.sess.Nav.Previous(ctx) })
			return nil
		case ']':
			ui.stepSeries(+1)
			return nil
		case '[':
			ui.stepSeries(-1)
			return nil
		case 'r':
			ui.navigate(func(ctx context.Context) error { return ui.sess.Nav.Retry(ctx) })
			return nil
		case 'f':
			ui.flagFeedback()
			return nil
		case 'F':
			ui.showFeedback(ui.sess.Report.State().Report)
			return nil
		case 't':
			ui.cycleTheme()
			return nil
		case '?':
			ui.showHelp()
			return nil
		case 'q':
			ui.requestQuit()
			return nil
		}

		if tool, ok := toolForDigit(event.Rune()); ok {
			if err := ui.sess.Nav.SetTool(tool); err != nil {
				ui.logger.Printf("tool activation failed: %v", err)
			}
			go ui.refresh()
			return nil
		}
		return event
	})
}

// navigate runs one nav action off the event loop and refreshes after.
func (ui *ReviewUI) navigate(fn func(context.Context) error) {
	go func() {
		if err := fn(ui.ctx); err != nil {
			ui.logger.Printf("navigation: %v", err)
		}
		ui.refresh()
	}()
}

func (ui *ReviewUI) stepSeries(delta int) {
	id, ok := neighborSeries(ui.sess.Nav.State(), delta)
	if !ok {
		return
	}
	ui.navigate(func(ctx context.Context) error { return ui.sess.Nav.SelectSeries(ctx, id) })
}

func (ui *ReviewUI) submit() {
	go func() {
		if err := ui.sess.Report.Submit(ui.ctx); err != nil {
			ui.logger.Printf("submit failed: %v", err)
			ui.setStatusAsync(fmt.Sprintf("[%s]Submit failed: %s[-]", ui.theme.TagError, tviewEscape(err.Error())))
		} else {
			ui.setStatusAsync(fmt.Sprintf("[%s]Report submitted[-]", ui.theme.TagSuccess))
		}
		ui.refresh()
	}()
}

// applyTemplate inserts the report template, asking first when that would
// overwrite text the user already wrote. Called from the event goroutine.
func (ui *ReviewUI) applyTemplate() {
	if templateNeedsConfirm(ui.sess.Report.State()) {
		ui.confirm("Replace the current report text with the template?\n\nThe existing draft text will be lost.", ui.doApplyTemplate)
		return
	}
	ui.doApplyTemplate()
}

func (ui *ReviewUI) doApplyTemplate() {
	go func() {
		if err := ui.sess.Report.ApplyTemplate(reportTemplate); err != nil {
			ui.setStatusAsync(fmt.Sprintf("[%s]%s[-]", ui.theme.TagWarning, tviewEscape(err.Error())))
			return
		}
		ui.app.QueueUpdateDraw(func() {
			ui.setEditorText(reportTemplate)
		})
		ui.refresh()
	}()
}

// confirm shows a Cancel/Confirm modal. Called from the event goroutine.
func (ui *ReviewUI) confirm(text string, onConfirm func()) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Cancel", "Confirm"}).
		SetDoneFunc(func(_ int, label string) {
			ui.pages.RemovePage("confirm")
			ui.app.SetFocus(ui.editor)
			if label == "Confirm" {
				onConfirm()
			}
		})
	ui.pages.AddPage("confirm", modal, true, true)
}

// requestQuit stops the TUI, prompting first when unsaved edits would be
// dropped with the cancelled debounce. Called from the event goroutine.
func (ui *ReviewUI) requestQuit() {
	if !quitNeedsPrompt(ui.sess.Report.State()) {
		ui.Stop()
		return
	}
	modal := tview.NewModal().
		SetText("The report has unsaved changes.").
		AddButtons([]string{"Save and quit", "Quit without saving", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			ui.pages.RemovePage("quit")
			switch label {
			case "Save and quit":
				go func() {
					if err := ui.sess.Report.Save(ui.ctx); err != nil {
						ui.logger.Printf("final save failed: %v", err)
					}
					ui.Stop()
				}()
			case "Quit without saving":
				ui.Stop()
			default:
				ui.app.SetFocus(ui.editor)
			}
		})
	ui.pages.AddPage("quit", modal, true, true)
}

func (ui *ReviewUI) cycleLanguage() {
	st := ui.sess.Report.State()
	langs := api.Languages
	next := langs[0]
	for i, l := range langs {
		if l == st.Report.Language {
			next = langs[(i+1)%len(langs)]
			break
		}
	}
	go func() {
		if err := ui.sess.Report.SetLanguage(next); err != nil {
			ui.logger.Printf("language change failed: %v", err)
		}
		ui.refresh()
	}()
}

func (ui *ReviewUI) flagFeedback() {
	go func() {
		if err := ui.sess.Report.FlagFeedback(ui.ctx); err != nil {
			ui.setStatusAsync(fmt.Sprintf("[%s]%s[-]", ui.theme.TagWarning, tviewEscape(err.Error())))
		} else {
			ui.setStatusAsync(fmt.Sprintf("[%s]Feedback flagged for review[-]", ui.theme.TagSuccess))
		}
		ui.refresh()
	}()
}

// watchSession drains the session's channels and keeps the widgets current.
func (ui *ReviewUI) watchSession() {
	ticker := time.NewTicker(400 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ui.ctx.Done():
			return
		case e, ok := <-ui.sess.Errors():
			if !ok {
				return
			}
			ui.handleSessionError(e)
		case rep := <-ui.sess.FeedbackReady():
			ui.app.QueueUpdateDraw(func() {
				ui.showFeedback(rep)
			})
		case <-ticker.C:
			ui.refresh()
		}
	}
}

func (ui *ReviewUI) handleSessionError(e session.Error) {
	ui.logger.Printf("session error: %v", e)
	if e.Kind == session.KindFatal {
		ui.app.QueueUpdateDraw(func() {
			ui.showFatal(fmt.Sprintf("Session error:\n\n%v", e.Err))
		})
		return
	}
	label := tviewEscape(e.Err.Error())
	if e.Retryable {
		label += "  (press r to retry)"
	}
	ui.setStatusAsync(fmt.Sprintf("[%s]%s[-]", ui.theme.TagWarning, label))
}

// refresh repaints the derived widgets from controller state. Safe to call
// from any goroutine.
func (ui *ReviewUI) refresh() {
	nav := ui.sess.Nav.State()
	rep := ui.sess.Report.State()
	ui.app.QueueUpdateDraw(func() {
		ui.viewStatus.SetText(navStatusLine(nav))
		ui.editStatus.SetText(reportStatusLine(rep, ui.theme))
		ui.editor.SetTitle(fmt.Sprintf(" Report (%s) ", phaseLabel(rep.Phase)))
		ui.syncSeriesList(nav)
		ui.hydrateEditor(rep)
	})
}

// hydrateEditor adopts the reconciled content exactly once; after that the
// editor is the source of truth for draft text.
func (ui *ReviewUI) hydrateEditor(rep session.ReportState) {
	if atomic.LoadInt32(&ui.hydrated) == 1 {
		return
	}
	if rep.Phase == session.PhaseUninitialized || rep.Phase == session.PhaseReconciling {
		return
	}
	atomic.StoreInt32(&ui.hydrated, 1)
	ui.setEditorText(rep.Report.Content)
}

func (ui *ReviewUI) setEditorText(text string) {
	atomic.StoreInt32(&ui.hydrating, 1)
	ui.editor.SetText(text, true)
	atomic.StoreInt32(&ui.hydrating, 0)
}

func (ui *ReviewUI) syncSeriesList(nav session.NavState) {
	if ui.seriesList.GetItemCount() != len(nav.Series) {
		ui.seriesList.Clear()
		for _, s := range nav.Series {
			label := s.Description
			if label == "" {
				label = fmt.Sprintf("Series %d", s.SeriesNumber)
			}
			ui.seriesList.AddItem(fmt.Sprintf("%s (%d)", label, s.ImageCount), "", 0, nil)
		}
	}
	if pos := seriesPosition(nav); pos > 0 && ui.seriesList.GetCurrentItem() != pos-1 {
		ui.seriesList.SetCurrentItem(pos - 1)
	}
}

func (ui *ReviewUI) showFeedback(rep api.Report) {
	if rep.Feedback == nil {
		ui.setStatus("No feedback available yet")
		return
	}
	flag := ""
	if rep.Feedback.Flagged {
		flag = fmt.Sprintf("\n\n[%s]Flagged as inaccurate[-]", ui.theme.TagWarning)
	}
	ui.feedback.SetText(fmt.Sprintf("[::b]Feedback for your report[-::-]\n\n%s%s\n\n[%s]f flag as inaccurate   Esc back[-]",
		tviewEscape(rep.Feedback.Content), flag, ui.theme.TagMuted))
	if !ui.pages.HasPage("feedback") {
		ui.pages.AddPage("feedback", ui.feedback, true, false)
	}
	ui.pages.SwitchToPage("feedback")
	ui.app.SetFocus(ui.feedback)
}

func (ui *ReviewUI) showHelp() {
	help := tview.NewTextView().SetDynamicColors(true)
	help.SetTitle(" Keys ").SetBorder(true)
	help.SetText(`
  n / p        next / previous image
  [ / ]        previous / next series
  1..5         window-level, pan, zoom, length, magnify
  Tab          switch editor <-> series focus
  Ctrl+S       save report now
  Ctrl+B       submit report
  Ctrl+T       insert report template
  Ctrl+L       cycle report language
  r            retry failed image load
  f            flag feedback as inaccurate
  F            reopen feedback view
  t            cycle color theme
  q            quit
  Esc          close dialog / clear status
`)
	if ui.pages.HasPage("help") {
		ui.pages.RemovePage("help")
	}
	ui.pages.AddPage("help", help, true, true)
}

func (ui *ReviewUI) showFatal(text string) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Quit"}).
		SetDoneFunc(func(int, string) { ui.Stop() })
	ui.pages.AddPage("fatal", modal, true, true)
}

func (ui *ReviewUI) setStatus(text string) {
	ui.statusBar.SetText(" " + text)
}

// setStatusAsync is the hop-safe variant for worker goroutines.
func (ui *ReviewUI) setStatusAsync(text string) {
	ui.app.QueueUpdateDraw(func() {
		ui.setStatus(text)
	})
}

func (ui *ReviewUI) applyTheme() {
	t := ui.theme
	tview.Styles.PrimitiveBackgroundColor = t.Bg
	tview.Styles.ContrastBackgroundColor = t.Surface
	tview.Styles.BorderColor = t.Border
	tview.Styles.TitleColor = t.Header
	tview.Styles.PrimaryTextColor = t.TextPrimary
	tview.Styles.SecondaryTextColor = t.TextMuted

	for _, tv := range []*tview.TextView{ui.header, ui.viewport, ui.viewStatus, ui.editStatus, ui.statusBar, ui.feedback} {
		tv.SetBackgroundColor(t.Bg)
		tv.SetTextColor(t.TextPrimary)
	}
	ui.seriesList.SetBackgroundColor(t.Bg)
	ui.seriesList.SetMainTextColor(t.TextPrimary)
	ui.seriesList.SetSelectedBackgroundColor(t.FocusBorder)
	ui.editor.SetBackgroundColor(t.Bg)
}

func (ui *ReviewUI) cycleTheme() {
	ui.themeName = nextThemeName(ui.themeName)
	ui.theme = themeByName(ui.themeName)
	ui.applyTheme()
	ui.setStatus(fmt.Sprintf("Theme: %s", ui.themeName))
}
