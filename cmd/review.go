package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/auth"
	"github.com/teachrad/radcase-console/internal/bus"
	"github.com/teachrad/radcase-console/internal/render"
	"github.com/teachrad/radcase-console/internal/session"
	"github.com/teachrad/radcase-console/internal/store"
	"github.com/teachrad/radcase-console/internal/ui"
)

var (
	forceTUI     bool
	noTUI        bool
	imageLocator string
)

var reviewCmd = &cobra.Command{
	Use:   "review <case-id>",
	Short: "Open an interactive review session for a teaching case",
	Long: `Open a full review session for one teaching case: the report editor with
debounced autosave, the series browser, and the image viewport, all bound to
the remote case store. The session survives transient fetch failures and
keeps the draft as the local source of truth until submit.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even if terminal detection fails")
	reviewCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run headless: open the session and log state without a TUI")
	reviewCmd.Flags().StringVar(&imageLocator, "image", "", "Direct image locator; skips series loading for single-image review")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	caseID, err := strconv.Atoi(args[0])
	if err != nil || caseID <= 0 {
		return fmt.Errorf("invalid case id %q", args[0])
	}

	// Determine TUI mode before any logging so nothing corrupts the screen.
	useTUI := determineTUIMode()

	var logger *log.Logger
	var logFile *os.File
	var logPath string
	if useTUI {
		logFile, logPath = setupFileLogger()
		if logFile != nil {
			// Errors still reach stderr where tview restores the terminal on exit.
			logger = log.New(io.MultiWriter(logFile, &errorFilterWriter{os.Stderr}), "[review] ", log.LstdFlags)
			logger.Printf("TUI mode: full log at %s", logPath)
			defer logFile.Close()
		} else {
			logger = log.New(&errorFilterWriter{os.Stderr}, "[review] ", log.LstdFlags)
		}
	} else {
		logger = log.New(os.Stdout, "[review] ", log.LstdFlags)
	}
	logger.Printf("Terminal: %s", getTerminalInfo())

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	// Optional local journal. A broken journal degrades the session, it
	// does not block it.
	var journal session.Journal
	dbFile := resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path)
	st, err := store.NewStore(dbFile)
	if err != nil {
		logger.Printf("Warning: journal disabled, cannot open %s: %v", dbFile, err)
	} else {
		defer st.Close()
		journal = st
	}

	busLogger := logger
	if useTUI {
		if logFile != nil {
			busLogger = log.New(logFile, "[bus] ", log.LstdFlags)
		} else {
			busLogger = log.New(io.Discard, "[bus] ", log.LstdFlags)
		}
	}
	feedbackBus := bus.NewBus(cfg.Redis.URL, busLogger)
	defer feedbackBus.Close()

	render.Initialize()
	engine := render.NewTextEngine(busLogger)

	opts := session.Options{
		AutosaveDelay:      cfg.Autosave.Debounce,
		PollInterval:       cfg.Feedback.PollInterval,
		DirectImageLocator: imageLocator,
	}
	sess := session.NewCoordinator(client, journal, feedbackBus, engine, opts, busLogger)

	if st != nil {
		if err := st.TouchRecentCase(ctx, caseID, ""); err != nil {
			logger.Printf("Warning: could not record recent case: %v", err)
		}
		if drafts, err := st.UnsavedDrafts(ctx); err == nil && len(drafts) > 0 {
			logger.Printf("%d unsaved draft snapshot(s) in the local journal", len(drafts))
		}
	}

	if !useTUI {
		return runHeadless(cmd, sess, caseID, logger)
	}

	review := ui.NewReviewUI(ctx, sess, caseID, busLogger)
	if err := engine.Attach(review.Surface()); err != nil {
		return fmt.Errorf("attach viewport: %w", err)
	}
	if err := review.Start(ctx); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	logger.Println("Review session closed")
	return nil
}

// runHeadless opens the session without a TUI and streams its state to the
// logger until the context is cancelled. Useful over bare SSH hops and for
// smoke-testing connectivity.
func runHeadless(cmd *cobra.Command, sess *session.Coordinator, caseID int, logger *log.Logger) error {
	ctx := cmd.Context()
	if err := sess.Open(ctx, caseID); err != nil {
		sess.Close()
		return fmt.Errorf("open case %d: %w", caseID, err)
	}
	defer sess.Close()

	cs := sess.Case()
	logger.Printf("Case %d open: %s", cs.ID, cs.Title)
	for {
		select {
		case <-ctx.Done():
			logger.Println("Shutdown signal received")
			return nil
		case e := <-sess.Errors():
			if e.Kind == session.KindFatal {
				return fmt.Errorf("session failed: %w", e.Err)
			}
			logger.Printf("Recoverable %s/%s error: %v", e.Origin, e.Kind, e.Err)
		case rep := <-sess.FeedbackReady():
			logger.Printf("Feedback ready for report %s", rep.ID)
		}
	}
}

// newAPIClient builds the store client from config plus saved credentials.
func newAPIClient(cfg Config, logger *log.Logger) (*api.Client, error) {
	credPath := cfg.API.TokenFile
	if credPath == "" {
		credPath = auth.DefaultPath()
	}
	creds, err := auth.Load(credPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials from %s: %w", credPath, err)
	}
	baseURL := cfg.API.BaseURL
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("no API token saved; run `radcase login` first")
	}
	return api.NewClient(baseURL, creds.Token, logger)
}

// determineTUIMode decides whether the session runs with a TUI.
func determineTUIMode() bool {
	if noTUI {
		return false
	}
	if forceTUI {
		return true
	}
	return canInitializeTUI()
}

// canInitializeTUI tests if tcell can actually take over the terminal.
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}
	if err := screen.Init(); err != nil {
		return false
	}
	screen.Fini()
	return true
}

// setupFileLogger creates a log file for TUI mode. Returns nil when the logs
// directory cannot be created; callers fall back to stderr.
func setupFileLogger() (*os.File, string) {
	baseDir := getWorkingDir()
	logDir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, ""
	}
	logPath := filepath.Join(logDir, "radcase-review.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, ""
	}
	return logFile, logPath
}

// errorFilterWriter only writes error messages to the underlying writer,
// keeping routine log lines off the terminal while the TUI owns it.
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (n int, err error) {
	lc := strings.ToLower(string(p))
	if strings.Contains(lc, "error") ||
		strings.Contains(lc, "failed") ||
		strings.Contains(lc, "panic") {
		return w.writer.Write(p)
	}
	return len(p), nil
}

// getWorkingDir returns the current working directory.
// Falls back to executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// resolvePathRelativeToBase resolves a possibly relative path against a base
// directory. Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// getTerminalInfo returns a one-line terminal summary for the log.
func getTerminalInfo() string {
	var info []string
	term := os.Getenv("TERM")
	if term == "" {
		info = append(info, "TERM=<not set>")
	} else {
		info = append(info, fmt.Sprintf("TERM=%s", term))
	}
	if width, height := getTerminalSize(); width > 0 && height > 0 {
		info = append(info, fmt.Sprintf("Size=%dx%d", width, height))
	}
	if isTerminal() {
		info = append(info, "TTY=yes")
	} else {
		info = append(info, "TTY=no")
	}
	return strings.Join(info, ", ")
}
