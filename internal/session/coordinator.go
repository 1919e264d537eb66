package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/bus"
	"github.com/teachrad/radcase-console/internal/render"
)

// Options configures a Coordinator.
type Options struct {
	// AutosaveDelay is the debounce window for report edits.
	AutosaveDelay time.Duration
	// PollInterval drives the feedback polling fallback while a submitted
	// report awaits feedback. Zero disables polling.
	PollInterval time.Duration
	// DirectImageLocator short-cuts navigation to single-image mode.
	DirectImageLocator string
}

// Coordinator assembles one review session: it fetches the case, then runs
// report reconciliation and series loading concurrently, and watches for
// feedback while the report sits submitted. Errors from every component fan
// in to a single channel tagged with their origin and kind.
type Coordinator struct {
	store   Store
	journal Journal
	bus     bus.Bus
	engine  render.Engine
	logger  *log.Logger
	opts    Options

	Nav    *NavigationController
	Report *ReportController

	errs     chan Error
	feedback chan api.Report

	mu       sync.Mutex
	caseData api.Case
	opened   bool
	closed   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator wires the controllers together. journal may be nil; b may be
// a NullBus.
func NewCoordinator(st Store, journal Journal, b bus.Bus, engine render.Engine, opts Options, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = 2 * time.Second
	}
	c := &Coordinator{
		store:    st,
		journal:  journal,
		bus:      b,
		engine:   engine,
		logger:   logger,
		opts:     opts,
		errs:     make(chan Error, 16),
		feedback: make(chan api.Report, 1),
	}
	c.Nav = NewNavigationController(st, engine, c.report, logger)
	c.Report = NewReportController(st, journal, opts.AutosaveDelay, c.onFeedbackReady, c.report, logger)
	return c
}

// Errors delivers classified errors from all session components.
func (c *Coordinator) Errors() <-chan Error { return c.errs }

// FeedbackReady fires at most once per session entry into feedback_ready,
// carrying the report with its feedback attached.
func (c *Coordinator) FeedbackReady() <-chan api.Report { return c.feedback }

// Case returns the case fetched by Open.
func (c *Coordinator) Case() api.Case {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caseData
}

// Open starts the session for caseID. The case fetch is the one fatal
// dependency; once it lands, report reconciliation and series loading proceed
// concurrently and their failures surface on Errors instead of failing Open.
func (c *Coordinator) Open(ctx context.Context, caseID int) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("session: already open")
	}
	c.opened = true
	c.mu.Unlock()

	cs, err := c.store.GetCase(ctx, caseID)
	if err != nil {
		e := classify(OriginCase, err)
		c.report(e)
		return e
	}
	c.mu.Lock()
	c.caseData = cs
	c.mu.Unlock()

	if ar, ok := c.journal.(ActivityRecorder); ok {
		if err := ar.RecordAction(ctx, caseID, "", "open", cs.Title); err != nil {
			c.logger.Printf("session: activity record failed: %v", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.Report.Reconcile(runCtx, caseID); err != nil {
			c.logger.Printf("session: report reconcile failed: %v", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		locator := c.opts.DirectImageLocator
		if locator == "" && cs.HasImaging() {
			locator = cs.ImageStorageRef
		}
		if err := c.Nav.LoadForCase(runCtx, caseID, locator); err != nil {
			c.logger.Printf("session: series load failed: %v", err)
		}
	}()

	c.wg.Add(1)
	go c.watchFeedback(runCtx)

	return nil
}

// report forwards a classified error to the session channel, dropping it if
// the consumer has fallen behind or the session is closing.
func (c *Coordinator) report(e Error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.errs <- e:
	default:
		c.logger.Printf("session: error channel full, dropping %s/%s: %v", e.Origin, e.Kind, e.Err)
	}
}

// onFeedbackReady is installed as the report controller's feedback callback.
func (c *Coordinator) onFeedbackReady(rep api.Report) {
	select {
	case c.feedback <- rep:
	default:
	}
}

// watchFeedback listens on the bus for feedback notices and, independently,
// polls the store while the report is submitted. Either path resolves through
// refreshFeedback, so duplicate delivery is harmless.
func (c *Coordinator) watchFeedback(ctx context.Context) {
	defer c.wg.Done()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.bus.SubscribeFeedback(ctx, func(ctx context.Context, notice bus.FeedbackNotice) error {
			if notice.ReportID != c.Report.State().Report.ID {
				return nil
			}
			return c.refreshFeedback(ctx)
		})
		if err != nil && ctx.Err() == nil {
			c.logger.Printf("session: feedback subscription ended: %v", err)
		}
	}()

	if c.opts.PollInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Report.State().Phase != PhaseSubmitted {
				continue
			}
			if err := c.refreshFeedback(ctx); err != nil {
				c.logger.Printf("session: feedback poll failed: %v", err)
			}
		}
	}
}

// refreshFeedback re-fetches the report and lets the controller decide what
// the fresh copy means.
func (c *Coordinator) refreshFeedback(ctx context.Context) error {
	id := c.Report.State().Report.ID
	if id == "" {
		return nil
	}
	rep, err := c.store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	c.Report.ApplyRemote(rep)
	return nil
}

// Close tears the session down: both controllers stop and background
// watchers drain. The error channel stays open so a straggling send can
// never panic; consumers leave via their own context. Idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.Report.Close()
	c.Nav.Close()
	c.wg.Wait()
}
