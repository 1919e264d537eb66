package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/teachrad/radcase-console/internal/api"
)

// Phase tracks where a report sits in its lifecycle as seen by this session.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseReconciling   Phase = "reconciling"
	PhaseDraft         Phase = "draft"
	PhaseSubmitting    Phase = "submitting"
	PhaseSubmitted     Phase = "submitted"
	PhaseFeedbackReady Phase = "feedback_ready"
)

// ReportState is a read-only snapshot for presentation.
type ReportState struct {
	Phase    Phase
	Report   api.Report
	Dirty    bool   // local edits not yet confirmed persisted
	Saving   bool   // a persist is in flight
	LastErr  string // last non-fatal report error, empty when none
	Flagging bool
}

// ReportController owns the single report this session edits: reconciliation
// against the remote store, debounced autosave, submission, and feedback
// flagging. Writes are serialized by an edit generation counter so a persist
// completion for superseded content never clobbers newer local edits.
type ReportController struct {
	store    Store
	journal  Journal
	debounce *Debouncer
	logger   *log.Logger
	notify   func(Error)

	// onFeedback fires once when the report transitions into feedback_ready
	// with feedback attached. It may be nil.
	onFeedback func(api.Report)

	mu       sync.Mutex
	caseID   int
	phase    Phase
	report   api.Report
	editGen  uint64 // bumped on every local edit
	savedGen uint64 // highest generation confirmed persisted
	saving   bool
	flagging bool
	lastErr  string
	closed   bool
}

// NewReportController builds a controller with the given autosave window.
// journal and onFeedback may be nil.
func NewReportController(st Store, journal Journal, delay time.Duration, onFeedback func(api.Report), notify func(Error), logger *log.Logger) *ReportController {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if notify == nil {
		notify = func(Error) {}
	}
	return &ReportController{
		store:      st,
		journal:    journal,
		debounce:   NewDebouncer(delay),
		logger:     logger,
		notify:     notify,
		onFeedback: onFeedback,
		phase:      PhaseUninitialized,
	}
}

// State returns a copy of the current report state.
func (rc *ReportController) State() ReportState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return ReportState{
		Phase:    rc.phase,
		Report:   rc.report,
		Dirty:    rc.editGen > rc.savedGen,
		Saving:   rc.saving,
		LastErr:  rc.lastErr,
		Flagging: rc.flagging,
	}
}

// Reconcile hydrates the session's report from the remote store, creating a
// fresh draft when the user has none for this case. A newly created draft is
// persisted immediately so it owns a stable identity before any edit. When
// the hydrated report already carries ready feedback, onFeedback fires so the
// session can route straight to the feedback view.
func (rc *ReportController) Reconcile(ctx context.Context, caseID int) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return fmt.Errorf("report: controller closed")
	}
	rc.caseID = caseID
	rc.phase = PhaseReconciling
	rc.mu.Unlock()

	reports, err := rc.store.ListReports(ctx, caseID)
	if err != nil {
		rc.fail(OriginReport, err)
		rc.setPhase(PhaseUninitialized)
		return err
	}

	if len(reports) == 0 {
		draft := api.Report{
			CaseID:   caseID,
			Language: "en",
			Status:   api.StatusDraft,
		}
		created, err := rc.store.CreateReport(ctx, draft)
		if err != nil {
			rc.fail(OriginReport, err)
			rc.setPhase(PhaseUninitialized)
			return err
		}
		rc.mu.Lock()
		rc.report = created
		rc.phase = PhaseDraft
		rc.mu.Unlock()
		rc.snapshot(ctx, true)
		return nil
	}

	// The store scopes reports to the caller; at most one per case is
	// expected, and the newest wins if the invariant is ever violated.
	rep := newest(reports)
	rc.mu.Lock()
	rc.report = rep
	rc.phase = phaseFor(rep.Status)
	phase := rc.phase
	ready := rep.Status == api.StatusFeedbackReady && rep.Feedback != nil
	cb := rc.onFeedback
	rc.mu.Unlock()
	if phase == PhaseDraft && strings.TrimSpace(rep.Content) == "" {
		rc.recoverDraft(ctx, rep.ID)
	}
	if ready && cb != nil {
		cb(rep)
	}
	return nil
}

// recoverDraft restores local snapshot text into an empty hydrated draft. The
// recovered text enters through the edit path so the remote store catches up
// on the next autosave.
func (rc *ReportController) recoverDraft(ctx context.Context, reportID string) {
	rec, ok := rc.journal.(DraftRecoverer)
	if !ok {
		return
	}
	content, lang, found, err := rec.RecoverDraft(ctx, reportID)
	if err != nil {
		rc.logger.Printf("report: snapshot recovery failed: %v", err)
		return
	}
	if !found || strings.TrimSpace(content) == "" {
		return
	}
	rc.logger.Printf("report: recovered local draft snapshot for %s", reportID)
	rc.edit(func(r *api.Report) {
		r.Content = content
		if api.ValidLanguage(lang) {
			r.Language = lang
		}
	})
}

// audit appends one action to the journal's activity trail when the journal
// supports it.
func (rc *ReportController) audit(ctx context.Context, action, detail string) {
	ar, ok := rc.journal.(ActivityRecorder)
	if !ok {
		return
	}
	rc.mu.Lock()
	caseID, repID := rc.caseID, rc.report.ID
	rc.mu.Unlock()
	if err := ar.RecordAction(ctx, caseID, repID, action, detail); err != nil {
		rc.logger.Printf("report: activity record failed: %v", err)
	}
}

func newest(reports []api.Report) api.Report {
	best := reports[0]
	for _, r := range reports[1:] {
		if r.LastModified.After(best.LastModified) {
			best = r
		}
	}
	return best
}

func phaseFor(status string) Phase {
	switch status {
	case api.StatusSubmitted:
		return PhaseSubmitted
	case api.StatusFeedbackReady:
		return PhaseFeedbackReady
	default:
		return PhaseDraft
	}
}

// SetContent applies a local edit and arms the autosave window. Edits are
// only accepted in the draft phase.
func (rc *ReportController) SetContent(content string) {
	rc.edit(func(r *api.Report) { r.Content = content })
}

// SetLanguage updates the report language through the same autosave path.
func (rc *ReportController) SetLanguage(lang string) error {
	if !api.ValidLanguage(lang) {
		return fmt.Errorf("report: unsupported language %q", lang)
	}
	rc.edit(func(r *api.Report) { r.Language = lang })
	return nil
}

// ApplyTemplate replaces the entire draft body with template text. Replacing
// is draft-only and rides the normal debounce so a save shortly after still
// coalesces.
func (rc *ReportController) ApplyTemplate(text string) error {
	rc.mu.Lock()
	if rc.phase != PhaseDraft {
		rc.mu.Unlock()
		return fmt.Errorf("report: templates apply to drafts only")
	}
	rc.mu.Unlock()
	rc.edit(func(r *api.Report) { r.Content = text })
	return nil
}

func (rc *ReportController) edit(apply func(*api.Report)) {
	rc.mu.Lock()
	if rc.closed || rc.phase != PhaseDraft {
		rc.mu.Unlock()
		return
	}
	apply(&rc.report)
	rc.editGen++
	gen := rc.editGen
	rc.mu.Unlock()

	rc.debounce.Schedule(func() {
		rc.persist(context.Background(), gen)
	})
}

// Save cancels any pending autosave and persists the current content now.
func (rc *ReportController) Save(ctx context.Context) error {
	rc.debounce.Cancel()
	rc.mu.Lock()
	gen := rc.editGen
	rc.mu.Unlock()
	if err := rc.persist(ctx, gen); err != nil {
		return err
	}
	rc.audit(ctx, "save", "")
	return nil
}

// persist writes the draft to the remote store. The generation captured at
// scheduling time decides what happens on completion: if newer edits arrived
// while the write was in flight, the result is discarded and those edits keep
// their own pending persist.
func (rc *ReportController) persist(ctx context.Context, gen uint64) error {
	rc.mu.Lock()
	if rc.closed || rc.phase != PhaseDraft {
		rc.mu.Unlock()
		return nil
	}
	if gen <= rc.savedGen {
		rc.mu.Unlock()
		return nil // already covered by a later confirmed write
	}
	rep := rc.report
	rc.saving = true
	rc.mu.Unlock()

	updated, err := rc.store.UpdateReport(ctx, rep)

	rc.mu.Lock()
	rc.saving = false
	if err != nil {
		rc.mu.Unlock()
		rc.setErr(err.Error())
		// A failed autosave keeps the draft dirty; the next debounce cycle
		// (or a manual save) retries it.
		rc.notify(Error{Origin: OriginReport, Kind: KindRecoverableWrite, Err: err, Retryable: true})
		rc.snapshot(ctx, false)
		return err
	}
	superseded := gen < rc.editGen
	if !superseded && rc.phase == PhaseDraft {
		// Adopt server-side fields but never let a stale echo of our own
		// content overwrite what the user typed since.
		content, lang := rc.report.Content, rc.report.Language
		rc.report = updated
		rc.report.Content = content
		rc.report.Language = lang
		rc.savedGen = gen
		rc.lastErr = ""
	}
	rc.mu.Unlock()
	if !superseded {
		rc.snapshot(ctx, true)
	}
	return nil
}

// Submit finalizes the report: any armed autosave is cancelled, the current
// content is force-persisted, and only then does the submission itself go
// out. A failed submission rolls the phase back to draft with content intact;
// a validation failure additionally surfaces the store's field errors
// verbatim.
func (rc *ReportController) Submit(ctx context.Context) error {
	rc.mu.Lock()
	if rc.closed || rc.phase != PhaseDraft {
		rc.mu.Unlock()
		return fmt.Errorf("report: only drafts can be submitted")
	}
	rc.phase = PhaseSubmitting
	gen := rc.editGen
	rc.mu.Unlock()

	rc.debounce.Cancel()

	// The persist runs with the phase already at submitting, so route it
	// around the draft gate.
	rc.mu.Lock()
	rep := rc.report
	needsPersist := gen > rc.savedGen
	rc.mu.Unlock()
	if needsPersist {
		updated, err := rc.store.UpdateReport(ctx, rep)
		if err != nil {
			rc.rollback(ctx, err)
			return err
		}
		rc.mu.Lock()
		content, lang := rc.report.Content, rc.report.Language
		rc.report = updated
		rc.report.Content = content
		rc.report.Language = lang
		rc.savedGen = gen
		rc.mu.Unlock()
	}

	submitted, err := rc.store.SubmitReport(ctx, rep.ID)
	if err != nil {
		rc.rollback(ctx, err)
		return err
	}

	rc.mu.Lock()
	rc.report = submitted
	rc.phase = phaseFor(submitted.Status)
	if rc.phase == PhaseSubmitting {
		rc.phase = PhaseSubmitted
	}
	rc.lastErr = ""
	ready := submitted.Status == api.StatusFeedbackReady && submitted.Feedback != nil
	cb := rc.onFeedback
	rc.mu.Unlock()

	rc.snapshot(ctx, true)
	rc.audit(ctx, "submit", "")
	if ready && cb != nil {
		cb(submitted)
	}
	return nil
}

// rollback restores the draft phase after a failed submit. Content carries
// over untouched so nothing the user wrote is lost.
func (rc *ReportController) rollback(ctx context.Context, err error) {
	rc.mu.Lock()
	if rc.phase == PhaseSubmitting {
		rc.phase = PhaseDraft
	}
	rc.mu.Unlock()
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		rc.setErr(verr.Error())
		rc.notify(Error{Origin: OriginReport, Kind: KindValidation, Err: err})
	} else {
		rc.fail(OriginReport, err)
	}
	rc.snapshot(ctx, false)
}

// FlagFeedback marks the attached feedback inaccurate. A second request while
// one is in flight, or after the flag has stuck, is ignored. On success the
// report is re-fetched so the flagged marker reflects the store's view.
func (rc *ReportController) FlagFeedback(ctx context.Context) error {
	rc.mu.Lock()
	if rc.closed || rc.report.Feedback == nil {
		rc.mu.Unlock()
		return fmt.Errorf("report: no feedback to flag")
	}
	if rc.flagging || rc.report.Feedback.Flagged {
		rc.mu.Unlock()
		return nil
	}
	rc.flagging = true
	fbID := rc.report.Feedback.ID
	repID := rc.report.ID
	rc.mu.Unlock()

	err := rc.store.FlagFeedback(ctx, fbID)
	if err != nil {
		rc.mu.Lock()
		rc.flagging = false
		rc.mu.Unlock()
		rc.fail(OriginReport, err)
		return err
	}

	fresh, ferr := rc.store.GetReport(ctx, repID)
	rc.mu.Lock()
	rc.flagging = false
	if ferr == nil {
		rc.report = fresh
		rc.phase = phaseFor(fresh.Status)
	} else if rc.report.Feedback != nil {
		// The flag took; keep the local marker honest even if the re-fetch
		// did not land.
		rc.report.Feedback.Flagged = true
	}
	rc.mu.Unlock()
	if ferr != nil {
		rc.logger.Printf("report: re-fetch after flag failed: %v", ferr)
	}
	rc.audit(ctx, "flag", fmt.Sprintf("feedback %d", fbID))
	return nil
}

// ApplyRemote adopts a store-side report update, typically delivered by the
// feedback watcher. Local draft edits are never overwritten by it.
func (rc *ReportController) ApplyRemote(rep api.Report) {
	rc.mu.Lock()
	if rc.closed || rep.ID != rc.report.ID {
		rc.mu.Unlock()
		return
	}
	if rc.phase == PhaseDraft || rc.phase == PhaseSubmitting {
		rc.mu.Unlock()
		return
	}
	rc.report = rep
	rc.phase = phaseFor(rep.Status)
	ready := rep.Status == api.StatusFeedbackReady && rep.Feedback != nil
	cb := rc.onFeedback
	rc.mu.Unlock()
	if ready && cb != nil {
		cb(rep)
	}
}

func (rc *ReportController) setPhase(p Phase) {
	rc.mu.Lock()
	rc.phase = p
	rc.mu.Unlock()
}

func (rc *ReportController) setErr(msg string) {
	rc.mu.Lock()
	rc.lastErr = msg
	rc.mu.Unlock()
}

func (rc *ReportController) fail(origin Origin, err error) {
	rc.setErr(err.Error())
	rc.notify(classify(origin, err))
}

// snapshot journals the current draft to local storage. Journal failures are
// logged and swallowed; the journal is a recovery aid, not a dependency.
func (rc *ReportController) snapshot(ctx context.Context, saved bool) {
	if rc.journal == nil {
		return
	}
	rc.mu.Lock()
	rep := rc.report
	gen := rc.editGen
	rc.mu.Unlock()
	if err := rc.journal.RecordSnapshot(ctx, rep.ID, rep.CaseID, gen, rep.Content, rep.Language, saved); err != nil {
		rc.logger.Printf("report: journal snapshot failed: %v", err)
	}
}

// Close cancels any pending autosave without flushing it and stops the
// controller. Idempotent.
func (rc *ReportController) Close() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.mu.Unlock()
	rc.debounce.Cancel()
}
