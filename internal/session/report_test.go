package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teachrad/radcase-console/internal/api"
)

const testDelay = 25 * time.Millisecond

func newReportFixture(t *testing.T, st *fakeStore) (*ReportController, *errorSink) {
	t.Helper()
	sink := &errorSink{}
	rc := NewReportController(st, nil, testDelay, nil, sink.notify, nil)
	t.Cleanup(rc.Close)
	return rc, sink
}

func TestReconcileCreatesDraftWhenNone(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)

	require.NoError(t, rc.Reconcile(context.Background(), 7))

	state := rc.State()
	assert.Equal(t, PhaseDraft, state.Phase)
	assert.Equal(t, 7, state.Report.CaseID)
	assert.Equal(t, "en", state.Report.Language)
	assert.NotEmpty(t, state.Report.ID, "new draft must be persisted for an identity")
	assert.Equal(t, 1, st.countCalls("CreateReport"))
}

func TestReconcileHydratesExistingDraft(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{
		ID: "rep-1", CaseID: 7, Content: "prior findings", Language: "es",
		Status: api.StatusDraft,
	}
	rc, _ := newReportFixture(t, st)

	require.NoError(t, rc.Reconcile(context.Background(), 7))

	state := rc.State()
	assert.Equal(t, PhaseDraft, state.Phase)
	assert.Equal(t, "prior findings", state.Report.Content)
	assert.Equal(t, "es", state.Report.Language)
	assert.Zero(t, st.countCalls("CreateReport"))
}

func TestReconcileAdoptsNewestReport(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{
		ID: "rep-1", CaseID: 7, Content: "stale draft", Status: api.StatusDraft,
		LastModified: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	st.reports["rep-2"] = api.Report{
		ID: "rep-2", CaseID: 7, Content: "current draft", Status: api.StatusDraft,
		LastModified: time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC),
	}
	rc, _ := newReportFixture(t, st)

	require.NoError(t, rc.Reconcile(context.Background(), 7))

	state := rc.State()
	assert.Equal(t, "rep-2", state.Report.ID)
	assert.Equal(t, "current draft", state.Report.Content)
	assert.Zero(t, st.countCalls("CreateReport"))
}

func TestReconcileRecoversLocalSnapshot(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{ID: "rep-1", CaseID: 7, Status: api.StatusDraft}
	jr := &fakeJournal{recovered: "findings typed before the crash", recLang: "es"}
	sink := &errorSink{}
	rc := NewReportController(st, jr, testDelay, nil, sink.notify, nil)
	t.Cleanup(rc.Close)

	require.NoError(t, rc.Reconcile(context.Background(), 7))

	state := rc.State()
	assert.Equal(t, "findings typed before the crash", state.Report.Content)
	assert.Equal(t, "es", state.Report.Language)
	assert.True(t, state.Dirty, "recovered text must head back to the remote store")
	require.Eventually(t, func() bool { return st.countCalls("UpdateReport") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestReconcileSkipsRecoveryWhenDraftHasContent(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{ID: "rep-1", CaseID: 7, Content: "remote text", Status: api.StatusDraft}
	jr := &fakeJournal{recovered: "older local text"}
	sink := &errorSink{}
	rc := NewReportController(st, jr, testDelay, nil, sink.notify, nil)
	t.Cleanup(rc.Close)

	require.NoError(t, rc.Reconcile(context.Background(), 7))
	assert.Equal(t, "remote text", rc.State().Report.Content)
}

func TestExplicitActionsReachActivityTrail(t *testing.T) {
	st := newFakeStore()
	jr := &fakeJournal{}
	sink := &errorSink{}
	rc := NewReportController(st, jr, testDelay, nil, sink.notify, nil)
	t.Cleanup(rc.Close)

	require.NoError(t, rc.Reconcile(context.Background(), 7))
	rc.SetContent("Lungs are clear.")
	require.NoError(t, rc.Save(context.Background()))
	require.NoError(t, rc.Submit(context.Background()))

	assert.Equal(t, []string{"save", "submit"}, jr.actionLog())
}

func TestReconcileRoutesToFeedback(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{
		ID: "rep-1", CaseID: 7, Status: api.StatusFeedbackReady,
		Feedback: &api.Feedback{ID: 3, Content: "good catch"},
	}
	sink := &errorSink{}
	var mu sync.Mutex
	var routed []string
	rc := NewReportController(st, nil, testDelay, func(rep api.Report) {
		mu.Lock()
		routed = append(routed, rep.ID)
		mu.Unlock()
	}, sink.notify, nil)
	defer rc.Close()

	require.NoError(t, rc.Reconcile(context.Background(), 7))

	assert.Equal(t, PhaseFeedbackReady, rc.State().Phase)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rep-1"}, routed)
}

func TestEditsCoalesceIntoOnePersist(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	rc.SetContent("Lungs")
	rc.SetContent("Lungs clear")
	rc.SetContent("Lungs clear bilaterally")

	require.Eventually(t, func() bool {
		return st.countCalls("UpdateReport") == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(2 * testDelay)

	assert.Equal(t, 1, st.countCalls("UpdateReport"), "intermediate keystrokes must not each persist")
	state := rc.State()
	assert.Equal(t, "Lungs clear bilaterally", state.Report.Content)
	assert.False(t, state.Dirty)
}

func TestStalePersistResultDiscarded(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	gate := make(chan struct{})
	st.updateGate = gate

	rc.SetContent("first")
	done := make(chan error, 1)
	go func() { done <- rc.persist(context.Background(), 1) }()

	// The write for "first" is now held in flight; newer edits arrive
	require.Eventually(t, func() bool { return rc.State().Saving }, time.Second, time.Millisecond)
	rc.SetContent("second")
	close(gate)
	require.NoError(t, <-done)

	// The superseded completion must not mark the newer edit as saved
	state := rc.State()
	assert.Equal(t, "second", state.Report.Content)
	assert.True(t, state.Dirty)

	// The gate is closed now, so the flush proceeds without blocking
	require.NoError(t, rc.Save(context.Background()))
	assert.False(t, rc.State().Dirty)
}

func TestSaveFlushesImmediately(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	rc.SetContent("impression pending")
	require.NoError(t, rc.Save(context.Background()))

	state := rc.State()
	assert.False(t, state.Dirty)
	assert.Equal(t, 1, st.countCalls("UpdateReport"))

	// The cancelled debounce task must not fire a second write later
	time.Sleep(2 * testDelay)
	assert.Equal(t, 1, st.countCalls("UpdateReport"))
}

func TestSubmitPersistsBeforeSubmitting(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	rc.SetContent("final impression")
	require.NoError(t, rc.Submit(context.Background()))

	assert.Equal(t, []string{"UpdateReport", "SubmitReport"}, st.callLog())
	state := rc.State()
	assert.Equal(t, PhaseSubmitted, state.Phase)
	assert.Equal(t, "final impression", st.reports[state.Report.ID].Content)

	// No debounce task may fire after submission
	time.Sleep(2 * testDelay)
	assert.Equal(t, 1, st.countCalls("UpdateReport"))
}

func TestSubmitSkipsPersistWhenClean(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	rc.SetContent("done")
	require.NoError(t, rc.Save(context.Background()))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	require.NoError(t, rc.Submit(context.Background()))
	assert.Equal(t, []string{"SubmitReport"}, st.callLog())
}

func TestSubmitRollbackKeepsContent(t *testing.T) {
	st := newFakeStore()
	st.submitErr = errors.New("boom")
	rc, sink := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	rc.SetContent("do not lose this")
	require.Error(t, rc.Submit(context.Background()))

	state := rc.State()
	assert.Equal(t, PhaseDraft, state.Phase)
	assert.Equal(t, "do not lose this", state.Report.Content)
	require.NotEmpty(t, sink.all())
}

func TestSubmitValidationSurfacesFieldErrors(t *testing.T) {
	st := newFakeStore()
	st.submitErr = &api.ValidationError{
		Detail: "Cannot submit empty report",
		Fields: map[string][]string{"content": {"This field may not be blank."}},
	}
	rc, sink := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	rc.SetContent(" ")
	require.Error(t, rc.Submit(context.Background()))

	state := rc.State()
	assert.Equal(t, PhaseDraft, state.Phase)
	assert.Contains(t, state.LastErr, "Cannot submit empty report")
	assert.Contains(t, state.LastErr, "This field may not be blank.")

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Equal(t, KindValidation, errs[0].Kind)
}

func TestSubmitMayReturnFeedbackSynchronously(t *testing.T) {
	st := newFakeStore()
	st.submitTransform = func(r api.Report) api.Report {
		r.Status = api.StatusFeedbackReady
		r.Feedback = &api.Feedback{ID: 9, Content: "consider the costophrenic angles"}
		return r
	}
	var mu sync.Mutex
	var routed int
	sink := &errorSink{}
	rc := NewReportController(st, nil, testDelay, func(api.Report) {
		mu.Lock()
		routed++
		mu.Unlock()
	}, sink.notify, nil)
	defer rc.Close()
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	rc.SetContent("findings")
	require.NoError(t, rc.Submit(context.Background()))

	assert.Equal(t, PhaseFeedbackReady, rc.State().Phase)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, routed)
}

func TestEditsIgnoredOutsideDraft(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	rc.SetContent("v1")
	require.NoError(t, rc.Submit(context.Background()))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	rc.SetContent("late edit")
	time.Sleep(2 * testDelay)

	assert.Equal(t, "v1", rc.State().Report.Content)
	assert.Zero(t, st.countCalls("UpdateReport"))
	assert.Error(t, rc.ApplyTemplate("template body"))
}

func TestSetLanguageValidated(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	assert.Error(t, rc.SetLanguage("xx"))
	require.NoError(t, rc.SetLanguage("fr"))
	require.NoError(t, rc.Save(context.Background()))
	assert.Equal(t, "fr", rc.State().Report.Language)
}

func TestApplyTemplateRidesDebounce(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	require.NoError(t, rc.ApplyTemplate("TECHNIQUE:\nFINDINGS:\nIMPRESSION:"))
	assert.Equal(t, "TECHNIQUE:\nFINDINGS:\nIMPRESSION:", rc.State().Report.Content)
	assert.Zero(t, st.countCalls("UpdateReport"), "template replace must not persist eagerly")

	require.Eventually(t, func() bool {
		return st.countCalls("UpdateReport") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFlagFeedbackIdempotent(t *testing.T) {
	st := newFakeStore()
	st.reports["rep-1"] = api.Report{
		ID: "rep-1", CaseID: 7, Status: api.StatusFeedbackReady,
		Feedback: &api.Feedback{ID: 3, Content: "note"},
	}
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))

	require.NoError(t, rc.FlagFeedback(context.Background()))
	assert.True(t, rc.State().Report.Feedback.Flagged)

	// Repeat requests after the flag stuck must not hit the store again
	require.NoError(t, rc.FlagFeedback(context.Background()))
	require.NoError(t, rc.FlagFeedback(context.Background()))
	assert.Equal(t, 1, st.countCalls("FlagFeedback"))
}

func TestFlagFeedbackWithoutFeedback(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	assert.Error(t, rc.FlagFeedback(context.Background()))
}

func TestCloseDropsPendingAutosave(t *testing.T) {
	st := newFakeStore()
	rc, _ := newReportFixture(t, st)
	require.NoError(t, rc.Reconcile(context.Background(), 7))
	st.mu.Lock()
	st.calls = nil
	st.mu.Unlock()

	rc.SetContent("typed just before leaving")
	rc.Close()

	time.Sleep(2 * testDelay)
	assert.Zero(t, st.countCalls("UpdateReport"), "unmount must not flush the pending write")
}
