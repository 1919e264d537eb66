package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/render"
)

// fakeStore is an in-memory Store with injectable failures and call
// recording. The calls slice preserves operation order for sequencing
// assertions.
type fakeStore struct {
	mu sync.Mutex

	cases   map[int]api.Case
	caseErr error

	reports        map[string]api.Report
	listReportsErr error
	createErr      error
	updateErr      error
	submitErr      error
	getReportErr   error
	flagErr        error

	series    map[int][]api.Series
	seriesErr error

	images    map[int][]api.ImageRef
	imagesErr map[int]error

	// submitTransform rewrites the report a submit returns; by default the
	// status just flips to submitted.
	submitTransform func(api.Report) api.Report

	// updateGate, when set, is received from inside UpdateReport before it
	// completes. Lets tests hold a write in flight.
	updateGate chan struct{}

	// imageGate works the same way for ListImages, keyed by series id.
	imageGate map[int]chan struct{}

	calls     []string
	nextRepID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cases:     map[int]api.Case{},
		reports:   map[string]api.Report{},
		series:    map[int][]api.Series{},
		images:    map[int][]api.ImageRef{},
		imagesErr: map[int]error{},
		imageGate: map[int]chan struct{}{},
	}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeStore) countCalls(op string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetCase(ctx context.Context, id int) (api.Case, error) {
	f.record("GetCase")
	if f.caseErr != nil {
		return api.Case{}, f.caseErr
	}
	c, ok := f.cases[id]
	if !ok {
		return api.Case{}, api.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListReports(ctx context.Context, caseID int) ([]api.Report, error) {
	f.record("ListReports")
	if f.listReportsErr != nil {
		return nil, f.listReportsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.Report
	for _, r := range f.reports {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateReport(ctx context.Context, rep api.Report) (api.Report, error) {
	f.record("CreateReport")
	if f.createErr != nil {
		return api.Report{}, f.createErr
	}
	f.mu.Lock()
	f.nextRepID++
	rep.ID = fmt.Sprintf("rep-%d", f.nextRepID)
	f.reports[rep.ID] = rep
	f.mu.Unlock()
	return rep, nil
}

func (f *fakeStore) UpdateReport(ctx context.Context, rep api.Report) (api.Report, error) {
	f.record("UpdateReport")
	if f.updateGate != nil {
		<-f.updateGate
	}
	if f.updateErr != nil {
		return api.Report{}, f.updateErr
	}
	f.mu.Lock()
	f.reports[rep.ID] = rep
	f.mu.Unlock()
	return rep, nil
}

func (f *fakeStore) GetReport(ctx context.Context, id string) (api.Report, error) {
	f.record("GetReport")
	if f.getReportErr != nil {
		return api.Report{}, f.getReportErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return api.Report{}, api.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) SubmitReport(ctx context.Context, id string) (api.Report, error) {
	f.record("SubmitReport")
	if f.submitErr != nil {
		return api.Report{}, f.submitErr
	}
	f.mu.Lock()
	r := f.reports[id]
	f.mu.Unlock()
	if f.submitTransform != nil {
		r = f.submitTransform(r)
	} else {
		r.Status = api.StatusSubmitted
	}
	f.mu.Lock()
	f.reports[id] = r
	f.mu.Unlock()
	return r, nil
}

func (f *fakeStore) FlagFeedback(ctx context.Context, feedbackID int) error {
	f.record("FlagFeedback")
	if f.flagErr != nil {
		return f.flagErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.reports {
		if r.Feedback != nil && r.Feedback.ID == feedbackID {
			fb := *r.Feedback
			fb.Flagged = true
			r.Feedback = &fb
			f.reports[id] = r
		}
	}
	return nil
}

func (f *fakeStore) ListSeries(ctx context.Context, caseID int) ([]api.Series, error) {
	f.record("ListSeries")
	if f.seriesErr != nil {
		return nil, f.seriesErr
	}
	return f.series[caseID], nil
}

func (f *fakeStore) ListImages(ctx context.Context, seriesID int) ([]api.ImageRef, error) {
	f.record("ListImages")
	if gate, ok := f.imageGate[seriesID]; ok {
		<-gate
	}
	if err, ok := f.imagesErr[seriesID]; ok && err != nil {
		return nil, err
	}
	return f.images[seriesID], nil
}

// fakeEngine records displayed refs and lets tests fail specific locators.
type fakeEngine struct {
	mu        sync.Mutex
	displayed []api.ImageRef
	failURLs  map[string]error
	tool      render.Tool
	detached  int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failURLs: map[string]error{}, tool: render.ToolWindowLevel}
}

func (e *fakeEngine) Attach(s render.Surface) error { return nil }

func (e *fakeEngine) Detach() {
	e.mu.Lock()
	e.detached++
	e.mu.Unlock()
}

func (e *fakeEngine) Display(ctx context.Context, ref api.ImageRef) (render.Viewport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failURLs[ref.FileURL]; ok {
		return render.Viewport{}, err
	}
	e.displayed = append(e.displayed, ref)
	return render.Viewport{Scale: 1, WindowWidth: 400, WindowCenter: 40}, nil
}

func (e *fakeEngine) SetTool(t render.Tool) error {
	e.mu.Lock()
	e.tool = t
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) ActiveTool() render.Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

func (e *fakeEngine) OnRendered(fn func(api.ImageRef, render.Viewport)) func() {
	return func() {}
}

func (e *fakeEngine) lastDisplayed() (api.ImageRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.displayed) == 0 {
		return api.ImageRef{}, false
	}
	return e.displayed[len(e.displayed)-1], true
}

// errorSink collects classified errors from a controller under test.
type errorSink struct {
	mu   sync.Mutex
	errs []Error
}

func (s *errorSink) notify(e Error) {
	s.mu.Lock()
	s.errs = append(s.errs, e)
	s.mu.Unlock()
}

func (s *errorSink) all() []Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Error, len(s.errs))
	copy(out, s.errs)
	return out
}

// fakeJournal records snapshots and activity in memory and can hand back a
// canned draft for recovery.
type fakeJournal struct {
	mu        sync.Mutex
	snapshots []string
	actions   []string
	recovered string
	recLang   string
}

func (j *fakeJournal) RecordSnapshot(ctx context.Context, reportID string, caseID int, generation uint64, content, language string, saved bool) error {
	j.mu.Lock()
	j.snapshots = append(j.snapshots, content)
	j.mu.Unlock()
	return nil
}

func (j *fakeJournal) RecoverDraft(ctx context.Context, reportID string) (string, string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.recovered == "" {
		return "", "", false, nil
	}
	return j.recovered, j.recLang, true, nil
}

func (j *fakeJournal) RecordAction(ctx context.Context, caseID int, reportID, action, detail string) error {
	j.mu.Lock()
	j.actions = append(j.actions, action)
	j.mu.Unlock()
	return nil
}

func (j *fakeJournal) actionLog() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.actions))
	copy(out, j.actions)
	return out
}
