package session

import (
	"context"

	"github.com/teachrad/radcase-console/internal/api"
)

// Store is the remote-store capability surface the session core consumes.
// *api.Client satisfies it; tests substitute fakes.
type Store interface {
	GetCase(ctx context.Context, caseID int) (api.Case, error)
	ListReports(ctx context.Context, caseID int) ([]api.Report, error)
	CreateReport(ctx context.Context, r api.Report) (api.Report, error)
	UpdateReport(ctx context.Context, r api.Report) (api.Report, error)
	GetReport(ctx context.Context, reportID string) (api.Report, error)
	SubmitReport(ctx context.Context, reportID string) (api.Report, error)
	FlagFeedback(ctx context.Context, feedbackID int) error
	ListSeries(ctx context.Context, caseID int) ([]api.Series, error)
	ListImages(ctx context.Context, seriesID int) ([]api.ImageRef, error)
}

// Journal receives local content snapshots around every persist attempt so
// user-authored text survives remote-store failures. Implementations must be
// cheap and never block editing; errors are logged, not propagated.
type Journal interface {
	RecordSnapshot(ctx context.Context, reportID string, caseID int, generation uint64, content, language string, saved bool) error
}

// DraftRecoverer is the optional journal capability consulted when a draft
// hydrates empty: the newest local snapshot may still hold text the remote
// store never received.
type DraftRecoverer interface {
	RecoverDraft(ctx context.Context, reportID string) (content, language string, ok bool, err error)
}

// ActivityRecorder is the optional journal capability behind the audit trail
// of session actions. Recording failures are logged, never propagated.
type ActivityRecorder interface {
	RecordAction(ctx context.Context, caseID int, reportID, action, detail string) error
}
