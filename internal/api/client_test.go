package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "tok123", nil)
	require.NoError(t, err)
	return c, srv
}

func decodeJSONBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", "", nil)
	assert.Error(t, err)
}

func TestAuthHeaderSent(t *testing.T) {
	var gotAuth, gotReqID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "title": "Chest pain"}`))
	}))

	cs, err := c.GetCase(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Chest pain", cs.Title)
	assert.Equal(t, "Token tok123", gotAuth)
	assert.NotEmpty(t, gotReqID)
}

func TestNotFoundClassified(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Not found."}`, http.StatusNotFound)
	}))

	_, err := c.GetCase(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnauthorizedClassified(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Invalid token."}`, http.StatusUnauthorized)
	}))

	_, err := c.GetReport(context.Background(), "rep-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidationErrorParsedVerbatim(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"content": ["This field may not be blank."], "language": "Invalid choice."}`))
	}))

	_, err := c.SubmitReport(context.Background(), "rep-1")
	require.Error(t, err)

	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"This field may not be blank."}, ve.Fields["content"])
	assert.Equal(t, []string{"Invalid choice."}, ve.Fields["language"])
	assert.Contains(t, ve.Error(), "This field may not be blank.")
}

func TestValidationDetailOnly(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "Cannot submit empty report"}`))
	}))

	_, err := c.SubmitReport(context.Background(), "rep-1")
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Cannot submit empty report", ve.Detail)
}

func TestServerErrorBecomesStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	_, err := c.ListCases(context.Background())
	require.Error(t, err)
	serr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, serr.Code)
}

func TestCreateReportSendsWriteShape(t *testing.T) {
	var gotBody map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/reports/", r.URL.Path)
		decodeJSONBody(t, r, &gotBody)
		w.Write([]byte(`{"id": "a1b2", "case_id": 7, "content": "", "language": "en", "status": "draft"}`))
	}))

	rep, err := c.CreateReport(context.Background(), Report{CaseID: 7, Language: "en", Status: StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, "a1b2", rep.ID)
	assert.Equal(t, float64(7), gotBody["case_id"], "case_id travels write-only")
	assert.Equal(t, "en", gotBody["language"])
}

func TestUpdateReportIsFullReplace(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		decodeJSONBody(t, r, &gotBody)
		w.Write([]byte(`{"id": "a1b2", "case_id": 7, "content": "findings", "language": "en", "status": "draft"}`))
	}))

	_, err := c.UpdateReport(context.Background(), Report{ID: "a1b2", CaseID: 7, Content: "findings", Language: "en", Status: StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/reports/a1b2/", gotPath)
	// Every field rides along: PUT replaces the record wholesale
	assert.Equal(t, "findings", gotBody["content"])
	assert.Equal(t, "draft", gotBody["status"])
}

func TestUpdateReportRequiresID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made")
	}))
	_, err := c.UpdateReport(context.Background(), Report{CaseID: 7})
	assert.Error(t, err)
}

func TestListReportsFiltersByCase(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("case"))
		// Backend ignored the filter and returned everything
		w.Write([]byte(`[
			{"id": "a", "case_id": 7, "status": "draft"},
			{"id": "b", "case": {"id": 7, "title": "x"}, "status": "submitted"},
			{"id": "c", "case_id": 9, "status": "draft"}
		]`))
	}))

	reports, err := c.ListReports(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, reports, 2, "local re-filter drops foreign cases")
	assert.Equal(t, "a", reports[0].ID)
	assert.Equal(t, "b", reports[1].ID)
}

func TestSubmitReportParsesSynchronousFeedback(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/reports/a1b2/submit/", r.URL.Path)
		w.Write([]byte(`{
			"id": "a1b2", "case_id": 7, "status": "feedback_ready",
			"feedback": {"id": 3, "content": "Consider the apices.", "flagged": false}
		}`))
	}))

	rep, err := c.SubmitReport(context.Background(), "a1b2")
	require.NoError(t, err)
	assert.Equal(t, StatusFeedbackReady, rep.Status)
	require.NotNil(t, rep.Feedback)
	assert.Equal(t, "Consider the apices.", rep.Feedback.Content)
}

func TestFlagFeedbackHitsEndpoint(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.FlagFeedback(context.Background(), 3))
	assert.Equal(t, "/api/feedback/3/flag/", gotPath)
}

func TestListSeriesAndImages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/series/":
			assert.Equal(t, "7", r.URL.Query().Get("case_id"))
			w.Write([]byte(`[{"id": 1, "series_number": 1, "image_count": 2}]`))
		case "/api/series/1/images/":
			w.Write([]byte(`[
				{"id": 11, "instance_number": 1, "file_url": "wadouri:/a"},
				{"id": 12, "instance_number": 2, "file_url": "wadouri:/b"}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))

	series, err := c.ListSeries(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, series, 1)

	images, err := c.ListImages(context.Background(), series[0].ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	// Server ordering is preserved as received
	assert.Equal(t, 1, images[0].InstanceNumber)
	assert.Equal(t, 2, images[1].InstanceNumber)
}

func TestLoginReadsEitherTokenField(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login/", r.URL.Path)
		w.Write([]byte(`{"key": "fresh-token"}`))
	}))

	tok, err := c.Login(context.Background(), "resident", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
}
