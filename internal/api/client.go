package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Client is the typed remote-store client the session core consumes. It talks
// to the teaching backend's REST surface with token authentication. No
// timeout is imposed beyond the transport default; callers pass contexts and
// every request terminates with a definite success or failure.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient constructs a client against baseURL (e.g. http://localhost:8000).
// token may be empty for the login call; every other operation requires it.
func NewClient(baseURL, token string, logger *log.Logger) (*Client, error) {
	b := strings.TrimSpace(baseURL)
	if b == "" {
		return nil, fmt.Errorf("api: base URL required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL:    strings.TrimRight(b, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// SetToken replaces the auth token (after login).
func (c *Client) SetToken(token string) { c.token = strings.TrimSpace(token) }

// do executes one JSON request/response round trip and classifies failures.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	return c.classify(resp, method, path)
}

// classify converts a non-2xx response into a typed error. 400 bodies are
// parsed into a field-level ValidationError with messages kept verbatim.
func (c *Client) classify(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("api: %s %s: %w", method, path, ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("api: %s %s: %w", method, path, ErrUnauthorized)
	case http.StatusBadRequest:
		return parseValidation(raw)
	}

	c.logger.Printf("api: %s %s -> %d", method, path, resp.StatusCode)
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

// parseValidation decodes the two DRF 400 shapes: {"detail": "..."} or
// {"field": ["msg", ...], ...}. Unparseable bodies become the detail string.
func parseValidation(raw []byte) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return &ValidationError{Detail: strings.TrimSpace(string(raw))}
	}

	ve := &ValidationError{Fields: make(map[string][]string)}
	for key, val := range generic {
		if key == "detail" || key == "error" {
			var s string
			if json.Unmarshal(val, &s) == nil {
				ve.Detail = s
				continue
			}
		}
		var msgs []string
		if json.Unmarshal(val, &msgs) == nil {
			ve.Fields[key] = msgs
			continue
		}
		var one string
		if json.Unmarshal(val, &one) == nil {
			ve.Fields[key] = []string{one}
		}
	}
	if len(ve.Fields) == 0 && ve.Detail == "" {
		ve.Detail = strings.TrimSpace(string(raw))
	}
	return ve
}

// GetCase fetches one case. 404 is fatal to the session that requested it.
func (c *Client) GetCase(ctx context.Context, caseID int) (Case, error) {
	var out Case
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/cases/%d/", caseID), nil, nil, &out); err != nil {
		return Case{}, err
	}
	return out, nil
}

// ListCases fetches all cases visible to the authenticated user.
func (c *Client) ListCases(ctx context.Context) ([]Case, error) {
	var out []Case
	if err := c.do(ctx, http.MethodGet, "/api/cases/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListReports fetches the authenticated user's reports. When caseID > 0 a
// server-side filter param is sent; results are re-filtered locally anyway
// because older backends ignore unknown query params.
func (c *Client) ListReports(ctx context.Context, caseID int) ([]Report, error) {
	var query url.Values
	if caseID > 0 {
		query = url.Values{"case": []string{fmt.Sprint(caseID)}}
	}
	var out []Report
	if err := c.do(ctx, http.MethodGet, "/api/reports/", query, nil, &out); err != nil {
		return nil, err
	}
	if caseID <= 0 {
		return out, nil
	}
	filtered := out[:0]
	for _, r := range out {
		if r.matchesCase(caseID) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// matchesCase resolves the report's case identity from either the write-only
// case_id echo or the nested case object.
func (r Report) matchesCase(caseID int) bool {
	if r.CaseID == caseID {
		return true
	}
	return r.Case != nil && r.Case.ID == caseID
}

// createReportRequest is the write shape: case_id is write-only server-side.
type reportWrite struct {
	CaseID   int    `json:"case_id"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Status   string `json:"status"`
}

// CreateReport persists a new draft and returns it with its identifier. The
// server enforces single authorship; the session enforces one per case.
func (c *Client) CreateReport(ctx context.Context, r Report) (Report, error) {
	var out Report
	body := reportWrite{CaseID: r.CaseID, Content: r.Content, Language: r.Language, Status: r.Status}
	if err := c.do(ctx, http.MethodPost, "/api/reports/", nil, body, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

// UpdateReport replaces the remote record wholesale (PUT semantics).
func (c *Client) UpdateReport(ctx context.Context, r Report) (Report, error) {
	if r.ID == "" {
		return Report{}, fmt.Errorf("api: update requires a report id")
	}
	var out Report
	body := reportWrite{CaseID: r.CaseID, Content: r.Content, Language: r.Language, Status: r.Status}
	if err := c.do(ctx, http.MethodPut, "/api/reports/"+r.ID+"/", nil, body, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

// GetReport re-fetches one report (used to refresh feedback state).
func (c *Client) GetReport(ctx context.Context, reportID string) (Report, error) {
	var out Report
	if err := c.do(ctx, http.MethodGet, "/api/reports/"+reportID+"/", nil, nil, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

// SubmitReport requests server-side submission. The backend may return the
// report already advanced to feedback_ready with nested feedback when it
// generates feedback synchronously.
func (c *Client) SubmitReport(ctx context.Context, reportID string) (Report, error) {
	var out Report
	if err := c.do(ctx, http.MethodPost, "/api/reports/"+reportID+"/submit/", nil, nil, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

// FlagFeedback flags one feedback record as problematic. Idempotence is
// guarded client-side; the server call is made at most once per flag.
func (c *Client) FlagFeedback(ctx context.Context, feedbackID int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/feedback/%d/flag/", feedbackID), nil, nil, nil)
}

// ListSeries fetches the series of a case, in server order.
func (c *Client) ListSeries(ctx context.Context, caseID int) ([]Series, error) {
	query := url.Values{"case_id": []string{fmt.Sprint(caseID)}}
	var out []Series
	if err := c.do(ctx, http.MethodGet, "/api/series/", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListImages fetches the image references of a series. Ordering is
// server-defined clinical instance order and preserved as received.
func (c *Client) ListImages(ctx context.Context, seriesID int) ([]ImageRef, error) {
	var out []ImageRef
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/series/%d/images/", seriesID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login exchanges credentials for an API token (DRF token auth endpoint).
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var out struct {
		Key   string `json:"key"`
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login/", nil, body, &out); err != nil {
		return "", err
	}
	if out.Key != "" {
		return out.Key, nil
	}
	return out.Token, nil
}
