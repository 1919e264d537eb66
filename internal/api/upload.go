package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ProgressFunc receives upload progress as a whole percentage in [0, 100].
// It is called from the uploading goroutine; implementations must be cheap.
type ProgressFunc func(percent int)

// UploadImages posts the given files to a case's upload endpoint as one
// multipart request. progress may be nil. The body is staged in memory first
// so percent reflects bytes actually written to the wire.
func (c *Client) UploadImages(ctx context.Context, caseID int, paths []string, progress ProgressFunc) (*UploadStats, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("api: no files to upload")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("api: open %s: %w", p, err)
		}
		part, err := writer.CreateFormFile("dicom_files", filepath.Base(p))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("api: form file %s: %w", p, err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, fmt.Errorf("api: read %s: %w", p, err)
		}
		f.Close()
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("api: finalize multipart body: %w", err)
	}

	total := int64(buf.Len())
	body := &progressReader{r: &buf, total: total, progress: progress}

	u := fmt.Sprintf("%s/api/cases/%d/upload_dicom/", c.baseURL, caseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("api: build upload request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classify(resp, http.MethodPost, "/upload_dicom/")
	}

	var stats UploadStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("api: decode upload response: %w", err)
	}
	if progress != nil {
		progress(100)
	}
	return &stats, nil
}

// progressReader reports whole-percent progress as the transport drains it.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	lastPct  int
	progress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.progress != nil && pr.total > 0 {
		pr.sent += int64(n)
		pct := int(pr.sent * 100 / pr.total)
		if pct > 99 {
			// 100 is reserved for the terminal success event.
			pct = 99
		}
		if pct != pr.lastPct {
			pr.lastPct = pct
			pr.progress(pct)
		}
	}
	return n, err
}

// IsDicomFile applies the default file pattern used by upload scanning.
func IsDicomFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".dcm") || strings.HasSuffix(lower, ".dicom")
}
