package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teachrad/radcase-console/internal/api"
)

// Client is the slice of the remote store the uploader needs.
type Client interface {
	UploadImages(ctx context.Context, caseID int, paths []string, progress api.ProgressFunc) (*api.UploadStats, error)
}

// Options controls upload behavior.
type Options struct {
	Dir      string
	CaseID   int
	Watch    bool
	Patterns []string // empty falls back to the standard DICOM extensions
	Logger   *log.Logger
	Progress api.ProgressFunc
	// SettleDelay batches files that appear in quick succession (an export
	// dropping a whole study) into one request.
	SettleDelay time.Duration
}

// Totals aggregates the server-reported stats across batches.
type Totals struct {
	Batches       int
	TotalFiles    int
	Processed     int
	Skipped       int
	Errored       int
	SeriesCreated int
	ImagesCreated int
}

// FolderUploader pushes DICOM files from a directory to a case, one-shot or
// in watch mode. Files already sent in this run are remembered by path and
// size so a re-fired write event does not re-upload them.
type FolderUploader struct {
	client Client
	opts   Options

	mu     sync.Mutex
	sent   map[string]int64 // path -> size at upload time
	totals Totals
}

// NewFolderUploader constructs a folder uploader.
func NewFolderUploader(client Client, opts Options) *FolderUploader {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[upload] ", log.LstdFlags)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	return &FolderUploader{
		client: client,
		opts:   opts,
		sent:   make(map[string]int64),
	}
}

// Totals returns the stats accumulated so far.
func (fu *FolderUploader) Totals() Totals {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.totals
}

// Run executes the upload per options (one-shot or watch).
func (fu *FolderUploader) Run(ctx context.Context) error {
	if err := fu.scanOnce(ctx); err != nil {
		return err
	}

	if !fu.opts.Watch {
		t := fu.Totals()
		fu.opts.Logger.Printf("Completed one-shot upload: files=%d processed=%d skipped=%d errors=%d",
			t.TotalFiles, t.Processed, t.Skipped, t.Errored)
		return nil
	}

	return fu.watchLoop(ctx)
}

// matches applies the configured patterns, or the store client's DICOM file
// check when none were given.
func (fu *FolderUploader) matches(name string) bool {
	if len(fu.opts.Patterns) == 0 {
		return api.IsDicomFile(name)
	}
	lower := strings.ToLower(name)
	for _, pat := range fu.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		if ok, _ := filepath.Match(p, lower); ok {
			return true
		}
	}
	return false
}

func (fu *FolderUploader) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fu.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	var batch []string
	for _, e := range entries {
		if e.IsDir() || !fu.matches(e.Name()) {
			continue
		}
		batch = append(batch, filepath.Join(fu.opts.Dir, e.Name()))
	}
	if len(batch) == 0 {
		fu.opts.Logger.Printf("No matching files in %s (patterns: %s)", fu.opts.Dir, strings.Join(fu.opts.Patterns, ","))
		return nil
	}
	return fu.uploadBatch(ctx, batch)
}

// watchLoop collects create/write events and flushes a batch once the
// directory has been quiet for SettleDelay.
func (fu *FolderUploader) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fu.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	fu.opts.Logger.Printf("Watching directory: %s (patterns: %s)", fu.opts.Dir, strings.Join(fu.opts.Patterns, ","))

	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			t := fu.Totals()
			fu.opts.Logger.Printf("Watch stopping: batches=%d processed=%d errors=%d", t.Batches, t.Processed, t.Errored)
			return ctx.Err()
		case ev := <-w.Events:
			name := filepath.Base(ev.Name)
			if !fu.matches(name) {
				continue
			}
			if (ev.Op&fsnotify.Create) != 0 || (ev.Op&fsnotify.Write) != 0 {
				pending[ev.Name] = struct{}{}
				flush = time.After(fu.opts.SettleDelay)
			}
			if (ev.Op&fsnotify.Remove) != 0 || (ev.Op&fsnotify.Rename) != 0 {
				delete(pending, ev.Name)
			}
		case err := <-w.Errors:
			if err != nil {
				fu.opts.Logger.Printf("watch error: %v", err)
			}
		case <-flush:
			flush = nil
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			pending = make(map[string]struct{})
			if err := fu.uploadBatch(ctx, batch); err != nil {
				fu.opts.Logger.Printf("batch upload failed: %v", err)
			}
		}
	}
}

// uploadBatch filters already-sent files, pushes the rest in one request, and
// folds the server stats into the running totals.
func (fu *FolderUploader) uploadBatch(ctx context.Context, paths []string) error {
	fresh := paths[:0]
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			fu.opts.Logger.Printf("skipping %s: %v", p, err)
			continue
		}
		fu.mu.Lock()
		prev, seen := fu.sent[p]
		fu.mu.Unlock()
		if seen && prev == st.Size() {
			continue
		}
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return nil
	}

	fu.opts.Logger.Printf("Uploading %d file(s) to case %d", len(fresh), fu.opts.CaseID)
	stats, err := fu.client.UploadImages(ctx, fu.opts.CaseID, fresh, fu.opts.Progress)
	if err != nil {
		return err
	}

	fu.mu.Lock()
	for _, p := range fresh {
		if st, err := os.Stat(p); err == nil {
			fu.sent[p] = st.Size()
		}
	}
	fu.totals.Batches++
	fu.totals.TotalFiles += stats.TotalFiles
	fu.totals.Processed += stats.ProcessedFiles
	fu.totals.Skipped += stats.SkippedFiles
	fu.totals.Errored += stats.ErrorFiles
	fu.totals.SeriesCreated += stats.SeriesCreated
	fu.totals.ImagesCreated += stats.ImagesCreated
	fu.mu.Unlock()

	fu.opts.Logger.Printf("Server processed %d/%d file(s), %d series, %d image(s)",
		stats.ProcessedFiles, stats.TotalFiles, stats.SeriesCreated, stats.ImagesCreated)
	return nil
}
