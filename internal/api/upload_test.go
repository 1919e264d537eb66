package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("DICM pixel payload for "+name), 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestUploadImagesMultipart(t *testing.T) {
	var gotNames []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/cases/7/upload_dicom/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		for _, fh := range r.MultipartForm.File["dicom_files"] {
			gotNames = append(gotNames, fh.Filename)
		}
		w.Write([]byte(`{"total_files": 2, "processed_files": 2, "series_created": 1, "images_created": 2}`))
	}))

	stats, err := c.UploadImages(context.Background(), 7, stageFiles(t, "img001.dcm", "img002.dcm"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"img001.dcm", "img002.dcm"}, gotNames)
	assert.Equal(t, 2, stats.ProcessedFiles)
	assert.Equal(t, 1, stats.SeriesCreated)
}

func TestUploadImagesProgressTerminatesAtHundred(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		w.Write([]byte(`{"total_files": 1, "processed_files": 1}`))
	}))

	var mu sync.Mutex
	var percents []int
	_, err := c.UploadImages(context.Background(), 7, stageFiles(t, "img001.dcm"), func(p int) {
		mu.Lock()
		percents = append(percents, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1], "100 only fires on server acceptance")
	for _, p := range percents[:len(percents)-1] {
		assert.LessOrEqual(t, p, 99)
	}
	// Monotone, no duplicates
	for i := 1; i < len(percents); i++ {
		assert.Greater(t, percents[i], percents[i-1])
	}
}

func TestUploadImagesEmptyList(t *testing.T) {
	c, err := NewClient("http://localhost:1", "", nil)
	require.NoError(t, err)
	_, err = c.UploadImages(context.Background(), 7, nil, nil)
	assert.Error(t, err)
}

func TestUploadImagesValidationFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "No files provided"}`))
	}))

	_, err := c.UploadImages(context.Background(), 7, stageFiles(t, "img001.dcm"), nil)
	_, ok := AsValidation(err)
	assert.True(t, ok)
}

func TestIsDicomFile(t *testing.T) {
	assert.True(t, IsDicomFile("IMG001.DCM"))
	assert.True(t, IsDicomFile("study.dicom"))
	assert.False(t, IsDicomFile("notes.txt"))
}
