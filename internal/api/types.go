package api

import "time"

// Case represents an anonymized teaching case as served by the remote store.
// Cases are immutable for the lifetime of a review session.
type Case struct {
	ID                  int       `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Modality            string    `json:"modality"`
	ModalityDisplay     string    `json:"modality_display"`
	Subspecialty        string    `json:"subspecialty"`
	SubspecialtyDisplay string    `json:"subspecialty_display"`
	Difficulty          string    `json:"difficulty"`
	DifficultyDisplay   string    `json:"difficulty_display"`
	ImageStorageRef     string    `json:"image_storage_ref"`
	TeachingPoints      string    `json:"teaching_points"`
	CreationDate        time.Time `json:"creation_date"`
	LastModified        time.Time `json:"last_modified"`
}

// HasImaging reports whether the case advertises imaging data. A direct
// storage ref short-circuits series fetching (single-image mode).
func (c Case) HasImaging() bool {
	return c.ImageStorageRef != ""
}

// Series is one imaging acquisition grouped under a case. The server-defined
// ordering of its images is clinical instance order and must be preserved.
type Series struct {
	ID                int    `json:"id"`
	SeriesInstanceUID string `json:"series_instance_uid"`
	SeriesNumber      int    `json:"series_number"`
	Description       string `json:"description"`
	Modality          string `json:"modality"`
	ImageCount        int    `json:"image_count"`
}

// ImageMetadata carries the per-image display hints extracted server-side.
type ImageMetadata struct {
	Modality     string     `json:"modality,omitempty"`
	WindowCenter *float64   `json:"window_center,omitempty"`
	WindowWidth  *float64   `json:"window_width,omitempty"`
	PixelSpacing []float64  `json:"pixel_spacing,omitempty"`
	Dimensions   *Dimensions `json:"dimensions,omitempty"`
}

// Dimensions are the stored pixel matrix dimensions of an image.
type Dimensions struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// ImageRef is an opaque locator for one image instance, resolvable by the
// rendering engine. SOPInstanceUID is an identity tag for list-key stability.
type ImageRef struct {
	ID             int           `json:"id"`
	SOPInstanceUID string        `json:"sop_instance_uid"`
	InstanceNumber int           `json:"instance_number"`
	FileURL        string        `json:"file_url"`
	ThumbnailPath  string        `json:"thumbnail_path,omitempty"`
	Metadata       ImageMetadata `json:"metadata"`
}

// Report lifecycle statuses. Content is mutable only while the report is a
// draft; once submitted the record is frozen client-side.
const (
	StatusDraft         = "draft"
	StatusSubmitted     = "submitted"
	StatusFeedbackReady = "feedback_ready"
)

// Languages the report editor accepts, default first.
var Languages = []string{"en", "es", "fr", "de"}

// ValidLanguage reports whether code is one of the supported language codes.
func ValidLanguage(code string) bool {
	for _, l := range Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Report is a trainee's diagnostic report for one case. ID is empty until the
// draft has been persisted once. At most one report exists per (user, case).
type Report struct {
	ID             string     `json:"id,omitempty"`
	CaseID         int        `json:"case_id"`
	CaseTitle      string     `json:"case_title,omitempty"`
	Content        string     `json:"content"`
	Language       string     `json:"language"`
	Status         string     `json:"status"`
	CreationDate   time.Time  `json:"creation_date,omitempty"`
	LastModified   time.Time  `json:"last_modified,omitempty"`
	SubmissionDate *time.Time `json:"submission_date,omitempty"`
	Feedback       *Feedback  `json:"feedback,omitempty"`

	// Case is the nested read-only case object the server includes on reads.
	Case *Case `json:"case,omitempty"`
}

// Feedback is the asynchronously generated critique of a submitted report.
// The client never constructs one; it only reads it and may flag it once.
type Feedback struct {
	ID            int       `json:"id"`
	Content       string    `json:"content"`
	GeneratedDate time.Time `json:"generated_date"`
	Flagged       bool      `json:"flagged"`
}

// UploadStats summarizes one upload_dicom call.
type UploadStats struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	SkippedFiles   int `json:"skipped_files"`
	ErrorFiles     int `json:"error_files"`
	SeriesCreated  int `json:"series_created"`
	ImagesCreated  int `json:"images_created"`
}
