// Package uploads tracks the attachments of one form instance: it takes
// files from a picker, a folder picker or a drop, uploads each of them
// concurrently, and keeps per-file status, progress, cancellation, retry
// and removal bookkeeping along with a derived folder tree.
package uploads

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// Status is the lifecycle state of one file.
//
//	Pending -> Uploading -> Uploaded | Failed | Cancelled
//	Failed  -> Uploading (retry)
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no upload is running or scheduled for s.
func (s Status) Terminal() bool {
	return s == StatusUploaded || s == StatusFailed || s == StatusCancelled
}

// UploadedFile is the orchestrator's view of one attachment. Path and URL
// are set only once Status is StatusUploaded.
type UploadedFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	Path         string    `json:"path,omitempty"`
	URL          string    `json:"url,omitempty"`
	Error        string    `json:"error,omitempty"`
	SessionID    string    `json:"session_id"`
	UploadedAt   time.Time `json:"uploaded_at,omitzero"`
}

// Source is a local file handed to the orchestrator. It is kept after a
// failed upload so the file can be retried.
type Source struct {
	Name         string
	RelativePath string
	Size         int64
	MimeType     string
	Open         func() (io.ReadCloser, error)
}

// Uploader moves bytes to storage. storage.Gateway implements it in
// process and the HTTP API client implements it remotely.
type Uploader interface {
	UploadFile(ctx context.Context, req storage.UploadRequest, onProgress func(int)) (storage.UploadResult, error)
	DeleteFile(ctx context.Context, path, sessionID string) bool
	DeleteMultipleFiles(ctx context.Context, paths []string, sessionID string) storage.DeleteResult
}

// Confirmer asks the user before server-side data is destroyed.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Rejection is a file that did not pass validation and was not added.
type Rejection struct {
	Name   string
	Reason string
}

// AddResult describes one intake batch.
type AddResult struct {
	Added    []UploadedFile
	Rejected []Rejection
}

// RemoveResult describes a removal. Warning is set when local state was
// cleared but the stored object may still exist.
type RemoveResult struct {
	Removed int
	Warning string
}
