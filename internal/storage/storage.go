// Package storage wraps an object store for intake uploads. It validates
// files, derives the storage key for every upload, reports progress while
// an upload is in flight and turns backend failures into typed results.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the capability surface of a bucket. Implementations
// report permission failures as common.ErrPermissionDenied.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, keys []string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PublicURL(ctx context.Context, key string) (string, error)
}

// PrivilegedDeleter removes an object on behalf of an upload session when
// the regular delete is refused by policy.
type PrivilegedDeleter interface {
	DeleteUploadedFile(ctx context.Context, path, sessionID string) (bool, error)
}

// UploadRequest is one file handed to Gateway.UploadFile.
type UploadRequest struct {
	Body         io.Reader
	Filename     string
	RelativePath string
	Size         int64
	MimeType     string

	FormType string
	Company  string
	Project  string
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Path       string    `json:"path"`
	UploadDate time.Time `json:"upload_date"`
}

// DeleteResult aggregates a batch delete.
type DeleteResult struct {
	Successful int      `json:"successful"`
	Failed     []string `json:"failed"`
}
