// Package uploadedfiles keeps the registry of objects written through the
// upload API, keyed by storage path.
package uploadedfiles

import (
	"context"

	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

type Repository interface {
	// Record registers or replaces the entry for r.Path.
	Record(ctx context.Context, r models.UploadRecord) error
	Get(ctx context.Context, path string) (models.UploadRecord, error)
	// Delete removes the entry only when it belongs to sessionID and
	// reports whether a row was removed.
	Delete(ctx context.Context, path, sessionID string) (bool, error)
}
