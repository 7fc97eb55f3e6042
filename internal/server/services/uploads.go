package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/security"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// UploadService runs uploads through the storage gateway and keeps the
// registry of which upload session wrote which object.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     *storage.Gateway
	store       storage.ObjectStore
	events      EventLogger
	log         logging.Logger
	now         func() time.Time
}

// EventLogger records security events.
type EventLogger interface {
	Log(ctx context.Context, e security.Event)
}

// NewUploadService builds the service. store performs the privileged
// delete; gateway is usually configured with the service itself as its
// PrivilegedDeleter (see AttachGateway).
func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, store storage.ObjectStore, events EventLogger, log logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: rm,
		store:       store,
		events:      events,
		log:         log.With("module", "uploads"),
		now:         time.Now,
	}
}

// AttachGateway sets the gateway used for uploads and regular deletes.
func (s *UploadService) AttachGateway(g *storage.Gateway) { s.gateway = g }

// Gateway returns the attached gateway.
func (s *UploadService) Gateway() *storage.Gateway { return s.gateway }

// Upload stores one file for sessionID and records it in the registry.
// A registry failure is logged; the object itself is already stored.
func (s *UploadService) Upload(ctx context.Context, sessionID string, req storage.UploadRequest) (storage.UploadResult, error) {
	res, err := s.gateway.UploadFile(ctx, req, nil)
	if err != nil {
		if errors.Is(err, common.ErrInvalidFile) {
			s.events.Log(ctx, security.Event{
				Type: models.EventUploadRejected,
				Data: map[string]any{"filename": req.Filename, "reason": err.Error()},
			})
		}
		return storage.UploadResult{}, err
	}

	rec := models.UploadRecord{
		Path:      res.Path,
		SessionID: sessionID,
		FormType:  req.FormType,
		Size:      res.Size,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repomanager.UploadedFiles(s.db).Record(ctx, rec); err != nil {
		s.log.Error(ctx, "record upload failed", "path", res.Path, "error", err)
	}
	return res, nil
}

// Delete removes one object of sessionID through the gateway and forgets
// its registry entry. Objects written by another session are refused.
func (s *UploadService) Delete(ctx context.Context, path, sessionID string) bool {
	if !s.owned(ctx, path, sessionID) {
		return false
	}
	ok := s.gateway.DeleteFile(ctx, path, sessionID)
	if ok {
		s.forget(ctx, path, sessionID)
	}
	return ok
}

// DeleteMany is the batch variant of Delete. Paths not owned by sessionID
// are reported as failed without reaching storage.
func (s *UploadService) DeleteMany(ctx context.Context, paths []string, sessionID string) storage.DeleteResult {
	var own, refused []string
	for _, p := range paths {
		if s.owned(ctx, p, sessionID) {
			own = append(own, p)
		} else {
			refused = append(refused, p)
		}
	}

	var res storage.DeleteResult
	if len(own) > 0 {
		res = s.gateway.DeleteMultipleFiles(ctx, own, sessionID)
	}
	failed := make(map[string]struct{}, len(res.Failed))
	for _, p := range res.Failed {
		failed[p] = struct{}{}
	}
	for _, p := range own {
		if _, ok := failed[p]; !ok {
			s.forget(ctx, p, sessionID)
		}
	}
	res.Failed = append(res.Failed, refused...)
	return res
}

// owned reports whether the registry shows path was written by sessionID.
// Refusals are logged as suspicious events.
func (s *UploadService) owned(ctx context.Context, path, sessionID string) bool {
	rec, err := s.repomanager.UploadedFiles(s.db).Get(ctx, path)
	switch {
	case err == nil && rec.SessionID == sessionID:
		return true
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		s.log.Error(ctx, "upload registry lookup failed", "path", path, "error", err)
		return false
	}
	s.events.Log(ctx, security.Event{
		Type:       models.EventDeleteRefused,
		Data:       map[string]any{"path": path, "error": common.ErrSessionMismatch.Error()},
		Suspicious: true,
	})
	return false
}

func (s *UploadService) forget(ctx context.Context, path, sessionID string) {
	if _, err := s.repomanager.UploadedFiles(s.db).Delete(ctx, path, sessionID); err != nil {
		s.log.Warn(ctx, "forget upload failed", "path", path, "error", err)
	}
}

// DeleteUploadedFile is the privileged delete. It removes path only when
// the registry shows it was written by sessionID. A mismatch or an unknown
// path reports false without an error.
func (s *UploadService) DeleteUploadedFile(ctx context.Context, path, sessionID string) (bool, error) {
	files := s.repomanager.UploadedFiles(s.db)

	rec, err := files.Get(ctx, path)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "privileged delete of unknown path", "path", path)
			return false, nil
		}
		return false, err
	}
	if rec.SessionID != sessionID {
		s.events.Log(ctx, security.Event{
			Type:       models.EventPrivilegedDelete,
			Data:       map[string]any{"path": path, "error": common.ErrSessionMismatch.Error()},
			Suspicious: true,
		})
		return false, nil
	}

	if err := s.store.Remove(ctx, []string{path}); err != nil {
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
	if _, err := files.Delete(ctx, path, sessionID); err != nil {
		s.log.Warn(ctx, "forget upload failed", "path", path, "error", err)
	}
	s.events.Log(ctx, security.Event{
		Type: models.EventPrivilegedDelete,
		Data: map[string]any{"path": path},
	})
	return true, nil
}

// List returns the objects stored under prefix.
func (s *UploadService) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	return s.gateway.ListFiles(ctx, prefix)
}
