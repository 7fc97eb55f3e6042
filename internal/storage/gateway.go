package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const deleteFanOut = 4

// Gateway sequences calls to an ObjectStore for the intake flow. Storage
// failures are never returned from the delete methods; they come back as
// typed results instead.
type Gateway struct {
	store      ObjectStore
	privileged PrivilegedDeleter
	progress   ProgressSimulator
	maxSize    int64
	log        logging.Logger
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPrivilegedDeleter sets the fallback used when a delete is refused.
func WithPrivilegedDeleter(d PrivilegedDeleter) Option {
	return func(g *Gateway) { g.privileged = d }
}

// WithProgress replaces the default ticker-based progress simulation.
func WithProgress(p ProgressSimulator) Option {
	return func(g *Gateway) { g.progress = p }
}

// WithMaxFileSize sets the largest accepted upload in bytes.
func WithMaxFileSize(n int64) Option {
	return func(g *Gateway) { g.maxSize = n }
}

func NewGateway(store ObjectStore, log logging.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		progress: NewTickerProgress(200*time.Millisecond, 10),
		maxSize:  DefaultMaxFileSize,
		log:      log.With("module", "storage"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// MaxFileSize is the configured upload limit.
func (g *Gateway) MaxFileSize() int64 { return g.maxSize }

// Validate runs ValidateFile with the gateway's size limit.
func (g *Gateway) Validate(ctx context.Context, f FileInfo) ValidationResult {
	res := ValidateFile(f, g.maxSize)
	if res.IsValid && res.Warning != "" {
		g.log.Info(ctx, "accepted file with unexpected MIME type", "file", f.Name, "warning", res.Warning)
	}
	return res
}

// UploadFile validates req, writes it under its generated path and
// resolves the public URL. Progress goes to onProgress, which may be nil.
// A cancelled ctx yields common.ErrUploadCancelled and an expired deadline
// common.ErrUploadTimeout.
func (g *Gateway) UploadFile(ctx context.Context, req UploadRequest, onProgress func(int)) (UploadResult, error) {
	report := func(int) {}
	if onProgress != nil {
		report = onProgress
	}

	name := req.Filename
	if v := g.Validate(ctx, FileInfo{Name: name, Size: req.Size, MimeType: req.MimeType}); !v.IsValid {
		return UploadResult{}, fmt.Errorf("%w: %s", common.ErrInvalidFile, v.Error)
	}

	key := GenerateFilePath(req.FormType, req.Company, req.Project, name, req.RelativePath)
	report(ProgressStarted)

	simCtx, stopSim := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.progress.Simulate(simCtx, ProgressStarted, report)
	}()

	err := g.store.Upload(ctx, key, req.Body, req.Size, req.MimeType)
	stopSim()
	wg.Wait()

	if err != nil {
		if cerr := contextError(ctx); cerr != nil {
			g.log.Info(ctx, "upload interrupted", "path", key, "error", cerr)
			return UploadResult{}, cerr
		}
		g.log.Warn(ctx, "upload failed", "path", key, "error", err)
		return UploadResult{}, err
	}
	if cerr := contextError(ctx); cerr != nil {
		return UploadResult{}, cerr
	}

	report(ProgressFinishing)
	url, err := g.store.PublicURL(ctx, key)
	if err != nil {
		return UploadResult{}, fmt.Errorf("resolve public url: %w", err)
	}
	report(ProgressDone)

	g.log.Info(ctx, "file uploaded", "path", key, "size", req.Size)
	return UploadResult{
		ID:         uuid.NewString(),
		Filename:   name,
		URL:        url,
		Size:       req.Size,
		Path:       key,
		UploadDate: g.now().UTC(),
	}, nil
}

func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return common.ErrUploadCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return common.ErrUploadTimeout
	}
	return nil
}

// DeleteFile removes one object. When the store refuses on policy grounds
// the privileged deleter is asked instead. It returns false, never an
// error, when the object could not be removed.
func (g *Gateway) DeleteFile(ctx context.Context, path, sessionID string) bool {
	err := g.store.Remove(ctx, []string{path})
	if err == nil {
		return true
	}

	if errors.Is(err, common.ErrPermissionDenied) && g.privileged != nil {
		ok, perr := g.privileged.DeleteUploadedFile(ctx, path, sessionID)
		if perr != nil {
			g.log.Warn(ctx, "privileged delete failed", "path", path, "error", perr)
			return false
		}
		if !ok {
			g.log.Warn(ctx, "privileged delete refused", "path", path)
		}
		return ok
	}

	g.log.Warn(ctx, "delete failed", "path", path, "error", err)
	return false
}

// DeleteMultipleFiles tries one batch call first and falls back to
// DeleteFile per path when the batch fails.
func (g *Gateway) DeleteMultipleFiles(ctx context.Context, paths []string, sessionID string) DeleteResult {
	if len(paths) == 0 {
		return DeleteResult{}
	}

	err := g.store.Remove(ctx, paths)
	if err == nil {
		return DeleteResult{Successful: len(paths)}
	}
	g.log.Warn(ctx, "batch delete failed, deleting one by one", "count", len(paths), "error", err)

	ok := make([]bool, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(deleteFanOut)
	for i, p := range paths {
		eg.Go(func() error {
			ok[i] = g.DeleteFile(egCtx, p, sessionID)
			return nil
		})
	}
	_ = eg.Wait()

	var res DeleteResult
	for i, p := range paths {
		if ok[i] {
			res.Successful++
		} else {
			res.Failed = append(res.Failed, p)
		}
	}
	return res
}

// ListFiles returns the objects stored under prefix.
func (g *Gateway) ListFiles(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	items, err := g.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return items, nil
}

// PublicURL resolves the URL a client can fetch path from.
func (g *Gateway) PublicURL(ctx context.Context, path string) (string, error) {
	return g.store.PublicURL(ctx, path)
}
