package uploads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// DefaultMaxFiles caps the attachments of one form.
const DefaultMaxFiles = 50

// Options configures an Orchestrator.
type Options struct {
	FormType string
	Company  string
	Project  string

	MaxFiles    int
	MaxFileSize int64
	// UploadTimeout bounds one upload attempt. Zero disables it.
	UploadTimeout time.Duration

	// SessionID is generated when empty.
	SessionID string
	Confirmer Confirmer
	// OnChange receives the full file list after every state change. It is
	// called synchronously, outside the orchestrator's lock, and calls are
	// never concurrent.
	OnChange func([]UploadedFile)
	Logger   logging.Logger
}

// attempt is the in-flight bookkeeping of one upload.
type attempt struct {
	gen    uint64
	cancel context.CancelFunc
	path   string
}

// Orchestrator owns the attachments of one form instance.
type Orchestrator struct {
	uploader Uploader
	opts     Options
	log      logging.Logger

	sessionID     string
	projectFolder string

	mu       sync.Mutex
	files    []UploadedFile
	sources  map[string]Source
	inflight map[string]*attempt
	gen      uint64

	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

func New(uploader Uploader, opts Options) *Orchestrator {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = storage.DefaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	sid := opts.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	return &Orchestrator{
		uploader:      uploader,
		opts:          opts,
		log:           opts.Logger.With("module", "uploads", "session", sid),
		sessionID:     sid,
		projectFolder: storage.NewProjectFolder(),
		sources:       make(map[string]Source),
		inflight:      make(map[string]*attempt),
	}
}

// SessionID identifies this form instance for later deletes.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// SetDestination changes the company and project used for uploads started
// from now on.
func (o *Orchestrator) SetDestination(company, project string) {
	o.mu.Lock()
	o.opts.Company = company
	o.opts.Project = project
	o.mu.Unlock()
}

// project returns the configured project or this session's random folder
// when the project name sanitizes to nothing. Callers hold o.mu.
func (o *Orchestrator) project() string {
	if storage.SanitizeSegment(o.opts.Project, 0) == "" {
		return o.projectFolder
	}
	return o.opts.Project
}

// Prefix is the storage folder uploads of this instance land in.
func (o *Orchestrator) Prefix() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return storage.ProjectPrefix(o.opts.FormType, o.opts.Company, o.project())
}

// Files returns a copy of the current list.
func (o *Orchestrator) Files() []UploadedFile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.files)
}

// File returns one entry by id.
func (o *Orchestrator) File(id string) (UploadedFile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := o.indexOf(id); i >= 0 {
		return o.files[i], true
	}
	return UploadedFile{}, false
}

// Tree is the folder view of Files.
func (o *Orchestrator) Tree() *FolderNode {
	return BuildTree(o.Files())
}

// InFlight reports how many uploads are running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Wait blocks until no upload is running.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) indexOf(id string) int {
	return slices.IndexFunc(o.files, func(f UploadedFile) bool { return f.ID == id })
}

func (o *Orchestrator) notify() {
	if o.opts.OnChange == nil {
		return
	}
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.opts.OnChange(o.Files())
}

// add runs intake steps 1 to 3 for sources that already carry their
// relative paths.
func (o *Orchestrator) add(ctx context.Context, srcs []Source) (AddResult, error) {
	var res AddResult
	if len(srcs) == 0 {
		return res, nil
	}

	o.mu.Lock()
	if n := len(o.files) + len(srcs); n > o.opts.MaxFiles {
		o.mu.Unlock()
		return res, fmt.Errorf("%w: %d files selected, at most %d allowed", common.ErrTooManyFiles, n, o.opts.MaxFiles)
	}
	o.mu.Unlock()

	valid := make([]Source, 0, len(srcs))
	for _, s := range srcs {
		v := storage.ValidateFile(storage.FileInfo{Name: s.Name, Size: s.Size, MimeType: s.MimeType}, o.opts.MaxFileSize)
		switch {
		case !v.IsValid:
			res.Rejected = append(res.Rejected, Rejection{Name: s.RelativePath, Reason: v.Error})
			continue
		case s.Open == nil:
			res.Rejected = append(res.Rejected, Rejection{Name: s.RelativePath, Reason: "file cannot be read"})
			continue
		case v.Warning != "":
			o.log.Info(ctx, "accepted file with unexpected MIME type", "file", s.RelativePath, "warning", v.Warning)
		}
		valid = append(valid, s)
	}
	for _, r := range res.Rejected {
		o.log.Warn(ctx, "file rejected", "file", r.Name, "reason", r.Reason)
	}
	if len(valid) == 0 {
		return res, nil
	}

	o.mu.Lock()
	// concurrent adds may have filled the list since the first check
	if n := len(o.files) + len(valid); n > o.opts.MaxFiles {
		o.mu.Unlock()
		return AddResult{}, fmt.Errorf("%w: %d files selected, at most %d allowed", common.ErrTooManyFiles, n, o.opts.MaxFiles)
	}
	ids := make([]string, 0, len(valid))
	for _, s := range valid {
		f := UploadedFile{
			ID:           uuid.NewString(),
			Filename:     s.Name,
			RelativePath: s.RelativePath,
			Size:         s.Size,
			MimeType:     s.MimeType,
			Status:       StatusPending,
			SessionID:    o.sessionID,
		}
		o.files = append(o.files, f)
		o.sources[f.ID] = s
		ids = append(ids, f.ID)
	}
	o.mu.Unlock()
	o.notify()

	for _, id := range ids {
		f, err := o.start(ctx, id, StatusPending)
		if err != nil {
			// removed by a concurrent call before its upload began
			continue
		}
		res.Added = append(res.Added, f)
	}
	return res, nil
}

// start moves a file from the given state to Uploading and launches its
// upload. The state check and the transition happen under one lock so two
// callers cannot start the same file twice.
func (o *Orchestrator) start(ctx context.Context, id string, from Status) (UploadedFile, error) {
	o.mu.Lock()
	i := o.indexOf(id)
	if i < 0 {
		o.mu.Unlock()
		return UploadedFile{}, fmt.Errorf("%w: file %s", common.ErrorNotFound, id)
	}
	src, held := o.sources[id]
	if st := o.files[i].Status; st != from || !held {
		o.mu.Unlock()
		return UploadedFile{}, fmt.Errorf("%w: file is %s", common.ErrNotRetryable, st)
	}

	var attemptCtx context.Context
	var cancel context.CancelFunc
	if o.opts.UploadTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.opts.UploadTimeout)
	} else {
		attemptCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}

	o.gen++
	a := &attempt{
		gen:    o.gen,
		cancel: cancel,
		path:   storage.GenerateFilePath(o.opts.FormType, o.opts.Company, o.project(), src.Name, src.RelativePath),
	}
	o.inflight[id] = a

	f := &o.files[i]
	f.Status = StatusUploading
	f.Progress = 0
	f.Error = ""
	f.Path, f.URL = "", ""
	snapshot := *f

	req := storage.UploadRequest{
		Filename:     src.Name,
		RelativePath: src.RelativePath,
		Size:         src.Size,
		MimeType:     src.MimeType,
		FormType:     o.opts.FormType,
		Company:      o.opts.Company,
		Project:      o.project(),
	}
	o.wg.Add(1)
	o.mu.Unlock()
	o.notify()

	go o.run(attemptCtx, id, a.gen, src, req)
	return snapshot, nil
}

func (o *Orchestrator) run(ctx context.Context, id string, gen uint64, src Source, req storage.UploadRequest) {
	defer o.wg.Done()

	body, err := src.Open()
	if err != nil {
		o.finish(ctx, id, gen, storage.UploadResult{}, fmt.Errorf("open %s: %w", src.Name, err))
		return
	}
	req.Body = body

	res, err := o.uploader.UploadFile(ctx, req, func(p int) { o.progress(id, gen, p) })
	_ = body.Close()
	o.finish(ctx, id, gen, res, err)
}

func (o *Orchestrator) progress(id string, gen uint64, p int) {
	o.mu.Lock()
	a, ok := o.inflight[id]
	i := o.indexOf(id)
	if !ok || a.gen != gen || i < 0 || p <= o.files[i].Progress || p >= 100 {
		o.mu.Unlock()
		return
	}
	o.files[i].Progress = p
	o.mu.Unlock()
	o.notify()
}

// finish applies the outcome of attempt gen. Outcomes of attempts that
// were cancelled, removed or superseded are ignored.
func (o *Orchestrator) finish(ctx context.Context, id string, gen uint64, res storage.UploadResult, err error) {
	o.mu.Lock()
	a, ok := o.inflight[id]
	i := o.indexOf(id)
	if !ok || a.gen != gen || i < 0 {
		o.mu.Unlock()
		return
	}
	delete(o.inflight, id)
	// read before cancel: afterwards ctx always reports Canceled
	ctxErr := ctx.Err()
	a.cancel()

	f := &o.files[i]
	switch {
	case err == nil:
		f.Status = StatusUploaded
		f.Progress = 100
		f.Path = res.Path
		f.URL = res.URL
		f.UploadedAt = res.UploadDate
		delete(o.sources, id)
	case errors.Is(err, common.ErrUploadTimeout) || errors.Is(ctxErr, context.DeadlineExceeded):
		f.Status = StatusFailed
		f.Error = "upload timed out"
		if o.opts.UploadTimeout > 0 {
			f.Error = fmt.Sprintf("upload timed out after %s", o.opts.UploadTimeout)
		}
	case errors.Is(err, common.ErrUploadCancelled) || errors.Is(ctxErr, context.Canceled):
		f.Status = StatusCancelled
		delete(o.sources, id)
	default:
		f.Status = StatusFailed
		f.Error = err.Error()
	}
	snapshot := *f
	o.mu.Unlock()

	switch snapshot.Status {
	case StatusUploaded:
		o.log.Info(ctx, "upload finished", "file_id", id, "path", snapshot.Path)
	case StatusFailed:
		o.log.Warn(ctx, "upload failed", "file_id", id, "file", snapshot.RelativePath, "error", snapshot.Error)
	default:
		o.log.Info(ctx, "upload cancelled", "file_id", id)
	}
	o.notify()
}

// Cancel aborts an in-flight upload. The file stays in the list as
// Cancelled and any partial object is deleted on a best-effort basis.
// Cancelling an already cancelled file is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	i := o.indexOf(id)
	if i < 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: file %s", common.ErrorNotFound, id)
	}
	f := &o.files[i]
	switch f.Status {
	case StatusCancelled:
		o.mu.Unlock()
		return nil
	case StatusUploading:
	default:
		st := f.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: file is %s", common.ErrorValidation, st)
	}

	a := o.inflight[id]
	delete(o.inflight, id)
	delete(o.sources, id)
	f.Status = StatusCancelled
	o.mu.Unlock()

	o.abort(ctx, a)
	o.notify()
	return nil
}

// abort cancels an attempt and removes whatever it may have written.
func (o *Orchestrator) abort(ctx context.Context, a *attempt) {
	if a == nil {
		return
	}
	a.cancel()
	if a.path != "" && !o.uploader.DeleteFile(ctx, a.path, o.sessionID) {
		o.log.Debug(ctx, "partial object cleanup skipped", "path", a.path)
	}
}

// RemoveFile drops a file from the list. An in-flight upload is aborted
// first. An uploaded file is deleted from storage after confirmation; if
// that delete fails the file is still removed and a warning is returned.
// Files that never reached storage are removed without a backend call.
// Unknown ids are ignored.
func (o *Orchestrator) RemoveFile(ctx context.Context, id string) (RemoveResult, error) {
	o.mu.Lock()
	i := o.indexOf(id)
	if i < 0 {
		o.mu.Unlock()
		return RemoveResult{}, nil
	}
	f := o.files[i]

	switch f.Status {
	case StatusUploading:
		a := o.inflight[id]
		o.dropLocked(id)
		o.mu.Unlock()
		o.abort(ctx, a)
		o.notify()
		return RemoveResult{Removed: 1}, nil

	case StatusUploaded:
		o.mu.Unlock()
		if !o.confirm(ctx, fmt.Sprintf("Delete %s from storage?", f.RelativePath)) {
			return RemoveResult{}, common.ErrConfirmationRequired
		}
		ok := o.uploader.DeleteFile(ctx, f.Path, f.SessionID)

		o.mu.Lock()
		o.dropLocked(id)
		o.mu.Unlock()
		o.notify()

		if !ok {
			o.log.Warn(ctx, "stored object may need cleanup", "path", f.Path)
			return RemoveResult{Removed: 1, Warning: fmt.Sprintf("%s was removed from the form but may still be in storage", f.RelativePath)}, nil
		}
		return RemoveResult{Removed: 1}, nil

	default:
		o.dropLocked(id)
		o.mu.Unlock()
		o.notify()
		return RemoveResult{Removed: 1}, nil
	}
}

// dropLocked forgets every trace of id. Callers hold o.mu.
func (o *Orchestrator) dropLocked(id string) {
	if i := o.indexOf(id); i >= 0 {
		o.files = slices.Delete(o.files, i, i+1)
	}
	delete(o.sources, id)
	delete(o.inflight, id)
}

func (o *Orchestrator) confirm(ctx context.Context, prompt string) bool {
	if o.opts.Confirmer == nil {
		return false
	}
	return o.opts.Confirmer.Confirm(ctx, prompt)
}

// InFolder reports whether relPath lies under folder.
func InFolder(relPath, folder string) bool {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return true
	}
	return relPath == folder || strings.HasPrefix(relPath, folder+"/")
}

// DeleteFolder removes every file under folder in one state update. If any
// of them is uploaded the user is asked first and their objects are
// deleted in one batch. Failed storage paths are listed in the warning.
func (o *Orchestrator) DeleteFolder(ctx context.Context, folder string) (RemoveResult, error) {
	o.mu.Lock()
	var ids, uploaded []string
	for _, f := range o.files {
		if !InFolder(f.RelativePath, folder) {
			continue
		}
		ids = append(ids, f.ID)
		if f.Status == StatusUploaded {
			uploaded = append(uploaded, f.Path)
		}
	}
	o.mu.Unlock()

	if len(ids) == 0 {
		return RemoveResult{}, fmt.Errorf("%w: folder %s", common.ErrorNotFound, folder)
	}
	if len(uploaded) > 0 && !o.confirm(ctx, fmt.Sprintf("Delete %d uploaded file(s) in %s from storage?", len(uploaded), folder)) {
		return RemoveResult{}, common.ErrConfirmationRequired
	}

	var del storage.DeleteResult
	if len(uploaded) > 0 {
		del = o.uploader.DeleteMultipleFiles(ctx, uploaded, o.sessionID)
	}

	o.mu.Lock()
	var aborted []*attempt
	var late []string
	asked := make(map[string]struct{}, len(uploaded))
	for _, p := range uploaded {
		asked[p] = struct{}{}
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
		if a, ok := o.inflight[id]; ok {
			aborted = append(aborted, a)
		}
		delete(o.sources, id)
		delete(o.inflight, id)
	}
	// uploads that finished while the batch delete ran
	for _, f := range o.files {
		if _, ok := drop[f.ID]; !ok || f.Status != StatusUploaded {
			continue
		}
		if _, ok := asked[f.Path]; !ok {
			late = append(late, f.Path)
		}
	}
	before := len(o.files)
	o.files = slices.DeleteFunc(o.files, func(f UploadedFile) bool {
		_, ok := drop[f.ID]
		return ok
	})
	removed := before - len(o.files)
	o.mu.Unlock()

	for _, a := range aborted {
		o.abort(ctx, a)
	}
	if len(late) > 0 {
		more := o.uploader.DeleteMultipleFiles(ctx, late, o.sessionID)
		del.Successful += more.Successful
		del.Failed = append(del.Failed, more.Failed...)
	}
	o.notify()

	res := RemoveResult{Removed: removed}
	if len(del.Failed) > 0 {
		o.log.Warn(ctx, "stored objects may need cleanup", "paths", del.Failed)
		res.Warning = fmt.Sprintf("%d file(s) may still be in storage: %s", len(del.Failed), strings.Join(del.Failed, ", "))
	}
	return res, nil
}

// RetryUpload restarts a Failed file from its held source. Any other state,
// including a retry that is already running, yields common.ErrNotRetryable.
func (o *Orchestrator) RetryUpload(ctx context.Context, id string) error {
	if _, err := o.start(ctx, id, StatusFailed); err != nil {
		return err
	}
	o.log.Info(ctx, "upload retried", "file_id", id)
	return nil
}
