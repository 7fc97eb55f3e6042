package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/storage"
	"github.com/google/uuid"
)

// fakeUploader resolves uploads through per-path gates. An upload with no
// gate finishes right away unless outcome says otherwise.
type fakeUploader struct {
	mu       sync.Mutex
	gates    map[string]chan error
	attempts map[string]int
	deletes  []string
	batches  [][]string
	deleteOK bool
	failed   map[string]bool
	outcome  func(rel string, attempt int) error
	delay    func() time.Duration
	onBatch  func()
	started  chan string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		gates:    map[string]chan error{},
		attempts: map[string]int{},
		failed:   map[string]bool{},
		deleteOK: true,
		started:  make(chan string, 256),
	}
}

func (f *fakeUploader) gate(rel string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan error)
	f.gates[rel] = g
	return g
}

func (f *fakeUploader) UploadFile(ctx context.Context, req storage.UploadRequest, onProgress func(int)) (storage.UploadResult, error) {
	if _, err := io.ReadAll(req.Body); err != nil {
		return storage.UploadResult{}, err
	}

	f.mu.Lock()
	f.attempts[req.RelativePath]++
	n := f.attempts[req.RelativePath]
	g := f.gates[req.RelativePath]
	outcome, delay := f.outcome, f.delay
	f.mu.Unlock()

	onProgress(storage.ProgressStarted)
	select {
	case f.started <- req.RelativePath:
	default:
	}

	ctxErr := func() error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.ErrUploadTimeout
		}
		return common.ErrUploadCancelled
	}

	if g != nil {
		select {
		case err := <-g:
			if err != nil {
				return storage.UploadResult{}, err
			}
		case <-ctx.Done():
			return storage.UploadResult{}, ctxErr()
		}
	}
	if delay != nil {
		select {
		case <-time.After(delay()):
		case <-ctx.Done():
			return storage.UploadResult{}, ctxErr()
		}
	}
	if outcome != nil {
		if err := outcome(req.RelativePath, n); err != nil {
			return storage.UploadResult{}, err
		}
	}
	onProgress(storage.ProgressFinishing)

	p := storage.GenerateFilePath(req.FormType, req.Company, req.Project, req.Filename, req.RelativePath)
	return storage.UploadResult{
		ID:         uuid.NewString(),
		Filename:   req.Filename,
		URL:        fmt.Sprintf("https://cdn.example.com/%s?v=%d", p, n),
		Size:       req.Size,
		Path:       p,
		UploadDate: time.Now().UTC(),
	}, nil
}

func (f *fakeUploader) DeleteFile(_ context.Context, path, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, path+"|"+sessionID)
	return f.deleteOK && !f.failed[path]
}

func (f *fakeUploader) DeleteMultipleFiles(_ context.Context, paths []string, _ string) storage.DeleteResult {
	f.mu.Lock()
	hook := f.onBatch
	f.onBatch = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), paths...))
	var res storage.DeleteResult
	for _, p := range paths {
		if f.failed[p] {
			res.Failed = append(res.Failed, p)
		} else {
			res.Successful++
		}
	}
	return res
}

func (f *fakeUploader) deleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeUploader) batchCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func (f *fakeUploader) waitStarted(t *testing.T, rel string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == rel {
				return
			}
		case <-timeout:
			t.Fatalf("upload of %s never started", rel)
		}
	}
}

func memSource(rel, content string) Source {
	name := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		name = rel[i+1:]
	}
	return Source{
		Name:         name,
		RelativePath: rel,
		Size:         int64(len(content)),
		MimeType:     "application/pdf",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func always(answer bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) bool { return answer })
}
