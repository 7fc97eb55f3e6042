package storage

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
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	removed   [][]string
	uploadErr error
	removeErr func(keys []string) error
	listErr   error
	block     chan struct{}
	started   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Upload(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = b
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Remove(_ context.Context, keys []string) error {
	f.mu.Lock()
	f.removed = append(f.removed, append([]string(nil), keys...))
	f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr(keys)
	}
	f.mu.Lock()
	for _, k := range keys {
		delete(f.objects, k)
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ObjectInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStore) PublicURL(_ context.Context, key string) (string, error) {
	return JoinPublicURL("https://cdn.example.com/uploads", key), nil
}

func (f *fakeStore) removeCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.removed...)
}

type fakePrivileged struct {
	mu    sync.Mutex
	calls []string
	ok    bool
	err   error
}

func (p *fakePrivileged) DeleteUploadedFile(_ context.Context, path, sessionID string) (bool, error) {
	p.mu.Lock()
	p.calls = append(p.calls, path+"|"+sessionID)
	p.mu.Unlock()
	return p.ok, p.err
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) report(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func pdfRequest(body string) UploadRequest {
	return UploadRequest{
		Body:         strings.NewReader(body),
		Filename:     "a.pdf",
		RelativePath: "site/a.pdf",
		Size:         int64(len(body)),
		MimeType:     "application/pdf",
		FormType:     "3d-request",
		Company:      "Acme",
		Project:      "North Lot",
	}
}

func TestGateway_UploadFile_Success(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, logging.Nop{}, WithProgress(NoProgress{}))
	var prog progressLog

	res, err := g.UploadFile(context.Background(), pdfRequest("%PDF-1.7"), prog.report)
	require.NoError(t, err)

	assert.Equal(t, "3d-request/Acme/North_Lot/site/a.pdf", res.Path)
	assert.Equal(t, "https://cdn.example.com/uploads/3d-request/Acme/North_Lot/site/a.pdf", res.URL)
	assert.Equal(t, "a.pdf", res.Filename)
	assert.Equal(t, int64(8), res.Size)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.UploadDate.IsZero())
	assert.Equal(t, []int{5, 95, 100}, prog.snapshot())
	assert.Equal(t, []byte("%PDF-1.7"), store.objects[res.Path])
}

func TestGateway_UploadFile_SimulatedProgressIsMonotonic(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	g := NewGateway(store, logging.Nop{}, WithProgress(NewTickerProgress(time.Millisecond, 30)))
	var prog progressLog

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(store.block)
	}()
	_, err := g.UploadFile(context.Background(), pdfRequest("x"), prog.report)
	require.NoError(t, err)

	vals := prog.snapshot()
	require.GreaterOrEqual(t, len(vals), 3)
	assert.Equal(t, 5, vals[0])
	assert.Equal(t, []int{95, 100}, vals[len(vals)-2:])
	for i := 1; i < len(vals); i++ {
		assert.GreaterOrEqual(t, vals[i], vals[i-1])
	}
	for _, v := range vals[:len(vals)-2] {
		assert.LessOrEqual(t, v, ProgressCeiling)
	}
}

func TestGateway_UploadFile_InvalidFileSkipsStore(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, logging.Nop{}, WithProgress(NoProgress{}))

	req := pdfRequest("x")
	req.Filename = "report.pdf.exe"
	_, err := g.UploadFile(context.Background(), req, nil)
	require.ErrorIs(t, err, common.ErrInvalidFile)
	assert.Empty(t, store.objects)
}

func TestGateway_UploadFile_Cancelled(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	store.started = make(chan struct{})
	g := NewGateway(store, logging.Nop{}, WithProgress(NoProgress{}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-store.started
		cancel()
	}()

	_, err := g.UploadFile(ctx, pdfRequest("x"), nil)
	require.ErrorIs(t, err, common.ErrUploadCancelled)
}

func TestGateway_UploadFile_Timeout(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	g := NewGateway(store, logging.Nop{}, WithProgress(NoProgress{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.UploadFile(ctx, pdfRequest("x"), nil)
	require.ErrorIs(t, err, common.ErrUploadTimeout)
}

func TestGateway_UploadFile_BackendError(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("connection reset by peer")
	g := NewGateway(store, logging.Nop{}, WithProgress(NoProgress{}))

	_, err := g.UploadFile(context.Background(), pdfRequest("x"), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUploadCancelled)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestGateway_DeleteFile(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		g := NewGateway(newFakeStore(), logging.Nop{})
		assert.True(t, g.DeleteFile(ctx, "a/b/c/x.pdf", "s1"))
	})

	t.Run("generic failure returns false", func(t *testing.T) {
		store := newFakeStore()
		store.removeErr = func([]string) error { return errors.New("boom") }
		priv := &fakePrivileged{ok: true}
		g := NewGateway(store, logging.Nop{}, WithPrivilegedDeleter(priv))
		assert.False(t, g.DeleteFile(ctx, "p", "s1"))
		assert.Empty(t, priv.calls)
	})

	t.Run("permission failure uses privileged path", func(t *testing.T) {
		store := newFakeStore()
		store.removeErr = func([]string) error { return fmt.Errorf("%w: policy", common.ErrPermissionDenied) }
		priv := &fakePrivileged{ok: true}
		g := NewGateway(store, logging.Nop{}, WithPrivilegedDeleter(priv))
		assert.True(t, g.DeleteFile(ctx, "p", "s1"))
		assert.Equal(t, []string{"p|s1"}, priv.calls)
	})

	t.Run("privileged refusal", func(t *testing.T) {
		store := newFakeStore()
		store.removeErr = func([]string) error { return common.ErrPermissionDenied }
		g := NewGateway(store, logging.Nop{}, WithPrivilegedDeleter(&fakePrivileged{ok: false}))
		assert.False(t, g.DeleteFile(ctx, "p", "s1"))

		g = NewGateway(store, logging.Nop{}, WithPrivilegedDeleter(&fakePrivileged{err: errors.New("rpc down")}))
		assert.False(t, g.DeleteFile(ctx, "p", "s1"))

		g = NewGateway(store, logging.Nop{})
		assert.False(t, g.DeleteFile(ctx, "p", "s1"))
	})
}

func TestGateway_DeleteMultipleFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("batch success", func(t *testing.T) {
		store := newFakeStore()
		g := NewGateway(store, logging.Nop{})
		res := g.DeleteMultipleFiles(ctx, []string{"a", "b", "c"}, "s")
		assert.Equal(t, DeleteResult{Successful: 3}, res)
		assert.Len(t, store.removeCalls(), 1)
	})

	t.Run("fallback per file", func(t *testing.T) {
		store := newFakeStore()
		store.removeErr = func(keys []string) error {
			if len(keys) > 1 {
				return errors.New("batch rejected")
			}
			if keys[0] == "bad" {
				return errors.New("no such bucket")
			}
			return nil
		}
		g := NewGateway(store, logging.Nop{})
		res := g.DeleteMultipleFiles(ctx, []string{"a", "bad", "c"}, "s")
		assert.Equal(t, 2, res.Successful)
		assert.Equal(t, []string{"bad"}, res.Failed)
		assert.Len(t, store.removeCalls(), 4)
	})

	t.Run("empty", func(t *testing.T) {
		store := newFakeStore()
		g := NewGateway(store, logging.Nop{})
		assert.Equal(t, DeleteResult{}, g.DeleteMultipleFiles(ctx, nil, "s"))
		assert.Empty(t, store.removeCalls())
	})
}

func TestGateway_ListFiles(t *testing.T) {
	store := newFakeStore()
	store.objects["3d-request/Acme/P/a.pdf"] = []byte("abc")
	store.objects["takeoff-quote/Acme/P/b.pdf"] = []byte("x")
	g := NewGateway(store, logging.Nop{})

	items, err := g.ListFiles(context.Background(), "3d-request/")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].Size)

	store.listErr = errors.New("denied")
	_, err = g.ListFiles(context.Background(), "x/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `list "x/"`)
}

func TestGateway_ValidateUsesLimit(t *testing.T) {
	g := NewGateway(newFakeStore(), logging.Nop{}, WithMaxFileSize(10))
	assert.Equal(t, int64(10), g.MaxFileSize())
	assert.False(t, g.Validate(context.Background(), FileInfo{Name: "a.pdf", Size: 11}).IsValid)
	assert.True(t, g.Validate(context.Background(), FileInfo{Name: "a.pdf", Size: 10}).IsValid)
}
