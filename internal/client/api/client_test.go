package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
	"github.com/dmitrijs2005/civilforms/internal/security"
	"github.com/dmitrijs2005/civilforms/internal/storage"
	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

const testToken = "tok-1"

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", WithHTTPClient(srv.Client()), WithRequestTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func session(c *Client) *Session {
	return &Session{ID: "sess-1", Token: testToken, c: c}
}

func TestNew(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)

	_, err = New("://bad")
	require.Error(t, err)

	c, err := New("http://localhost:8080/base/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/base/healthz", c.url("/healthz", nil))
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	c := newTestClient(t, mux)
	require.NoError(t, c.Health(context.Background()))
}

func TestRequestsCarryClientUserAgent(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	record := func(r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, storage.UploadResult{Path: "3d-request/a.pdf"})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Health(context.Background()))
	_, err := session(c).UploadFile(context.Background(), storage.UploadRequest{
		Body: strings.NewReader("data"), Filename: "a.pdf", Size: 4, FormType: "3d-request",
	}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 2)
	for _, ua := range agents {
		assert.Equal(t, "civilforms-cli/dev", ua)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	err = c.Health(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewSession(t *testing.T) {
	exp := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"session_id": "s-9", "token": "t-9", "expires_at": exp})
	})
	c := newTestClient(t, mux)

	s, err := c.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-9", s.ID)
	assert.Equal(t, "t-9", s.Token)
	assert.True(t, exp.Equal(s.ExpiresAt))
}

type progressLog struct {
	mu   sync.Mutex
	seen []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	p.seen = append(p.seen, v)
	p.mu.Unlock()
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seen...)
}

func TestUploadFile_StreamsMultipart(t *testing.T) {
	payload := strings.Repeat("x", 256<<10)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get(common.SessionTokenHeaderName))
		f, fh, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, len(payload), len(b))
		assert.Equal(t, `survey "v2".pdf`, fh.Filename)
		assert.Equal(t, "application/pdf", fh.Header.Get("Content-Type"))
		assert.Equal(t, "plans/survey.pdf", r.FormValue("relative_path"))
		assert.Equal(t, "3d-request", r.FormValue("form_type"))
		assert.Equal(t, "Acme", r.FormValue("company"))
		assert.Equal(t, "North Lot", r.FormValue("project"))
		writeJSON(w, http.StatusOK, storage.UploadResult{ID: "f-1", Filename: fh.Filename, Path: "3d-request/Acme/North_Lot/survey.pdf", Size: int64(len(b))})
	})
	c := newTestClient(t, mux)

	var pl progressLog
	res, err := session(c).UploadFile(context.Background(), storage.UploadRequest{
		Body:         strings.NewReader(payload),
		Filename:     `survey "v2".pdf`,
		RelativePath: "plans/survey.pdf",
		Size:         int64(len(payload)),
		MimeType:     "application/pdf",
		FormType:     "3d-request",
		Company:      "Acme",
		Project:      "North Lot",
	}, pl.add)
	require.NoError(t, err)
	assert.Equal(t, "3d-request/Acme/North_Lot/survey.pdf", res.Path)

	seen := pl.values()
	require.NotEmpty(t, seen)
	assert.Equal(t, storage.ProgressStarted, seen[0])
	assert.Equal(t, storage.ProgressFinishing, seen[len(seen)-1])
	assert.Contains(t, seen, storage.ProgressCeiling)
	for _, v := range seen {
		assert.LessOrEqual(t, v, storage.ProgressFinishing)
	}
}

func TestUploadFile_ServerErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body errorBody
		want error
	}{
		{"invalid file", http.StatusBadRequest, errorBody{Error: "invalid file: .exe"}, common.ErrorValidation},
		{"timeout", http.StatusRequestTimeout, errorBody{Error: "upload timed out"}, common.ErrUploadTimeout},
		{"expired session", http.StatusUnauthorized, errorBody{Error: "token expired"}, common.ErrTokenExpired},
		{"server fault", http.StatusInternalServerError, errorBody{Error: "boom"}, common.ErrorInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				writeJSON(w, tt.code, tt.body)
			})
			c := newTestClient(t, mux)

			_, err := session(c).UploadFile(context.Background(), storage.UploadRequest{
				Body: strings.NewReader("data"), Filename: "a.pdf", Size: 4, FormType: "3d-request",
			}, nil)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUploadFile_Cancelled(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	c := newTestClient(t, mux)
	// runs before the server's Close, which waits for open handlers
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()
	_, err := session(c).UploadFile(ctx, storage.UploadRequest{
		Body: strings.NewReader("data"), Filename: "a.pdf", Size: 4, FormType: "3d-request",
	}, nil)
	require.ErrorIs(t, err, common.ErrUploadCancelled)
}

func TestDeleteFile(t *testing.T) {
	t.Run("regular delete", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			var in deleteRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			assert.Equal(t, "a/b.pdf", in.Path)
			assert.Equal(t, testToken, r.Header.Get(common.SessionTokenHeaderName))
			writeJSON(w, http.StatusOK, deleteResponse{Deleted: true})
		})
		c := newTestClient(t, mux)
		assert.True(t, session(c).DeleteFile(context.Background(), "a/b.pdf", "sess-1"))
	})

	t.Run("forbidden falls back to privileged delete", func(t *testing.T) {
		var rpcCalls int
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "permission denied"})
		})
		mux.HandleFunc("POST /api/rpc/delete_uploaded_file", func(w http.ResponseWriter, r *http.Request) {
			rpcCalls++
			writeJSON(w, http.StatusOK, deleteResponse{Deleted: true})
		})
		c := newTestClient(t, mux)
		assert.True(t, session(c).DeleteFile(context.Background(), "a/b.pdf", "sess-1"))
		assert.Equal(t, 1, rpcCalls)
	})

	t.Run("both refused", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "permission denied"})
		})
		mux.HandleFunc("POST /api/rpc/delete_uploaded_file", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "session mismatch"})
		})
		c := newTestClient(t, mux)
		assert.False(t, session(c).DeleteFile(context.Background(), "a/b.pdf", "sess-1"))
	})

	t.Run("server error is not retried", func(t *testing.T) {
		var rpcCalls int
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "boom"})
		})
		mux.HandleFunc("POST /api/rpc/delete_uploaded_file", func(w http.ResponseWriter, r *http.Request) {
			rpcCalls++
		})
		c := newTestClient(t, mux)
		assert.False(t, session(c).DeleteFile(context.Background(), "a/b.pdf", "sess-1"))
		assert.Zero(t, rpcCalls)
	})
}

func TestDeleteMultipleFiles(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/uploads/delete", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, storage.DeleteResult{Successful: 1, Failed: []string{"b"}})
		})
		c := newTestClient(t, mux)
		res := session(c).DeleteMultipleFiles(context.Background(), []string{"a", "b"}, "sess-1")
		assert.Equal(t, 1, res.Successful)
		assert.Equal(t, []string{"b"}, res.Failed)
	})

	t.Run("batch failure falls back to single deletes", func(t *testing.T) {
		var mu sync.Mutex
		var singles []string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/uploads/delete", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "boom"})
		})
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			var in deleteRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			mu.Lock()
			singles = append(singles, in.Path)
			mu.Unlock()
			if in.Path == "b" {
				writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
				return
			}
			writeJSON(w, http.StatusOK, deleteResponse{Deleted: true})
		})
		c := newTestClient(t, mux)
		res := session(c).DeleteMultipleFiles(context.Background(), []string{"a", "b", "c"}, "sess-1")
		assert.Equal(t, 2, res.Successful)
		assert.Equal(t, []string{"b"}, res.Failed)
		mu.Lock()
		assert.ElementsMatch(t, []string{"a", "b", "c"}, singles)
		mu.Unlock()
	})

	t.Run("batch and single deletes failing", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/uploads/delete", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "upstream"})
		})
		mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "upstream"})
		})
		c := newTestClient(t, mux)
		res := session(c).DeleteMultipleFiles(context.Background(), []string{"a", "b"}, "sess-1")
		assert.Zero(t, res.Successful)
		assert.Equal(t, []string{"a", "b"}, res.Failed)
	})

	t.Run("empty", func(t *testing.T) {
		c, err := New("http://127.0.0.1:1")
		require.NoError(t, err)
		res := session(c).DeleteMultipleFiles(context.Background(), nil, "sess-1")
		assert.Equal(t, storage.DeleteResult{}, res)
	})
}

func TestSubmit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/forms/{formType}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client-intake", r.PathValue("formType"))
		var body struct {
			Form     map[string]any         `json:"form"`
			Files    []uploads.UploadedFile `json:"files"`
			Honeypot string                 `json:"honeypot"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@acme.test", body.Form["email"])
		assert.Len(t, body.Files, 1)
		assert.Empty(t, body.Honeypot)
		writeJSON(w, http.StatusCreated, forms.Confirmation{ID: "sub-1", FormType: forms.ClientIntakeForm, Email: "ops@acme.test"})
	})
	c := newTestClient(t, mux)

	f, err := forms.New(forms.ClientIntakeForm)
	require.NoError(t, err)
	ci := f.(*forms.ClientIntake)
	ci.Email = "ops@acme.test"

	conf, err := c.Submit(context.Background(), Submission{
		Form:      ci,
		Files:     []uploads.UploadedFile{{ID: "f1", Status: uploads.StatusUploaded, Path: "p"}},
		StartedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", conf.ID)
}

func TestSubmit_NoForm(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), Submission{})
	require.Error(t, err)
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		header string
		body   errorBody
		check  func(t *testing.T, err error)
	}{
		{
			name: "field errors",
			code: http.StatusBadRequest,
			body: errorBody{Error: "validation error", Fields: map[string]string{"email": "is required"}},
			check: func(t *testing.T, err error) {
				var fe forms.FieldErrors
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "is required", fe["email"])
				assert.ErrorIs(t, err, common.ErrorValidation)
			},
		},
		{
			name: "security violation",
			code: http.StatusBadRequest,
			body: errorBody{Error: "invalid input"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, common.ErrSecurityViolation)
			},
		},
		{
			name:   "rate limited",
			code:   http.StatusTooManyRequests,
			header: "120",
			body:   errorBody{Error: "too many attempts", RetryAfterSeconds: 90},
			check: func(t *testing.T, err error) {
				var rl *security.RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 120, rl.Seconds())
				assert.ErrorIs(t, err, common.ErrRateLimited)
			},
		},
		{
			name: "blocked",
			code: http.StatusForbidden,
			body: errorBody{Error: "submission blocked"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, common.ErrSubmissionBlocked)
			},
		},
		{
			name: "not json",
			code: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, common.ErrorNotFound)
				assert.Contains(t, err.Error(), "Not Found")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/forms/{formType}", func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				if tt.body.Error == "" {
					w.WriteHeader(tt.code)
					_, _ = w.Write([]byte("<html>nope</html>"))
					return
				}
				writeJSON(w, tt.code, tt.body)
			})
			c := newTestClient(t, mux)

			f, _ := forms.New(forms.CareerForm)
			_, err := c.Submit(context.Background(), Submission{Form: f})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestConfirmation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/forms/{formType}/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "takeoff-quote", r.PathValue("formType"))
		assert.Equal(t, "sub-7", r.PathValue("id"))
		writeJSON(w, http.StatusOK, forms.Confirmation{ID: "sub-7", FormType: forms.TakeoffQuote})
	})
	c := newTestClient(t, mux)

	conf, err := c.Confirmation(context.Background(), forms.TakeoffQuote, "sub-7")
	require.NoError(t, err)
	assert.Equal(t, forms.TakeoffQuote, conf.FormType)
}

func TestQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pricing/quote", func(w http.ResponseWriter, r *http.Request) {
		var in pricing.Input
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.InDelta(t, 3.5, in.Acres, 0.0001)
		writeJSON(w, http.StatusOK, map[string]any{
			"base": 120000, "erosion_control": 0, "utilities": 0, "advanced_utilities": 0, "total": 120000,
			"display": map[string]string{"total": "$1,200"},
			"tier":    "small",
		})
	})
	c := newTestClient(t, mux)

	q, err := c.Quote(context.Background(), pricing.Input{ProjectType: "commercial", Acres: 3.5})
	require.NoError(t, err)
	assert.Equal(t, int64(120000), q.Total)
	assert.Equal(t, "$1,200", q.Display["total"])
	assert.Equal(t, "small", q.Tier)
}

func TestList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3d-request/Acme/", r.URL.Query().Get("prefix"))
		writeJSON(w, http.StatusOK, map[string]any{"items": []storage.ObjectInfo{{Key: "3d-request/Acme/a.pdf", Size: 3}}})
	})
	c := newTestClient(t, mux)

	items, err := c.List(context.Background(), "3d-request/Acme/")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].Size)
}

func TestSession_DrivesOrchestrator(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]bool{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "file is required"})
			return
		}
		_, _ = io.Copy(io.Discard, f)
		p := r.FormValue("form_type") + "/" + fh.Filename
		mu.Lock()
		stored[p] = true
		mu.Unlock()
		writeJSON(w, http.StatusOK, storage.UploadResult{ID: fh.Filename, Filename: fh.Filename, Path: p, URL: "https://cdn/" + p})
	})
	mux.HandleFunc("DELETE /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		var in deleteRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		mu.Lock()
		ok := stored[in.Path]
		delete(stored, in.Path)
		mu.Unlock()
		writeJSON(w, http.StatusOK, deleteResponse{Deleted: ok})
	})
	c := newTestClient(t, mux)
	s := session(c)

	o := uploads.New(s, uploads.Options{
		FormType:  "3d-request",
		Company:   "Acme",
		SessionID: s.ID,
		Confirmer: uploads.ConfirmFunc(func(context.Context, string) bool { return true }),
	})
	ctx := context.Background()
	src := uploads.Source{
		Name:     "plan.pdf",
		Size:     4,
		MimeType: "application/pdf",
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("%PDF")), nil },
	}
	res, err := o.AddFiles(ctx, []uploads.Source{src})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	o.Wait()

	f, ok := o.File(res.Added[0].ID)
	require.True(t, ok)
	require.Equal(t, uploads.StatusUploaded, f.Status, f.Error)
	assert.Equal(t, "3d-request/plan.pdf", f.Path)

	rm, err := o.RemoveFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rm.Removed)
	assert.Empty(t, rm.Warning)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, stored)
}
