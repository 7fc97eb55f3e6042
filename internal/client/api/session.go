package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/netx"
	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// deleteFanOut bounds the per-file deletes run after a failed batch.
const deleteFanOut = 4

// Session is an upload session issued by the server. Its token authorizes
// uploads and deletes, so the sessionID arguments of the uploads.Uploader
// methods are informational only.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`

	c *Client
}

func setToken(req *http.Request, token string) {
	if token != "" {
		req.Header.Set(common.SessionTokenHeaderName, token)
	}
}

// scaleProgress maps sent bytes onto the started..ceiling range so that
// 100 is only reached once the server has answered.
func scaleProgress(sent, size int64) int {
	if size <= 0 {
		return storage.ProgressStarted
	}
	if sent > size {
		sent = size
	}
	span := int64(storage.ProgressCeiling - storage.ProgressStarted)
	return storage.ProgressStarted + int(sent*span/size)
}

func writeMultipart(mw *multipart.Writer, req storage.UploadRequest, body io.Reader) error {
	fields := [][2]string{
		{"relative_path", req.RelativePath},
		{"form_type", req.FormType},
		{"company", req.Company},
		{"project", req.Project},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	ct := req.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": req.Filename,
	}))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

func uploadContextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return common.ErrUploadCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return common.ErrUploadTimeout
	}
	return err
}

// UploadFile streams req as a multipart request. Progress follows the
// bytes actually handed to the connection.
func (s *Session) UploadFile(ctx context.Context, req storage.UploadRequest, onProgress func(int)) (storage.UploadResult, error) {
	report := func(int) {}
	if onProgress != nil {
		report = onProgress
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	body := &netx.CountingReader{
		R:      req.Body,
		OnRead: func(n int64) { report(scaleProgress(n, req.Size)) },
	}
	go func() {
		pw.CloseWithError(writeMultipart(mw, req, body))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.c.url("/api/uploads", nil), pr)
	if err != nil {
		return storage.UploadResult{}, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	s.c.setHeaders(httpReq, s.Token)

	report(storage.ProgressStarted)
	resp, err := s.c.http.Do(httpReq)
	if err != nil {
		return storage.UploadResult{}, uploadContextError(ctx, fmt.Errorf("%w: upload %s: %w", ErrUnavailable, req.Filename, err))
	}
	defer resp.Body.Close()

	if err := check(resp, http.StatusOK); err != nil {
		return storage.UploadResult{}, fmt.Errorf("upload %s: %w", req.Filename, err)
	}
	report(storage.ProgressFinishing)

	var res storage.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return storage.UploadResult{}, fmt.Errorf("decode upload response: %w", err)
	}
	s.c.log.Debug(ctx, "uploaded", "path", res.Path, "bytes", body.Count())
	return res, nil
}

type deleteRequest struct {
	Path string `json:"path"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteFile removes one object. When the server refuses the regular
// delete on policy grounds the privileged delete is tried. Failures are
// logged and reported as false.
func (s *Session) DeleteFile(ctx context.Context, path, sessionID string) bool {
	var out deleteResponse
	err := s.c.do(ctx, http.MethodDelete, "/api/uploads", nil, s.Token, deleteRequest{Path: path}, &out, http.StatusOK)
	if err == nil {
		return out.Deleted
	}
	if errors.Is(err, common.ErrPermissionDenied) {
		ok, perr := s.DeleteUploadedFile(ctx, path)
		if perr == nil {
			return ok
		}
		err = perr
	}
	s.c.log.Warn(ctx, "delete failed", "path", path, "session", sessionID, "error", err)
	return false
}

// DeleteUploadedFile calls the privileged delete for an object this
// session wrote.
func (s *Session) DeleteUploadedFile(ctx context.Context, path string) (bool, error) {
	var out deleteResponse
	err := s.c.do(ctx, http.MethodPost, "/api/rpc/delete_uploaded_file", nil, s.Token, deleteRequest{Path: path}, &out, http.StatusOK)
	if err != nil {
		return false, fmt.Errorf("privileged delete %s: %w", path, err)
	}
	return out.Deleted, nil
}

// DeleteMultipleFiles removes paths in one request. When the request itself
// fails each path is deleted on its own so one bad request does not block
// the rest.
func (s *Session) DeleteMultipleFiles(ctx context.Context, paths []string, sessionID string) storage.DeleteResult {
	if len(paths) == 0 {
		return storage.DeleteResult{}
	}
	var out storage.DeleteResult
	in := struct {
		Paths []string `json:"paths"`
	}{paths}
	err := s.c.do(ctx, http.MethodPost, "/api/uploads/delete", nil, s.Token, in, &out, http.StatusOK)
	if err == nil {
		return out
	}
	s.c.log.Warn(ctx, "batch delete failed, deleting one by one", "count", len(paths), "session", sessionID, "error", err)

	ok := make([]bool, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(deleteFanOut)
	for i, p := range paths {
		eg.Go(func() error {
			ok[i] = s.DeleteFile(egCtx, p, sessionID)
			return nil
		})
	}
	_ = eg.Wait()

	var res storage.DeleteResult
	for i, p := range paths {
		if ok[i] {
			res.Successful++
		} else {
			res.Failed = append(res.Failed, p)
		}
	}
	return res
}
