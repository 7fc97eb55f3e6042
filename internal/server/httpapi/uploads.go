package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civilforms/internal/server/auth"
	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// multipartOverhead leaves room for the form fields around the file part.
const multipartOverhead = 1 << 20

// CreateSession issues a new upload session.
func (h *Handler) CreateSession(c *gin.Context) {
	s, err := auth.NewSession(h.secret, h.sessionTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// Upload stores one multipart file part named "file".
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	req := storage.UploadRequest{
		Body:         f,
		Filename:     fh.Filename,
		RelativePath: c.PostForm("relative_path"),
		Size:         fh.Size,
		MimeType:     fh.Header.Get("Content-Type"),
		FormType:     c.PostForm("form_type"),
		Company:      c.PostForm("company"),
		Project:      c.PostForm("project"),
	}
	if strings.TrimSpace(req.FormType) == "" {
		h.badRequest(c, "form_type is required")
		return
	}

	res, err := h.uploads.Upload(c.Request.Context(), sessionID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type deleteBody struct {
	Path string `json:"path" binding:"required"`
}

type deleteManyBody struct {
	Paths []string `json:"paths" binding:"required"`
}

// Delete removes one object of the caller's session.
func (h *Handler) Delete(c *gin.Context) {
	var body deleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "path is required")
		return
	}
	ok := h.uploads.Delete(c.Request.Context(), body.Path, sessionID(c))
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

// DeleteMany removes several objects in one call.
func (h *Handler) DeleteMany(c *gin.Context) {
	var body deleteManyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "paths are required")
		return
	}
	res := h.uploads.DeleteMany(c.Request.Context(), body.Paths, sessionID(c))
	if res.Failed == nil {
		res.Failed = []string{}
	}
	c.JSON(http.StatusOK, res)
}

// DeleteUploadedFile is the privileged delete. It only succeeds for
// objects written by the caller's session.
func (h *Handler) DeleteUploadedFile(c *gin.Context) {
	var body deleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "path is required")
		return
	}
	ok, err := h.uploads.DeleteUploadedFile(c.Request.Context(), body.Path, sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

// List returns the objects under the prefix query parameter.
func (h *Handler) List(c *gin.Context) {
	prefix := strings.TrimSpace(c.Query("prefix"))
	if prefix == "" || strings.Contains(prefix, "..") {
		h.badRequest(c, "a folder prefix is required")
		return
	}
	items, err := h.uploads.List(c.Request.Context(), prefix)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []storage.ObjectInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
