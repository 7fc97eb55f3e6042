// Package httpapi exposes the intake backend over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/security"
	"github.com/dmitrijs2005/civilforms/internal/storage"
)

// UploadAPI is the server side of the upload flow.
// *services.UploadService implements it.
type UploadAPI interface {
	Upload(ctx context.Context, sessionID string, req storage.UploadRequest) (storage.UploadResult, error)
	Delete(ctx context.Context, path, sessionID string) bool
	DeleteMany(ctx context.Context, paths []string, sessionID string) storage.DeleteResult
	DeleteUploadedFile(ctx context.Context, path, sessionID string) (bool, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// FormAPI runs submissions. *forms.Controller implements it.
type FormAPI interface {
	Submit(ctx context.Context, req forms.Request) (forms.Confirmation, error)
	Confirmation(ctx context.Context, ft forms.FormType, id string) (forms.Confirmation, error)
}

type Deps struct {
	Uploads       UploadAPI
	Forms         FormAPI
	SecretKey     []byte
	SessionTTL    time.Duration
	MaxUploadSize int64
	Logger        logging.Logger
}

type Handler struct {
	uploads    UploadAPI
	forms      FormAPI
	secret     []byte
	sessionTTL time.Duration
	maxUpload  int64
	log        logging.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.MaxUploadSize <= 0 {
		d.MaxUploadSize = storage.DefaultMaxFileSize
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 24 * time.Hour
	}
	return &Handler{
		uploads:    d.Uploads,
		forms:      d.Forms,
		secret:     d.SecretKey,
		sessionTTL: d.SessionTTL,
		maxUpload:  d.MaxUploadSize,
		log:        d.Logger.With("module", "http"),
	}
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error             string            `json:"error"`
	Fields            map[string]string `json:"fields,omitempty"`
	RetryAfterSeconds int               `json:"retry_after_seconds,omitempty"`
}

// writeError maps err onto a status code. Security violations never echo
// details back to the caller.
func (h *Handler) writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var fe forms.FieldErrors
	var rl *security.RateLimitError

	switch {
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, errorBody{Error: common.ErrorValidation.Error(), Fields: fe})
	case errors.Is(err, common.ErrSecurityViolation):
		c.JSON(http.StatusBadRequest, errorBody{Error: common.ErrSecurityViolation.Error()})
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(rl.Seconds()))
		c.JSON(http.StatusTooManyRequests, errorBody{Error: rl.Error(), RetryAfterSeconds: rl.Seconds()})
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrSubmissionBlocked),
		errors.Is(err, common.ErrPermissionDenied),
		errors.Is(err, common.ErrSessionMismatch):
		c.JSON(http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrInvalidFile),
		errors.Is(err, common.ErrTooManyFiles):
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrUploadTimeout):
		c.JSON(http.StatusRequestTimeout, errorBody{Error: err.Error()})
	default:
		h.log.Error(ctx, "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
