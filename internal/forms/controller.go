package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/security"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

// Store persists submitted rows. Rows are never updated or deleted.
type Store interface {
	Insert(ctx context.Context, table string, s models.Submission) error
	Get(ctx context.Context, table, id string) (models.Submission, error)
}

// Publisher announces accepted submissions to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, s models.Submission) error
}

// EventLogger records security events. *security.SecurityLogger
// implements it.
type EventLogger interface {
	Log(ctx context.Context, e security.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Submission) error { return nil }

// Deps are the Controller's collaborators. Store, Limiter and Monitor are
// required.
type Deps struct {
	Store     Store
	Limiter   security.Limiter
	Monitor   *security.Monitor
	Events    EventLogger
	Publisher Publisher
	Logger    logging.Logger
}

// Controller runs form submissions.
type Controller struct {
	store     Store
	limiter   security.Limiter
	monitor   *security.Monitor
	events    EventLogger
	publisher Publisher
	log       logging.Logger
	now       func() time.Time
}

type nopEvents struct{}

func (nopEvents) Log(context.Context, security.Event) {}

func NewController(d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Events == nil {
		d.Events = nopEvents{}
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	return &Controller{
		store:     d.Store,
		limiter:   d.Limiter,
		monitor:   d.Monitor,
		events:    d.Events,
		publisher: d.Publisher,
		log:       d.Logger.With("module", "forms"),
		now:       time.Now,
	}
}

// Request is one submit attempt.
type Request struct {
	Form Form
	// Files is the attachment list as the upload orchestrator left it.
	// Only uploaded files make it into the row.
	Files []uploads.UploadedFile

	Honeypot  string
	StartedAt time.Time
	UserAgent string
	URL       string
}

// Confirmation is the read-back of a stored row.
type Confirmation struct {
	ID          string              `json:"id"`
	FormType    FormType            `json:"form_type"`
	Email       string              `json:"email"`
	Company     string              `json:"company"`
	Fields      json.RawMessage     `json:"fields"`
	Attachments []models.Attachment `json:"file_attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func confirmationOf(s models.Submission) Confirmation {
	return Confirmation{
		ID:          s.ID,
		FormType:    FormType(s.FormType),
		Email:       s.Email,
		Company:     s.Company,
		Fields:      s.Fields,
		Attachments: s.Attachments,
		CreatedAt:   s.CreatedAt,
	}
}

// Submit validates, gates and stores one submission. The steps run in
// order and the first failure ends the attempt without writing anything:
//
//  1. structural validation, returned as FieldErrors
//  2. injection patterns, returned as common.ErrSecurityViolation
//  3. the rate limit keyed by email, returned as *security.RateLimitError
//  4. the pattern monitor's block decision, common.ErrSubmissionBlocked
//
// Then every string field is sanitized, the manifest is built from the
// uploaded files and the row is inserted.
func (c *Controller) Submit(ctx context.Context, req Request) (Confirmation, error) {
	f := req.Form
	if f == nil {
		return Confirmation{}, fmt.Errorf("%w: empty form", common.ErrorValidation)
	}
	ft := f.Type()
	table, ok := Table(ft)
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: unknown form type %q", common.ErrorNotFound, ft)
	}
	ev := func(typ string, suspicious bool, data map[string]any) {
		data["form_type"] = string(ft)
		c.events.Log(ctx, security.Event{Type: typ, Data: data, Suspicious: suspicious, UserAgent: req.UserAgent, URL: req.URL})
	}

	if n, ok := f.(normalizer); ok {
		n.Normalize()
	}
	manifest := uploads.BuildManifest(req.Files)

	errs := Structural(f)
	if errs == nil {
		errs = FieldErrors{}
	}
	if ch, ok := f.(checker); ok {
		errs.merge(ch.Check(manifest))
	}
	if len(errs) > 0 {
		ev(models.EventValidationFailed, false, map[string]any{"fields": sortedKeys(errs)})
		return Confirmation{}, errs
	}

	fields := TextValues(f)
	if threats := security.ScanFields(fields); len(threats) > 0 {
		names := make([]string, len(threats))
		reasons := make([]string, len(threats))
		for i, t := range threats {
			names[i], reasons[i] = t.Field, t.Reason
		}
		ev(models.EventSecurityViolation, true, map[string]any{"fields": names, "patterns": reasons, "email": f.SubmitterEmail()})
		c.log.Warn(ctx, "submission rejected by security validation", "form_type", ft, "fields", names)
		return Confirmation{}, common.ErrSecurityViolation
	}

	key := security.NormalizeKey(f.SubmitterEmail())
	if err := security.Check(ctx, c.limiter, key); err != nil {
		var rl *security.RateLimitError
		if errors.As(err, &rl) {
			ev(models.EventRateLimited, false, map[string]any{"email": key, "retry_after_seconds": rl.Seconds()})
		}
		return Confirmation{}, err
	}

	now := c.now().UTC()
	names := make([]string, len(req.Files))
	for i, file := range req.Files {
		names[i] = file.Filename
	}
	verdict := c.monitor.Assess(ctx, security.Submission{
		Key:            key,
		Fields:         fields,
		OptionalFields: OptionalKeys(f),
		Honeypot:       req.Honeypot,
		StartedAt:      req.StartedAt,
		SubmittedAt:    now,
		Filenames:      names,
		UserAgent:      req.UserAgent,
	})
	if verdict.Block {
		ev(models.EventBlocked, true, map[string]any{"email": key, "score": verdict.Score, "reasons": verdict.Reasons})
		return Confirmation{}, common.ErrSubmissionBlocked
	}
	if verdict.Suspicious {
		ev(models.EventSuspicious, true, map[string]any{"email": key, "score": verdict.Score, "reasons": verdict.Reasons})
	}

	Sanitize(f)
	body, err := json.Marshal(f)
	if err != nil {
		return Confirmation{}, fmt.Errorf("encode %s: %w", ft, err)
	}
	rec := models.Submission{
		ID:          uuid.NewString(),
		FormType:    string(ft),
		Email:       f.SubmitterEmail(),
		Company:     f.CompanyName(),
		Fields:      body,
		Attachments: manifest,
		CreatedAt:   now,
	}
	if err := c.store.Insert(ctx, table, rec); err != nil {
		c.log.Error(ctx, "submission insert failed", "form_type", ft, "error", err)
		return Confirmation{}, fmt.Errorf("save %s: %w", ft, err)
	}

	ev(models.EventSubmitted, verdict.Suspicious, map[string]any{"id": rec.ID, "email": rec.Email, "attachments": len(manifest)})
	c.log.Info(ctx, "submission stored", "form_type", ft, "id", rec.ID, "attachments", len(manifest))

	if err := c.publisher.Publish(ctx, rec); err != nil {
		c.log.Warn(ctx, "submission event not published", "id", rec.ID, "error", err)
	}
	return confirmationOf(rec), nil
}

// Confirmation reads a stored row back for the confirmation page.
func (c *Controller) Confirmation(ctx context.Context, ft FormType, id string) (Confirmation, error) {
	table, ok := Table(ft)
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: unknown form type %q", common.ErrorNotFound, ft)
	}
	if _, err := uuid.Parse(id); err != nil {
		return Confirmation{}, fmt.Errorf("%w: submission %s", common.ErrorNotFound, id)
	}
	s, err := c.store.Get(ctx, table, id)
	if err != nil {
		return Confirmation{}, err
	}
	s.FormType = string(ft)
	return confirmationOf(s), nil
}

func sortedKeys(m FieldErrors) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
