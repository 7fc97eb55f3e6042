package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/client/api"
	"github.com/dmitrijs2005/civilforms/internal/client/config"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
	"github.com/dmitrijs2005/civilforms/internal/storage"
	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

// backend is the part of the API client the commands use.
type backend interface {
	Health(ctx context.Context) error
	Submit(ctx context.Context, sub api.Submission) (forms.Confirmation, error)
	Confirmation(ctx context.Context, ft forms.FormType, id string) (forms.Confirmation, error)
	Quote(ctx context.Context, in pricing.Input) (api.Quote, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// sessionOpener starts an upload session and returns the uploader bound
// to it along with the session id.
type sessionOpener func(ctx context.Context) (uploads.Uploader, string, error)

type App struct {
	config *config.Config
	api    backend
	open   sessionOpener
	log    logging.Logger

	reader *bufio.Reader
	out    io.Writer
	live   bool

	formType forms.FormType
	form     forms.Form
	orch     *uploads.Orchestrator
	started  time.Time
	last     *forms.Confirmation

	// seen is only touched from OnChange, whose calls never overlap.
	seen map[string]uploads.Status
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	client, err := api.New(c.ServerURL,
		api.WithRequestTimeout(c.RequestTimeout),
		api.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context) (uploads.Uploader, string, error) {
		s, err := client.NewSession(ctx)
		if err != nil {
			return nil, "", err
		}
		return s, s.ID, nil
	}

	return &App{
		config: c,
		api:    client,
		open:   open,
		log:    log,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		live:   stdoutIsTerminal(),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) hasForm() bool {
	return a.form != nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) confirm(_ context.Context, prompt string) bool {
	return GetConfirmation(a.reader, prompt, a.out)
}

// onChange prints a notice whenever a file reaches a terminal state.
func (a *App) onChange(files []uploads.UploadedFile) {
	if !a.live {
		return
	}
	for _, f := range files {
		prev := a.seen[f.ID]
		a.seen[f.ID] = f.Status
		if prev == f.Status || !f.Status.Terminal() {
			continue
		}
		switch f.Status {
		case uploads.StatusUploaded:
			a.printf("\n  uploaded  %s\n", f.RelativePath)
		case uploads.StatusFailed:
			a.printf("\n  failed    %s: %s\n", f.RelativePath, f.Error)
		}
	}
}

// newOrchestrator opens a session and builds the file list of a new form.
func (a *App) newOrchestrator(ctx context.Context, ft forms.FormType) (*uploads.Orchestrator, error) {
	up, sid, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open upload session: %w", err)
	}
	a.seen = make(map[string]uploads.Status)
	return uploads.New(up, uploads.Options{
		FormType:      string(ft),
		MaxFiles:      a.config.MaxFiles,
		UploadTimeout: a.config.UploadTimeout,
		SessionID:     sid,
		Confirmer:     uploads.ConfirmFunc(a.confirm),
		OnChange:      a.onChange,
		Logger:        a.log,
	}), nil
}

// stopUploads cancels every running upload of the current form and waits
// for them to settle.
func (a *App) stopUploads(ctx context.Context) {
	if a.orch == nil {
		return
	}
	for _, f := range a.orch.Files() {
		if f.Status == uploads.StatusUploading {
			_ = a.orch.Cancel(ctx, f.ID)
		}
	}
	a.orch.Wait()
}
