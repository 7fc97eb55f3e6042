package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

func (a *App) getStatus() string {
	if a.form == nil {
		return ""
	}
	files := a.orch.Files()
	done := 0
	for _, f := range files {
		if f.Status == uploads.StatusUploaded {
			done++
		}
	}
	if len(files) == 0 {
		return fmt.Sprintf(" (%s)", a.formType)
	}
	return fmt.Sprintf(" (%s %d/%d)", a.formType, done, len(files))
}

// Root checks the server, runs the REPL and cancels leftover uploads on
// the way out.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to the intake CLI (type 'help' for commands)")
	if err := a.api.Health(ctx); err != nil {
		printlnFn("Warning: server", a.config.ServerURL, "is not reachable:", err)
	}

	runREPL(ctx, a, a.getStatus, a.reader)

	if a.orch != nil && a.orch.InFlight() > 0 {
		printlnFn("Cancelling running uploads...")
		a.stopUploads(ctx)
	}
}
