package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/client/api"
	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
)

var errNoForm = errors.New("no form in progress, start one with: new <form-type>")

// parseFormChoice accepts a form type or a service and intent pair, e.g.
// "client-intake" or "takeoff quote".
func parseFormChoice(args []string) (forms.FormType, error) {
	switch len(args) {
	case 1:
		return forms.ParseFormType(args[0])
	case 2:
		return forms.Select(forms.Service(args[0]), forms.Intent(args[1]))
	}
	return "", fmt.Errorf("usage: new <form-type> | new <3d-model|takeoff> <quote|proceed>")
}

// New starts a fresh form. Running uploads of the previous form are
// cancelled after confirmation.
func (a *App) New(ctx context.Context, args []string) error {
	ft, err := parseFormChoice(args)
	if err != nil {
		return err
	}

	if a.orch != nil && a.orch.InFlight() > 0 {
		if !a.confirm(ctx, fmt.Sprintf("%d uploads are still running. Discard them?", a.orch.InFlight())) {
			return common.ErrConfirmationRequired
		}
		a.stopUploads(ctx)
	}

	f, err := forms.New(ft)
	if err != nil {
		return err
	}
	o, err := a.newOrchestrator(ctx, ft)
	if err != nil {
		return err
	}

	a.formType, a.form, a.orch = ft, f, o
	a.started = time.Now()
	a.last = nil
	a.printf("Started %s. Uploads go to %s\n", ft, o.Prefix())
	return nil
}

// Set assigns one field of the current form. Changing the company or
// project moves uploads started afterwards.
func (a *App) Set(ctx context.Context, args []string) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: set <field> <value>")
	}
	key, value := args[0], strings.Join(args[1:], " ")
	if err := setField(a.form, key, value); err != nil {
		return err
	}
	a.orch.SetDestination(a.form.CompanyName(), a.form.ProjectFolder())
	return nil
}

// Fields prints the current form and the keys it accepts.
func (a *App) Fields(ctx context.Context) error {
	if !a.hasForm() {
		return errNoForm
	}
	b, err := json.MarshalIndent(a.form, "", "  ")
	if err != nil {
		return err
	}
	a.printf("%s\n%s\n", a.formType, b)
	a.printf("Fields: %s\n", strings.Join(fieldKeys(a.form), ", "))
	return nil
}

// Submit sends the form with every uploaded file. It refuses while
// uploads are running.
func (a *App) Submit(ctx context.Context) error {
	if !a.hasForm() {
		return errNoForm
	}
	if n := a.orch.InFlight(); n > 0 {
		return fmt.Errorf("%d uploads are still running, wait for them or cancel them first", n)
	}

	conf, err := a.api.Submit(ctx, api.Submission{
		Form:      a.form,
		Files:     a.orch.Files(),
		StartedAt: a.started,
	})
	if err != nil {
		var fe forms.FieldErrors
		if errors.As(err, &fe) {
			a.printFieldErrors(fe)
		}
		return err
	}
	a.last = &conf
	a.printf("Submitted. Reference: %s\n", conf.ID)
	a.printConfirmation(conf)
	return nil
}

func (a *App) printFieldErrors(fe forms.FieldErrors) {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.printf("  %s: %s\n", k, fe[k])
	}
}

func (a *App) printConfirmation(c forms.Confirmation) {
	a.printf("  form:     %s\n", c.FormType)
	a.printf("  email:    %s\n", c.Email)
	if c.Company != "" {
		a.printf("  company:  %s\n", c.Company)
	}
	a.printf("  received: %s\n", c.CreatedAt.Local().Format(time.RFC1123))
	for _, att := range c.Attachments {
		a.printf("  file:     %s\n", att.Path)
	}
}

// Show prints a stored submission. Without arguments it shows the last
// one submitted from this session.
func (a *App) Show(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		if a.last == nil {
			return fmt.Errorf("usage: show [<form-type>] <id>")
		}
		a.printConfirmation(*a.last)
		return nil
	case 1:
		if a.formType == "" {
			return fmt.Errorf("usage: show <form-type> <id>")
		}
		args = []string{string(a.formType), args[0]}
	}
	ft, err := forms.ParseFormType(args[0])
	if err != nil {
		return err
	}
	conf, err := a.api.Confirmation(ctx, ft, args[1])
	if err != nil {
		return err
	}
	a.printConfirmation(conf)
	return nil
}

// parseQuoteArgs reads "<project-type> <acres> [erosion] [utilities]
// [advanced=<structures>]".
func parseQuoteArgs(args []string) (pricing.Input, error) {
	var in pricing.Input
	if len(args) < 2 {
		return in, fmt.Errorf("usage: quote <project-type> <acres> [erosion] [utilities] [advanced=<structures>]")
	}
	in.ProjectType = pricing.ProjectType(args[0])
	acres, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return in, fmt.Errorf("acres: %q is not a number", args[1])
	}
	in.Acres = acres

	for _, opt := range args[2:] {
		name, val, hasVal := strings.Cut(opt, "=")
		switch name {
		case "erosion":
			in.ErosionControl = true
		case "utilities":
			in.Utilities = true
		case "advanced":
			in.AdvancedUtilities = true
			if hasVal {
				n, err := strconv.Atoi(val)
				if err != nil {
					return in, fmt.Errorf("advanced: %q is not a whole number", val)
				}
				in.Structures = n
			}
		default:
			return in, fmt.Errorf("unknown option %q", opt)
		}
	}
	return in, nil
}

// Quote prices a project on the server.
func (a *App) Quote(ctx context.Context, args []string) error {
	in, err := parseQuoteArgs(args)
	if err != nil {
		return err
	}
	q, err := a.api.Quote(ctx, in)
	if err != nil {
		return err
	}

	label := pricing.Labels[in.ProjectType]
	if label == "" {
		label = string(in.ProjectType)
	}
	a.printf("%s, %.2f acres (%s)\n", label, in.Acres, q.Tier)
	rows := []struct {
		key   string
		title string
		cents int64
	}{
		{"base", "Base", q.Base},
		{"erosion_control", "Erosion control", q.ErosionControl},
		{"utilities", "Utilities", q.Utilities},
		{"advanced_utilities", "Advanced utilities", q.AdvancedUtilities},
	}
	for _, r := range rows {
		if r.cents == 0 && r.key != "base" {
			continue
		}
		a.printf("  %-20s %s\n", r.title, q.Display[r.key])
	}
	a.printf("  %-20s %s\n", "Total", q.Display["total"])
	return nil
}
