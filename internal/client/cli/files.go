package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

// fileSource describes one local file for the orchestrator.
func fileSource(p string) (uploads.Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return uploads.Source{}, err
	}
	if info.IsDir() {
		return uploads.Source{}, fmt.Errorf("%s is a folder, use addfolder or drop", p)
	}
	mt := ""
	if m, err := mimetype.DetectFile(p); err == nil {
		mt = m.String()
	}
	name := filepath.Base(p)
	return uploads.Source{
		Name:         name,
		RelativePath: name,
		Size:         info.Size(),
		MimeType:     mt,
		Open:         func() (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}

// splitRoot turns a local path into a filesystem rooted at its parent and
// the entry name inside it.
func splitRoot(p string) (string, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", "", err
	}
	parent, base := filepath.Dir(abs), filepath.Base(abs)
	if base == string(filepath.Separator) || base == "." {
		return "", "", fmt.Errorf("cannot attach %s", p)
	}
	return parent, base, nil
}

func (a *App) printAdded(res uploads.AddResult) {
	a.printf("Added %d file(s)\n", len(res.Added))
	for _, r := range res.Rejected {
		a.printf("  skipped %s: %s\n", r.Name, r.Reason)
	}
}

// Add attaches individual files. They land at the root of the tree.
func (a *App) Add(ctx context.Context, args []string) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: add <file> [file...]")
	}
	srcs := make([]uploads.Source, 0, len(args))
	for _, p := range args {
		s, err := fileSource(p)
		if err != nil {
			return err
		}
		srcs = append(srcs, s)
	}
	res, err := a.orch.AddFiles(ctx, srcs)
	if err != nil {
		return err
	}
	a.printAdded(res)
	return nil
}

// AddFolder attaches every file below a folder, keeping the folder's own
// name as the top of each relative path.
func (a *App) AddFolder(ctx context.Context, args []string) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: addfolder <folder>")
	}
	parent, base, err := splitRoot(args[0])
	if err != nil {
		return err
	}
	srcs, err := uploads.CollectDropped(os.DirFS(parent), []string{base})
	if err != nil {
		return err
	}
	res, err := a.orch.AddFolder(ctx, srcs)
	if err != nil {
		return err
	}
	a.printAdded(res)
	return nil
}

// Drop attaches a mix of files and folders the way a drag and drop does.
func (a *App) Drop(ctx context.Context, args []string) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: drop <file|folder> [...]")
	}
	var total uploads.AddResult
	for _, p := range args {
		parent, base, err := splitRoot(p)
		if err != nil {
			return err
		}
		res, err := a.orch.Drop(ctx, os.DirFS(parent), []string{base})
		if err != nil {
			return err
		}
		total.Added = append(total.Added, res.Added...)
		total.Rejected = append(total.Rejected, res.Rejected...)
	}
	a.printAdded(total)
	return nil
}

// resolveFile accepts a 1-based list position or a unique id prefix.
func (a *App) resolveFile(arg string) (uploads.UploadedFile, error) {
	files := a.orch.Files()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(files) {
			return uploads.UploadedFile{}, fmt.Errorf("no file #%d", n)
		}
		return files[n-1], nil
	}
	var match []uploads.UploadedFile
	for _, f := range files {
		if strings.HasPrefix(f.ID, arg) {
			match = append(match, f)
		}
	}
	switch len(match) {
	case 0:
		return uploads.UploadedFile{}, fmt.Errorf("no file %q", arg)
	case 1:
		return match[0], nil
	}
	return uploads.UploadedFile{}, fmt.Errorf("%q matches %d files", arg, len(match))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// List prints the file table.
func (a *App) List(ctx context.Context) error {
	if !a.hasForm() {
		return errNoForm
	}
	files := a.orch.Files()
	if len(files) == 0 {
		a.printf("No files attached\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSTATUS\tPROGRESS\tSIZE\tPATH\tERROR")
	for i, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			i+1, shortID(f.ID), f.Status, f.Progress, humanize.IBytes(uint64(f.Size)), f.RelativePath, f.Error)
	}
	return tw.Flush()
}

// Tree prints the folder view of the attached files.
func (a *App) Tree(ctx context.Context) error {
	if !a.hasForm() {
		return errNoForm
	}
	root := a.orch.Tree()
	a.printf("%s (%d files)\n", a.orch.Prefix(), root.FileCount)
	a.writeTree(root, "  ")
	return nil
}

func (a *App) writeTree(n *uploads.FolderNode, indent string) {
	for _, c := range n.Folders {
		a.printf("%s%s/ (%d)\n", indent, c.Name, c.FileCount)
		a.writeTree(c, indent+"  ")
	}
	for _, f := range n.Files {
		a.printf("%s%s  %s  %s\n", indent, f.Filename, humanize.IBytes(uint64(f.Size)), f.Status)
	}
}

// Cancel stops one running upload.
func (a *App) Cancel(ctx context.Context, args []string) error {
	return a.withFile(args, "cancel", func(f uploads.UploadedFile) error {
		return a.orch.Cancel(ctx, f.ID)
	})
}

// Retry restarts a failed upload.
func (a *App) Retry(ctx context.Context, args []string) error {
	return a.withFile(args, "retry", func(f uploads.UploadedFile) error {
		return a.orch.RetryUpload(ctx, f.ID)
	})
}

// Remove drops one file, deleting it from storage once it was uploaded.
func (a *App) Remove(ctx context.Context, args []string) error {
	return a.withFile(args, "rm", func(f uploads.UploadedFile) error {
		res, err := a.orch.RemoveFile(ctx, f.ID)
		if err != nil {
			return err
		}
		a.printRemoved(res)
		return nil
	})
}

// RemoveFolder drops every file under a folder of the tree.
func (a *App) RemoveFolder(ctx context.Context, args []string) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: rmdir <folder>")
	}
	res, err := a.orch.DeleteFolder(ctx, strings.Trim(args[0], "/"))
	if err != nil {
		return err
	}
	a.printRemoved(res)
	return nil
}

func (a *App) printRemoved(res uploads.RemoveResult) {
	a.printf("Removed %d file(s)\n", res.Removed)
	if res.Warning != "" {
		a.printf("Warning: %s\n", res.Warning)
	}
}

func (a *App) withFile(args []string, cmd string, fn func(uploads.UploadedFile) error) error {
	if !a.hasForm() {
		return errNoForm
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <#|id>", cmd)
	}
	f, err := a.resolveFile(args[0])
	if err != nil {
		return err
	}
	return fn(f)
}

// Wait blocks until no upload is running.
func (a *App) Wait(ctx context.Context) error {
	if !a.hasForm() {
		return errNoForm
	}
	a.orch.Wait()
	return a.List(ctx)
}

// Stored lists what the server holds under a prefix, by default the
// current form's folder.
func (a *App) Stored(ctx context.Context, args []string) error {
	prefix := ""
	switch {
	case len(args) == 1:
		prefix = args[0]
	case a.hasForm():
		prefix = a.orch.Prefix()
	default:
		return fmt.Errorf("usage: stored <prefix>")
	}
	items, err := a.api.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.printf("Nothing stored under %s\n", prefix)
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Key, humanize.IBytes(uint64(it.Size)), humanize.Time(it.LastModified))
	}
	return tw.Flush()
}
