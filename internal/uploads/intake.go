package uploads

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// AddFiles takes a flat picker selection. Relative paths are ignored and
// every file lands at the root of the tree.
//
// Uploads started here outlive ctx; use Cancel or RemoveFile to stop them.
func (o *Orchestrator) AddFiles(ctx context.Context, srcs []Source) (AddResult, error) {
	flat := make([]Source, len(srcs))
	for i, s := range srcs {
		s.Name = path.Base(toSlash(s.Name))
		s.RelativePath = s.Name
		flat[i] = s
	}
	return o.add(ctx, flat)
}

// AddFolder takes a folder picker selection where each relative path
// records the file's position under the chosen folder.
func (o *Orchestrator) AddFolder(ctx context.Context, srcs []Source) (AddResult, error) {
	out := make([]Source, len(srcs))
	for i, s := range srcs {
		s.RelativePath = cleanRelative(s.RelativePath)
		if s.RelativePath == "" {
			s.RelativePath = path.Base(toSlash(s.Name))
		}
		s.Name = path.Base(s.RelativePath)
		out[i] = s
	}
	return o.add(ctx, out)
}

// Drop takes a drag-and-drop selection of files and folders rooted in fsys.
// Folders are walked completely before the first upload starts.
func (o *Orchestrator) Drop(ctx context.Context, fsys fs.FS, roots []string) (AddResult, error) {
	srcs, err := CollectDropped(fsys, roots)
	if err != nil {
		return AddResult{}, err
	}
	return o.add(ctx, srcs)
}

// CollectDropped flattens the dropped roots into sources, depth first.
// A dropped folder keeps its own name as the first path segment, so
// dropping "site" yields "site/a.pdf" and "site/sub/b.dwg". Hidden files
// are skipped.
func CollectDropped(fsys fs.FS, roots []string) ([]Source, error) {
	var out []Source
	for _, root := range roots {
		root = path.Clean(toSlash(root))
		base := path.Dir(root)

		err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if strings.HasPrefix(d.Name(), ".") && p != root {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			rel := p
			if base != "." {
				rel = strings.TrimPrefix(p, base+"/")
			}
			out = append(out, Source{
				Name:         d.Name(),
				RelativePath: rel,
				Size:         info.Size(),
				MimeType:     detectMime(fsys, p),
				Open:         opener(fsys, p),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return out, nil
}

func opener(fsys fs.FS, p string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fsys.Open(p)
	}
}

func detectMime(fsys fs.FS, p string) string {
	f, err := fsys.Open(p)
	if err != nil {
		return ""
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// cleanRelative normalizes a picker-reported relative path. Empty and dot
// segments are dropped.
func cleanRelative(rel string) string {
	parts := strings.Split(toSlash(rel), "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}
