package uploads

import (
	"sort"
	"strings"
)

// FolderNode is one folder of the tree view. Files holds the files directly
// in this folder; FileCount counts every file below it.
type FolderNode struct {
	Name      string
	Path      string
	Folders   []*FolderNode
	Files     []UploadedFile
	FileCount int
}

// BuildTree groups files by the segments of their relative paths. The root
// has an empty name and its FileCount always equals len(files).
func BuildTree(files []UploadedFile) *FolderNode {
	root := &FolderNode{}
	index := map[string]*FolderNode{"": root}

	for _, f := range files {
		rel := f.RelativePath
		if rel == "" {
			rel = f.Filename
		}
		segs := splitSegments(rel)

		node := root
		node.FileCount++
		for i := 0; i < len(segs)-1; i++ {
			p := strings.Join(segs[:i+1], "/")
			child, ok := index[p]
			if !ok {
				child = &FolderNode{Name: segs[i], Path: p}
				index[p] = child
				node.Folders = append(node.Folders, child)
			}
			child.FileCount++
			node = child
		}
		node.Files = append(node.Files, f)
	}

	sortFolders(root)
	return root
}

func splitSegments(rel string) []string {
	raw := strings.Split(rel, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func sortFolders(n *FolderNode) {
	sort.Slice(n.Folders, func(i, j int) bool { return n.Folders[i].Name < n.Folders[j].Name })
	for _, c := range n.Folders {
		sortFolders(c)
	}
}

// LeafCount counts the files reachable from n by walking the tree.
func (n *FolderNode) LeafCount() int {
	total := len(n.Files)
	for _, c := range n.Folders {
		total += c.LeafCount()
	}
	return total
}

// Folder finds a descendant by slash-separated path.
func (n *FolderNode) Folder(p string) (*FolderNode, bool) {
	cur := n
	for _, seg := range splitSegments(p) {
		var next *FolderNode
		for _, c := range cur.Folders {
			if c.Name == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
