package git

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const gitDirName = ".git"

type worktreeEntry struct {
	path string // slash-separated, repository-relative
	mode filemode.FileMode
}

// worktreeEntries walks the working tree and returns every file the next
// snapshot should contain, sorted by path. Ignore rules are honored, except
// that paths present in tracked stay included: a tracked file matching a
// later-added .gitignore pattern must not silently drop out of snapshots.
func (s *Service) worktreeEntries(tracked map[string]struct{}) ([]worktreeEntry, error) {
	wt, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}
	fs := wt.Filesystem
	patterns, err := gitignore.ReadPatterns(fs, nil)
	if err != nil {
		return nil, fmt.Errorf("read ignore patterns: %w", err)
	}
	matcher := gitignore.NewMatcher(patterns)
	trackedDirs := ancestorDirs(tracked)

	var entries []worktreeEntry
	err = util.Walk(fs, ".", func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := path.Clean(strings.ReplaceAll(walkPath, string(os.PathSeparator), "/"))
		if rel == "." {
			return nil
		}
		segments := strings.Split(rel, "/")
		if info.IsDir() {
			if info.Name() == gitDirName {
				return filepath.SkipDir
			}
			if _, ok := trackedDirs[rel]; ok {
				return nil
			}
			if matcher.Match(segments, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := tracked[rel]; !ok && matcher.Match(segments, false) {
			return nil
		}
		mode, err := filemode.NewFromOSFileMode(info.Mode())
		if err != nil {
			// Sockets, devices and other irregular files cannot be
			// represented in a tree object.
			slog.Debug("skipping irregular file", slog.String("path", rel))
			return nil
		}
		entries = append(entries, worktreeEntry{path: rel, mode: mode})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries, nil
}

// readWorktreeFile returns the blob content for a walked entry. Symlinks
// contribute their target path, as in a tree object.
func readWorktreeFile(fs billy.Filesystem, entry worktreeEntry) ([]byte, error) {
	if entry.mode == filemode.Symlink {
		target, err := fs.Readlink(entry.path)
		if err != nil {
			return nil, err
		}
		return []byte(target), nil
	}
	return util.ReadFile(fs, entry.path)
}

// writeWorktreeTree stages the entire working tree into blob and tree
// objects and returns the root tree hash. Only the object database is
// written; neither the index nor any ref changes.
func (s *Service) writeWorktreeTree(tracked map[string]struct{}) (plumbing.Hash, error) {
	wt, err := s.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("repository worktree: %w", err)
	}
	entries, err := s.worktreeEntries(tracked)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	root := newTreeNode()
	for _, entry := range entries {
		data, err := readWorktreeFile(wt.Filesystem, entry)
		if err != nil {
			if os.IsNotExist(err) {
				// Deleted between the walk and the read; the next run
				// will pick up the change.
				continue
			}
			return plumbing.ZeroHash, fmt.Errorf("read %s: %w", entry.path, err)
		}
		blobHash, err := s.writeBlob(data)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("store blob for %s: %w", entry.path, err)
		}
		root.insert(strings.Split(entry.path, "/"), entry.mode, blobHash)
	}
	return root.write(s)
}

func (s *Service) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// treeNode accumulates entries for one directory level before encoding.
type treeNode struct {
	files map[string]object.TreeEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{
		files: map[string]object.TreeEntry{},
		dirs:  map[string]*treeNode{},
	}
}

func (n *treeNode) insert(segments []string, mode filemode.FileMode, hash plumbing.Hash) {
	if len(segments) == 1 {
		n.files[segments[0]] = object.TreeEntry{Name: segments[0], Mode: mode, Hash: hash}
		return
	}
	child, ok := n.dirs[segments[0]]
	if !ok {
		child = newTreeNode()
		n.dirs[segments[0]] = child
	}
	child.insert(segments[1:], mode, hash)
}

// write encodes the node and its subtrees bottom-up and returns the tree
// hash. Entries follow git's canonical order, where directory names sort
// as if they carried a trailing slash.
func (n *treeNode) write(s *Service) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(n.files)+len(n.dirs))
	for _, entry := range n.files {
		entries = append(entries, entry)
	}
	for name, child := range n.dirs {
		hash, err := child.write(s)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}
	sort.Slice(entries, func(i, j int) bool {
		return treeEntrySortKey(entries[i]) < treeEntrySortKey(entries[j])
	})
	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func treeEntrySortKey(entry object.TreeEntry) string {
	if entry.Mode == filemode.Dir {
		return entry.Name + "/"
	}
	return entry.Name
}

// treeFiles maps every path in the tree to its file object.
func treeFiles(tree *object.Tree) (map[string]*object.File, error) {
	files := map[string]*object.File{}
	iter := tree.Files()
	defer iter.Close()
	for {
		f, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate tree files: %w", err)
		}
		files[f.Name] = f
	}
	return files, nil
}

func pathSet(files map[string]*object.File) map[string]struct{} {
	set := make(map[string]struct{}, len(files))
	for p := range files {
		set[p] = struct{}{}
	}
	return set
}

func ancestorDirs(paths map[string]struct{}) map[string]struct{} {
	dirs := map[string]struct{}{}
	for p := range paths {
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	return dirs
}
