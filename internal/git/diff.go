package git

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

const diffContextLines = 3

// WorktreeDiff computes the ordered diff between the wip branch's tree and
// the live working tree, untracked files included. Each changed file
// contributes a header line plus unified-diff content with 3 context
// lines; binary changes contribute a single structural notice instead of
// aborting the run.
func (s *Service) WorktreeDiff(wipBranch string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.wipRef(wipBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", wipBranch, err)
	}
	wipTree, err := s.refTree(ref)
	if err != nil {
		return nil, err
	}
	tracked, err := treeFiles(wipTree)
	if err != nil {
		return nil, err
	}
	entries, err := s.worktreeEntries(pathSet(tracked))
	if err != nil {
		return nil, err
	}
	wt, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}

	onDisk := make(map[string]worktreeEntry, len(entries))
	for _, entry := range entries {
		onDisk[entry.path] = entry
	}
	paths := unionPaths(tracked, onDisk)

	record := &Record{}
	for _, p := range paths {
		from := tracked[p]
		entry, exists := onDisk[p]

		var toData []byte
		if exists {
			toData, err = readWorktreeFile(wt.Filesystem, entry)
			if err != nil {
				if os.IsNotExist(err) {
					exists = false
				} else {
					return nil, fmt.Errorf("read %s: %w", p, err)
				}
			}
		}
		if from == nil && !exists {
			continue
		}
		// A file is unchanged only if both content and mode match; a bare
		// chmod still has to produce a snapshot.
		if from != nil && exists && from.Mode == entry.mode &&
			from.Hash == plumbing.ComputeHash(plumbing.BlobObject, toData) {
			continue
		}
		if err := appendFileDiff(record, p, from, toData, exists); err != nil {
			return nil, err
		}
	}
	if record.Empty() {
		slog.Debug("empty diff", slog.String("branch", wipBranch))
	}
	return record, nil
}

func appendFileDiff(record *Record, path string, from *object.File, toData []byte, toExists bool) error {
	record.addStructural(fmt.Sprintf("diff --git a/%s b/%s\n", path, path))

	binary, err := binaryChange(from, toData, toExists)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	if binary {
		record.addStructural(fmt.Sprintf("Binary files a/%s and b/%s differ\n", path, path))
		return nil
	}

	fromLines, err := fileLines(from)
	if err != nil {
		return fmt.Errorf("read %s from wip tree: %w", path, err)
	}
	toLines := []string{}
	if toExists {
		toLines = difflib.SplitLines(string(toData))
	}
	diffText, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        fromLines,
		B:        toLines,
		FromFile: fmt.Sprintf("a/%s", path),
		ToFile:   fmt.Sprintf("b/%s", path),
		Context:  diffContextLines,
	})
	if err != nil {
		return fmt.Errorf("diff %s: %w", path, err)
	}
	if diffText == "" {
		// Mode-only change; nothing textual to describe.
		return nil
	}
	for line := range strings.SplitAfterSeq(diffText, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "@@"):
			record.addStructural(line)
		case line[0] == OriginAdd || line[0] == OriginRemove || line[0] == OriginContext:
			record.addContent(line[0], line[1:])
		default:
			record.addStructural(line)
		}
	}
	return nil
}

func binaryChange(from *object.File, toData []byte, toExists bool) (bool, error) {
	if from != nil {
		bin, err := from.IsBinary()
		if err != nil {
			return false, err
		}
		if bin {
			return true, nil
		}
	}
	if toExists && bytes.ContainsRune(toData[:min(len(toData), 8000)], 0) {
		return true, nil
	}
	return false, nil
}

func fileLines(f *object.File) ([]string, error) {
	if f == nil {
		return []string{}, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return difflib.SplitLines(content), nil
}

func unionPaths(tracked map[string]*object.File, onDisk map[string]worktreeEntry) []string {
	seen := make(map[string]struct{}, len(tracked)+len(onDisk))
	for p := range tracked {
		seen[p] = struct{}{}
	}
	for p := range onDisk {
		seen[p] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
