package git

import (
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"
)

// CommitSnapshot stages the entire working tree into a new tree object and
// commits it onto the wip branch. The parent is the branch tip as read
// here, not a value cached by an earlier stage. The ref moves in a single
// compare-and-set, so a partially written snapshot is never visible.
func (s *Service) CommitSnapshot(wipBranch, message string) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.wipRef(wipBranch)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", wipBranch, err)
	}
	wipTree, err := s.refTree(ref)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	tracked, err := treeFiles(wipTree)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	treeHash, err := s.writeWorktreeTree(pathSet(tracked))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	sig, err := s.Signature()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	commitHash, err := s.writeCommit(message, treeHash, []plumbing.Hash{ref.Hash()}, sig)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	refName := plumbing.NewBranchReferenceName(wipBranch)
	if err := s.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(refName, commitHash), ref); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("update %s: %w", wipBranch, err)
	}
	slog.Debug("snapshot committed",
		slog.String("branch", wipBranch),
		slog.String("commit", shortHash(commitHash)),
		slog.String("tree", treeHash.String()),
	)
	return commitHash, nil
}
