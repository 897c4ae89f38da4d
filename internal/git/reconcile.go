package git

import (
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"
)

// MergeMessage is the message used for reconciliation merge commits.
const MergeMessage = "Merge HEAD into wip/ branch"

// EnsureWipBranch makes sure the shadow branch for the current HEAD branch
// exists and has not fallen behind it, and returns its short name.
//
// Three cases:
//   - the branch does not exist: it is created at the current head commit;
//   - the head commit equals the wip tip, or is already reachable from it:
//     nothing to do, the next snapshot extends the branch;
//   - the head has moved past the wip tip or diverged from it (new commit,
//     rebase, amend, reset): a merge commit with the head tree and parents
//     [wip tip, head] is written, so the wip tip descends from head again
//     and no commit that was ever a wip tip becomes unreachable.
func (s *Service) EnsureWipBranch() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	headName, headCommit, err := s.HeadBranch()
	if err != nil {
		return "", err
	}
	wipBranch := WipPrefix + headName
	refName := plumbing.NewBranchReferenceName(wipBranch)

	ref, err := s.repo.Reference(refName, true)
	if err == plumbing.ErrReferenceNotFound {
		if err := s.repo.Storer.SetReference(plumbing.NewHashReference(refName, headCommit.Hash)); err != nil {
			return "", fmt.Errorf("create %s: %w", wipBranch, err)
		}
		slog.Debug("created wip branch", slog.String("branch", wipBranch), slog.String("at", headCommit.Hash.String()))
		return wipBranch, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", wipBranch, err)
	}

	if ref.Hash() == headCommit.Hash {
		return wipBranch, nil
	}
	wipCommit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("resolve %s commit: %w", wipBranch, err)
	}
	reachable, err := headCommit.IsAncestor(wipCommit)
	if err != nil {
		return "", fmt.Errorf("ancestry check: %w", err)
	}
	if reachable {
		// The wip tip already contains head; snapshots have simply moved
		// the branch ahead of it.
		return wipBranch, nil
	}

	// Head is not reachable from the wip tip, either because the tracked
	// branch gained a commit or because it was rewritten. Converge on the
	// head tree while keeping the old wip tip reachable as a merge parent;
	// any working-tree changes are picked up by the next snapshot.
	sig, err := s.Signature()
	if err != nil {
		return "", err
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD tree: %w", err)
	}
	mergeHash, err := s.writeCommit(
		MergeMessage,
		headTree.Hash,
		[]plumbing.Hash{wipCommit.Hash, headCommit.Hash},
		sig,
	)
	if err != nil {
		return "", err
	}
	if err := s.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(refName, mergeHash), ref); err != nil {
		return "", fmt.Errorf("update %s: %w", wipBranch, err)
	}
	slog.Info("reconciled wip branch",
		slog.String("branch", wipBranch),
		slog.String("commit", shortHash(mergeHash)),
	)
	return wipBranch, nil
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:7]
}
