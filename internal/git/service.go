package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// WipPrefix is the namespace for shadow branches: the branch mirroring
// "main" is "wip/main".
const WipPrefix = "wip/"

var (
	// ErrNotOnBranch is returned when HEAD is detached or points at an
	// unborn branch. Snapshots need a real checked-out branch to shadow.
	ErrNotOnBranch = errors.New("HEAD is not a checked-out branch")

	// ErrNoIdentity is returned when user.name/user.email are not
	// configured at any config scope.
	ErrNoIdentity = errors.New("user identity not configured")
)

// Service wraps a repository and exposes the operations the snapshot
// pipeline needs: shadow-branch reconciliation, worktree diffing and
// snapshot commits.
type Service struct {
	// mu serializes ref reads and writes; only one pipeline run may touch
	// the repository at a time.
	mu sync.Mutex

	repo *gitlib.Repository
	path string
}

func Open(repoPath string) (*Service, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}
	return &Service{repo: repo, path: wt.Filesystem.Root()}, nil
}

func (s *Service) RepoPath() string {
	return s.path
}

// HeadBranch resolves HEAD to a local branch and returns its short name
// and tip commit. Detached or unborn HEAD yields ErrNotOnBranch.
func (s *Service) HeadBranch() (string, *object.Commit, error) {
	ref, err := s.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return "", nil, ErrNotOnBranch
		}
		return "", nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if !ref.Name().IsBranch() {
		return "", nil, ErrNotOnBranch
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", nil, fmt.Errorf("resolve HEAD commit: %w", err)
	}
	return ref.Name().Short(), commit, nil
}

// Signature returns the configured commit identity with the current local
// time. All commits written by the pipeline use it for both author and
// committer, like git itself would.
func (s *Service) Signature() (object.Signature, error) {
	cfg, err := s.repo.ConfigScoped(gitconfig.SystemScope)
	if err != nil {
		return object.Signature{}, fmt.Errorf("read config: %w", err)
	}
	if cfg.User.Name == "" || cfg.User.Email == "" {
		return object.Signature{}, ErrNoIdentity
	}
	return object.Signature{
		Name:  cfg.User.Name,
		Email: cfg.User.Email,
		When:  time.Now(),
	}, nil
}

func (s *Service) wipRef(wipBranch string) (*plumbing.Reference, error) {
	return s.repo.Reference(plumbing.NewBranchReferenceName(wipBranch), true)
}

func (s *Service) refTree(ref *plumbing.Reference) (*object.Tree, error) {
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("resolve %s commit: %w", ref.Name().Short(), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("resolve %s tree: %w", ref.Name().Short(), err)
	}
	return tree, nil
}

// writeCommit encodes a commit object with the given tree and parents and
// stores it in the object database. The ref is not touched.
func (s *Service) writeCommit(message string, tree plumbing.Hash, parents []plumbing.Hash, sig object.Signature) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return hash, nil
}
