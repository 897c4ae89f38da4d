package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	testUserName  = "Test User"
	testUserEmail = "test@example.com"
)

func newTestRepo(t *testing.T) (*Service, *gitlib.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gitlib.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	cfg, err := repo.Config()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg.User.Name = testUserName
	cfg.User.Email = testUserEmail
	if err := repo.SetConfig(cfg); err != nil {
		t.Fatalf("write config: %v", err)
	}
	svc, err := Open(dir)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return svc, repo, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func commitAll(t *testing.T, repo *gitlib.Repository, message string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := wt.AddWithOptions(&gitlib.AddOptions{All: true}); err != nil {
		t.Fatalf("stage changes: %v", err)
	}
	hash, err := wt.Commit(message, &gitlib.CommitOptions{
		Author: &object.Signature{Name: testUserName, Email: testUserEmail, When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash
}

func branchHash(t *testing.T, repo *gitlib.Repository, branch string) plumbing.Hash {
	t.Helper()
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("resolve %s: %v", branch, err)
	}
	return ref.Hash()
}

func commitObject(t *testing.T, repo *gitlib.Repository, hash plumbing.Hash) *object.Commit {
	t.Helper()
	commit, err := repo.CommitObject(hash)
	if err != nil {
		t.Fatalf("resolve commit %s: %v", hash, err)
	}
	return commit
}

func treeFileContent(t *testing.T, commit *object.Commit, path string) string {
	t.Helper()
	tree, err := commit.Tree()
	if err != nil {
		t.Fatalf("resolve tree: %v", err)
	}
	f, err := tree.File(path)
	if err != nil {
		t.Fatalf("file %s in tree: %v", path, err)
	}
	content, err := f.Contents()
	if err != nil {
		t.Fatalf("contents of %s: %v", path, err)
	}
	return content
}

func treeHasFile(t *testing.T, commit *object.Commit, path string) bool {
	t.Helper()
	tree, err := commit.Tree()
	if err != nil {
		t.Fatalf("resolve tree: %v", err)
	}
	_, err = tree.File(path)
	if err == object.ErrFileNotFound {
		return false
	}
	if err != nil {
		t.Fatalf("file %s in tree: %v", path, err)
	}
	return true
}
