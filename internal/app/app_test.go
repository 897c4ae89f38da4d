package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/benwr/gwipt/internal/git"
	"github.com/benwr/gwipt/internal/message"
)

type stubGenerator struct {
	summary string
	err     error
	calls   int
	lastReq message.Request
}

func (g *stubGenerator) GenerateSummary(_ context.Context, req message.Request) (string, error) {
	g.calls++
	g.lastReq = req
	return g.summary, g.err
}

func newTestRepo(t *testing.T) (*git.Service, *gitlib.Repository, string) {
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
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	if err := repo.SetConfig(cfg); err != nil {
		t.Fatalf("write config: %v", err)
	}
	svc, err := git.Open(dir)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return svc, repo, dir
}

func commitFile(t *testing.T, repo *gitlib.Repository, dir, name, content, msg string) plumbing.Hash {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := wt.AddWithOptions(&gitlib.AddOptions{All: true}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	hash, err := wt.Commit(msg, &gitlib.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash
}

func wipTip(t *testing.T, repo *gitlib.Repository) (*object.Commit, bool) {
	t.Helper()
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("wip/master"), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, false
	}
	if err != nil {
		t.Fatalf("resolve wip/master: %v", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("resolve wip tip: %v", err)
	}
	return commit, true
}

func TestHandleChangeCommitsSnapshot(t *testing.T) {
	svc, repo, dir := newTestRepo(t)
	head := commitFile(t, repo, dir, "a.txt", "hello\n", "initial")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("goodbye\n"), 0o644); err != nil {
		t.Fatalf("modify a.txt: %v", err)
	}

	gen := &stubGenerator{summary: "rewrite greeting"}
	New(svc, gen).HandleChange()

	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
	tip, ok := wipTip(t, repo)
	if !ok {
		t.Fatal("wip/master was not created")
	}
	if tip.Message != "wip: rewrite greeting" {
		t.Fatalf("unexpected snapshot message: %q", tip.Message)
	}
	if tip.NumParents() != 1 || tip.ParentHashes[0] != head {
		t.Fatalf("unexpected parents %v, want [%s]", tip.ParentHashes, head)
	}
	if gen.lastReq.AuthorName != "Test User" || gen.lastReq.AuthorEmail != "test@example.com" {
		t.Fatalf("generator got wrong author: %s <%s>", gen.lastReq.AuthorName, gen.lastReq.AuthorEmail)
	}
	if gen.lastReq.Diff == "" {
		t.Fatal("generator got an empty diff")
	}
}

func TestHandleChangeSkipsCleanWorktree(t *testing.T) {
	svc, repo, dir := newTestRepo(t)
	head := commitFile(t, repo, dir, "a.txt", "hello\n", "initial")

	gen := &stubGenerator{summary: "should not be used"}
	New(svc, gen).HandleChange()

	if gen.calls != 0 {
		t.Fatalf("generator must not be called for an empty diff, got %d calls", gen.calls)
	}
	tip, ok := wipTip(t, repo)
	if !ok {
		t.Fatal("wip/master should still be created by reconciliation")
	}
	if tip.Hash != head {
		t.Fatalf("wip tip moved to %s without changes, want %s", tip.Hash, head)
	}
}

func TestHandleChangeGeneratorFailureLeavesBranchUntouched(t *testing.T) {
	svc, repo, dir := newTestRepo(t)
	head := commitFile(t, repo, dir, "a.txt", "hello\n", "initial")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("goodbye\n"), 0o644); err != nil {
		t.Fatalf("modify a.txt: %v", err)
	}

	gen := &stubGenerator{err: errors.New("boom")}
	New(svc, gen).HandleChange()

	tip, ok := wipTip(t, repo)
	if !ok {
		t.Fatal("wip/master was not created")
	}
	if tip.Hash != head {
		t.Fatalf("wip tip moved to %s despite generation failure, want %s", tip.Hash, head)
	}
}

func TestHandleBatchIgnoresMetadataOnlyBatches(t *testing.T) {
	svc, repo, dir := newTestRepo(t)
	commitFile(t, repo, dir, "a.txt", "hello\n", "initial")

	gen := &stubGenerator{summary: "should not be used"}
	New(svc, gen).HandleBatch([]string{
		filepath.Join(dir, ".git", "objects", "ab", "cdef"),
		filepath.Join(dir, ".git", "refs", "heads", "wip", "master"),
	})

	if gen.calls != 0 {
		t.Fatalf("generator called for a .git-only batch: %d", gen.calls)
	}
	if _, ok := wipTip(t, repo); ok {
		t.Fatal("metadata-only batch must not even reconcile the wip branch")
	}
}

func TestHandleBatchRunsForMixedBatches(t *testing.T) {
	svc, repo, dir := newTestRepo(t)
	commitFile(t, repo, dir, "a.txt", "hello\n", "initial")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("goodbye\n"), 0o644); err != nil {
		t.Fatalf("modify a.txt: %v", err)
	}

	gen := &stubGenerator{summary: "rewrite greeting"}
	New(svc, gen).HandleBatch([]string{
		filepath.Join(dir, ".git", "index"),
		filepath.Join(dir, "a.txt"),
	})

	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
}

func TestAnyOutsideGitDir(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"empty batch", nil, false},
		{"only git paths", []string{"/repo/.git/HEAD", "/repo/.git/objects/aa/bb"}, false},
		{"mixed", []string{"/repo/.git/HEAD", "/repo/main.go"}, true},
		{"dotfile that is not .git", []string{"/repo/.github/workflows/ci.yml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := anyOutsideGitDir(tt.paths); got != tt.want {
				t.Fatalf("anyOutsideGitDir(%v) = %v, want %v", tt.paths, got, tt.want)
			}
		})
	}
}
