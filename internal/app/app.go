// Package app sequences the snapshot pipeline: reconcile the wip branch,
// diff the working tree, generate a summary, commit.
package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/benwr/gwipt/internal/git"
	"github.com/benwr/gwipt/internal/message"
)

// SnapshotMessagePrefix starts every snapshot commit message.
const SnapshotMessagePrefix = "wip: "

const gitDirName = ".git"

// Stage names reported in error logs.
const (
	stageIdentity  = "identity"
	stageReconcile = "reconcile"
	stageDiff      = "diff"
	stageGenerate  = "generate"
	stageCommit    = "commit"
)

type App struct {
	svc *git.Service
	gen message.Generator
}

func New(svc *git.Service, gen message.Generator) *App {
	return &App{svc: svc, gen: gen}
}

// HandleBatch runs one pipeline pass for a debounced batch of changed
// paths. Batches confined to the repository metadata directory are
// dropped; committing a snapshot must not trigger another snapshot.
func (a *App) HandleBatch(paths []string) {
	if !anyOutsideGitDir(paths) {
		slog.Debug("no files outside of .git changed", slog.Int("events", len(paths)))
		return
	}
	slog.Debug("change batch", slog.Int("events", len(paths)))
	a.HandleChange()
}

// HandleChange runs the pipeline unconditionally. Every failure is logged
// with its originating stage and absorbed here; the watch loop must keep
// going no matter what a single run hits.
func (a *App) HandleChange() {
	if stage, err := a.runPipeline(context.Background()); err != nil {
		slog.Error("change handling failed",
			slog.String("stage", stage),
			slog.Any("error", err),
		)
	}
}

func (a *App) runPipeline(ctx context.Context) (string, error) {
	sig, err := a.svc.Signature()
	if err != nil {
		return stageIdentity, err
	}
	wipBranch, err := a.svc.EnsureWipBranch()
	if err != nil {
		return stageReconcile, err
	}
	record, err := a.svc.WorktreeDiff(wipBranch)
	if err != nil {
		return stageDiff, err
	}
	if record.Empty() {
		return "", nil
	}
	summary, err := a.gen.GenerateSummary(ctx, message.Request{
		AuthorName:  sig.Name,
		AuthorEmail: sig.Email,
		When:        sig.When,
		Diff:        record.Text(),
	})
	if err != nil {
		return stageGenerate, err
	}
	hash, err := a.svc.CommitSnapshot(wipBranch, SnapshotMessagePrefix+summary)
	if err != nil {
		return stageCommit, err
	}
	slog.Info("snapshot",
		slog.String("commit", hash.String()[:7]),
		slog.String("summary", summary),
	)
	return "", nil
}

// anyOutsideGitDir reports whether at least one path has no .git
// component.
func anyOutsideGitDir(paths []string) bool {
	for _, p := range paths {
		inGitDir := false
		for part := range strings.SplitSeq(filepath.ToSlash(p), "/") {
			if part == gitDirName {
				inGitDir = true
				break
			}
		}
		if !inGitDir {
			return true
		}
	}
	return false
}
