package cmd

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/benwr/gwipt/internal/app"
	"github.com/benwr/gwipt/internal/buildinfo"
	"github.com/benwr/gwipt/internal/git"
	"github.com/benwr/gwipt/internal/message"
	"github.com/benwr/gwipt/internal/watcher"
)

func Run() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	fs := flag.NewFlagSet("gwipt", flag.ContinueOnError)
	delay := fs.Float64("delay", 0.1, "seconds to accumulate filesystem changes before committing, recommended to be >= 0.1")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	showVersion := fs.Bool("version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println(buildinfo.Version())
		return nil
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	repoPath := "."
	if remaining := fs.Args(); len(remaining) > 0 {
		repoPath = remaining[len(remaining)-1]
	}
	svc, err := git.Open(repoPath)
	if err != nil {
		return err
	}
	slog.Debug("found git repository", slog.String("path", svc.RepoPath()))
	if _, _, err := svc.HeadBranch(); err != nil {
		return fmt.Errorf("cannot shadow the current HEAD: %w", err)
	}

	gen := message.NewOpenAIClient(message.Config{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  os.Getenv("OPENAI_MODEL"),
	})
	a := app.New(svc, gen)

	// First pass before the watcher attaches, in case there are existing
	// changes to commit.
	a.HandleChange()

	w, err := watcher.New(svc.RepoPath(), time.Duration(*delay*float64(time.Second)))
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("watcher close", slog.Any("error", err))
		}
	}()
	slog.Debug("set up filewatcher", slog.String("path", svc.RepoPath()))

	// Consuming from a single loop serializes pipeline runs in batch
	// delivery order. Runs until the process is terminated.
	for batch := range w.Batches() {
		a.HandleBatch(batch)
	}
	return nil
}
