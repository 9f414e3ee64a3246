// cmd/countersign/main.go
//
// Entry point for the countersign TUI. Run it from the directory that
// should hold the .countersign state folder.
//
// Flow:
// 1. Load .countersign/config.yaml (created on first run)
// 2. Wire the dispatcher, suggester and signer directory it selects
// 3. Resume the saved draft unless --fresh was given
// 4. Launch the TUI

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/directory"
	"github.com/kingrea/countersign/internal/dispatch"
	"github.com/kingrea/countersign/internal/intake"
	"github.com/kingrea/countersign/internal/logbook"
	"github.com/kingrea/countersign/internal/suggest"
	"github.com/kingrea/countersign/internal/tui"
	"github.com/kingrea/countersign/internal/workflow/engine"
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	fresh := flag.Bool("fresh", false, "ignore the saved draft and start an empty session")
	flag.Parse()

	if err := run(*projectDir, *fresh); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so connections are closed on all
// return paths before main exits.
func run(projectDir string, fresh bool) error {
	project := projectDir
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	project, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitProjectDir(project); err != nil {
		return fmt.Errorf("init .countersign: %w", err)
	}
	cfg, err := config.NewConfig(project)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	book, err := logbook.New(cfg.JourneyLogPath())
	if err != nil {
		return fmt.Errorf("open journey log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher, closeDispatcher, err := dispatch.New(ctx, cfg.Project.Dispatch, book)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer closeWith(book, "dispatcher", closeDispatcher)

	var status string
	suggester, err := suggest.New(ctx, cfg.Project.Suggest, cfg.SuggestAPIKey())
	if err != nil {
		book.Warn("Suggestions fall back to the built-in template: %v", err)
		status = "Message suggestions use the built-in template"
	}

	dir, closeDirectory, err := directory.New(ctx, cfg.Project.Directory)
	if err != nil {
		book.Warn("Signer directory unavailable: %v", err)
		dir, closeDirectory = directory.NewStatic(), func() error { return nil }
	}
	defer closeWith(book, "directory", closeDirectory)

	opts := []engine.Option{
		engine.WithTimeout(cfg.Project.Dispatch.Timeout),
		engine.WithLogger(book),
	}
	if cfg.Project.Drafts.Enabled {
		opts = append(opts, engine.WithStateStore(engine.NewRepository(cfg.DraftsDir())))
	}
	eng, err := engine.New(dispatcher, opts...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch {
	case fresh:
		eng.StartOver()
	case cfg.Project.Drafts.Enabled:
		if s, err := eng.Resume(); err == nil {
			status = fmt.Sprintf("Resumed draft on %s", s.Step.FriendlyName())
		} else if !errors.Is(err, engine.ErrStateNotFound) {
			book.Warn("Draft could not be restored: %v", err)
		}
	}

	app, err := tui.NewApp(tui.Deps{
		Engine:    eng,
		Intake:    intake.New(intake.WithLogger(book)),
		Directory: dir,
		Suggester: suggester,
		Logbook:   book,
	}, tui.WithStatus(status))
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	p := tea.NewProgram(
		app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func closeWith(book *logbook.Logbook, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		book.Warn("Closing %s: %v", name, err)
	}
}
