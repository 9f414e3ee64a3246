// cmd/countersign-sandbox/main.go
//
// Local stand-in for the signing service. Point dispatch.endpoint at it to
// watch envelopes arrive, and use --fail or --latency to rehearse failed and
// slow sends.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/logging"
	"github.com/kingrea/countersign/internal/sandbox"
)

type options struct {
	projectDir string
	port       int
	failNext   int
	failStatus int
	latency    time.Duration
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.projectDir, "project", "", "path to the project directory (defaults to cwd)")
	flag.IntVar(&opts.port, "port", 0, "override the configured port")
	flag.IntVar(&opts.failNext, "fail", -1, "reject the next N envelopes (overrides sandbox.fail_next)")
	flag.IntVar(&opts.failStatus, "fail-status", 0, "HTTP status used for rejections (overrides sandbox.fail_status)")
	flag.DurationVar(&opts.latency, "latency", -1, "delay before answering (overrides sandbox.latency)")
	flag.BoolVar(&opts.verbose, "v", false, "print each envelope as JSON")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	project := opts.projectDir
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
	cfg, err := config.NewConfig(project)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(project, "sandbox")
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logger.Close()
	logger.Mirror(os.Stderr)

	settings := sandbox.SettingsFromConfig(cfg)
	if opts.port > 0 {
		settings.Port = opts.port
	}
	if opts.failNext >= 0 {
		settings.FailNext = opts.failNext
	}
	if opts.failStatus != 0 {
		settings.FailStatus = opts.failStatus
	}
	if opts.latency >= 0 {
		settings.Latency = opts.latency
	}
	server := sandbox.NewServer(settings, sandbox.WithLogger(logger))
	store := server.Store()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Sandbox ready at %s\n", server.BaseURL())

	records, unsubscribe := store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			fmt.Printf("Sandbox stopped after %d envelope(s)\n", store.Len())
			return nil
		case rec := <-records:
			printRecord(rec, opts.verbose)
		}
	}
}

func printRecord(rec sandbox.Record, verbose bool) {
	env := rec.Envelope
	names := make([]string, 0, len(env.Signers))
	for _, s := range env.Signers {
		names = append(names, s.Name)
	}
	fmt.Printf("%s  %s  %q → %s (%d field(s))\n",
		rec.ReceivedAt.Format(time.TimeOnly), rec.ID, env.Document.Name, strings.Join(names, ", "), len(env.Fields))
	if verbose {
		if data, err := json.MarshalIndent(env, "", "  "); err == nil {
			fmt.Println(string(data))
		}
	}
}
