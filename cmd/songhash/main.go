package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eargollo/songhash/internal/api"
	"github.com/eargollo/songhash/internal/config"
	"github.com/eargollo/songhash/internal/db"
	"github.com/eargollo/songhash/internal/hashdb"
	"github.com/eargollo/songhash/internal/history"
	"github.com/eargollo/songhash/internal/scan"
	"github.com/eargollo/songhash/internal/scheduler"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage:
  songhash [-config file] scan [-base-directory dir] <directory> <databaseFile>
  songhash [-config file] diff <olderDatabaseFile> <newerDatabaseFile>
  songhash [-config file] serve
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("songhash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "songhash.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	// ── Logging (initial, overridden below once config is loaded) ──────────
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		return exitError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}
	switch cmd {
	case "scan":
		return runScan(ctx, cfg, rest, stdout, stderr)
	case "diff":
		return runDiff(rest, stdout, stderr)
	case "serve":
		return runServe(ctx, cfg, rest, stderr)
	case "":
		fs.Usage()
		return exitUsage
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return exitUsage
	}
}

func runScan(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	baseDir := fs.String("base-directory", "", "directory stored paths are relative to (default: <directory>)")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(pos) != 2 {
		fs.Usage()
		return exitUsage
	}

	scanCfg := scanConfig(cfg, stdout)
	if cfg.HistoryDB != "" {
		conn, err := db.OpenMigrated(cfg.HistoryDB)
		if err != nil {
			slog.Error("open history database", "error", err)
			return exitError
		}
		defer conn.Close()
		scanCfg.Recorder = history.New(conn)
	}

	job := scan.Job{
		Name:          pos[0],
		Directory:     pos[0],
		DatabaseFile:  pos[1],
		BaseDirectory: *baseDir,
	}
	if _, err := scan.New(job, scanCfg).Run(ctx, "cli", nil); err != nil {
		var mismatch *hashdb.DirectoryMismatchError
		if errors.As(err, &mismatch) {
			fmt.Fprintf(stderr, "songhash: %v\n", mismatch)
			return exitError
		}
		slog.Error("scan failed", "error", err)
		return exitError
	}
	return exitOK
}

func runDiff(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	older, err := hashdb.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "songhash: %v\n", err)
		return exitError
	}
	newer, err := hashdb.LoadFile(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "songhash: %v\n", err)
		return exitError
	}
	if older.BaseDir() != newer.BaseDir() {
		slog.Warn("databases have different base directories",
			"older", older.BaseDir(), "newer", newer.BaseDir())
	}
	if err := hashdb.Compare(older, newer).Write(stdout); err != nil {
		slog.Error("write diff", "error", err)
		return exitError
	}
	return exitOK
}

func runServe(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	slog.Info("songhash starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"history_db", cfg.HistoryDB,
		"libraries", len(cfg.Libraries))

	// ── Database ───────────────────────────────────────────────────────────
	historyPath := cfg.HistoryDB
	if historyPath == "" {
		historyPath = ":memory:"
	}
	database, err := db.OpenMigrated(historyPath)
	if err != nil {
		slog.Error("open history database", "error", err)
		return exitError
	}
	defer database.Close()
	store := history.New(database)

	// Mark any scans that were 'running' when last process exited as failed.
	if err := store.MarkStaleRunsFailed(ctx); err != nil {
		slog.Warn("mark stale scans", "error", err)
	}

	// ── Scan manager ───────────────────────────────────────────────────────
	scanCfg := scanConfig(cfg, io.Discard)
	scanCfg.Recorder = store
	mgr := scan.NewManager(jobsFromConfig(cfg), scanCfg)

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if cfg.Schedule != "" {
		if err := sched.SetRescan(cfg.Schedule, mgr); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, api.NewRouter(mgr, store, sched, version))
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		return exitError
	}
	if active, err := mgr.Cancel(); err == nil {
		<-active.Done()
	}
	slog.Info("songhash stopped")
	return exitOK
}

func scanConfig(cfg *config.Config, out io.Writer) scan.Config {
	sc := scan.DefaultConfig()
	sc.Extensions = cfg.Extensions
	sc.QueueDepth = cfg.QueueDepth
	sc.Walkers = cfg.Walkers
	sc.Out = out
	return sc
}

func jobsFromConfig(cfg *config.Config) []scan.Job {
	jobs := make([]scan.Job, 0, len(cfg.Libraries))
	for _, l := range cfg.Libraries {
		jobs = append(jobs, scan.Job{
			Name:          l.Name,
			Directory:     l.Directory,
			DatabaseFile:  l.DatabaseFile,
			BaseDirectory: l.BaseDirectory,
		})
	}
	return jobs
}

// parseInterleaved parses fs allowing flags before, between or after the
// positional arguments, and returns the positional arguments in order.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(pos, rest...), nil
		}
		if len(rest) == 0 {
			return pos, nil
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
