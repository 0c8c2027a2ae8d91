// Command tvshell shows one streaming site fullscreen and drives it with a
// remote control: arrows move focus spatially, numpad keys replay native
// arrows or cycle focus, q quits.
//
// Usage:
//
//	tvshell                                        # svtplay.se with defaults
//	tvshell -config tvshell.yaml                   # settings from YAML
//	tvshell -url https://www.svt.se/ -remote :8088 # other site, HTTP remote on
//	tvshell -capture layout.html                   # write the site's layout and exit
//	tvshell -replay layout.html -dir right         # run one step offline
//	tvshell -stats -telemetry tvshell.db           # navigation outcomes of the last day
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tvshell/dbopen"
	"github.com/hazyhaar/tvshell/observability"
	"github.com/hazyhaar/tvshell/shell"
	"github.com/hazyhaar/tvshell/spatial"
	"github.com/hazyhaar/tvshell/spatial/htmldom"
)

func main() {
	configPath := flag.String("config", "", "path to tvshell.yaml config file")
	siteURL := flag.String("url", "", "site to show (overrides site.url)")
	remoteAddr := flag.String("remote", "", "HTTP remote listen address (overrides remote.addr)")
	telemetry := flag.String("telemetry", "", "SQLite telemetry path (overrides telemetry.path)")
	headless := flag.Bool("headless", false, "run Chrome headless")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")

	capture := flag.String("capture", "", "write the loaded site's layout snapshot to this file and exit")
	settle := flag.Duration("settle", 5*time.Second, "render time before -capture")
	replay := flag.String("replay", "", "layout snapshot to run one navigation step on")
	dir := flag.String("dir", "right", "direction for -replay: left, right, up, down")
	focus := flag.String("focus", "", "HTML id to focus before -replay")
	stats := flag.Bool("stats", false, "print navigation outcomes from -telemetry and exit")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := func() error {
		if *replay != "" {
			return runReplay(ctx, logger, *replay, *dir, *focus)
		}

		cfg := shell.DefaultConfig()
		if *configPath != "" {
			var err error
			if cfg, err = shell.LoadConfigFile(*configPath); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		if *siteURL != "" {
			cfg.Site.URL = *siteURL
			if *configPath == "" {
				cfg.Site.AllowedHosts = nil
			}
		}
		if *remoteAddr != "" {
			cfg.Remote.Addr = *remoteAddr
		}
		if *telemetry != "" {
			cfg.Telemetry.Path = *telemetry
		}
		if *headless {
			cfg.Browser.Headless = true
		}
		if err := cfg.Finish(); err != nil {
			return err
		}

		switch {
		case *stats:
			return runStats(ctx, logger, cfg.Telemetry.Path)
		case *capture != "":
			return runCapture(ctx, logger, cfg, *capture, *settle)
		default:
			return shell.New(cfg, logger).Run(ctx)
		}
	}()
	if err != nil {
		logger.Error("tvshell: fatal", "error", err)
		os.Exit(1)
	}
}

func runCapture(ctx context.Context, logger *slog.Logger, cfg *shell.Config, path string, settle time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := shell.New(cfg, logger).CaptureSite(ctx, f, settle); err != nil {
		f.Close()
		return fmt.Errorf("capture: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	logger.Info("tvshell: layout captured", "path", path, "url", cfg.Site.URL)
	return nil
}

// replayResult is what -replay prints.
type replayResult struct {
	Direction  string `json:"direction"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Moved      bool   `json:"moved"`
	Stage      string `json:"stage"`
	Candidates int    `json:"candidates"`
	Attempts   int    `json:"attempts"`
	Frames     int    `json:"frames"`
	Error      string `json:"error,omitempty"`
}

func runReplay(ctx context.Context, logger *slog.Logger, path, dirName, focusID string) error {
	d, err := spatial.ParseDirection(dirName)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	doc, err := htmldom.Parse(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if focusID != "" {
		id, ok := doc.Lookup(focusID)
		if !ok {
			return fmt.Errorf("replay: no element with id %q", focusID)
		}
		if err := doc.Focus(ctx, id, spatial.FocusDefault); err != nil {
			return fmt.Errorf("replay: focus %s: %w", focusID, err)
		}
	}

	res := replayResult{Direction: d.String()}
	if from := doc.Focused(); from != 0 {
		res.From = doc.Label(from)
	}
	cfg := shell.DefaultConfig()
	engine := spatial.New(spatial.Config{
		Page:    doc,
		Painter: doc,
		Params:  shell.NavigationParams(cfg.Navigation),
		Logger:  logger,
	})
	out := engine.Step(ctx, d)
	res.Moved, res.Stage = out.Moved, string(out.Stage)
	res.Candidates, res.Attempts, res.Frames = out.Candidates, out.Attempts, doc.Frames()
	if out.Target != 0 {
		res.To = doc.Label(out.Target)
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runStats(ctx context.Context, logger *slog.Logger, path string) error {
	if path == "" {
		return errors.New("stats: -telemetry or telemetry.path required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	db, err := dbopen.Open(path, dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer db.Close()

	mm := observability.NewMetricsManager(db, "", 0, 0, logger)
	defer mm.Close()
	summary, err := mm.NavSummary(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
