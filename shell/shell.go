// Package shell runs the kiosk: one Chrome window on the configured site,
// its key presses routed into spatial focus navigation, links to foreign
// hosts handed to the desktop, and an optional HTTP remote feeding the same
// router.
//
// Chrome is a disposable component. When the browser manager recycles it,
// the window is torn down and rebuilt on the new process.
package shell

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/tvshell/dbopen"
	"github.com/hazyhaar/tvshell/idgen"
	"github.com/hazyhaar/tvshell/observability"
	"github.com/hazyhaar/tvshell/remote"
	"github.com/hazyhaar/tvshell/router"
	"github.com/hazyhaar/tvshell/shell/internal/browser"
	"github.com/hazyhaar/tvshell/shell/internal/config"
	"github.com/hazyhaar/tvshell/shell/internal/policy"
	"github.com/hazyhaar/tvshell/spatial"
)

// Shell is the top-level orchestrator. Create one per kiosk.
type Shell struct {
	cfg     *config.Config
	session string
	mgr     *browser.Manager
	router  *router.Router
	policy  *policy.Policy
	params  spatial.Params
	logger  *slog.Logger

	db           *sql.DB
	metrics      *observability.MetricsManager
	events       *observability.EventLogger
	stopSampling context.CancelFunc

	mu  sync.Mutex
	win *Window

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Shell from configuration. A nil cfg means DefaultConfig.
func New(cfg *Config, logger *slog.Logger) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Shell{
		cfg:     cfg,
		session: idgen.Prefixed("ses_", idgen.Default)(),
		logger:  logger,
		quit:    make(chan struct{}),
	}
	s.logger = logger.With("session", s.session)

	s.mgr = browser.NewManager(browser.Config{
		Bin:             cfg.Browser.Bin,
		RemoteURL:       cfg.Browser.Remote,
		Headless:        cfg.Browser.Headless,
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		UserDataDir:     cfg.Browser.UserDataDir,
		WindowWidth:     cfg.Browser.WindowWidth,
		WindowHeight:    cfg.Browser.WindowHeight,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		MonitorInterval: cfg.Browser.MonitorInterval,
		Logger:          s.logger,
	})

	keymap := router.DefaultKeymap()
	if len(cfg.Keys.Quit) > 0 {
		keymap.Quit = cfg.Keys.Quit
	}
	s.router = router.New(router.Config{
		Keymap:     keymap,
		RetryDelay: cfg.Navigation.RetryDelay,
		Logger:     s.logger,
		OnResult:   s.recordResult,
	})

	s.policy = policy.New(policy.Config{
		Allowed:    cfg.Site.Allowed,
		Opener:     opener(cfg.Site.ExternalOpener),
		OnExternal: s.recordExternal,
		Logger:     s.logger,
	})

	s.params = NavigationParams(cfg.Navigation)
	return s
}

// NavigationParams maps the navigation section onto engine parameters.
// Zero fields keep the engine defaults.
func NavigationParams(nc NavigationConfig) spatial.Params {
	return spatial.Params{
		OverlapThreshold:    nc.OverlapThreshold,
		PerpendicularWeight: nc.PerpendicularWeight,
		AxisTolerance:       nc.AxisTolerance,
		RowTolerance:        nc.RowTolerance,
		RecoveryFrames:      nc.RecoveryFrames,
	}
}

func opener(name string) policy.Opener {
	switch name {
	case "":
		return policy.SystemOpener()
	case "none":
		return policy.NopOpener{}
	default:
		return policy.CommandOpener{Command: name}
	}
}

// Session returns the session id tagging logs and telemetry.
func (s *Shell) Session() string { return s.session }

// Run starts the browser and the window and blocks until ctx is done or a
// quit key was pressed.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.openTelemetry(ctx); err != nil {
		return err
	}
	defer s.closeTelemetry()
	s.logEvent(ctx, observability.EventSessionStart, s.cfg.Site.URL, true)

	b, err := s.mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("shell: start browser: %w", err)
	}
	defer s.mgr.Close()

	s.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: s.closeWindow,
		AfterRecycle: func(b *rod.Browser) {
			err := s.openWindow(ctx, b)
			if err != nil {
				s.logger.Error("shell: reopen window after recycle", "error", err)
			}
			s.logEvent(ctx, observability.EventRecycle, errString(err), err == nil)
		},
	})

	if err := s.openWindow(ctx, b); err != nil {
		return err
	}
	defer s.closeWindow()

	if s.cfg.Remote.Addr != "" {
		srv := remote.New(s, remote.Config{
			Addr:      s.cfg.Remote.Addr,
			RateLimit: s.cfg.Remote.RateLimit,
			Session:   s.session,
			Logger:    s.logger,
		})
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("shell: remote server", "error", err)
			}
		}()
	}

	reason := "quit"
	select {
	case <-ctx.Done():
		reason = "stopped"
	case <-s.quit:
	}
	s.logger.Info("shell: shutting down", "reason", reason)
	s.logEvent(context.WithoutCancel(ctx), observability.EventSessionEnd, reason, true)
	return nil
}

// Quit makes Run return. It is safe to call more than once.
func (s *Shell) Quit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Window returns the open window, or nil between recycles.
func (s *Shell) Window() *Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win
}

// Key routes e as if it was pressed in the window.
func (s *Shell) Key(ctx context.Context, e router.Event) (router.Result, error) {
	w := s.Window()
	if w == nil {
		return router.Result{}, remote.ErrUnavailable
	}
	return s.router.Handle(ctx, w.state, e), nil
}

// Navigate runs one direction request through the router fallback.
func (s *Shell) Navigate(ctx context.Context, d spatial.Direction) (router.Result, error) {
	w := s.Window()
	if w == nil {
		return router.Result{}, remote.ErrUnavailable
	}
	return s.router.Navigate(ctx, w.state, d), nil
}

// NavStats counts navigation steps by stage and outcome since the given time.
func (s *Shell) NavStats(ctx context.Context, since time.Time) (map[string]int, error) {
	if s.metrics == nil {
		return nil, remote.ErrNoStats
	}
	s.metrics.Flush()
	return s.metrics.NavSummary(ctx, since)
}

func (s *Shell) openWindow(ctx context.Context, b *rod.Browser) error {
	w, err := openWindow(ctx, s, b)
	if err != nil {
		return fmt.Errorf("shell: open window: %w", err)
	}
	s.mu.Lock()
	s.win = w
	s.mu.Unlock()
	return nil
}

func (s *Shell) closeWindow() {
	s.mu.Lock()
	w := s.win
	s.win = nil
	s.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		s.logger.Debug("shell: close window", "error", err)
	}
}

func (s *Shell) openTelemetry(ctx context.Context) error {
	tc := s.cfg.Telemetry
	if tc.Path == "" {
		return nil
	}
	db, err := dbopen.Open(tc.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("shell: telemetry: %w", err)
	}
	s.db = db
	s.metrics = observability.NewMetricsManager(db, s.session, 0, tc.FlushInterval, s.logger)
	s.events = observability.NewEventLogger(db, s.session, s.logger)

	if n, err := s.metrics.Cleanup(ctx, tc.Retention); err != nil {
		s.logger.Warn("shell: telemetry cleanup", "error", err)
	} else if n > 0 {
		s.logger.Info("shell: telemetry cleanup", "removed", n)
	}

	sampler := observability.NewSampler(s.metrics, tc.SampleInterval)
	sampler.AddGauge(observability.MetricBrowserHeapMB, func(ctx context.Context) (float64, error) {
		used, err := s.mgr.HeapUsage(ctx)
		return float64(used) / 1024 / 1024, err
	})
	sctx, stop := context.WithCancel(ctx)
	s.stopSampling = stop
	go sampler.Run(sctx)

	s.logger.Info("shell: telemetry enabled", "path", tc.Path)
	return nil
}

func (s *Shell) closeTelemetry() {
	if s.db == nil {
		return
	}
	s.stopSampling()
	s.metrics.Close()
	if err := s.db.Close(); err != nil {
		s.logger.Debug("shell: close telemetry", "error", err)
	}
}

func (s *Shell) logEvent(ctx context.Context, typ, detail string, ok bool) {
	if s.events == nil {
		return
	}
	s.events.Log(ctx, observability.SessionEvent{Type: typ, Detail: detail, Success: ok})
}

func (s *Shell) recordResult(res router.Result) {
	if s.metrics == nil || res.Class.Action != router.ActionNavigate {
		return
	}
	s.metrics.RecordNav(res.Class.Direction.String(), string(res.Outcome.Stage), res.Moved, res.Retried, res.Elapsed)
}

func (s *Shell) recordExternal(rawURL string, err error) {
	s.logEvent(context.Background(), observability.EventExternalLink, rawURL, err == nil)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
