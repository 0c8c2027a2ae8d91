// Package remote serves the optional HTTP remote control: key presses and
// direction requests from another device, fed into the same router as the
// keyboard.
//
//	GET  /healthz
//	POST /v1/keys              {"key":"ArrowLeft","code":"ArrowLeft"}
//	POST /v1/navigate/{dir}    left | right | up | down
//	GET  /v1/stats             navigation outcomes of the last hour
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/tvshell/kit"
	"github.com/hazyhaar/tvshell/router"
	"github.com/hazyhaar/tvshell/shield"
	"github.com/hazyhaar/tvshell/spatial"
)

var (
	// ErrUnavailable is returned by a Controller while no window is open.
	ErrUnavailable = errors.New("remote: no window")
	// ErrNoStats is returned by a StatsSource without telemetry.
	ErrNoStats = errors.New("remote: telemetry disabled")
)

// Controller is the shell side of the remote.
type Controller interface {
	Key(ctx context.Context, e router.Event) (router.Result, error)
	Navigate(ctx context.Context, d spatial.Direction) (router.Result, error)
}

// StatsSource is implemented by controllers that keep navigation telemetry.
type StatsSource interface {
	NavStats(ctx context.Context, since time.Time) (map[string]int, error)
}

// Config configures a Server.
type Config struct {
	Addr string

	// RateLimit is the number of requests per minute per client. Zero
	// disables limiting.
	RateLimit int

	// Session is the shell session id stamped on every request.
	Session string

	Logger *slog.Logger
}

// Server is the remote-control HTTP server.
type Server struct {
	addr    string
	ctl     Controller
	limiter *shield.RateLimiter
	logger  *slog.Logger
	handler http.Handler

	key      kit.Endpoint
	navigate kit.Endpoint
}

// KeyRequest is the body of POST /v1/keys.
type KeyRequest struct {
	Key   string `json:"key"`
	Code  string `json:"code"`
	Alt   bool   `json:"alt"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
}

// Response reports how a request was handled.
type Response struct {
	Action    string  `json:"action"`
	Consumed  bool    `json:"consumed"`
	Moved     bool    `json:"moved"`
	Retried   bool    `json:"retried,omitempty"`
	Stage     string  `json:"stage,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

func response(res router.Result) Response {
	return Response{
		Action:    res.Class.Action.String(),
		Consumed:  res.Consumed,
		Moved:     res.Moved,
		Retried:   res.Retried,
		Stage:     string(res.Outcome.Stage),
		ElapsedMS: float64(res.Elapsed.Microseconds()) / 1000,
	}
}

// New creates a Server for ctl.
func New(ctl Controller, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{addr: cfg.Addr, ctl: ctl, logger: cfg.Logger}
	if cfg.RateLimit > 0 {
		s.limiter = shield.NewRateLimiter(cfg.RateLimit, time.Minute)
	}

	wrap := func(op string) kit.Middleware {
		return kit.Chain(kit.WithSession(cfg.Session), kit.Logging(s.logger, op))
	}
	s.key = wrap("remote.key")(func(ctx context.Context, req any) (any, error) {
		return ctl.Key(ctx, req.(router.Event))
	})
	s.navigate = wrap("remote.navigate")(func(ctx context.Context, req any) (any, error) {
		return ctl.Navigate(ctx, req.(spatial.Direction))
	})

	r := chi.NewRouter()
	for _, mw := range shield.RemoteStack(s.limiter) {
		r.Use(mw)
	}
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/keys", s.handleKey)
		r.Post("/navigate/{dir}", s.handleNavigate)
		r.Get("/stats", s.handleStats)
	})
	s.handler = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if s.limiter != nil {
		s.limiter.StartGC(ctx.Done(), 5*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("remote: listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Key == "" && req.Code == "" {
		writeError(w, http.StatusBadRequest, errors.New("key or code required"))
		return
	}
	ev := router.Event{
		Type: "keydown", Key: req.Key, Code: req.Code,
		Alt: req.Alt, Ctrl: req.Ctrl, Meta: req.Meta, Shift: req.Shift,
	}
	s.serve(w, r, s.key, ev)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	d, err := spatial.ParseDirection(chi.URLParam(r, "dir"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.serve(w, r, s.navigate, d)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	switch {
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		shield.GetLogger(r.Context()).Error("remote: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, response(resp.(router.Result)))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	src, ok := s.ctl.(StatsSource)
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoStats)
		return
	}
	stats, err := src.NavStats(r.Context(), time.Now().Add(-time.Hour))
	if errors.Is(err, ErrNoStats) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
