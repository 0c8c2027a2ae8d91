// Package router turns raw key events into spatial navigation, native key
// replays and focus cycling for one browser window, and owns the small
// per-window state that lets replayed keys bypass it.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/tvshell/kit"
	"github.com/hazyhaar/tvshell/spatial"
)

// DefaultRetryDelay is the pause between the fallback Tab and the retry.
const DefaultRetryDelay = 30 * time.Millisecond

// Host is the window the router drives.
type Host interface {
	// Navigate runs one spatial navigation step in the page.
	Navigate(ctx context.Context, d spatial.Direction) spatial.Outcome
	// Replay sends s as a native key that the page and the router let through.
	Replay(ctx context.Context, s Stroke) error
	// Press sends s as a plain key.
	Press(ctx context.Context, s Stroke) error
	// DeepActiveEditable reports whether the deepest focused element takes text.
	DeepActiveEditable(ctx context.Context) (bool, error)
	// Quit closes the shell.
	Quit(ctx context.Context)
}

// Config configures a Router.
type Config struct {
	Keymap     Keymap
	RetryDelay time.Duration
	Logger     *slog.Logger

	// OnResult, if set, observes every handled event.
	OnResult func(Result)
}

func (c *Config) defaults() {
	if c.Keymap.Directions == nil {
		c.Keymap = DefaultKeymap()
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Router classifies events and acts on them. One Router serves any number of
// windows; per-window state lives in State.
type Router struct {
	keymap     Keymap
	retryDelay time.Duration
	logger     *slog.Logger
	onResult   func(Result)
}

// New creates a Router.
func New(cfg Config) *Router {
	cfg.defaults()
	return &Router{
		keymap:     cfg.Keymap,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		onResult:   cfg.OnResult,
	}
}

// Keymap returns the classification tables in use.
func (r *Router) Keymap() Keymap { return r.keymap }

// State is the router state of one window. The mutex is held for a whole
// Handle, so events of a window are processed one at a time in order.
type State struct {
	host Host

	mu       sync.Mutex
	suppress int // replayed key presses still to let through
}

// NewState binds a State to its window.
func NewState(h Host) *State { return &State{host: h} }

// Pending returns how many replayed key presses are still expected.
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppress
}

// Result describes how one event was handled.
type Result struct {
	Class    Class
	Consumed bool // the router acted on the event
	Bypassed bool // let through as a replayed key
	Moved    bool // navigation moved focus (after the retry, if any)
	Retried  bool // the Tab fallback ran
	Outcome  spatial.Outcome
	Elapsed  time.Duration
}

// Handle processes one event for the window owning st. Only events whose
// context source is kit.SourceHook can be a replayed key coming back;
// events tagged kit.SourceRemote never use up a suppression slot.
func (r *Router) Handle(ctx context.Context, st *State, e Event) Result {
	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	res := r.handle(ctx, st, e)
	res.Elapsed = time.Since(start)
	r.report(e, res)
	return res
}

// Navigate runs a direction request that did not come from a key, such as
// the HTTP remote, through the same fallback as an arrow key.
func (r *Router) Navigate(ctx context.Context, st *State, d spatial.Direction) Result {
	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	res := Result{Class: Class{Action: ActionNavigate, Direction: d}, Consumed: true}
	r.navigate(ctx, st, d, &res)
	res.Elapsed = time.Since(start)
	r.report(Event{Key: "remote:" + d.String()}, res)
	return res
}

func (r *Router) handle(ctx context.Context, st *State, e Event) Result {
	c := r.keymap.Classify(e)
	res := Result{Class: c}

	if c.Action == ActionQuit {
		res.Consumed = r.quit(ctx, st)
		return res
	}
	if c.Action == ActionPass && !e.KeyDown() {
		return res
	}

	// Replayed keys come back through the page hook like any other key.
	if st.suppress > 0 && kit.GetSource(ctx) == kit.SourceHook &&
		e.KeyDown() && !e.Alt && !e.Ctrl && !e.Meta {
		st.suppress--
		res.Class = Class{Action: ActionPass}
		res.Bypassed = true
		return res
	}

	switch c.Action {
	case ActionReplay:
		st.suppress++
		if err := st.host.Replay(ctx, c.Stroke); err != nil {
			st.suppress--
			r.logger.Warn("router: replay", "stroke", c.Stroke.String(), "error", err)
		}
		res.Consumed = true
	case ActionPress:
		if err := st.host.Press(ctx, c.Stroke); err != nil {
			r.logger.Warn("router: press", "stroke", c.Stroke.String(), "error", err)
		}
		res.Consumed = true
	case ActionNavigate:
		res.Consumed = true
		r.navigate(ctx, st, c.Direction, &res)
	}
	return res
}

// navigate runs the engine and, when it reports no movement, sends one Tab,
// waits RetryDelay and retries exactly once. The fallback is not
// unconditional: a miss inside a text field (StageEditable) sends no Tab.
func (r *Router) navigate(ctx context.Context, st *State, d spatial.Direction, res *Result) {
	out := st.host.Navigate(ctx, d)
	res.Outcome, res.Moved = out, out.Moved
	// Arrows inside a text field belong to the caret; tabbing out would
	// steal focus from the user.
	if out.Moved || out.Stage == spatial.StageEditable {
		return
	}

	if err := st.host.Press(ctx, StrokeTab); err != nil {
		r.logger.Warn("router: fallback tab", "direction", d.String(), "error", err)
		return
	}
	t := time.NewTimer(r.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	res.Retried = true
	out = st.host.Navigate(ctx, d)
	res.Outcome, res.Moved = out, out.Moved
}

// quit closes the shell unless the user is typing. When editability cannot
// be read, it quits.
func (r *Router) quit(ctx context.Context, st *State) bool {
	editable, err := st.host.DeepActiveEditable(ctx)
	if err != nil {
		r.logger.Warn("router: editable check failed, quitting", "error", err)
	} else if editable {
		return false
	}
	r.logger.Info("router: quit requested")
	st.host.Quit(ctx)
	return true
}

func (r *Router) report(e Event, res Result) {
	if res.Class.Action == ActionPass && !res.Bypassed {
		return
	}
	r.logger.Debug("router: handled",
		"key", e.Key,
		"code", e.Code,
		"action", res.Class.Action.String(),
		"bypassed", res.Bypassed,
		"moved", res.Moved,
		"retried", res.Retried,
		"elapsed", res.Elapsed)
	if r.onResult != nil {
		r.onResult(res)
	}
}
