// Package spatial implements spatial keyboard-focus navigation: given the
// focused element and a direction, it picks the next focusable element on
// screen and moves focus there.
//
// The engine is written against the Page interface so the same algorithm
// drives a live browser tab and a recorded layout snapshot. It keeps no
// state between calls: candidates, geometry and the current focus are read
// fresh on every Navigate. It has no internal locking; callers serialize.
//
// Every failure degrades to "no movement". Navigate never returns an error;
// Step exposes what happened for logging and metrics.
package spatial

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// maxShadowDepth bounds the active-element descent through shadow roots.
const maxShadowDepth = 64

// Stage names how a Step ended.
type Stage string

const (
	StageEmpty        Stage = "empty"         // no candidate after recovery
	StageNoFocusInfo  Stage = "no-focus-info" // active element unreadable
	StageEditable     Stage = "editable"      // user is typing
	StageInitial      Stage = "initial"       // nothing focused, picked nearest to center
	StageDirectional  Stage = "directional"
	StageReadingOrder Stage = "reading-order"
	StageNone         Stage = "none" // nothing to move to
)

// Outcome records one navigation step.
type Outcome struct {
	Direction  Direction
	Moved      bool
	Stage      Stage
	Candidates int
	Attempts   int
	Target     NodeID
	Err        error
}

// Config configures an Engine.
type Config struct {
	Page Page

	// Painter waits for frames during empty-discovery recovery. Nil means
	// no wait.
	Painter Painter

	// Params holds the tunables. Zero fields take DefaultParams values.
	Params Params

	Logger *slog.Logger
}

// Engine runs spatial navigation over one page.
type Engine struct {
	page    Page
	painter Painter
	params  Params
	logger  *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	cfg.Params.defaults()
	if cfg.Painter == nil {
		cfg.Painter = PainterFunc(func(context.Context) error { return nil })
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		page:    cfg.Page,
		painter: cfg.Painter,
		params:  cfg.Params,
		logger:  cfg.Logger,
	}
}

// Params returns the parameters in effect.
func (e *Engine) Params() Params { return e.params }

// Navigate moves focus in direction d and reports whether focus landed on a
// new element.
func (e *Engine) Navigate(ctx context.Context, d Direction) bool {
	return e.Step(ctx, d).Moved
}

// Step is Navigate with the full outcome.
func (e *Engine) Step(ctx context.Context, d Direction) Outcome {
	out := e.step(ctx, d)
	e.logger.Debug("spatial: step",
		"direction", out.Direction.String(),
		"stage", out.Stage,
		"moved", out.Moved,
		"candidates", out.Candidates,
		"attempts", out.Attempts,
		"target", out.Target,
		"error", out.Err)
	return out
}

func (e *Engine) step(ctx context.Context, d Direction) Outcome {
	out := Outcome{Direction: d}

	cands, attempts, err := e.discover(ctx)
	out.Candidates, out.Attempts = len(cands), attempts
	if len(cands) == 0 {
		out.Stage, out.Err = StageEmpty, err
		return out
	}

	cur, err := e.DeepActive(ctx)
	if err != nil {
		out.Stage, out.Err = StageNoFocusInfo, err
		return out
	}
	if cur != nil && cur.Editable {
		out.Stage = StageEditable
		return out
	}

	var (
		next Candidate
		ok   bool
	)
	if cur == nil {
		vp, err := e.page.Viewport(ctx)
		if err != nil {
			out.Stage, out.Err = StageNone, fmt.Errorf("spatial: viewport: %w", err)
			return out
		}
		next, ok = NearestToCenter(cands, vp)
		out.Stage = StageInitial
	} else {
		f, err := e.page.Probe(ctx, cur.ID)
		if err != nil {
			out.Stage, out.Err = StageNone, fmt.Errorf("spatial: probe current: %w", err)
			return out
		}
		current := Candidate{ID: cur.ID, Rect: f.Rect, Center: f.Rect.Center()}
		next, ok = ChooseNext(current, cands, d, e.params)
		out.Stage = StageDirectional
		if !ok {
			next, ok = ReadingOrderNext(cur.ID, cands, d, e.params)
			out.Stage = StageReadingOrder
		}
	}
	if !ok {
		out.Stage = StageNone
		return out
	}

	out.Target = next.ID
	out.Moved, out.Err = e.apply(ctx, next.ID)
	return out
}

// DeepActive returns the innermost focused element, following active
// elements down through shadow roots. It returns nil when nothing is
// focused (the active element is the body).
func (e *Engine) DeepActive(ctx context.Context) (*Focused, error) {
	f, ok, err := e.page.ActiveElement(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("spatial: active element: %w", err)
	}
	if !ok {
		return nil, nil
	}
	for range maxShadowDepth {
		inner, ok, err := e.page.ActiveElement(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("spatial: shadow active element: %w", err)
		}
		if !ok || inner.ID == f.ID {
			break
		}
		f = inner
	}
	if f.Tag == "body" {
		return nil, nil
	}
	return &f, nil
}

// discover collects candidates, waking the page and retrying on the
// RecoveryFrames schedule while nothing is found.
func (e *Engine) discover(ctx context.Context) ([]Candidate, int, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		cands, err := Collect(ctx, e.page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempt + 1, ctx.Err()
			}
			lastErr = err
		}
		if len(cands) > 0 {
			return cands, attempt + 1, nil
		}
		if attempt >= len(e.params.RecoveryFrames) {
			return nil, attempt + 1, lastErr
		}

		e.wake(ctx)
		for range e.params.RecoveryFrames[attempt] {
			if err := e.painter.NextFrame(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, attempt + 1, ctx.Err()
				}
				lastErr = err
				break
			}
		}
	}
}

// wake hovers the configured viewport points so lazily rendered controls
// attach themselves.
func (e *Engine) wake(ctx context.Context) {
	vp, err := e.page.Viewport(ctx)
	if err != nil {
		e.logger.Debug("spatial: wake viewport", "error", err)
		return
	}
	for _, frac := range e.params.WakePoints {
		p := Point{
			X: clamp(math.Floor(vp.Width*frac.X), 0, vp.Width-1),
			Y: clamp(math.Floor(vp.Height*frac.Y), 0, vp.Height-1),
		}
		if err := e.page.Hover(ctx, p); err != nil {
			e.logger.Debug("spatial: wake hover", "x", p.X, "y", p.Y, "error", err)
		}
	}
}

func (e *Engine) apply(ctx context.Context, id NodeID) (bool, error) {
	if err := e.page.ScrollIntoView(ctx, id); err != nil {
		e.logger.Debug("spatial: scroll into view", "target", id, "error", err)
	}
	if err := e.page.Focus(ctx, id, FocusNoScroll); err != nil {
		if err := e.page.Focus(ctx, id, FocusDefault); err != nil {
			return false, fmt.Errorf("spatial: focus: %w", err)
		}
	}

	f, ok, err := e.page.ActiveElement(ctx, 0)
	if err != nil {
		return false, fmt.Errorf("spatial: verify focus: %w", err)
	}
	if ok && f.ID == id {
		return true, nil
	}
	// Targets inside a shadow root leave their host as document.activeElement.
	deep, err := e.DeepActive(ctx)
	if err != nil {
		return false, err
	}
	return deep != nil && deep.ID == id, nil
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}
