// Package keyhook captures key presses inside the page and delivers them to
// Go. A capture-phase listener, installed in every document, swallows the
// keys the router acts on and forwards every keydown through a CDP binding.
// The same binding reports popups the page tried to open.
package keyhook

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tvshell/router"
)

//go:embed keyhook.js
var hookJS string

// Binding is the name of the page-to-Go binding.
const Binding = "__tvshell_key"

// Config configures a Hook.
type Config struct {
	// Keys are key values swallowed outside text fields, Codes are
	// physical key codes swallowed everywhere. See router.Keymap.Consumable.
	Keys  []string
	Codes []string

	// Buffer is the capacity of the key channel. Default: 64.
	Buffer int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type message struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
	router.Event
}

// Hook is the installed key hook of one page.
type Hook struct {
	page    *rod.Page
	logger  *slog.Logger
	keys    chan router.Event
	opens   chan string
	remove  func() error
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Int64
}

func newHook(cfg Config) *Hook {
	cfg.defaults()
	return &Hook{
		logger: cfg.Logger,
		keys:   make(chan router.Event, cfg.Buffer),
		opens:  make(chan string, 8),
		done:   make(chan struct{}),
	}
}

// Install adds the binding, registers the hook for every new document and
// runs it in the current one. Events flow until ctx is done or Close.
func Install(ctx context.Context, page *rod.Page, cfg Config) (*Hook, error) {
	h := newHook(cfg)
	h.page = page

	if err := (proto.RuntimeAddBinding{Name: Binding}).Call(page); err != nil {
		return nil, fmt.Errorf("keyhook: add binding: %w", err)
	}
	js, err := script(cfg)
	if err != nil {
		return nil, err
	}
	remove, err := page.EvalOnNewDocument(js)
	if err != nil {
		return nil, fmt.Errorf("keyhook: register: %w", err)
	}
	h.remove = remove
	if _, err := page.Eval(`() => { ` + js + ` }`); err != nil {
		h.logger.Warn("keyhook: inject into current document", "error", err)
	}

	ctx, h.cancel = context.WithCancel(ctx)
	go h.listen(ctx)
	return h, nil
}

// script prefixes the hook with its configuration.
func script(cfg Config) (string, error) {
	keys, codes := cfg.Keys, cfg.Codes
	if keys == nil {
		keys = []string{}
	}
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(map[string]any{"binding": Binding, "keys": keys, "codes": codes})
	if err != nil {
		return "", fmt.Errorf("keyhook: config: %w", err)
	}
	return "window.__tvshellKeys = " + string(b) + ";\n" + hookJS, nil
}

// Keys delivers keydown events in page order. It is closed when the hook
// stops.
func (h *Hook) Keys() <-chan router.Event { return h.keys }

// Opens delivers absolute URLs of popups the page tried to open.
func (h *Hook) Opens() <-chan string { return h.opens }

// Dropped returns how many key events were lost to a full buffer.
func (h *Hook) Dropped() int64 { return h.dropped.Load() }

// Arm lets the next n plain keydowns reach the page untouched.
func (h *Hook) Arm(ctx context.Context, n int) error {
	_, err := h.page.Context(ctx).Eval(`(n) => { if (window.__tvshellHook) window.__tvshellHook.arm(n); }`, n)
	if err != nil {
		return fmt.Errorf("keyhook: arm: %w", err)
	}
	return nil
}

// Close stops event delivery and the injection into new documents.
func (h *Hook) Close() error {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	if h.remove != nil {
		return h.remove()
	}
	return nil
}

func (h *Hook) listen(ctx context.Context) {
	defer close(h.done)
	defer close(h.keys)
	defer close(h.opens)

	h.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != Binding {
			return
		}
		h.deliver(e.Payload)
	})()
}

func (h *Hook) deliver(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		h.logger.Warn("keyhook: parse binding payload", "error", err)
		return
	}
	switch m.Kind {
	case "key":
		select {
		case h.keys <- m.Event:
		default:
			h.dropped.Add(1)
			h.logger.Warn("keyhook: key buffer full, dropping", "key", m.Key, "code", m.Code)
		}
	case "open":
		select {
		case h.opens <- m.URL:
		default:
			h.logger.Warn("keyhook: open buffer full, dropping", "url", m.URL)
		}
	default:
		h.logger.Debug("keyhook: unknown message", "kind", m.Kind)
	}
}
