package shell

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/tvshell/observability"
	"github.com/hazyhaar/tvshell/router"
	"github.com/hazyhaar/tvshell/shell/internal/browser"
	"github.com/hazyhaar/tvshell/shell/internal/cdpdom"
	"github.com/hazyhaar/tvshell/shell/internal/keyhook"
	"github.com/hazyhaar/tvshell/shell/internal/policy"
	"github.com/hazyhaar/tvshell/spatial"
)

// blockedSettle is how long a blocked navigation gets to land on Chrome's
// error page before the window goes back.
const blockedSettle = 300 * time.Millisecond

// strokeKeys maps router stroke names to Rod keys.
var strokeKeys = map[string]input.Key{
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Tab":        input.Tab,
	"Enter":      input.Enter,
	"Escape":     input.Escape,
}

// Window is one kiosk page with its key hook, focus engine and router
// state. It implements router.Host.
type Window struct {
	shell  *Shell
	page   *rod.Page
	dom    *cdpdom.Page
	engine *spatial.Engine
	hook   *keyhook.Hook
	state  *router.State
	logger *slog.Logger

	stopGuard   func() error
	removeStyle func() error

	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

var _ router.Host = (*Window)(nil)

// openWindow creates the page, installs every hook before the first
// document, then loads the site.
func openWindow(ctx context.Context, s *Shell, b *rod.Browser) (_ *Window, err error) {
	page, err := browser.OpenPage(b)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &Window{
		shell:  s,
		page:   page,
		dom:    cdpdom.New(page),
		logger: s.logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	defer func() {
		if err != nil {
			cancel()
			w.teardown()
		}
	}()

	if err := w.dom.Install(); err != nil {
		return nil, err
	}
	if w.removeStyle, err = policy.FocusStyle(page, s.cfg.Site.FocusOutline); err != nil {
		return nil, err
	}

	keys, codes := s.router.Keymap().Consumable()
	w.hook, err = keyhook.Install(wctx, page, keyhook.Config{
		Keys:   keys,
		Codes:  codes,
		Buffer: s.cfg.Navigation.KeyBuffer,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	if w.stopGuard, err = s.policy.GuardNavigation(page, w.recoverBlocked); err != nil {
		return nil, err
	}

	origin, err := siteOrigin(s.cfg.Site.URL)
	if err != nil {
		return nil, err
	}
	if err := policy.GrantOnly(b, origin, s.cfg.Site.GrantPermissions); err != nil {
		return nil, err
	}
	s.logEvent(ctx, observability.EventPermissions, strings.Join(s.cfg.Site.GrantPermissions, ","), true)

	go func() {
		if err := s.policy.WatchPopups(wctx, b, page); err != nil {
			w.logger.Warn("shell: popup watch", "error", err)
		}
	}()

	w.engine = spatial.New(spatial.Config{
		Page:    w.dom,
		Painter: w.dom,
		Params:  s.params,
		Logger:  s.logger,
	})
	w.state = router.NewState(w)
	w.running = true
	go w.run(wctx)

	if err := browser.Load(ctx, page, s.cfg.Site.URL, s.cfg.Browser.LoadTimeout); err != nil {
		// The page stays up: the site may come back, and quit still works.
		w.logger.Warn("shell: load site", "url", s.cfg.Site.URL, "error", err)
	}
	w.logger.Info("shell: window open", "url", s.cfg.Site.URL)
	return w, nil
}

func siteOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("shell: site url: %w", err)
	}
	return u.Scheme + "://" + u.Host, nil
}

// run feeds hook events to the router, one at a time, until the hook stops.
func (w *Window) run(ctx context.Context) {
	defer close(w.done)
	keys, opens := w.hook.Keys(), w.hook.Opens()
	for keys != nil || opens != nil {
		select {
		case e, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			w.shell.router.Handle(ctx, w.state, e)
		case u, ok := <-opens:
			if !ok {
				opens = nil
				continue
			}
			w.shell.policy.Route(ctx, w.page, u)
		}
	}
}

// recoverBlocked leaves Chrome's error page after a stopped navigation.
func (w *Window) recoverBlocked(string) {
	time.AfterFunc(blockedSettle, func() {
		info, err := w.page.Info()
		if err != nil || !strings.HasPrefix(info.URL, "chrome-error://") {
			return
		}
		if err := w.page.NavigateBack(); err != nil {
			w.logger.Debug("shell: back from blocked navigation", "error", err)
		}
	})
}

// Navigate runs one engine step.
func (w *Window) Navigate(ctx context.Context, d spatial.Direction) spatial.Outcome {
	return w.engine.Step(ctx, d)
}

// Replay arms the page hook for one stroke, then sends it.
func (w *Window) Replay(ctx context.Context, s router.Stroke) error {
	if err := w.hook.Arm(ctx, 1); err != nil {
		return err
	}
	return w.Press(ctx, s)
}

// Press sends s as a native key press.
func (w *Window) Press(ctx context.Context, s router.Stroke) error {
	key, ok := strokeKeys[s.Key]
	if !ok {
		return fmt.Errorf("shell: no key for stroke %s", s)
	}
	kb := w.page.Context(ctx).Keyboard
	if !s.Shift {
		return kb.Type(key)
	}
	if err := kb.Press(input.ShiftLeft); err != nil {
		return fmt.Errorf("shell: press shift: %w", err)
	}
	err := kb.Type(key)
	if rerr := kb.Release(input.ShiftLeft); err == nil && rerr != nil {
		err = fmt.Errorf("shell: release shift: %w", rerr)
	}
	return err
}

// DeepActiveEditable reports whether the focused element takes text.
func (w *Window) DeepActiveEditable(ctx context.Context) (bool, error) {
	return w.dom.DeepActiveEditable(ctx)
}

// Quit ends the session.
func (w *Window) Quit(ctx context.Context) {
	w.shell.logEvent(ctx, observability.EventQuit, "", true)
	w.shell.Quit()
}

// Engine returns the window's focus engine.
func (w *Window) Engine() *spatial.Engine { return w.engine }

// Close stops the hooks and closes the page.
func (w *Window) Close() error {
	w.cancel()
	return w.teardown()
}

func (w *Window) teardown() error {
	if w.hook != nil {
		w.hook.Close()
	}
	if w.running {
		<-w.done
	}
	if w.stopGuard != nil {
		if err := w.stopGuard(); err != nil {
			w.logger.Debug("shell: stop navigation guard", "error", err)
		}
	}
	if w.removeStyle != nil {
		w.removeStyle()
	}
	w.dom.Uninstall()
	return w.page.Close()
}
