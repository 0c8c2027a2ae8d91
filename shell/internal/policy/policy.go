// Package policy keeps the kiosk on its site: top-level navigations and
// popups to foreign hosts are stopped and handed to the system opener, and
// browser permissions are denied unless granted by configuration.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Decision says where a URL goes.
type Decision int

const (
	Allow    Decision = iota // load in the kiosk
	External                 // hand to the system opener
	Drop                     // ignore
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case External:
		return "external"
	default:
		return "drop"
	}
}

// Opener opens a URL outside the kiosk.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

// CommandOpener runs Command with the URL as its only argument.
type CommandOpener struct {
	Command string
}

// SystemOpener returns the desktop's URL opener: xdg-open, or open on macOS.
func SystemOpener() CommandOpener {
	if runtime.GOOS == "darwin" {
		return CommandOpener{Command: "open"}
	}
	return CommandOpener{Command: "xdg-open"}
}

// Open starts the command and reaps it in the background.
func (o CommandOpener) Open(_ context.Context, rawURL string) error {
	cmd := exec.Command(o.Command, rawURL)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("policy: %s: %w", o.Command, err)
	}
	go cmd.Wait()
	return nil
}

// NopOpener drops external URLs.
type NopOpener struct{}

func (NopOpener) Open(context.Context, string) error { return nil }

// Config configures a Policy.
type Config struct {
	// Allowed reports whether a host stays in the kiosk.
	Allowed func(host string) bool

	Opener Opener

	// OnExternal, if set, observes every URL handed to the opener.
	OnExternal func(rawURL string, err error)

	Logger *slog.Logger
}

// Policy decides and enforces where URLs go.
type Policy struct {
	allowed    func(string) bool
	opener     Opener
	onExternal func(string, error)
	logger     *slog.Logger
}

// New creates a Policy. A nil Allowed keeps nothing in the kiosk; a nil
// Opener drops external URLs.
func New(cfg Config) *Policy {
	if cfg.Allowed == nil {
		cfg.Allowed = func(string) bool { return false }
	}
	if cfg.Opener == nil {
		cfg.Opener = NopOpener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Policy{
		allowed:    cfg.Allowed,
		opener:     cfg.Opener,
		onExternal: cfg.OnExternal,
		logger:     cfg.Logger,
	}
}

// Decide classifies rawURL. In-document schemes stay, web URLs stay when
// their host is allowed, script URLs are dropped and everything else (other
// hosts, mailto:, tel:) goes to the opener.
func (p *Policy) Decide(rawURL string) Decision {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Drop
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Hostname() != "" && p.allowed(u.Hostname()) {
			return Allow
		}
		return External
	case "about", "data", "blob":
		return Allow
	case "javascript", "file", "chrome", "devtools", "":
		return Drop
	default:
		return External
	}
}

// OpenExternal hands rawURL to the opener.
func (p *Policy) OpenExternal(ctx context.Context, rawURL string) {
	err := p.opener.Open(ctx, rawURL)
	if err != nil {
		p.logger.Warn("policy: open external", "url", rawURL, "error", err)
	} else {
		p.logger.Info("policy: opened external", "url", rawURL)
	}
	if p.onExternal != nil {
		p.onExternal(rawURL, err)
	}
}

// GuardNavigation stops top-level document loads the policy does not allow.
// Subframes load freely: players and consent dialogs live there. onBlocked
// runs after a main-frame load was stopped. Call stop to remove the guard.
func (p *Policy) GuardNavigation(page *rod.Page, onBlocked func(rawURL string)) (stop func() error, err error) {
	ctx, cancel := context.WithCancel(page.GetContext())
	wait := page.Context(ctx).EachEvent(func(e *proto.FetchRequestPaused) {
		go p.guard(page, e, onBlocked)
	})

	err = proto.FetchEnable{Patterns: []*proto.FetchRequestPattern{{
		URLPattern:   "*",
		ResourceType: proto.NetworkResourceTypeDocument,
		RequestStage: proto.FetchRequestStageRequest,
	}}}.Call(page)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("policy: fetch enable: %w", err)
	}
	go wait()

	return func() error {
		cancel()
		if err := (proto.FetchDisable{}).Call(page); err != nil {
			return fmt.Errorf("policy: fetch disable: %w", err)
		}
		return nil
	}, nil
}

// DecideNavigation classifies a document load of rawURL in frame. Loads in
// a frame other than main are allowed; an unknown frame counts as main.
func (p *Policy) DecideNavigation(frame, main proto.PageFrameID, rawURL string) Decision {
	if frame != "" && main != "" && frame != main {
		return Allow
	}
	return p.Decide(rawURL)
}

func (p *Policy) guard(page *rod.Page, e *proto.FetchRequestPaused, onBlocked func(string)) {
	rawURL := e.Request.URL
	d := p.DecideNavigation(e.FrameID, page.FrameID, rawURL)
	if d == Allow {
		if err := (proto.FetchContinueRequest{RequestID: e.RequestID}).Call(page); err != nil {
			p.logger.Debug("policy: continue navigation", "url", rawURL, "error", err)
		}
		return
	}

	if d == External {
		p.OpenExternal(context.Background(), rawURL)
	} else {
		p.logger.Info("policy: dropped navigation", "url", rawURL)
	}
	err := proto.FetchFailRequest{
		RequestID:   e.RequestID,
		ErrorReason: proto.NetworkErrorReasonBlockedByClient,
	}.Call(page)
	if err != nil {
		p.logger.Debug("policy: fail navigation", "url", rawURL, "error", err)
	}
	if onBlocked != nil {
		onBlocked(rawURL)
	}
}

// Route sends a popup URL where it belongs: allowed URLs are loaded in
// place of the current page, external ones go to the opener.
func (p *Policy) Route(ctx context.Context, page *rod.Page, rawURL string) {
	switch p.Decide(rawURL) {
	case Allow:
		if err := page.Context(ctx).Navigate(rawURL); err != nil {
			p.logger.Warn("policy: follow popup", "url", rawURL, "error", err)
		}
	case External:
		p.OpenExternal(ctx, rawURL)
	default:
		p.logger.Info("policy: dropped popup", "url", rawURL)
	}
}

// WatchPopups closes every page target opened by page and routes its URL.
// The page-side hook catches most popups before they exist; this catches
// the rest. It returns when ctx is done.
func (p *Policy) WatchPopups(ctx context.Context, b *rod.Browser, page *rod.Page) error {
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("policy: discover targets: %w", err)
	}

	// Popups often start on about:blank and navigate right after.
	pending := make(map[proto.TargetTargetID]bool)
	take := func(info *proto.TargetTargetInfo) {
		popup, err := b.PageFromTarget(info.TargetID)
		if err == nil {
			err = popup.Close()
		}
		if err != nil {
			p.logger.Debug("policy: close popup", "target", info.TargetID, "error", err)
		}
		p.Route(ctx, page, info.URL)
	}

	b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			info := e.TargetInfo
			if string(info.Type) != "page" || info.OpenerID != page.TargetID {
				return
			}
			if info.URL == "" || info.URL == "about:blank" {
				pending[info.TargetID] = true
				return
			}
			take(info)
		},
		func(e *proto.TargetTargetInfoChanged) {
			info := e.TargetInfo
			if !pending[info.TargetID] || info.URL == "" || info.URL == "about:blank" {
				return
			}
			delete(pending, info.TargetID)
			take(info)
		},
		func(e *proto.TargetTargetDestroyed) {
			delete(pending, e.TargetID)
		},
	)()
	return nil
}

// GrantOnly grants the named permissions to origin and denies all others.
func GrantOnly(b *rod.Browser, origin string, names []string) error {
	perms := make([]proto.BrowserPermissionType, 0, len(names))
	for _, n := range names {
		perms = append(perms, proto.BrowserPermissionType(n))
	}
	err := proto.BrowserGrantPermissions{Permissions: perms, Origin: origin}.Call(b)
	if err != nil {
		return fmt.Errorf("policy: grant permissions: %w", err)
	}
	return nil
}

// FocusStyle injects a :focus-visible outline into every new document.
func FocusStyle(page *rod.Page, outline string) (remove func() error, err error) {
	css := fmt.Sprintf(":focus-visible { outline: %s !important; outline-offset: 2px; }", outline)
	js := fmt.Sprintf(`(() => {
		const add = () => {
			const s = document.createElement('style');
			s.textContent = %q;
			(document.head || document.documentElement).appendChild(s);
		};
		if (document.documentElement) add();
		else document.addEventListener('DOMContentLoaded', add, { once: true });
	})();`, css)
	remove, err = page.EvalOnNewDocument(js)
	if err != nil {
		return nil, fmt.Errorf("policy: focus style: %w", err)
	}
	return remove, nil
}
