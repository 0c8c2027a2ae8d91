package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// OpenPage creates a stealth page with the kiosk user agent. The page is
// blank; callers install their hooks before calling Load.
func OpenPage(b *rod.Browser) (*rod.Page, error) {
	if b == nil {
		return nil, ErrClosed
	}
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	v, err := proto.BrowserGetVersion{}.Call(b)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: version: %w", err)
	}
	ua := proto.NetworkSetUserAgentOverride{UserAgent: KioskUserAgent(v.UserAgent)}
	if err := ua.Call(page); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: user agent: %w", err)
	}
	return page, nil
}

// Load navigates page to pageURL and waits for the load event, bounded by
// timeout. A slow load is not an error: streaming sites keep loading.
func Load(ctx context.Context, page *rod.Page, pageURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

var (
	electronToken = regexp.MustCompile(`Electron/[\d.]+\s?`)
	spaces        = regexp.MustCompile(`\s{2,}`)
)

// KioskUserAgent strips the tokens some sites treat as bots from ua.
func KioskUserAgent(ua string) string {
	ua = strings.ReplaceAll(ua, "HeadlessChrome/", "Chrome/")
	ua = electronToken.ReplaceAllString(ua, "")
	return strings.TrimSpace(spaces.ReplaceAllString(ua, " "))
}
