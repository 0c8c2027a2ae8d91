package shell

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/tvshell/remote"
	"github.com/hazyhaar/tvshell/spatial"
	"github.com/hazyhaar/tvshell/spatial/htmldom"
)

// Capture writes the window's current layout as a snapshot that
// htmldom.Parse reads back, for replaying navigation offline.
func (w *Window) Capture(ctx context.Context, out io.Writer) error {
	c, err := Record(ctx, w.dom)
	if err != nil {
		return err
	}
	return htmldom.Encode(out, c)
}

// CaptureSite starts the browser, loads the site, gives it settle to render
// and writes its layout to out.
func (s *Shell) CaptureSite(ctx context.Context, out io.Writer, settle time.Duration) error {
	b, err := s.mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("shell: start browser: %w", err)
	}
	defer s.mgr.Close()
	if err := s.openWindow(ctx, b); err != nil {
		return err
	}
	defer s.closeWindow()

	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	w := s.Window()
	if w == nil {
		return remote.ErrUnavailable
	}
	return w.Capture(ctx, out)
}

// Record measures every focusable element of page, eligible or not, along
// with the focused element and the viewport.
func Record(ctx context.Context, page spatial.Page) (htmldom.Capture, error) {
	root, err := page.Snapshot(ctx)
	if err != nil {
		return htmldom.Capture{}, fmt.Errorf("shell: capture snapshot: %w", err)
	}
	var ids []spatial.NodeID
	for n := range spatial.Elements(root) {
		if spatial.Focusable(n) {
			ids = append(ids, n.ID)
		}
	}

	c := htmldom.Capture{Root: root}
	if bp, ok := page.(spatial.BatchProber); ok {
		if c.Facts, err = bp.ProbeAll(ctx, ids); err != nil {
			return htmldom.Capture{}, fmt.Errorf("shell: capture probe: %w", err)
		}
	} else {
		c.Facts = make(map[spatial.NodeID]spatial.Facts, len(ids))
		for _, id := range ids {
			f, err := page.Probe(ctx, id)
			if err != nil {
				continue
			}
			c.Facts[id] = f
		}
	}

	focused, err := spatial.New(spatial.Config{Page: page}).DeepActive(ctx)
	if err != nil {
		return htmldom.Capture{}, fmt.Errorf("shell: capture focus: %w", err)
	}
	if focused != nil {
		c.Focus = focused.ID
	}
	if c.Viewport, err = page.Viewport(ctx); err != nil {
		return htmldom.Capture{}, fmt.Errorf("shell: capture viewport: %w", err)
	}
	return c, nil
}
