// Package cdpdom serves a spatial.Page from a live Rod page.
//
// DOM reads run through a small script installed in every document. It
// names elements with ids that are unique across documents and reports
// only focusable elements and their ancestors, open shadow roots included.
// Pointer moves go through the CDP Input domain so the page sees trusted
// events.
package cdpdom

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tvshell/spatial"
)

//go:embed dom.js
var domJS string

// missing is what a call returns when the document has no script yet.
const missing = "\x00missing"

const callJS = `(method, ...args) => {
	const dom = window.__tvshellDom;
	if (!dom) return "\u0000missing";
	const v = dom[method](...args);
	return JSON.stringify(v === undefined ? null : v);
}`

// DefaultFrameTimeout bounds one NextFrame wait. Hidden pages do not paint.
const DefaultFrameTimeout = 250 * time.Millisecond

// Page adapts a Rod page to spatial.Page, spatial.BatchProber and
// spatial.Painter.
type Page struct {
	page         *rod.Page
	frameTimeout time.Duration
	removeHook   func() error
}

// New wraps page. Call Install before the first navigation.
func New(page *rod.Page) *Page {
	return &Page{page: page, frameTimeout: DefaultFrameTimeout}
}

// Rod returns the underlying page.
func (p *Page) Rod() *rod.Page { return p.page }

// Install registers the DOM script for every new document and runs it in
// the current one.
func (p *Page) Install() error {
	remove, err := p.page.EvalOnNewDocument(domJS)
	if err != nil {
		return fmt.Errorf("cdpdom: install: %w", err)
	}
	p.removeHook = remove
	return p.inject(context.Background())
}

// Uninstall stops injecting the script into new documents.
func (p *Page) Uninstall() error {
	if p.removeHook == nil {
		return nil
	}
	err := p.removeHook()
	p.removeHook = nil
	return err
}

func (p *Page) inject(ctx context.Context) error {
	if _, err := p.page.Context(ctx).Eval(`() => { ` + domJS + ` }`); err != nil {
		return fmt.Errorf("cdpdom: inject: %w", err)
	}
	return nil
}

// call runs a script method and decodes its JSON result into out. A
// document that was created before Install (or whose script was lost)
// gets the script injected once.
func (p *Page) call(ctx context.Context, out any, method string, args ...any) error {
	params := append([]any{method}, args...)
	for attempt := 0; ; attempt++ {
		res, err := p.page.Context(ctx).Eval(callJS, params...)
		if err != nil {
			return fmt.Errorf("cdpdom: %s: %w", method, err)
		}
		raw := res.Value.Str()
		if raw == missing {
			if attempt > 0 {
				return fmt.Errorf("cdpdom: %s: script not installed", method)
			}
			if err := p.inject(ctx); err != nil {
				return err
			}
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return fmt.Errorf("cdpdom: %s: decode: %w", method, err)
		}
		return nil
	}
}

type wireNode struct {
	ID       spatial.NodeID    `json:"id"`
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs"`
	Children []*wireNode       `json:"children"`
	Shadow   *wireNode         `json:"shadow"`
}

func (w *wireNode) node() *spatial.Node {
	if w == nil {
		return nil
	}
	n := &spatial.Node{ID: w.ID, Tag: w.Tag, Attrs: w.Attrs, Shadow: w.Shadow.node()}
	if len(w.Children) > 0 {
		n.Children = make([]*spatial.Node, 0, len(w.Children))
		for _, c := range w.Children {
			n.Children = append(n.Children, c.node())
		}
	}
	return n
}

type wireFacts struct {
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	TabIndex   int     `json:"tabIndex"`
	Disabled   bool    `json:"disabled"`
}

func (w wireFacts) facts() spatial.Facts {
	return spatial.Facts{
		Rect:       spatial.Rect{Left: w.Left, Top: w.Top, Width: w.Width, Height: w.Height},
		Display:    w.Display,
		Visibility: w.Visibility,
		TabIndex:   w.TabIndex,
		Disabled:   w.Disabled,
	}
}

// Snapshot implements spatial.Page. The tree holds focusable elements and
// their ancestors only.
func (p *Page) Snapshot(ctx context.Context) (*spatial.Node, error) {
	var root wireNode
	if err := p.call(ctx, &root, "snapshot", spatial.FocusableSelector); err != nil {
		return nil, err
	}
	return root.node(), nil
}

// ProbeAll implements spatial.BatchProber.
func (p *Page) ProbeAll(ctx context.Context, ids []spatial.NodeID) (map[spatial.NodeID]spatial.Facts, error) {
	var wire map[spatial.NodeID]wireFacts
	if err := p.call(ctx, &wire, "probe", ids); err != nil {
		return nil, err
	}
	out := make(map[spatial.NodeID]spatial.Facts, len(wire))
	for id, w := range wire {
		out[id] = w.facts()
	}
	return out, nil
}

// Probe implements spatial.Page.
func (p *Page) Probe(ctx context.Context, id spatial.NodeID) (spatial.Facts, error) {
	all, err := p.ProbeAll(ctx, []spatial.NodeID{id})
	if err != nil {
		return spatial.Facts{}, err
	}
	f, ok := all[id]
	if !ok {
		return spatial.Facts{}, fmt.Errorf("cdpdom: probe: node %d is gone", id)
	}
	return f, nil
}

// ActiveElement implements spatial.Page.
func (p *Page) ActiveElement(ctx context.Context, host spatial.NodeID) (spatial.Focused, bool, error) {
	var a *struct {
		ID       spatial.NodeID `json:"id"`
		Tag      string         `json:"tag"`
		Editable bool           `json:"editable"`
	}
	if err := p.call(ctx, &a, "active", host); err != nil {
		return spatial.Focused{}, false, err
	}
	if a == nil {
		return spatial.Focused{}, false, nil
	}
	return spatial.Focused{ID: a.ID, Tag: a.Tag, Editable: a.Editable}, true, nil
}

// DeepActiveEditable reports whether the deepest focused element takes
// text, in a single round trip.
func (p *Page) DeepActiveEditable(ctx context.Context) (bool, error) {
	var editable bool
	err := p.call(ctx, &editable, "deepEditable")
	return editable, err
}

// Viewport implements spatial.Page.
func (p *Page) Viewport(ctx context.Context) (spatial.Size, error) {
	var vp struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := p.call(ctx, &vp, "viewport"); err != nil {
		return spatial.Size{}, err
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return spatial.Size{}, errors.New("cdpdom: viewport: empty window")
	}
	return spatial.Size{Width: vp.Width, Height: vp.Height}, nil
}

// Hover implements spatial.Page: a trusted mouse move, then pointermove,
// mousemove and mouseover dispatched on the element under pt.
func (p *Page) Hover(ctx context.Context, pt spatial.Point) error {
	ev := proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    pt.X,
		Y:    pt.Y,
	}
	if err := ev.Call(p.page.Context(ctx)); err != nil {
		return fmt.Errorf("cdpdom: hover: %w", err)
	}
	var hit bool
	return p.call(ctx, &hit, "hover", pt.X, pt.Y)
}

// ScrollIntoView implements spatial.Page.
func (p *Page) ScrollIntoView(ctx context.Context, id spatial.NodeID) error {
	return p.call(ctx, nil, "scroll", id)
}

// Focus implements spatial.Page.
func (p *Page) Focus(ctx context.Context, id spatial.NodeID, mode spatial.FocusMode) error {
	return p.call(ctx, nil, "focus", id, mode == spatial.FocusNoScroll)
}

// NextFrame implements spatial.Painter. A page that does not paint within
// the frame timeout reports an error.
func (p *Page) NextFrame(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.frameTimeout)
	defer cancel()
	if _, err := p.page.Context(ctx).Eval(`() => new Promise(r => requestAnimationFrame(() => r()))`); err != nil {
		return fmt.Errorf("cdpdom: next frame: %w", err)
	}
	return nil
}
