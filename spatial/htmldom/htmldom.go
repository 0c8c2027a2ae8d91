// Package htmldom serves a spatial.Page from an HTML layout snapshot.
//
// A snapshot is ordinary HTML plus a few data attributes carrying what a
// browser would have measured:
//
//	data-tv-rect="left top width height"   bounding client rect (missing = not rendered)
//	data-tv-display / data-tv-visibility    computed display and visibility
//	data-tv-tabindex, data-tv-disabled      override the HTML defaults
//	data-tv-focus                           the focused element (deepest)
//	data-tv-viewport="width height"         on <html>, default 1280x720
//	data-tv-reveal-after-frames="n"         hidden until n frames were painted
//	data-tv-no-prevent-scroll               focus without scrolling fails
//
// Open shadow roots are declared with <template shadowrootmode="open">.
// Closed and inert templates are not part of the tree, as in a browser.
//
// Document also implements spatial.Painter and records the side effects the
// engine causes (hovers, frames, scrolls) for inspection.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/tvshell/spatial"
)

const defaultWidth, defaultHeight = 1280, 720

type element struct {
	node   *spatial.Node
	parent *element // light-DOM parent, or shadow host for a shadow root's top level
	host   *element // shadow host owning the scope this element lives in; nil = document
}

// Document is a parsed layout snapshot.
type Document struct {
	root     *spatial.Node
	elems    map[spatial.NodeID]*element
	byHTMLID map[string]spatial.NodeID
	body     spatial.NodeID
	viewport spatial.Size

	mu       sync.Mutex
	active   map[spatial.NodeID]spatial.NodeID // scope host (0 = document) -> active element
	frames   int
	hovers   []spatial.Point
	scrolled []spatial.NodeID
}

// Parse reads a layout snapshot.
func Parse(r io.Reader) (*Document, error) {
	top, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}

	d := &Document{
		elems:    make(map[spatial.NodeID]*element),
		byHTMLID: make(map[string]spatial.NodeID),
		active:   make(map[spatial.NodeID]spatial.NodeID),
		viewport: spatial.Size{Width: defaultWidth, Height: defaultHeight},
	}
	var next spatial.NodeID
	newID := func() spatial.NodeID { next++; return next }

	d.root = &spatial.Node{ID: newID()}
	var focus spatial.NodeID
	var build func(src *html.Node, dst *spatial.Node, parent, host *element)
	build = func(src *html.Node, dst *spatial.Node, parent, host *element) {
		for c := src.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "template" {
				mode := attr(c, "shadowrootmode")
				if mode == "open" && parent != nil && parent.node.Shadow == nil {
					sr := &spatial.Node{ID: newID()}
					parent.node.Shadow = sr
					build(c, sr, parent, parent)
				}
				continue
			}
			n := &spatial.Node{ID: newID(), Tag: c.Data, Attrs: make(map[string]string, len(c.Attr))}
			for _, a := range c.Attr {
				n.Attrs[a.Key] = a.Val
			}
			dst.Children = append(dst.Children, n)
			el := &element{node: n, parent: parent, host: host}
			d.elems[n.ID] = el

			if id := n.Attrs["id"]; id != "" {
				if _, dup := d.byHTMLID[id]; !dup {
					d.byHTMLID[id] = n.ID
				}
			}
			switch {
			case c.Data == "body" && host == nil && d.body == 0:
				d.body = n.ID
			case c.Data == "html" && host == nil:
				if vp, ok := n.Attrs["data-tv-viewport"]; ok {
					if s, err := parseSize(vp); err == nil {
						d.viewport = s
					}
				}
			}
			if _, ok := n.Attrs["data-tv-focus"]; ok && focus == 0 {
				focus = n.ID
			}
			build(c, n, el, host)
		}
	}
	build(top, d.root, nil, nil)

	if focus != 0 {
		d.setFocus(focus)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Lookup returns the node carrying the given HTML id attribute.
func (d *Document) Lookup(htmlID string) (spatial.NodeID, bool) {
	id, ok := d.byHTMLID[htmlID]
	return id, ok
}

// Node returns the snapshot node for id.
func (d *Document) Node(id spatial.NodeID) (*spatial.Node, bool) {
	el, ok := d.elems[id]
	if !ok {
		return nil, false
	}
	return el.node, true
}

// Label names a node for humans: its HTML id, else its tag and node id.
func (d *Document) Label(id spatial.NodeID) string {
	el, ok := d.elems[id]
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	if hid := el.node.Attrs["id"]; hid != "" {
		return hid
	}
	return fmt.Sprintf("%s#%d", el.node.Tag, id)
}

// Focused returns the deepest focused element, or 0 when focus is on the body.
func (d *Document) Focused() spatial.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cur spatial.NodeID
	scope := spatial.NodeID(0)
	for range len(d.elems) + 1 {
		a, ok := d.active[scope]
		if !ok {
			break
		}
		cur, scope = a, a
	}
	return cur
}

// Frames returns how many frames have been painted.
func (d *Document) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Hovers returns the pointer positions hovered so far.
func (d *Document) Hovers() []spatial.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]spatial.Point(nil), d.hovers...)
}

// Scrolled returns the elements scrolled into view so far.
func (d *Document) Scrolled() []spatial.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]spatial.NodeID(nil), d.scrolled...)
}

// Snapshot implements spatial.Page.
func (d *Document) Snapshot(ctx context.Context) (*spatial.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.root, nil
}

// Probe implements spatial.Page.
func (d *Document) Probe(ctx context.Context, id spatial.NodeID) (spatial.Facts, error) {
	if err := ctx.Err(); err != nil {
		return spatial.Facts{}, err
	}
	el, ok := d.elems[id]
	if !ok {
		return spatial.Facts{}, fmt.Errorf("htmldom: no node %d", id)
	}
	n := el.node
	f := spatial.Facts{
		Display:    d.display(el),
		Visibility: d.visibility(el),
		TabIndex:   tabIndex(n),
		Disabled:   disabled(n),
	}
	if v, ok := n.Attrs["data-tv-rect"]; ok {
		r, err := parseRect(v)
		if err != nil {
			return spatial.Facts{}, fmt.Errorf("htmldom: node %d: %w", id, err)
		}
		f.Rect = r
	}
	if v, ok := n.Attrs["data-tv-reveal-after-frames"]; ok {
		if k, err := strconv.Atoi(v); err == nil && d.Frames() < k {
			f.Display = "none"
		}
	}
	return f, nil
}

// ActiveElement implements spatial.Page. The document's active element is
// the body when nothing else has focus.
func (d *Document) ActiveElement(ctx context.Context, host spatial.NodeID) (spatial.Focused, bool, error) {
	if err := ctx.Err(); err != nil {
		return spatial.Focused{}, false, err
	}
	d.mu.Lock()
	id, ok := d.active[host]
	d.mu.Unlock()
	if !ok {
		if host != 0 || d.body == 0 {
			return spatial.Focused{}, false, nil
		}
		id = d.body
	}
	el := d.elems[id]
	return spatial.Focused{ID: id, Tag: el.node.Tag, Editable: editable(el)}, true, nil
}

// Viewport implements spatial.Page.
func (d *Document) Viewport(ctx context.Context) (spatial.Size, error) {
	return d.viewport, ctx.Err()
}

// Hover implements spatial.Page.
func (d *Document) Hover(ctx context.Context, p spatial.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.hovers = append(d.hovers, p)
	d.mu.Unlock()
	return nil
}

// ScrollIntoView implements spatial.Page. Geometry is static, so only the
// request is recorded.
func (d *Document) ScrollIntoView(ctx context.Context, id spatial.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := d.elems[id]; !ok {
		return fmt.Errorf("htmldom: no node %d", id)
	}
	d.mu.Lock()
	d.scrolled = append(d.scrolled, id)
	d.mu.Unlock()
	return nil
}

// Focus implements spatial.Page. Like element.focus(), focusing something
// that cannot take focus is a silent no-op.
func (d *Document) Focus(ctx context.Context, id spatial.NodeID, mode spatial.FocusMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	el, ok := d.elems[id]
	if !ok {
		return fmt.Errorf("htmldom: no node %d", id)
	}
	if _, ok := el.node.Attrs["data-tv-no-prevent-scroll"]; ok && mode == spatial.FocusNoScroll {
		return fmt.Errorf("htmldom: node %d: preventScroll unsupported", id)
	}
	_, explicit := el.node.Attrs["tabindex"]
	if !explicit && tabIndex(el.node) < 0 || disabled(el.node) {
		return nil
	}
	d.setFocus(id)
	return nil
}

// NextFrame implements spatial.Painter.
func (d *Document) NextFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
	return nil
}

// setFocus makes id the deepest active element: it becomes active in its own
// scope and each enclosing shadow host becomes active in the scope above.
func (d *Document) setFocus(id spatial.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.active)
	el := d.elems[id]
	for el != nil {
		var scope spatial.NodeID
		if el.host != nil {
			scope = el.host.node.ID
		}
		d.active[scope] = el.node.ID
		el = el.host
	}
}

func (d *Document) display(el *element) string {
	for e := el.parent; e != nil; e = e.parent {
		if ownDisplay(e.node) == "none" {
			return "none"
		}
	}
	if v := ownDisplay(el.node); v != "" {
		return v
	}
	return "inline"
}

func (d *Document) visibility(el *element) string {
	for e := el; e != nil; e = e.parent {
		if v := styleValue(e.node, "data-tv-visibility", "visibility"); v != "" {
			return v
		}
	}
	return "visible"
}

func ownDisplay(n *spatial.Node) string {
	if _, ok := n.Attrs["hidden"]; ok {
		if _, explicit := n.Attrs["data-tv-display"]; !explicit {
			return "none"
		}
	}
	return styleValue(n, "data-tv-display", "display")
}

// styleValue reads a computed property from its data-tv attribute, falling
// back to the inline style declaration.
func styleValue(n *spatial.Node, dataAttr, prop string) string {
	if v, ok := n.Attrs[dataAttr]; ok {
		return strings.TrimSpace(v)
	}
	for decl := range strings.SplitSeq(n.Attrs["style"], ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

func tabIndex(n *spatial.Node) int {
	for _, name := range []string{"data-tv-tabindex", "tabindex"} {
		if v, ok := n.Attrs[name]; ok {
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i
			}
		}
	}
	switch n.Tag {
	case "button", "select", "textarea":
		return 0
	case "input":
		if strings.EqualFold(n.Attrs["type"], "hidden") {
			return -1
		}
		return 0
	case "a":
		if _, ok := n.Attrs["href"]; ok {
			return 0
		}
	}
	return -1
}

func disabled(n *spatial.Node) bool {
	if v, ok := n.Attrs["data-tv-disabled"]; ok {
		return v != "false"
	}
	switch n.Tag {
	case "button", "input", "select", "textarea":
		_, ok := n.Attrs["disabled"]
		return ok
	}
	return false
}

func editable(el *element) bool {
	switch el.node.Tag {
	case "input", "textarea", "select":
		return true
	}
	for e := el; e != nil; e = e.parent {
		v, ok := e.node.Attrs["contenteditable"]
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "", "true", "plaintext-only":
			return true
		case "false":
			return false
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func parseNumbers(s string, want int) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != want {
		return nil, fmt.Errorf("want %d numbers, got %q", want, s)
	}
	out := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseRect(s string) (spatial.Rect, error) {
	v, err := parseNumbers(s, 4)
	if err != nil {
		return spatial.Rect{}, fmt.Errorf("data-tv-rect: %w", err)
	}
	return spatial.Rect{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}, nil
}

func parseSize(s string) (spatial.Size, error) {
	v, err := parseNumbers(s, 2)
	if err != nil {
		return spatial.Size{}, fmt.Errorf("data-tv-viewport: %w", err)
	}
	return spatial.Size{Width: v[0], Height: v[1]}, nil
}
