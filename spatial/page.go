package spatial

import "context"

// NodeID identifies an element for the lifetime of a page. Zero is never a
// valid element.
type NodeID int64

// Node is one node of a page snapshot. Documents and shadow roots have an
// empty Tag.
type Node struct {
	ID       NodeID
	Tag      string
	Attrs    map[string]string
	Children []*Node

	// Shadow is the open shadow root hosted by this element, if any.
	Shadow *Node
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Facts is what the page reports about one element at evaluation time.
type Facts struct {
	Rect       Rect
	Display    string
	Visibility string
	TabIndex   int
	Disabled   bool
}

// Visible reports whether the element is rendered: non-empty box, not
// display:none and not visibility:hidden.
func (f Facts) Visible() bool {
	if f.Rect.Empty() {
		return false
	}
	return f.Display != "none" && f.Visibility != "hidden"
}

// Focused describes one level of the active-element chain.
type Focused struct {
	ID       NodeID
	Tag      string
	Editable bool
}

// FocusMode selects how Page.Focus moves focus.
type FocusMode int

const (
	// FocusNoScroll focuses without letting the browser scroll.
	FocusNoScroll FocusMode = iota
	// FocusDefault is the browser's plain focus, which may scroll.
	FocusDefault
)

// Page is the engine's view of a live (or recorded) document.
type Page interface {
	// Snapshot returns the current element tree, open shadow roots included.
	Snapshot(ctx context.Context) (*Node, error)

	// Probe measures one element now.
	Probe(ctx context.Context, id NodeID) (Facts, error)

	// ActiveElement reports the active element of the document when host is
	// zero, or of host's shadow root otherwise. ok is false when that scope
	// has no active element.
	ActiveElement(ctx context.Context, host NodeID) (f Focused, ok bool, err error)

	Viewport(ctx context.Context) (Size, error)

	// Hover moves the pointer to p, delivering pointer and mouse move/over
	// events to whatever element is there.
	Hover(ctx context.Context, p Point) error

	// ScrollIntoView scrolls the element to the nearest edge on both axes.
	ScrollIntoView(ctx context.Context, id NodeID) error

	Focus(ctx context.Context, id NodeID, mode FocusMode) error
}

// BatchProber is implemented by pages that can measure many elements in one
// round trip. Elements missing from the result could not be probed.
type BatchProber interface {
	ProbeAll(ctx context.Context, ids []NodeID) (map[NodeID]Facts, error)
}

// Painter waits for the page to render the next frame.
type Painter interface {
	NextFrame(ctx context.Context) error
}

// PainterFunc adapts a function to Painter.
type PainterFunc func(ctx context.Context) error

func (f PainterFunc) NextFrame(ctx context.Context) error { return f(ctx) }
