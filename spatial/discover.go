package spatial

import (
	"context"
	"fmt"
)

// Candidate is an eligible focus target for one navigation call.
type Candidate struct {
	ID     NodeID
	Rect   Rect
	Center Point
}

// FocusableSelector is the CSS form of Focusable, for pages that can
// prefilter their snapshots.
const FocusableSelector = `a[href],button,input,select,textarea,[tabindex],[role="button"],[role="link"]`

// Focusable reports whether n matches FocusableSelector.
func Focusable(n *Node) bool {
	switch n.Tag {
	case "button", "input", "select", "textarea":
		return true
	case "a":
		if _, ok := n.Attr("href"); ok {
			return true
		}
	}
	if _, ok := n.Attr("tabindex"); ok {
		return true
	}
	switch role, _ := n.Attr("role"); role {
	case "button", "link":
		return true
	}
	return false
}

// Eligible reports whether probed facts allow an element to take focus.
func Eligible(f Facts) bool {
	return f.TabIndex >= 0 && !f.Disabled && f.Visible()
}

// Collect takes a fresh snapshot of page and returns every eligible focusable
// element, shadow roots included, each once. The order is unspecified.
// Elements that cannot be probed are skipped.
func Collect(ctx context.Context, page Page) ([]Candidate, error) {
	root, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("spatial: snapshot: %w", err)
	}

	var ids []NodeID
	seen := make(map[NodeID]struct{})
	for n := range Elements(root) {
		if !Focusable(n) {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}

	facts, err := probe(ctx, page, ids)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, id := range ids {
		f, ok := facts[id]
		if !ok || !Eligible(f) {
			continue
		}
		out = append(out, Candidate{ID: id, Rect: f.Rect, Center: f.Rect.Center()})
	}
	return out, nil
}

func probe(ctx context.Context, page Page, ids []NodeID) (map[NodeID]Facts, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if bp, ok := page.(BatchProber); ok {
		facts, err := bp.ProbeAll(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("spatial: probe: %w", err)
		}
		return facts, nil
	}
	facts := make(map[NodeID]Facts, len(ids))
	for _, id := range ids {
		f, err := page.Probe(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		facts[id] = f
	}
	return facts, nil
}
