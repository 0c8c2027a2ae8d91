package spatial

import "iter"

// Deep yields every node reachable from root, depth first. children lists a
// node's light-DOM children and scope returns the root of a nested scope (a
// shadow root) hosted by the node, if any. Scopes are entered for every node,
// at any depth. A node reachable by more than one path is yielded once.
func Deep[N comparable](root N, children func(N) []N, scope func(N) (N, bool)) iter.Seq[N] {
	return func(yield func(N) bool) {
		seen := make(map[N]struct{})
		stack := []N{root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			if !yield(n) {
				return
			}
			kids := children(n)
			// Push in reverse so the first child pops first; the shadow
			// scope goes underneath so it is visited after light children.
			if s, ok := scope(n); ok {
				stack = append(stack, s)
			}
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, kids[i])
			}
		}
	}
}

// Elements walks a snapshot tree, shadow roots included, yielding element
// nodes only.
func Elements(root *Node) iter.Seq[*Node] {
	all := Deep(root,
		func(n *Node) []*Node {
			if n == nil {
				return nil
			}
			return n.Children
		},
		func(n *Node) (*Node, bool) {
			if n == nil || n.Shadow == nil {
				return nil, false
			}
			return n.Shadow, true
		},
	)
	return func(yield func(*Node) bool) {
		for n := range all {
			if n == nil || n.Tag == "" {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}
