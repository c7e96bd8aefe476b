package objprofile

// Filter decides whether a node, and so its whole subtree, is visited.
type Filter interface {
	Accept(n *Node) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(n *Node) bool

func (f FilterFunc) Accept(n *Node) bool {
	return f(n)
}

// Visitor receives accepted nodes before and after their children.
type Visitor interface {
	PreVisit(n *Node)
	PostVisit(n *Node)
}

// VisitorFuncs adapts a pair of functions to Visitor. Nil functions are skipped.
type VisitorFuncs struct {
	Pre  func(n *Node)
	Post func(n *Node)
}

func (v VisitorFuncs) PreVisit(n *Node) {
	if v.Pre != nil {
		v.Pre(n)
	}
}

func (v VisitorFuncs) PostVisit(n *Node) {
	if v.Post != nil {
		v.Post(n)
	}
}

// Traverse visits n and its descendants in pre/post order, children in array order.
// Nodes rejected by filter are skipped together with their subtrees; a nil filter
// accepts everything. Returns whether n itself was visited.
// The walk uses an explicit stack, so tree depth is not limited by the goroutine stack.
func (n *Node) Traverse(filter Filter, visitor Visitor) bool {
	if !accepts(filter, n) {
		return false
	}

	type frame struct {
		node *Node
		next int
	}

	visitor.PreVisit(n)
	stack := []frame{{node: n}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.children) {
			child := top.node.children[top.next]
			top.next++
			if accepts(filter, child) {
				visitor.PreVisit(child)
				stack = append(stack, frame{node: child})
			}
			continue
		}
		visitor.PostVisit(top.node)
		stack = stack[:len(stack)-1]
	}
	return true
}

func accepts(filter Filter, n *Node) bool {
	return filter == nil || filter.Accept(n)
}

// SizeFilter accepts nodes of at least threshold bytes.
func SizeFilter(threshold int64) Filter {
	return FilterFunc(func(n *Node) bool {
		return n.Size() >= threshold
	})
}

// RankFilter accepts the root and the first k value children of every node.
// Shells are not ranked and never accepted.
func RankFilter(k int) Filter {
	return FilterFunc(func(n *Node) bool {
		if n.parent == nil {
			return true
		}
		return n.kind == KindValue && n.rank < k
	})
}

// SizeFractionFilter accepts nodes holding at least fraction of the root size.
func SizeFractionFilter(fraction float64) Filter {
	return FilterFunc(func(n *Node) bool {
		return float64(n.Size()) >= fraction*float64(n.Root().Size())
	})
}

// ParentSizeFractionFilter accepts the root and nodes holding at least fraction
// of their parent size.
func ParentSizeFractionFilter(fraction float64) Filter {
	return FilterFunc(func(n *Node) bool {
		if n.parent == nil {
			return true
		}
		return float64(n.Size()) >= fraction*float64(n.parent.Size())
	})
}

// And accepts nodes accepted by every filter. Nil filters are ignored.
func And(filters ...Filter) Filter {
	return FilterFunc(func(n *Node) bool {
		for _, f := range filters {
			if f != nil && !f.Accept(n) {
				return false
			}
		}
		return true
	})
}

// Or accepts nodes accepted by at least one filter.
func Or(filters ...Filter) Filter {
	return FilterFunc(func(n *Node) bool {
		for _, f := range filters {
			if f != nil && f.Accept(n) {
				return true
			}
		}
		return false
	})
}
