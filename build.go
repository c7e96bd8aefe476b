package objprofile

import (
	"reflect"
	"sort"
)

// RootName is the name of the root node of every profile.
const RootName = "<root>"

// pending is a node under construction: phase 1 appends children and bumps
// refcount, phase 2 turns it into an immutable Node.
type pending struct {
	target   target
	name     string
	refcount int
	shell    *Node
	children []*pending

	final *Node
}

// createProfileTree performs phase 1: breadth-first traversal and node creation.
func (w *walker) createProfileTree(root target, short bool) (*pending, int, error) {
	rootNode := &pending{target: root, name: RootName, refcount: 1}
	visited := map[identity]*pending{root.id: rootNode}

	queue := []*pending{rootNode}
	for head := 0; head < len(queue); head++ {
		node := queue[head]
		queue[head] = nil

		parentName := node.name
		if node == rootNode {
			parentName = ""
		}

		info, err := w.expand(node.target, func(ref reflect.Value, l link) error {
			t, ok := w.resolve(ref)
			if !ok {
				return nil
			}
			if existing, seen := visited[t.id]; seen {
				existing.refcount++
				return nil
			}
			child := &pending{target: t, name: l.name(parentName, short), refcount: 1}
			node.children = append(node.children, child)
			visited[t.id] = child
			queue = append(queue, child)
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
		node.shell = newShell(info)
	}
	return rootNode, len(visited), nil
}

// finishProfileTree performs phase 2: totalling of node sizes via non-recursive
// post-order traversal and locking nodes down into their compact form.
func finishProfileTree(root *pending, short bool) *Node {
	type frame struct {
		node *pending
		next int
	}

	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.children) {
			child := top.node.children[top.next]
			top.next++
			stack = append(stack, frame{node: child})
			continue
		}
		top.node.seal(short)
		stack = stack[:len(stack)-1]
	}
	return root.final
}

// seal builds the final node; every child must be sealed already.
func (p *pending) seal(short bool) {
	n := &Node{
		kind:       KindValue,
		name:       p.name,
		value:      p.target.value,
		typ:        p.target.value.Type(),
		refcount:   p.refcount,
		shell:      p.shell,
		rank:       -1,
		shortNames: short,
	}

	children := make([]*Node, 0, len(p.children)+1)
	children = append(children, p.shell)
	p.shell.parent = n
	p.shell.shortNames = short
	size := p.shell.size
	for _, c := range p.children {
		c.final.parent = n
		children = append(children, c.final)
		size += c.final.size
	}

	// stable: equal sizes keep discovery order, shell first
	sort.SliceStable(children, func(i, j int) bool { return children[i].size > children[j].size })

	rank := 0
	for _, c := range children {
		if c.kind == KindValue {
			c.rank = rank
			rank++
		}
	}

	n.children = children
	n.size = size
	p.final = n
	p.children = nil
}

func newShell(info shellInfo) *Node {
	return &Node{
		kind:            info.kind,
		typ:             info.typ,
		size:            info.size,
		refcount:        1,
		rank:            -1,
		length:          info.length,
		primitiveFields: info.primitiveFields,
		referenceFields: info.referenceFields,
	}
}

// computeSizeof is the worker behind Sizeof and Sizedelta. It traverses depth-first:
// the stack only grows to the longest path instead of the traversal front.
func (w *walker) computeSizeof(root target, visited map[identity]struct{}) (int64, error) {
	visited[root.id] = struct{}{}
	stack := []target{root}

	var total int64
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := w.expand(t, func(ref reflect.Value, _ link) error {
			next, ok := w.resolve(ref)
			if !ok {
				return nil
			}
			if _, seen := visited[next.id]; seen {
				return nil
			}
			visited[next.id] = struct{}{}
			stack = append(stack, next)
			return nil
		})
		if err != nil {
			return 0, err
		}
		total += info.size
	}
	return total, nil
}
