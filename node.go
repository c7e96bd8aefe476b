package objprofile

import (
	"fmt"
	"reflect"
)

// Kind tags the variant of a profile Node.
type Kind uint8

const (
	// KindValue is a node standing for one distinct object.
	KindValue Kind = iota
	// KindObjectShell is the pseudo-node for the own fields of a non-array object.
	KindObjectShell
	// KindArrayShell is the pseudo-node for the overhead and slots of an array, string, map or channel.
	KindArrayShell
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindObjectShell:
		return "object-shell"
	case KindArrayShell:
		return "array-shell"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Node is one vertex of a finished profile tree. Nodes are immutable.
//
// Value nodes hold a live reference to the profiled object and have exactly one
// shell among their children. Shell nodes have no children and no shell.
type Node struct {
	kind  Kind
	name  string
	value reflect.Value
	typ   reflect.Type

	size     int64
	refcount int
	parent   *Node
	children []*Node
	shell    *Node
	rank     int

	// shell attributes
	length          int
	primitiveFields int
	referenceFields int

	shortNames bool
}

func (n *Node) Kind() Kind {
	return n.kind
}

// IsShell reports whether n is a shell pseudo-node.
func (n *Node) IsShell() bool {
	return n.kind != KindValue
}

// Object returns the profiled object: a pointer for plain objects, the slice (up to
// its capacity), string, map or channel itself for arrays. Nil for shells.
func (n *Node) Object() interface{} {
	if n.kind != KindValue {
		return nil
	}
	v := n.value
	if v.Kind() != reflect.Slice && v.Kind() != reflect.String && v.Kind() != reflect.Map && v.Kind() != reflect.Chan && v.CanAddr() {
		v = v.Addr()
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// Value returns the reflect.Value behind Object. Invalid for shells.
func (n *Node) Value() reflect.Value {
	return n.value
}

// Type is the object type for value nodes, the object type for object shells and
// the element (or map) type for array shells.
func (n *Node) Type() reflect.Type {
	return n.typ
}

// Name identifies the link that reached the node.
func (n *Node) Name() string {
	switch n.kind {
	case KindObjectShell:
		return fmt.Sprintf("<shell: %d prim/%d ref fields>", n.primitiveFields, n.referenceFields)
	case KindArrayShell:
		return fmt.Sprintf("<shell: %s[%d]>", TypeName(n.typ, n.shortNames), n.length)
	default:
		return n.name
	}
}

// Size is the total byte size of the subtree.
func (n *Node) Size() int64 {
	return n.size
}

// RefCount is the number of references to the object seen during the profiling run.
func (n *Node) RefCount() int {
	return n.refcount
}

// Parent is nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children are sorted by descending size and include the shell.
// The returned slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Shell is nil for shell nodes.
func (n *Node) Shell() *Node {
	return n.shell
}

// Length is the slot count of an array shell.
func (n *Node) Length() int {
	return n.length
}

// PrimitiveFields and ReferenceFields describe an object shell.
func (n *Node) PrimitiveFields() int {
	return n.primitiveFields
}

func (n *Node) ReferenceFields() int {
	return n.referenceFields
}

func (n *Node) Root() *Node {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// PathLength is the number of nodes from the root to n, both included.
func (n *Node) PathLength() int {
	length := 0
	for cur := n; cur != nil; cur = cur.parent {
		length++
	}
	return length
}

// Path returns the nodes from the root down to n.
func (n *Node) Path() []*Node {
	path := make([]*Node, n.PathLength())
	i := len(path) - 1
	for cur := n; cur != nil; cur = cur.parent {
		path[i] = cur
		i--
	}
	return path
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%d bytes)", n.Name(), n.size)
}
