package objprofile

import (
	"fmt"
	"io"
	"strings"
)

// DumpVisitor writes one indented line per visited node:
//
//	size (pct% of root) name : type [refcount N]
//
// The first write error stops further output and is kept in Err.
type DumpVisitor struct {
	w          io.Writer
	indent     string
	shortNames bool

	depth int
	total int64
	err   error
}

// NewDumpVisitor creates a visitor writing to w, indenting each level with indent.
func NewDumpVisitor(w io.Writer, indent string, shortNames bool) *DumpVisitor {
	return &DumpVisitor{w: w, indent: indent, shortNames: shortNames}
}

func (d *DumpVisitor) PreVisit(n *Node) {
	if d.depth == 0 {
		d.total = n.Root().Size()
	}
	if d.err == nil {
		_, d.err = io.WriteString(d.w, d.line(n))
	}
	d.depth++
}

func (d *DumpVisitor) PostVisit(*Node) {
	d.depth--
}

// Err returns the first write error.
func (d *DumpVisitor) Err() error {
	return d.err
}

func (d *DumpVisitor) line(n *Node) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(d.indent, d.depth))
	fmt.Fprintf(&b, "%d (%.1f%%) %s", n.Size(), percent(n.Size(), d.total), n.Name())
	if n.Kind() == KindValue {
		b.WriteString(" : ")
		b.WriteString(TypeName(n.Type(), d.shortNames))
		if n.RefCount() > 1 {
			fmt.Fprintf(&b, " [refcount %d]", n.RefCount())
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

// Dump renders the whole subtree of n.
func (n *Node) Dump() string {
	var b strings.Builder
	n.Traverse(nil, NewDumpVisitor(&b, "  ", n.shortNames))
	return b.String()
}
