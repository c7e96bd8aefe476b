// Package report renders profile trees as indented text or JSON.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/segmentio/encoding/json"

	"github.com/rekby/objprofile"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options control what a report shows.
type Options struct {
	// Filter selects the rendered nodes, nil renders everything.
	Filter     objprofile.Filter
	ShortNames bool
	Indent     string
	// Title is written before the tree when not empty.
	Title string
}

// Entry is the JSON form of a node.
type Entry struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Type     string   `json:"type,omitempty"`
	Size     int64    `json:"size"`
	Percent  float64  `json:"percent"`
	RefCount int      `json:"refcount,omitempty"`
	Children []*Entry `json:"children,omitempty"`
}

// Build converts the filtered tree under root into entries. Nil when root is rejected.
func Build(root *objprofile.Node, opts Options) *Entry {
	total := root.Root().Size()

	var result *Entry
	var stack []*Entry
	root.Traverse(opts.Filter, objprofile.VisitorFuncs{
		Pre: func(n *objprofile.Node) {
			e := &Entry{
				Name: n.Name(),
				Kind: n.Kind().String(),
				Size: n.Size(),
			}
			if total > 0 {
				e.Percent = 100 * float64(n.Size()) / float64(total)
			}
			if !n.IsShell() {
				e.Type = objprofile.TypeName(n.Type(), opts.ShortNames)
				e.RefCount = n.RefCount()
			}

			if len(stack) == 0 {
				result = e
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			}
			stack = append(stack, e)
		},
		Post: func(*objprofile.Node) {
			stack = stack[:len(stack)-1]
		},
	})
	return result
}

// WriteText renders the dump form of the tree.
func WriteText(w io.Writer, root *objprofile.Node, opts Options) error {
	if opts.Title != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", opts.Title); err != nil {
			return err
		}
	}
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}
	v := objprofile.NewDumpVisitor(w, indent, opts.ShortNames)
	root.Traverse(opts.Filter, v)
	return v.Err()
}

type document struct {
	Title string `json:"title,omitempty"`
	Root  *Entry `json:"root"`
}

// WriteJSON renders the tree as one JSON document.
func WriteJSON(w io.Writer, root *objprofile.Node, opts Options) error {
	enc := json.NewEncoder(w)
	if opts.Indent != "" {
		enc.SetIndent("", opts.Indent)
	}
	return enc.Encode(document{Title: opts.Title, Root: Build(root, opts)})
}

// Write renders the tree in the given format.
func Write(w io.Writer, format string, root *objprofile.Node, opts Options) error {
	switch format {
	case FormatText, "":
		return WriteText(w, root, opts)
	case FormatJSON:
		return WriteJSON(w, root, opts)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// AppendFile appends the report to the file at path. The file is guarded by
// an exclusive lock on path+".lock", so concurrent runs don't interleave reports.
func AppendFile(path, format string, root *objprofile.Node, opts Options) (err error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("failed to unlock %s: %w", path, unlockErr)
		}
	}()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return Write(f, format, root, opts)
}
