package objprofile

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Field describes one reference slot inside a value of some type.
type Field struct {
	// Owner is the struct (or array) type declaring the slot.
	// Nil when the value itself is the reference.
	Owner reflect.Type
	// Name is the slot name within Owner: "next", "pos.label", "buf[3]".
	Name string
	// Type is the reference type stored in the slot.
	Type reflect.Type

	index []int
}

// Metadata is the cached shape of a type, inclusive of all inline structs and arrays.
type Metadata struct {
	Type reflect.Type

	PrimitiveFields int
	// Size is the inline size of a value: primitive widths plus reference slot widths.
	Size int64
	// Refs lists every reference slot in declaration order.
	Refs []Field
}

// MetadataCache memoizes Metadata per type for one Layout.
// It is safe for concurrent use.
type MetadataCache struct {
	layout Layout
	logger *zap.Logger

	mu      sync.Mutex
	entries map[reflect.Type]*Metadata
}

// NewMetadataCache creates an empty cache computing sizes with the given layout.
func NewMetadataCache(layout Layout) *MetadataCache {
	return &MetadataCache{
		layout:  layout,
		logger:  zap.NewNop(),
		entries: make(map[reflect.Type]*Metadata),
	}
}

// Layout returns the layout the cache computes sizes with.
func (c *MetadataCache) Layout() Layout {
	return c.layout
}

// Get returns the metadata of t, building and storing it on first use.
func (c *MetadataCache) Get(t reflect.Type) *Metadata {
	c.mu.Lock()
	md, ok := c.entries[t]
	c.mu.Unlock()
	if ok {
		return md
	}

	// built outside the lock: nested types go through Get again
	md = c.build(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[t]; ok {
		return existing
	}
	c.entries[t] = md
	c.logger.Debug("type metadata cached",
		zap.Stringer("type", t),
		zap.Int("primitive_fields", md.PrimitiveFields),
		zap.Int("reference_fields", len(md.Refs)),
		zap.Int64("size", md.Size),
	)
	return md
}

// Len returns the number of cached types.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every cached entry.
func (c *MetadataCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[reflect.Type]*Metadata)
}

func (c *MetadataCache) setLogger(logger *zap.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

func (c *MetadataCache) build(t reflect.Type) *Metadata {
	md := &Metadata{Type: t}
	kind := t.Kind()

	switch {
	case isPrimitive(kind):
		md.PrimitiveFields = 1
		md.Size = c.layout.PrimitiveSize(kind)
	case kind == reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			inner := c.Get(sf.Type)
			md.PrimitiveFields += inner.PrimitiveFields
			md.Size += inner.Size
			for _, f := range inner.Refs {
				if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
					// embedded fields stay attributed to the embedded type
					md.Refs = append(md.Refs, Field{Owner: f.Owner, Name: f.Name, Type: f.Type, index: prepend(i, f.index)})
					continue
				}
				md.Refs = append(md.Refs, Field{Owner: t, Name: joinName(sf.Name, f.Name), Type: f.Type, index: prepend(i, f.index)})
			}
		}
	case kind == reflect.Array:
		elem := c.Get(t.Elem())
		n := t.Len()
		md.PrimitiveFields = n * elem.PrimitiveFields
		md.Size = int64(n) * elem.Size
		if len(elem.Refs) > 0 {
			md.Refs = make([]Field, 0, n*len(elem.Refs))
			for i := 0; i < n; i++ {
				for _, f := range elem.Refs {
					md.Refs = append(md.Refs, Field{Owner: t, Name: joinName(indexName(i), f.Name), Type: f.Type, index: prepend(i, f.index)})
				}
			}
		}
	default:
		md.Size = c.layout.ReferenceSize(kind)
		md.Refs = []Field{{Type: t}}
	}
	return md
}

func prepend(i int, index []int) []int {
	res := make([]int, 0, len(index)+1)
	res = append(res, i)
	return append(res, index...)
}

func indexName(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

// joinName appends a nested slot name to its outer step.
func joinName(outer, inner string) string {
	switch {
	case inner == "":
		return outer
	case strings.HasPrefix(inner, "["):
		return outer + inner
	default:
		return outer + "." + inner
	}
}
