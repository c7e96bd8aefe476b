// Package objprofile estimates the memory footprint of live Go object graphs.
//
// Profile walks everything reachable from a value through pointers, slices, strings,
// maps, channels and interfaces, and builds a spanning tree with one node per distinct
// object. Every node knows the total size of its subtree and how many references to
// the object were seen. Sizeof and Sizedelta compute the same totals without
// building a tree.
//
// Sizes come from a Layout table and are estimates: alignment and padding are ignored.
package objprofile

import (
	"errors"
	"reflect"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNilInput - nil value passed where an object is required
	ErrNilInput = errors.New("nil input")

	// ErrFieldAccess - a reference field could not be read
	ErrFieldAccess = errors.New("field access")

	// ErrNotPrimitive is the panic value of Layout.PrimitiveSize for non-primitive kinds
	ErrNotPrimitive = errors.New("not primitive")

	// ErrInvalidLayout - layout table misses a kind or has negative widths
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrUnknownKind mean walker see unknown shape of object - need to update library
	ErrUnknownKind = errors.New("unknown kind")
)

var defaultCache = NewMetadataCache(GoLayout())

// ResetCache clears the type metadata cache of the package-level functions.
func ResetCache() {
	defaultCache.Reset()
}

// Profiler profiles object graphs with one layout and metadata cache.
// It is safe for concurrent use.
type Profiler struct {
	walker     walker
	shortNames bool
	logger     *zap.Logger
	// ownCache is set when the cache was created for this profiler alone
	ownCache bool
}

// Option configures a Profiler.
type Option func(p *Profiler)

// WithLayout makes the profiler use its own metadata cache built for layout.
func WithLayout(layout Layout) Option {
	return func(p *Profiler) {
		p.walker.layout = layout
		p.walker.cache = NewMetadataCache(layout)
		p.ownCache = true
	}
}

// WithCache shares an existing metadata cache, and its layout.
func WithCache(cache *MetadataCache) Option {
	return func(p *Profiler) {
		p.walker.layout = cache.Layout()
		p.walker.cache = cache
		p.ownCache = false
	}
}

// WithShortTypeNames names nodes with type names stripped of package paths.
func WithShortTypeNames(short bool) Option {
	return func(p *Profiler) {
		p.shortNames = short
	}
}

// WithLogger sets the logger for profiling runs. Caches created by WithLayout
// log through it too; shared caches keep their own logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// New creates a Profiler. Without options it uses GoLayout and the package cache.
func New(opts ...Option) *Profiler {
	p := &Profiler{
		walker:     walker{layout: defaultCache.Layout(), cache: defaultCache},
		shortNames: ShortTypeNames,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ownCache {
		p.walker.cache.setLogger(p.logger)
	}
	return p
}

// Layout returns the layout sizes are computed with.
func (p *Profiler) Layout() Layout {
	return p.walker.layout
}

// Cache returns the type metadata cache of the profiler.
func (p *Profiler) Cache() *MetadataCache {
	return p.walker.cache
}

// Sizeof estimates the full size of the object graph rooted at obj, counting every
// object once. Returns 0 for nil.
//
// Invariant: Sizeof(obj) == Profile(obj).Size() for non-nil obj.
func (p *Profiler) Sizeof(obj interface{}) (int64, error) {
	root, ok := p.walker.resolve(reflect.ValueOf(obj))
	if !ok {
		return 0, nil
	}
	return p.walker.computeSizeof(root, make(map[identity]struct{}))
}

// Sizedelta estimates the size of the graph rooted at obj that is not reachable from base.
// Returns 0 for nil obj; base must not be nil.
func (p *Profiler) Sizedelta(base, obj interface{}) (int64, error) {
	objRoot, ok := p.walker.resolve(reflect.ValueOf(obj))
	if !ok {
		return 0, nil
	}
	baseRoot, ok := p.walker.resolve(reflect.ValueOf(base))
	if !ok {
		return 0, ErrNilInput
	}

	visited := make(map[identity]struct{})
	if _, err := p.walker.computeSizeof(baseRoot, visited); err != nil {
		return 0, err
	}
	if _, seen := visited[objRoot.id]; seen {
		return 0, nil
	}
	return p.walker.computeSizeof(objRoot, visited)
}

// Profile builds the spanning tree of the object graph rooted at obj using
// breadth-first traversal. obj must not be nil.
func (p *Profiler) Profile(obj interface{}) (*Node, error) {
	root, ok := p.walker.resolve(reflect.ValueOf(obj))
	if !ok {
		return nil, ErrNilInput
	}

	start := time.Now()
	tree, objects, err := p.walker.createProfileTree(root, p.shortNames)
	if err != nil {
		return nil, err
	}
	node := finishProfileTree(tree, p.shortNames)

	p.logger.Debug("object graph profiled",
		zap.Stringer("type", node.Type()),
		zap.Int("objects", objects),
		zap.Int64("size", node.Size()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return node, nil
}

var defaultProfiler = New()

// Sizeof calls Profiler.Sizeof of a profiler with GoLayout.
func Sizeof(obj interface{}) (int64, error) {
	return defaultProfiler.Sizeof(obj)
}

// Sizedelta calls Profiler.Sizedelta of a profiler with GoLayout.
func Sizedelta(base, obj interface{}) (int64, error) {
	return defaultProfiler.Sizedelta(base, obj)
}

// Profile calls Profiler.Profile of a profiler with GoLayout.
func Profile(obj interface{}) (*Node, error) {
	return defaultProfiler.Profile(obj)
}
