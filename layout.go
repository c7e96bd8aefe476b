package objprofile

import (
	"fmt"
	"reflect"
)

// Layout is the table of byte widths used to estimate sizes.
// Memory alignment and padding are ignored.
type Layout struct {
	// ObjectHeader is the fixed overhead of every non-array heap object.
	ObjectHeader int64
	// ArrayHeader is the fixed overhead of an array instance (header, length, slot table).
	ArrayHeader int64
	// MapHeader and ChanHeader are the sizes of the runtime structures behind maps and channels.
	MapHeader  int64
	ChanHeader int64

	// Primitives maps every primitive kind to its width.
	Primitives map[reflect.Kind]int64
	// References maps every reference kind to the width of the slot holding it.
	References map[reflect.Kind]int64
}

var primitiveKinds = []reflect.Kind{
	reflect.Bool,
	reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
	reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
	reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
	reflect.UnsafePointer,
}

var referenceKinds = []reflect.Kind{
	reflect.Ptr, reflect.Slice, reflect.String, reflect.Map,
	reflect.Chan, reflect.Func, reflect.Interface,
}

// GoLayout returns the widths of the running platform.
// Objects have no header; slice, string and interface slots are the size of their runtime headers.
func GoLayout() Layout {
	l := Layout{
		MapHeader:  int64(hmapSize),
		ChanHeader: int64(hchanSize),
		Primitives: make(map[reflect.Kind]int64, len(primitiveKinds)),
		References: map[reflect.Kind]int64{
			reflect.Ptr:       int64(pointerSize),
			reflect.Slice:     int64(sliceHeaderSize),
			reflect.String:    int64(stringHeaderSize),
			reflect.Map:       int64(pointerSize),
			reflect.Chan:      int64(pointerSize),
			reflect.Func:      int64(pointerSize),
			reflect.Interface: int64(ifaceSize),
		},
	}
	for _, k := range primitiveKinds {
		l.Primitives[k] = int64(zeroOf(k).Size())
	}
	return l
}

// JVM32Layout returns the widths used by most 32-bit JVMs: an 8 byte object header,
// 4 byte references and arrays carrying a header, a length and a reference.
func JVM32Layout() Layout {
	l := Layout{
		ObjectHeader: 8,
		ArrayHeader:  8 + 4 + 4,
		MapHeader:    8,
		ChanHeader:   8,
		Primitives: map[reflect.Kind]int64{
			reflect.Bool:          1,
			reflect.Int:           4,
			reflect.Int8:          1,
			reflect.Int16:         2,
			reflect.Int32:         4,
			reflect.Int64:         8,
			reflect.Uint:          4,
			reflect.Uint8:         1,
			reflect.Uint16:        2,
			reflect.Uint32:        4,
			reflect.Uint64:        8,
			reflect.Uintptr:       4,
			reflect.Float32:       4,
			reflect.Float64:       8,
			reflect.Complex64:     8,
			reflect.Complex128:    16,
			reflect.UnsafePointer: 4,
		},
		References: make(map[reflect.Kind]int64, len(referenceKinds)),
	}
	for _, k := range referenceKinds {
		l.References[k] = 4
	}
	return l
}

// Validate checks that every primitive and reference kind has a non-negative width.
func (l Layout) Validate() error {
	for _, k := range primitiveKinds {
		w, ok := l.Primitives[k]
		if !ok || w < 0 {
			return fmt.Errorf("layout: bad width for primitive %v: %w", k, ErrInvalidLayout)
		}
	}
	for _, k := range referenceKinds {
		w, ok := l.References[k]
		if !ok || w < 0 {
			return fmt.Errorf("layout: bad width for reference %v: %w", k, ErrInvalidLayout)
		}
	}
	if l.ObjectHeader < 0 || l.ArrayHeader < 0 || l.MapHeader < 0 || l.ChanHeader < 0 {
		return fmt.Errorf("layout: negative header size: %w", ErrInvalidLayout)
	}
	return nil
}

// PrimitiveSize returns the width of a primitive kind.
// It panics with ErrNotPrimitive for any other kind.
func (l Layout) PrimitiveSize(k reflect.Kind) int64 {
	w, ok := l.Primitives[k]
	if !ok {
		panic(fmt.Errorf("%w: %v", ErrNotPrimitive, k))
	}
	return w
}

// ReferenceSize returns the width of the slot holding a reference of kind k.
func (l Layout) ReferenceSize(k reflect.Kind) int64 {
	return l.References[k]
}

func isPrimitive(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint8,
		reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr, reflect.Float32, reflect.Float64, reflect.Complex64,
		reflect.Complex128, reflect.UnsafePointer:
		return true
	}
	return false
}

func zeroOf(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Bool:
		return reflect.TypeOf(false)
	case reflect.Int:
		return reflect.TypeOf(int(0))
	case reflect.Int8:
		return reflect.TypeOf(int8(0))
	case reflect.Int16:
		return reflect.TypeOf(int16(0))
	case reflect.Int32:
		return reflect.TypeOf(int32(0))
	case reflect.Int64:
		return reflect.TypeOf(int64(0))
	case reflect.Uint:
		return reflect.TypeOf(uint(0))
	case reflect.Uint8:
		return reflect.TypeOf(uint8(0))
	case reflect.Uint16:
		return reflect.TypeOf(uint16(0))
	case reflect.Uint32:
		return reflect.TypeOf(uint32(0))
	case reflect.Uint64:
		return reflect.TypeOf(uint64(0))
	case reflect.Uintptr:
		return reflect.TypeOf(uintptr(0))
	case reflect.Float32:
		return reflect.TypeOf(float32(0))
	case reflect.Float64:
		return reflect.TypeOf(float64(0))
	case reflect.Complex64:
		return reflect.TypeOf(complex64(0))
	case reflect.Complex128:
		return reflect.TypeOf(complex128(0))
	default:
		return reflect.TypeOf(uintptr(0))
	}
}
