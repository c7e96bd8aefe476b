package objprofile

import (
	"reflect"
	"unsafe"
)

// value repeat struct of reflect.Value
// ptr and flag fields are only need for the package
type value struct {
	_ unsafe.Pointer

	// Pointer-valued data or, if flagIndir is set, pointer to data.
	// Valid when either flagIndir is set or typ.pointers() is true.
	ptr unsafe.Pointer

	flag uintptr
}

// reflect/value.go: flagKindWidth = 5, then flagStickyRO, flagEmbedRO, flagIndir
const flagIndir uintptr = 1 << 7

var valueLayoutOK = checkValue()

func newValue(r *reflect.Value) *value {
	unsafePointer := (unsafe.Pointer)(r)
	return (*value)(unsafePointer)
}

// checkValue verifies the mirrored layout against the running reflect package.
func checkValue() bool {
	var iVal int
	rVal := reflect.ValueOf(&iVal)
	internalValue := newValue(&rVal)

	iValPtr := (unsafe.Pointer)(&iVal)
	if iValPtr != internalValue.ptr || internalValue.flag&flagIndir != 0 {
		return false
	}

	boxed := reflect.ValueOf(interface{}(int64(-7)))
	internalBoxed := newValue(&boxed)
	if internalBoxed.flag&flagIndir == 0 || internalBoxed.ptr == nil {
		return false
	}
	return *(*int64)(internalBoxed.ptr) == -7
}

// boxedData returns the address of the data an interface holds indirectly.
// ok is false for values stored directly in the interface word, or when the
// reflect.Value layout is not the expected one.
func boxedData(v reflect.Value) (p unsafe.Pointer, ok bool) {
	if !valueLayoutOK {
		return nil, false
	}
	internal := newValue(&v)
	if internal.flag&flagIndir == 0 || internal.ptr == nil {
		return nil, false
	}
	return internal.ptr, true
}

// copyValue returns a pointer to a fresh copy of v. Unlike reflect.Value.Set it
// accepts values read through unexported fields.
func copyValue(v reflect.Value) reflect.Value {
	cp := reflect.New(v.Type())
	if v.CanInterface() {
		cp.Elem().Set(v)
		return cp
	}
	if p, ok := boxedData(v); ok {
		typedmemmove(v.Type(), cp.UnsafePointer(), p)
		return cp
	}
	if valueLayoutOK {
		// stored directly: the value is one pointer word
		*(*unsafe.Pointer)(cp.UnsafePointer()) = newValue(&v).ptr
	}
	return cp
}

// typedmemmove copies a value of type t from src to dst through reflect,
// keeping write barriers for pointer fields.
func typedmemmove(t reflect.Type, dst, src unsafe.Pointer) {
	reflect.NewAt(t, dst).Elem().Set(reflect.NewAt(t, src).Elem())
}
