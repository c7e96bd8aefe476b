package objprofile

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"unsafe"
)

type shape uint8

const (
	shapeObject shape = iota
	shapeArray
	shapeString
	shapeMap
	shapeChan
)

// identity of a heap object: never value equality.
// Slices, strings and array pointers share the array form keyed by element type
// and length: slices count up to their capacity, strings their own bytes.
type identity struct {
	addr   uintptr
	typ    reflect.Type
	array  bool
	length int
}

type target struct {
	id    identity
	value reflect.Value
	shape shape
}

// link describes how a reference was reached from its owner.
type link struct {
	field *Field
	index int    // element index, -1 when reached through a plain field
	key   string // formatted map key
	keyed int    // 0 - not a map entry, 1 - map value, 2 - map key
}

const (
	linkMapValue = 1
	linkMapKey   = 2
)

func (l link) name(parent string, short bool) string {
	switch {
	case l.keyed == linkMapKey:
		return joinName(parent+"{"+l.key+"}", l.field.Name)
	case l.keyed == linkMapValue:
		return joinName(parent+"["+l.key+"]", l.field.Name)
	case l.index >= 0:
		return joinName(parent+indexName(l.index), l.field.Name)
	default:
		return FieldName(*l.field, short)
	}
}

// shellInfo is the own footprint of one object, before a node is made of it.
type shellInfo struct {
	kind            Kind
	size            int64
	typ             reflect.Type
	length          int
	primitiveFields int
	referenceFields int
}

type emitFunc func(ref reflect.Value, l link) error

var byteType = reflect.TypeOf(byte(0))

type walker struct {
	layout Layout
	cache  *MetadataCache
}

// resolve follows one reference slot to the object it points to.
// ok is false for nil references and for kinds that are never followed.
func (w *walker) resolve(v reflect.Value) (t target, ok bool) {
	v = exposed(v)

	switch v.Kind() {
	case reflect.Invalid, reflect.Func, reflect.UnsafePointer:
		return t, false
	case reflect.Ptr:
		if v.IsNil() {
			return t, false
		}
		return pointee(v.Type().Elem(), v.UnsafePointer()), true
	case reflect.Slice:
		if v.IsNil() {
			return t, false
		}
		n := v.Cap()
		return target{
			id:    identity{addr: uintptr(v.UnsafePointer()), typ: v.Type().Elem(), array: true, length: n},
			value: v.Slice(0, n),
			shape: shapeArray,
		}, true
	case reflect.String:
		s := v.String()
		if len(s) == 0 {
			return t, false
		}
		return target{
			id:    identity{addr: uintptr(unsafe.Pointer(unsafe.StringData(s))), typ: byteType, array: true, length: len(s)},
			value: reflect.ValueOf(s),
			shape: shapeString,
		}, true
	case reflect.Map:
		if v.IsNil() {
			return t, false
		}
		return target{id: identity{addr: uintptr(v.UnsafePointer()), typ: v.Type()}, value: v, shape: shapeMap}, true
	case reflect.Chan:
		if v.IsNil() {
			return t, false
		}
		return target{id: identity{addr: uintptr(v.UnsafePointer()), typ: v.Type()}, value: v, shape: shapeChan}, true
	case reflect.Interface:
		if v.IsNil() {
			return t, false
		}
		return w.resolve(v.Elem())
	default:
		// struct, array or primitive held by an interface
		return boxed(v), true
	}
}

func pointee(t reflect.Type, p unsafe.Pointer) target {
	v := reflect.NewAt(t, p).Elem()
	if t.Kind() == reflect.Array {
		return target{id: identity{addr: uintptr(p), typ: t.Elem(), array: true, length: t.Len()}, value: v, shape: shapeArray}
	}
	return target{id: identity{addr: uintptr(p), typ: t}, value: v, shape: shapeObject}
}

func boxed(v reflect.Value) target {
	if p, ok := boxedData(v); ok {
		return pointee(v.Type(), p)
	}
	// stored directly in the interface word: no separate allocation to share
	cp := copyValue(v)
	return pointee(v.Type(), cp.UnsafePointer())
}

// exposed returns v without the read-only flag of unexported fields when it is addressable.
func exposed(v reflect.Value) reflect.Value {
	if !v.IsValid() || v.CanInterface() || !v.CanAddr() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

// expand computes the shell of t and emits every reference slot it holds.
func (w *walker) expand(t target, emit emitFunc) (shellInfo, error) {
	switch t.shape {
	case shapeObject:
		return w.expandObject(t, emit)
	case shapeArray:
		return w.expandArray(t, emit)
	case shapeString:
		n := t.value.Len()
		return shellInfo{
			kind:   KindArrayShell,
			size:   w.layout.ArrayHeader + int64(n)*w.layout.PrimitiveSize(reflect.Uint8),
			typ:    byteType,
			length: n,
		}, nil
	case shapeMap:
		return w.expandMap(t, emit)
	case shapeChan:
		md := w.cache.Get(t.value.Type().Elem())
		n := t.value.Cap()
		return shellInfo{
			kind:   KindArrayShell,
			size:   w.layout.ChanHeader + int64(n)*md.Size,
			typ:    t.value.Type().Elem(),
			length: n,
		}, nil
	default:
		return shellInfo{}, fmt.Errorf("can't expand shape %d: %w", t.shape, ErrUnknownKind)
	}
}

func (w *walker) expandObject(t target, emit emitFunc) (shellInfo, error) {
	md := w.cache.Get(t.value.Type())
	info := shellInfo{
		kind:            KindObjectShell,
		size:            w.layout.ObjectHeader + md.Size,
		typ:             md.Type,
		primitiveFields: md.PrimitiveFields,
		referenceFields: len(md.Refs),
	}
	for i := range md.Refs {
		f := &md.Refs[i]
		ref, err := readField(t.value, f)
		if err != nil {
			return info, err
		}
		if err := emit(ref, link{field: f, index: -1}); err != nil {
			return info, err
		}
	}
	return info, nil
}

func (w *walker) expandArray(t target, emit emitFunc) (shellInfo, error) {
	elemType := t.value.Type().Elem()
	md := w.cache.Get(elemType)
	n := t.value.Len()
	info := shellInfo{
		kind:   KindArrayShell,
		size:   w.layout.ArrayHeader + int64(n)*md.Size,
		typ:    elemType,
		length: n,
	}
	if len(md.Refs) == 0 {
		return info, nil
	}
	for i := 0; i < n; i++ {
		item := t.value.Index(i)
		for j := range md.Refs {
			f := &md.Refs[j]
			ref, err := readField(item, f)
			if err != nil {
				return info, err
			}
			if err := emit(ref, link{field: f, index: i}); err != nil {
				return info, err
			}
		}
	}
	return info, nil
}

type mapEntry struct {
	label string
	key   reflect.Value
	value reflect.Value
}

func (w *walker) expandMap(t target, emit emitFunc) (shellInfo, error) {
	mt := t.value.Type()
	kmd := w.cache.Get(mt.Key())
	vmd := w.cache.Get(mt.Elem())
	n := t.value.Len()
	info := shellInfo{
		kind:   KindArrayShell,
		size:   w.layout.MapHeader + int64(n)*(kmd.Size+vmd.Size),
		typ:    mt,
		length: n,
	}
	if len(kmd.Refs) == 0 && len(vmd.Refs) == 0 {
		return info, nil
	}

	entries := make([]mapEntry, 0, n)
	iter := t.value.MapRange()
	for iter.Next() {
		k := iter.Key()
		entries = append(entries, mapEntry{label: formatKey(k), key: k, value: iter.Value()})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].label < entries[j].label })

	for _, e := range entries {
		for i := range kmd.Refs {
			f := &kmd.Refs[i]
			ref, err := readField(e.key, f)
			if err != nil {
				return info, err
			}
			if err := emit(ref, link{field: f, index: -1, key: e.label, keyed: linkMapKey}); err != nil {
				return info, err
			}
		}
		for i := range vmd.Refs {
			f := &vmd.Refs[i]
			ref, err := readField(e.value, f)
			if err != nil {
				return info, err
			}
			if err := emit(ref, link{field: f, index: -1, key: e.label, keyed: linkMapValue}); err != nil {
				return info, err
			}
		}
	}
	return info, nil
}

// readField walks the index path of f inside v.
// reflect panics are reported as ErrFieldAccess naming the field and its owner.
func readField(v reflect.Value, f *Field) (res reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			owner := "<nil>"
			if f.Owner != nil {
				owner = f.Owner.String()
			}
			err = fmt.Errorf("cannot get field [%s] of type [%s]: %v: %w", f.Name, owner, r, ErrFieldAccess)
		}
	}()

	for _, i := range f.index {
		if v.Kind() == reflect.Struct {
			v = v.Field(i)
		} else {
			v = v.Index(i)
		}
	}
	return v, nil
}

func formatKey(k reflect.Value) string {
	k = exposed(k)
	switch k.Kind() {
	case reflect.String:
		return strconv.Quote(k.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	if !k.CanInterface() {
		// keys of unexported maps: read through a writable copy
		k = copyValue(k).Elem()
	}
	return fmt.Sprint(k.Interface())
}
