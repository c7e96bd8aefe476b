package objprofile

import (
	"reflect"
	"strings"
)

// ShortTypeNames makes node names default to type names without package paths.
// Set it before profiling, it is not guarded.
var ShortTypeNames = false

// ShortCommonTypeNames strips the package of types from CommonPackages even when
// short names are not requested.
var ShortCommonTypeNames = true

// CommonPackages are the packages whose types get short names when ShortCommonTypeNames is set.
var CommonPackages = []string{"sync", "time"}

// PathName joins the node names of path with '/'.
func PathName(path []*Node) string {
	var b strings.Builder
	for i, n := range path {
		if i != 0 {
			b.WriteByte('/')
		}
		b.WriteString(n.Name())
	}
	return b.String()
}

// FieldName renders f as "Type#name".
func FieldName(f Field, short bool) string {
	if f.Owner == nil {
		return "(" + TypeName(f.Type, short) + ")"
	}
	return TypeName(f.Owner, short) + "#" + f.Name
}

// TypeName renders t with slice and array dimensions turned into trailing "[]".
// Named types are qualified with their full package path unless short is set.
func TypeName(t reflect.Type, short bool) string {
	if t == nil {
		return "<nil>"
	}

	dims := 0
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
		dims++
	}

	var name string
	switch {
	case t.Kind() == reflect.Ptr && t.Name() == "":
		name = "*" + TypeName(t.Elem(), short)
	case t.Name() == "" || t.PkgPath() == "":
		name = t.String()
	case short:
		name = t.Name()
	case ShortCommonTypeNames && isCommonPackage(t.PkgPath()):
		name = t.Name()
	default:
		name = t.PkgPath() + "." + t.Name()
	}

	return name + strings.Repeat("[]", dims)
}

func isCommonPackage(pkgPath string) bool {
	for _, p := range CommonPackages {
		if pkgPath == p {
			return true
		}
	}
	return false
}
