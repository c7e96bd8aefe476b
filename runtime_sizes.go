package objprofile

import "unsafe"

// RuntimeMaxGoVersion - go version from which the mirrored runtime structs were taken.
// Sizes are approximate: newer runtimes may change the internal layout.
const RuntimeMaxGoVersion = "go1.17"

const (
	maxAlign = 8

	hchanSize        = unsafe.Sizeof(hchan{}) + uintptr(-int(unsafe.Sizeof(hchan{}))&(maxAlign-1))
	hmapSize         = unsafe.Sizeof(hmap{}) + uintptr(-int(unsafe.Sizeof(hmap{}))&(maxAlign-1))
	ifaceSize        = unsafe.Sizeof(iface{}) + uintptr(-int(unsafe.Sizeof(iface{}))&(maxAlign-1))
	sliceHeaderSize  = unsafe.Sizeof(sliceHeader{}) + uintptr(-int(unsafe.Sizeof(sliceHeader{}))&(maxAlign-1))
	stringHeaderSize = unsafe.Sizeof(stringHeader{}) + uintptr(-int(unsafe.Sizeof(stringHeader{}))&(maxAlign-1))
	pointerSize      = unsafe.Sizeof(uintptr(0))
)

// runtime/chan.go
type hchan struct {
	qcount   uint
	dataqsiz uint
	buf      unsafe.Pointer
	elemsize uint16
	closed   uint32
	elemtype *_type
	sendx    uint
	recvx    uint
	recvq    waitq
	sendq    waitq
	lock     mutex
}

type waitq struct {
	first *sudog
	last  *sudog
}

// stub types - need only for pointer size
type _type int
type sudog int
type itab int
type mapextra int

// runtime/runtime2.go; lockRankStruct is empty when static lock ranking is disabled
type mutex struct {
	key uintptr
}

// runtime/map.go
type hmap struct {
	count     int
	flags     uint8
	B         uint8
	noverflow uint16
	hash0     uint32

	buckets    unsafe.Pointer
	oldbuckets unsafe.Pointer
	nevacuate  uintptr

	extra *mapextra
}

// runtime/runtime2.go
type iface struct {
	tab  *itab
	data unsafe.Pointer
}

// runtime/slice.go
type sliceHeader struct {
	array unsafe.Pointer
	len   int
	cap   int
}

// runtime/string.go
type stringHeader struct {
	str unsafe.Pointer
	len int
}
