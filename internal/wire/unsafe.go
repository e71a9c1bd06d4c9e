// unsafe.go: zero-copy record <-> byte-slice views
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package wire

import "unsafe"

// RecordBytes returns a []byte view over rec's raw memory, sized n
// (n must equal sizeof(T)). No allocation, no copy: this is the byte
// memcpy source spec.md §9 calls for on the hot path, expressed as a
// slice header pointing at the caller's value.
func RecordBytes[T any](rec *T, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(rec)), n)
}

// BytesToRecord reinterprets a byte slice of at least sizeof(T) bytes as a
// T by value copy. Used by the reader, where the source bytes (a page)
// must not be mutated afterwards through the returned value.
func BytesToRecord[T any](b []byte) T {
	var rec T
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&rec)), unsafe.Sizeof(rec)), b)
	return rec
}
