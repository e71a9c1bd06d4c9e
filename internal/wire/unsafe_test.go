// unsafe_test.go
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package wire

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	A uint64
	B int32
	C uint8
}

func TestRecordBytesRoundTrip(t *testing.T) {
	rec := sample{A: 7, B: -3, C: 200}
	n := int(unsafe.Sizeof(rec))

	b := RecordBytes(&rec, n)
	assert.Len(t, b, n)

	got := BytesToRecord[sample](b)
	assert.Equal(t, rec, got)
}

func TestRecordBytesAliasesSource(t *testing.T) {
	rec := sample{A: 1}
	n := int(unsafe.Sizeof(rec))
	b := RecordBytes(&rec, n)

	rec.A = 99
	got := BytesToRecord[sample](b)
	assert.Equal(t, uint64(99), got.A, "RecordBytes must be a live view, not a copy")
}
