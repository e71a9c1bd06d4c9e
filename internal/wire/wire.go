// wire.go: on-disk record and page layout
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package wire implements the fixed, little-endian on-disk layout shared by
// the page assembler, the I/O engine, and the recovery reader. Keeping the
// codec in one package is what guarantees the writer and the reader can
// never drift apart on byte layout.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the per-record header: an 8-byte sequence number followed
// by a 2-byte payload length, both little-endian.
const HeaderSize = 10

// Header is the fixed per-record header. Seq == 0 marks a padding slot.
type Header struct {
	Seq uint64
	Len uint16
}

// PutHeader encodes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint64(dst[0:8], h.Seq)
	binary.LittleEndian.PutUint16(dst[8:10], h.Len)
}

// GetHeader decodes a Header from the first HeaderSize bytes of src.
func GetHeader(src []byte) Header {
	return Header{
		Seq: binary.LittleEndian.Uint64(src[0:8]),
		Len: binary.LittleEndian.Uint16(src[8:10]),
	}
}

// SlotSize returns the total on-disk size of one record slot (header plus
// payload) for a payload of recordSize bytes.
func SlotSize(recordSize int) int {
	return HeaderSize + recordSize
}

// SlotsPerPage returns K, the number of record slots a page of pageSize
// bytes holds for a payload of recordSize bytes: floor(P / (R+H)).
func SlotsPerPage(pageSize, recordSize int) int {
	return pageSize / SlotSize(recordSize)
}

// PutRecord writes one record slot (header + raw payload bytes) at the
// given slot index within page. page must be at least
// (slotIndex+1)*SlotSize(len(payload)) bytes long.
func PutRecord(page []byte, slotIndex int, seq uint64, payload []byte) {
	slotSize := SlotSize(len(payload))
	off := slotIndex * slotSize
	PutHeader(page[off:off+HeaderSize], Header{Seq: seq, Len: uint16(len(payload))}) // #nosec G115 -- payload size is bounded by page size, fits uint16
	copy(page[off+HeaderSize:off+slotSize], payload)
}

// GetRecord reads the header and payload bytes of one record slot. The
// returned payload aliases page; callers that retain it across further
// mutation of page must copy it.
//
// h.Len is on-disk, attacker/corruption-controlled data: it is validated
// against recordSize and the page's bounds before it is used to slice
// page, so a torn or garbage header yields an error instead of an
// out-of-range panic.
func GetRecord(page []byte, slotIndex, recordSize int) (Header, []byte, error) {
	slotSize := SlotSize(recordSize)
	off := slotIndex * slotSize
	if off < 0 || off+slotSize > len(page) {
		return Header{}, nil, fmt.Errorf("slot %d at offset %d does not fit in a %d-byte page", slotIndex, off, len(page))
	}
	h := GetHeader(page[off : off+HeaderSize])
	if h.Seq == 0 {
		// Padding slot: no payload to decode.
		return h, nil, nil
	}
	if int(h.Len) != recordSize {
		return h, nil, fmt.Errorf("slot %d length %d does not match record size %d", slotIndex, h.Len, recordSize)
	}
	// Sliced with recordSize, not h.Len: off+slotSize <= len(page) was
	// already checked above, so this bound is safe regardless of h.Len.
	return h, page[off+HeaderSize : off+HeaderSize+recordSize], nil
}

// ZeroTrailer zero-fills the unused tail of a page after the last written
// slot, so a partially filled page never leaks stale slab contents.
func ZeroTrailer(page []byte, usedSlots, recordSize int) {
	off := usedSlots * SlotSize(recordSize)
	for i := off; i < len(page); i++ {
		page[i] = 0
	}
}
