// slab.go: page-aligned buffer pool
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package slab owns a small, fixed set of page-aligned buffers satisfying
// direct-I/O alignment and size requirements. It allocates once at
// construction and never resizes.
package slab

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrBackpressureStall is returned by Acquire when no page is free. It is a
// transient backpressure signal, not a fatal error.
var ErrBackpressureStall = errors.New("picolog: slab exhausted (backpressure)")

// Slab is a fixed pool of equal-sized, page-aligned buffers. It is safe for
// use by a single owner (the consumer thread); Acquire and Release are not
// safe to call concurrently with each other from multiple goroutines.
type Slab struct {
	region    []byte
	pageSize  int
	pages     int
	freeList  []int32 // stack of free page indices
	inUse     []bool
}

// New allocates a pageSize*pages contiguous, page-aligned region and
// indexes it as pages equal-sized buffers. Allocation failure here is
// fatal: callers should treat a non-nil error as unrecoverable.
func New(pageSize, pages int) (*Slab, error) {
	if pageSize <= 0 || pages <= 0 {
		return nil, fmt.Errorf("picolog: invalid slab dimensions: pageSize=%d pages=%d", pageSize, pages)
	}

	// mmap returns page-aligned memory on Linux and most other platforms,
	// which satisfies O_DIRECT's buffer-alignment requirement without a
	// manual posix_memalign shim.
	region, err := unix.Mmap(-1, 0, pageSize*pages,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("picolog: slab mmap failed: %w", err)
	}

	s := &Slab{
		region:   region,
		pageSize: pageSize,
		pages:    pages,
		freeList: make([]int32, pages),
		inUse:    make([]bool, pages),
	}
	for i := 0; i < pages; i++ {
		s.freeList[i] = int32(pages - 1 - i) // pop order: index 0 first
	}
	return s, nil
}

// PageSize returns the configured page size in bytes.
func (s *Slab) PageSize() int { return s.pageSize }

// Pages returns the total number of pages in the slab.
func (s *Slab) Pages() int { return s.pages }

// InUse returns the number of pages currently checked out via Acquire.
// Approximate under concurrent Acquire/Release from other goroutines;
// exact when called from the sole owner goroutine.
func (s *Slab) InUse() int { return s.pages - len(s.freeList) }

// Acquire returns exclusive ownership of a zeroed page buffer and its
// index, or ErrBackpressureStall if no page is currently free.
func (s *Slab) Acquire() (int32, []byte, error) {
	n := len(s.freeList)
	if n == 0 {
		return -1, nil, ErrBackpressureStall
	}
	idx := s.freeList[n-1]
	s.freeList = s.freeList[:n-1]
	s.inUse[idx] = true

	start := int(idx) * s.pageSize
	page := s.region[start : start+s.pageSize]
	clear(page)
	return idx, page, nil
}

// Release returns a page to the pool. Must only be called by the I/O
// engine, once a page's submission has completed (successfully or not).
func (s *Slab) Release(idx int32) {
	if idx < 0 || int(idx) >= s.pages || !s.inUse[idx] {
		return
	}
	s.inUse[idx] = false
	s.freeList = append(s.freeList, idx)
}

// Close unmaps the slab's backing region. The slab must not be used again
// afterwards.
func (s *Slab) Close() error {
	if s.region == nil {
		return nil
	}
	err := unix.Munmap(s.region)
	s.region = nil
	return err
}
