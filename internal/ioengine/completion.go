// completion.go: out-of-order completion tracking
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ioengine

import "container/heap"

// completion is one acknowledged page write.
type completion struct {
	offset  int64
	lastSeq uint64
}

// completionHeap is a min-heap ordered by file offset. Submissions are
// strictly ordered by increasing offset, but kernel completions may arrive
// out of order; durable_seq must only advance across a contiguous
// acknowledged prefix, so completions are buffered here until the next
// expected offset is at the top of the heap.
type completionHeap []completion

func (h completionHeap) Len() int            { return len(h) }
func (h completionHeap) Less(i, j int) bool  { return h[i].offset < h[j].offset }
func (h completionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *completionHeap) Push(x interface{}) { *h = append(*h, x.(completion)) }
func (h *completionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// completionTracker advances durable_seq across the contiguous prefix of
// acknowledged pages as they arrive, possibly out of order.
type completionTracker struct {
	pending    completionHeap
	nextOffset int64
	pageSize   int64
	durable    uint64
}

func newCompletionTracker(pageSize int) *completionTracker {
	return &completionTracker{pageSize: int64(pageSize)}
}

// ack records that the page at offset completed with lastSeq, and returns
// the new durable high-water mark (unchanged if offset is not yet at the
// front of the contiguous prefix).
func (t *completionTracker) ack(offset int64, lastSeq uint64) uint64 {
	heap.Push(&t.pending, completion{offset: offset, lastSeq: lastSeq})

	for len(t.pending) > 0 && t.pending[0].offset == t.nextOffset {
		c := heap.Pop(&t.pending).(completion)
		t.durable = c.lastSeq
		t.nextOffset += t.pageSize
	}
	return t.durable
}
