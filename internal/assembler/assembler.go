// assembler.go: packs ring records into sector-aligned pages
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package assembler drains the record ring on the consumer thread and
// packs entries into slab pages, emitting a page once it is full or once
// the flush interval elapses with a partial page pending. The loop shape —
// sleep-polled drain with adaptive backoff between empty and busy rounds —
// is adapted from agilira/lethe's MPSCConsumer.
package assembler

import (
	"time"

	"github.com/agilira/go-timecache"

	"github.com/agilira/picolog/internal/ring"
	"github.com/agilira/picolog/internal/slab"
	"github.com/agilira/picolog/internal/wire"
)

// ReadyPage is one fully or partially packed page handed off to the I/O
// engine for submission.
type ReadyPage struct {
	PageIndex  int32
	Page       []byte
	FirstSeq   uint64
	LastSeq    uint64
	FileOffset int64
}

// Assembler packs records popped from a ring.SPSC[T] into slab pages.
type Assembler[T any] struct {
	slab       *slab.Slab
	ring       *ring.SPSC[T]
	recordSize int
	slotsPer   int

	flushInterval time.Duration
	pollInterval  time.Duration

	out chan<- ReadyPage

	timeCache *timecache.TimeCache

	nextOffset int64

	// current page under construction
	curIdx       int32
	curPage      []byte
	curSlots     int
	firstSeq     uint64
	lastSeq      uint64
	lastFlushAt  time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Assembler. recordSize is sizeof(T) in bytes.
func New[T any](sl *slab.Slab, r *ring.SPSC[T], recordSize int, flushInterval, pollInterval time.Duration, out chan<- ReadyPage) *Assembler[T] {
	if flushInterval <= 0 {
		flushInterval = time.Millisecond
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Microsecond
	}
	return &Assembler[T]{
		slab:          sl,
		ring:          r,
		recordSize:    recordSize,
		slotsPer:      wire.SlotsPerPage(sl.PageSize(), recordSize),
		flushInterval: flushInterval,
		pollInterval:  pollInterval,
		out:           out,
		timeCache:     timecache.NewWithResolution(time.Millisecond),
		curIdx:        -1,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the assembler's consumer-thread loop in a new goroutine.
func (a *Assembler[T]) Start() {
	go a.run()
}

// Stop signals the loop to drain the ring, flush any partial page, and
// exit. It blocks until the loop has returned.
func (a *Assembler[T]) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *Assembler[T]) run() {
	defer func() {
		a.timeCache.Stop()
		close(a.doneCh)
	}()

	a.lastFlushAt = a.timeCache.CachedTime()
	emptyRounds := 0
	interval := a.pollInterval

	for {
		select {
		case <-a.stopCh:
			a.drainAndFlush()
			return
		default:
		}

		processed := a.drainOnce()

		if a.curSlots == a.slotsPer {
			a.emit()
			emptyRounds = 0
			continue
		}

		if processed == 0 {
			if a.curSlots > 0 && a.timeCache.CachedTime().Sub(a.lastFlushAt) >= a.flushInterval {
				a.emit()
			}

			emptyRounds++
			if emptyRounds >= 10 {
				interval = a.pollInterval * 10
			}
			time.Sleep(interval)
		} else {
			emptyRounds = 0
			interval = a.pollInterval
		}
	}
}

// drainOnce pops everything currently available from the ring into the
// current page, acquiring a fresh page if needed. Returns the number of
// records consumed.
func (a *Assembler[T]) drainOnce() int {
	processed := 0
	for {
		if a.curPage == nil {
			idx, page, err := a.slab.Acquire()
			if err != nil {
				return processed
			}
			a.curIdx = idx
			a.curPage = page
			a.curSlots = 0
		}

		if a.curSlots >= a.slotsPer {
			return processed
		}

		seq, rec, ok := a.ring.TryPop()
		if !ok {
			return processed
		}

		payload := wire.RecordBytes(&rec, a.recordSize)
		wire.PutRecord(a.curPage, a.curSlots, seq, payload)
		if a.curSlots == 0 {
			a.firstSeq = seq
		}
		a.lastSeq = seq
		a.curSlots++
		processed++
	}
}

// drainAndFlush drains whatever remains in the ring (shutdown only: no new
// records can arrive past this point) and flushes a final partial page so
// every previously-pushed record gets a durability path.
func (a *Assembler[T]) drainAndFlush() {
	for {
		n := a.drainOnce()
		if a.curSlots == a.slotsPer {
			a.emit()
		}
		if n == 0 {
			break
		}
	}
	if a.curSlots > 0 {
		a.emit()
	}
}

func (a *Assembler[T]) emit() {
	wire.ZeroTrailer(a.curPage, a.curSlots, a.recordSize)
	a.out <- ReadyPage{
		PageIndex:  a.curIdx,
		Page:       a.curPage,
		FirstSeq:   a.firstSeq,
		LastSeq:    a.lastSeq,
		FileOffset: a.nextOffset,
	}
	a.nextOffset += int64(len(a.curPage))
	a.lastFlushAt = a.timeCache.CachedTime()
	a.curIdx = -1
	a.curPage = nil
	a.curSlots = 0
}
