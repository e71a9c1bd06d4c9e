// ioengine.go: asynchronous direct-I/O submission/completion loop
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package ioengine submits pages produced by the assembler to the storage
// device via kernel asynchronous direct I/O, reaps completions, and
// advances the durable high-water mark. Submission is strictly ordered by
// file offset; completions may arrive out of order and are reassembled
// into a contiguous prefix before durable_seq moves (see completion.go).
//
// The submission/completion shape — a small pool of workers standing in
// for kernel completion queues, each completion delivered as a future-like
// channel message — is adapted from the io_uring submission queue entry /
// completion queue entry pattern used in the retrieved pack's io_uring
// examples.
package ioengine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agilira/picolog/internal/assembler"
	"github.com/agilira/picolog/internal/slab"
)

// defaultRetryCount and defaultRetryDelay match the teacher's own
// RetryFileOperation defaults, reused here for the submission retry path.
const (
	defaultRetryCount = 3
	defaultRetryDelay = 10 * time.Millisecond
)

// ErrLoggerFailed is observed by all producer-facing calls once a
// completion reports a short or failed write: the log enters a terminal
// failed state and no further submissions proceed.
var ErrLoggerFailed = errors.New("picolog: logger entered a failed state after a write failure")

// device is the platform-specific half of the engine: submit one
// page-sized, page-aligned write at the given file offset, with durability
// guaranteed by the time the call returns.
type device interface {
	WriteAt(page []byte, offset int64) error
	Close() error
}

// Engine drives submission and completion for one WAL file.
type Engine struct {
	dev      device
	slab     *slab.Slab
	in       <-chan assembler.ReadyPage
	pageSize int

	retryCount int
	retryDelay time.Duration

	tracker   *completionTracker
	trackerMu sync.Mutex

	durableSeq atomic.Uint64
	failed     atomic.Bool
	failErr    atomic.Pointer[string]

	submitCh chan assembler.ReadyPage
	doneCh   chan struct{}
	wg       sync.WaitGroup

	inFlight sync.WaitGroup
}

// New opens path for direct, page-aligned writes using the platform's
// engine backend (see ioengine_linux.go / ioengine_other.go) and
// constructs an Engine that will submit pages arriving on in.
// retryCount and retryDelay bound the transient-failure retry path in
// submitOne; a value <= 0 falls back to the teacher-matching defaults
// (3 attempts, 10ms apart).
func New(path string, sl *slab.Slab, in <-chan assembler.ReadyPage, retryCount int, retryDelay time.Duration) (*Engine, error) {
	dev, err := openDevice(path, sl.PageSize())
	if err != nil {
		return nil, fmt.Errorf("picolog: open %s: %w", path, err)
	}
	return newEngine(dev, sl, in, retryCount, retryDelay), nil
}

// depth bounds the number of in-flight submissions: the slab size minus
// one, leaving headroom for the assembler to keep packing while every
// other page is in flight.
func newEngine(dev device, sl *slab.Slab, in <-chan assembler.ReadyPage, retryCount int, retryDelay time.Duration) *Engine {
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	depth := sl.Pages() - 1
	if depth < 1 {
		depth = 1
	}
	e := &Engine{
		dev:        dev,
		slab:       sl,
		in:         in,
		pageSize:   sl.PageSize(),
		retryCount: retryCount,
		retryDelay: retryDelay,
		tracker:    newCompletionTracker(sl.PageSize()),
		submitCh:   make(chan assembler.ReadyPage, depth),
		doneCh:     make(chan struct{}),
	}
	for i := 0; i < depth; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Start launches the engine's drain loop, which forwards ready pages from
// the assembler onto the bounded submission channel.
func (e *Engine) Start() {
	go e.drain()
}

func (e *Engine) drain() {
	defer close(e.doneCh)
	for rp := range e.in {
		if e.failed.Load() {
			// Logger is in a failed state: stop submitting, but keep
			// draining to release slab pages and avoid deadlocking the
			// assembler on a full output channel.
			e.slab.Release(rp.PageIndex)
			continue
		}
		e.inFlight.Add(1)
		e.submitCh <- rp
	}
	close(e.submitCh)
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for rp := range e.submitCh {
		e.submitOne(rp)
	}
}

func (e *Engine) submitOne(rp assembler.ReadyPage) {
	defer e.inFlight.Done()
	defer e.slab.Release(rp.PageIndex)

	if len(rp.Page) != e.pageSize || rp.FileOffset%int64(e.pageSize) != 0 {
		e.fail(fmt.Errorf("picolog: page at offset %d is not %d-byte aligned", rp.FileOffset, e.pageSize))
		return
	}

	if err := retrySubmit(func() error {
		return e.dev.WriteAt(rp.Page, rp.FileOffset)
	}, e.retryCount, e.retryDelay); err != nil {
		e.fail(fmt.Errorf("picolog: write at offset %d failed: %w", rp.FileOffset, err))
		return
	}

	e.trackerMu.Lock()
	durable := e.tracker.ack(rp.FileOffset, rp.LastSeq)
	e.trackerMu.Unlock()
	e.advanceDurable(durable)
}

// retrySubmit calls write, retrying up to retryCount total attempts (with
// retryDelay between non-final attempts) as long as the returned error is
// classified retryable. A non-retryable error, or exhausting retryCount,
// returns the last error observed. Same attempt/sleep shape as the
// teacher's RetryFileOperation, narrowed to only retry transient resource
// exhaustion rather than any error.
func retrySubmit(write func() error, retryCount int, retryDelay time.Duration) error {
	var lastErr error
	for i := 0; i < retryCount; i++ {
		err := write()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if i < retryCount-1 {
			time.Sleep(retryDelay)
		}
	}
	return lastErr
}

// isRetryable reports whether err is a transient resource-exhaustion
// condition (spec.md's "submission failure that is retryable"), as
// opposed to a short or failed write, which is fatal to the log.
func isRetryable(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.EBUSY)
}

func (e *Engine) advanceDurable(v uint64) {
	for {
		cur := e.durableSeq.Load()
		if v <= cur {
			return
		}
		if e.durableSeq.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (e *Engine) fail(err error) {
	msg := err.Error()
	e.failErr.Store(&msg)
	e.failed.Store(true)
}

// DurableSeq returns the current durable high-water mark. Safe to call
// concurrently from any goroutine; acquire-ordered with the release store
// in advanceDurable.
func (e *Engine) DurableSeq() uint64 { return e.durableSeq.Load() }

// Failed reports whether the engine has entered the terminal failed state,
// and if so, the error that caused it.
func (e *Engine) Failed() (bool, error) {
	if !e.failed.Load() {
		return false, nil
	}
	if p := e.failErr.Load(); p != nil {
		return true, fmt.Errorf("%w: %s", ErrLoggerFailed, *p)
	}
	return true, ErrLoggerFailed
}

// Stop waits for the assembler's output channel to drain (the caller must
// have already stopped the assembler feeding it) and for every in-flight
// submission to complete. There is no timeout: completion is required for
// durability.
func (e *Engine) Stop() error {
	<-e.doneCh
	e.inFlight.Wait()
	e.wg.Wait()
	closeErr := e.dev.Close()
	if failed, err := e.Failed(); failed {
		return err
	}
	return closeErr
}
