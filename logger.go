// logger.go: public write/read facade
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package picolog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/picolog/internal/assembler"
	"github.com/agilira/picolog/internal/ioengine"
	"github.com/agilira/picolog/internal/reader"
	"github.com/agilira/picolog/internal/ring"
	"github.com/agilira/picolog/internal/slab"
	"github.com/agilira/picolog/internal/wire"
)

// defaultSlabPages bounds how many pages may be in flight between the
// assembler and the I/O engine at once. It is not exposed on WriteConfig:
// tuning it independently of RingCapacity has not shown up as a real need
// in practice, matching the teacher's preference for few configuration
// knobs over many.
const defaultSlabPages = 64

// WriteConfig configures a write-mode Logger. Path and RingCapacity are
// required; everything else has a workable default.
type WriteConfig struct {
	// Path is the WAL file to create or truncate.
	Path string

	// RingCapacity is the producer/consumer ring's requested capacity,
	// rounded up to the next power of two.
	RingCapacity int

	// PageSize is the on-disk page size in bytes. Defaults to 4096.
	// Must be a positive multiple of 4096.
	PageSize int

	// FlushInterval bounds how long a partial page may sit unflushed.
	// Defaults to 1ms.
	FlushInterval time.Duration

	// PollInterval is the consumer loop's base polling period when the
	// ring is empty. Defaults to 50µs.
	PollInterval time.Duration

	// RetryCount bounds how many times a page submission is attempted
	// before a transient I/O error is given up on. Defaults to 3.
	RetryCount int

	// RetryDelay is the pause between submission retry attempts.
	// Defaults to 10ms.
	RetryDelay time.Duration

	// FileMode is the mode used when creating Path. Defaults to 0644.
	FileMode os.FileMode

	// ErrorCallback, if set, is invoked by Log each time it rejects a
	// record because the logger has entered a failed state; the error
	// passed wraps ErrLoggerFailed. A background submission failure is not
	// reported at the moment it happens, only through later Log calls.
	ErrorCallback func(op string, err error)
}

func (cfg *WriteConfig) setDefaults() {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 4096
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Microsecond
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
}

// Stats is a point-in-time snapshot of a Logger's counters, gathered
// entirely from atomics already maintained on the hot and completion
// paths: querying Stats never blocks the producer or consumer.
type Stats struct {
	Written       uint64 // records accepted by Log
	Backpressured uint64 // Log calls rejected because the ring was full
	DurableSeq    uint64 // highest sequence number known durable
	DurableLag    uint64 // Written - DurableSeq
	SlabPages     int    // total pages in the slab
	SlabInUse     int    // pages currently checked out of the slab
}

// Logger is a write-mode or read-mode handle to one WAL file. The zero
// value is not usable; construct with NewWriter or NewReader.
type Logger[T any] struct {
	recordSize int

	// write-mode fields
	cfg     WriteConfig
	ring    *ring.SPSC[T]
	slab    *slab.Slab
	asm     *assembler.Assembler[T]
	engine  *ioengine.Engine
	readyCh chan assembler.ReadyPage

	// read-mode fields
	rd *reader.Reader[T]

	writeCount  atomic.Uint64
	backpressed atomic.Uint64

	started  atomic.Bool
	stopOnce sync.Once
}

// NewWriter validates cfg and the record type T, then prepares a write-mode
// Logger. No file is created and no goroutine is started until Start.
func NewWriter[T any](cfg WriteConfig) (*Logger[T], error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("picolog: record type must be a concrete struct or fixed-size type, not an interface")
	}
	if err := wire.ValidateLayout(t); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("picolog: WriteConfig.Path is required")
	}
	if cfg.RingCapacity <= 0 {
		return nil, fmt.Errorf("picolog: WriteConfig.RingCapacity must be positive")
	}
	cfg.setDefaults()

	recordSize := int(t.Size())
	if wire.SlotSize(recordSize) > cfg.PageSize {
		return nil, fmt.Errorf("%w: record size %d does not fit in a %d-byte page", ErrAlignment, recordSize, cfg.PageSize)
	}
	if cfg.PageSize%4096 != 0 {
		return nil, fmt.Errorf("%w: page size %d is not a multiple of 4096", ErrAlignment, cfg.PageSize)
	}

	return &Logger[T]{
		recordSize: recordSize,
		cfg:        cfg,
	}, nil
}

// NewReader opens path for sequential replay. The file must already exist;
// ErrNotFound is returned otherwise. Record layout is validated the same
// way NewWriter validates it.
func NewReader[T any](path string) (*Logger[T], error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("picolog: record type must be a concrete struct or fixed-size type, not an interface")
	}
	if err := wire.ValidateLayout(t); err != nil {
		return nil, err
	}
	recordSize := int(t.Size())

	rd, err := reader.Open[T](path, 4096, recordSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}

	l := &Logger[T]{recordSize: recordSize, rd: rd}
	l.started.Store(true)
	return l, nil
}

// Start creates (truncating) the WAL file, allocates the slab and ring,
// and launches the assembler and I/O engine goroutines. Start is a no-op
// returning ErrAlreadyStarted on a second call, and is only valid on a
// write-mode Logger obtained from NewWriter.
func (l *Logger[T]) Start() error {
	if l.rd != nil {
		return fmt.Errorf("picolog: Start called on a read-mode Logger")
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	f, err := os.OpenFile(l.cfg.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, l.cfg.FileMode)
	if err != nil {
		return fmt.Errorf("picolog: create %s: %w", l.cfg.Path, err)
	}
	if cerr := f.Close(); cerr != nil {
		return fmt.Errorf("picolog: %w", cerr)
	}

	sl, err := slab.New(l.cfg.PageSize, defaultSlabPages)
	if err != nil {
		return err
	}

	l.ring = ring.New[T](l.cfg.RingCapacity)
	l.slab = sl
	l.readyCh = make(chan assembler.ReadyPage, defaultSlabPages)
	l.asm = assembler.New[T](sl, l.ring, l.recordSize, l.cfg.FlushInterval, l.cfg.PollInterval, l.readyCh)

	engine, err := ioengine.New(l.cfg.Path, sl, l.readyCh, l.cfg.RetryCount, l.cfg.RetryDelay)
	if err != nil {
		_ = sl.Close()
		return err
	}
	l.engine = engine

	l.engine.Start()
	l.asm.Start()
	return nil
}

// Log enqueues rec for persistence and returns its assigned sequence
// number. Returns (0, false) if the ring is currently full (backpressure)
// or the logger has entered a failed state; the caller decides whether to
// retry, drop, or escalate. Wait-free: no syscalls, no allocation.
func (l *Logger[T]) Log(rec T) (uint64, bool) {
	if !l.started.Load() || l.ring == nil {
		return 0, false
	}
	if failed, engErr := l.engine.Failed(); failed {
		l.reportError("log", fmt.Errorf("%w: %v", ErrLoggerFailed, engErr))
		return 0, false
	}

	seq, ok := l.ring.TryPush(rec)
	if !ok {
		l.backpressed.Add(1)
		return 0, false
	}
	l.writeCount.Add(1)
	return seq, true
}

// DurableSeq returns the highest sequence number known to be durable on
// disk. Monotonically non-decreasing.
func (l *Logger[T]) DurableSeq() uint64 {
	if l.engine == nil {
		return 0
	}
	return l.engine.DurableSeq()
}

// Read replays every record in a read-mode Logger's file, in log order.
// Valid only on a Logger obtained from NewReader.
func (l *Logger[T]) Read() ([]T, error) {
	if l.rd == nil {
		return nil, fmt.Errorf("picolog: Read is only valid on a Logger opened with NewReader: %w", ErrNotStarted)
	}
	var out []T
	for {
		_, rec, err := l.rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			if errors.Is(err, reader.ErrCorrupt) {
				return out, fmt.Errorf("%w", ErrCorrupt)
			}
			return out, err
		}
		out = append(out, rec)
	}
}

// Stats returns a snapshot of the logger's counters.
func (l *Logger[T]) Stats() Stats {
	s := Stats{
		Written:       l.writeCount.Load(),
		Backpressured: l.backpressed.Load(),
	}
	if l.engine != nil {
		s.DurableSeq = l.engine.DurableSeq()
		if s.Written > s.DurableSeq {
			s.DurableLag = s.Written - s.DurableSeq
		}
	}
	if l.slab != nil {
		s.SlabPages = l.slab.Pages()
		s.SlabInUse = l.slab.InUse()
	}
	return s
}

// Stop drains the assembler, waits for every submitted page to complete,
// and closes the underlying file. Idempotent: repeated calls are a no-op
// after the first, matching lethe.Logger.Close's closeOnce pattern.
func (l *Logger[T]) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		if l.rd != nil {
			err = l.rd.Close()
			return
		}
		if l.asm == nil {
			return
		}
		l.asm.Stop()
		close(l.readyCh)
		if engErr := l.engine.Stop(); engErr != nil {
			err = fmt.Errorf("%w: %v", ErrLoggerFailed, engErr)
		}
		if cerr := l.slab.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (l *Logger[T]) reportError(op string, err error) {
	if l.cfg.ErrorCallback != nil {
		l.cfg.ErrorCallback(op, err)
	}
}
