// reader.go: sequential recovery reader
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package reader provides crash recovery and replay: a buffered sequential
// scan of a WAL file that decodes it page by page using the same wire
// codec the writer uses, surfacing strictly increasing sequence numbers,
// skipping each page's zero padding, and stopping cleanly at end of file.
package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agilira/picolog/internal/wire"
)

// ErrCorrupt is returned when a page's contents cannot be a valid encoding
// under the expected page and record size: a truncated final page shorter
// than the page size, a slot header whose length does not match the record
// size, or a sequence number that does not strictly increase.
var ErrCorrupt = errors.New("picolog: corrupt WAL page")

// Reader sequentially replays a WAL file written with a known page size and
// record size. The zero value is not usable; construct with Open.
type Reader[T any] struct {
	f          *os.File
	br         *bufio.Reader
	pageSize   int
	recordSize int
	slotsPer   int

	page    []byte
	slot    int
	lastSeq uint64
	seen    bool
	done    bool
}

// Open opens path for sequential replay. pageSize and recordSize must match
// the values the writer used; there is no self-describing header, matching
// the writer's decision to keep the hot path allocation- and branch-free.
func Open[T any](path string, pageSize, recordSize int) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("picolog: %s: %w", path, os.ErrNotExist)
		}
		return nil, err
	}
	return &Reader[T]{
		f:          f,
		br:         bufio.NewReaderSize(f, pageSize),
		pageSize:   pageSize,
		recordSize: recordSize,
		slotsPer:   wire.SlotsPerPage(pageSize, recordSize),
		page:       make([]byte, pageSize),
		slot:       0,
	}, nil
}

// Next decodes and returns the next record in the log, in the order it was
// written. Returns io.EOF once the log is exhausted. A slot whose header
// carries Seq == 0 marks the page's padding boundary: the rest of that page
// is skipped and decoding resumes with the next page.
func (r *Reader[T]) Next() (seq uint64, rec T, err error) {
	for {
		if r.done {
			return 0, rec, io.EOF
		}
		if r.slot == 0 || r.slot >= r.slotsPer {
			if readErr := r.loadPage(); readErr != nil {
				r.done = true
				if errors.Is(readErr, io.EOF) {
					return 0, rec, io.EOF
				}
				return 0, rec, readErr
			}
			r.slot = 0
		}

		h, payload, err := wire.GetRecord(r.page, r.slot, r.recordSize)
		r.slot++
		if err != nil {
			r.done = true
			return 0, rec, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		if h.Seq == 0 {
			// Padding slot: the rest of this page carries no further
			// records; move on to the next page (a time-triggered flush
			// leaves a partial page that later pages follow).
			r.slot = r.slotsPer
			continue
		}
		if r.seen && h.Seq <= r.lastSeq {
			return 0, rec, fmt.Errorf("%w: sequence %d did not strictly increase past %d", ErrCorrupt, h.Seq, r.lastSeq)
		}
		r.lastSeq = h.Seq
		r.seen = true

		return h.Seq, wire.BytesToRecord[T](payload), nil
	}
}

// loadPage reads exactly one page-sized chunk. A short final read of fewer
// than pageSize bytes is corruption (a torn write that slipped past the
// engine's durability guarantee); a short read of zero bytes is a clean end
// of file.
func (r *Reader[T]) loadPage() error {
	n, err := io.ReadFull(r.br, r.page)
	if err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: truncated page (%d of %d bytes)", ErrCorrupt, n, r.pageSize)
	}
	if err != nil {
		return err
	}
	return nil
}

// Close releases the underlying file handle.
func (r *Reader[T]) Close() error {
	return r.f.Close()
}
