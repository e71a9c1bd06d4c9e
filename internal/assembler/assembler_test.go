// assembler_test.go
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package assembler

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/picolog/internal/ring"
	"github.com/agilira/picolog/internal/slab"
	"github.com/agilira/picolog/internal/wire"
)

type rec struct {
	Seq   uint64
	Value uint64
}

const recordSize = int(unsafe.Sizeof(rec{}))

func newTestAssembler(t *testing.T, pageSize int, flush, poll time.Duration) (*Assembler[rec], *ring.SPSC[rec], chan ReadyPage, *slab.Slab) {
	t.Helper()
	sl, err := slab.New(pageSize, 4)
	require.NoError(t, err)
	r := ring.New[rec](256)
	out := make(chan ReadyPage, 4)
	a := New[rec](sl, r, recordSize, flush, poll, out)
	return a, r, out, sl
}

func TestAssemblerEmitsOnFullPage(t *testing.T) {
	slotsPer := wire.SlotsPerPage(4096, recordSize)
	a, r, out, sl := newTestAssembler(t, 4096, time.Hour, time.Millisecond)
	defer sl.Close()

	a.Start()
	defer a.Stop()

	for i := 0; i < slotsPer; i++ {
		_, ok := r.TryPush(rec{Seq: uint64(i), Value: uint64(i) * 2})
		require.True(t, ok)
	}

	select {
	case page := <-out:
		assert.Equal(t, uint64(1), page.FirstSeq, "ring sequence numbers start at 1")
		assert.Equal(t, int64(0), page.FileOffset)
		h, payload, err := wire.GetRecord(page.Page, 0, recordSize)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.Seq)
		got := wire.BytesToRecord[rec](payload)
		assert.Equal(t, rec{Seq: 0, Value: 0}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a full page")
	}
}

func TestAssemblerFlushesPartialPageOnInterval(t *testing.T) {
	a, r, out, sl := newTestAssembler(t, 4096, 20*time.Millisecond, time.Millisecond)
	defer sl.Close()

	a.Start()
	defer a.Stop()

	_, ok := r.TryPush(rec{Seq: 1, Value: 1})
	require.True(t, ok)

	select {
	case page := <-out:
		assert.Equal(t, uint64(1), page.FirstSeq)
		assert.Equal(t, uint64(1), page.LastSeq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the time-triggered flush")
	}
}

func TestAssemblerStopFlushesRemainder(t *testing.T) {
	a, r, out, sl := newTestAssembler(t, 4096, time.Hour, time.Millisecond)
	defer sl.Close()

	a.Start()

	for i := 0; i < 3; i++ {
		_, ok := r.TryPush(rec{Seq: uint64(i), Value: uint64(i)})
		require.True(t, ok)
	}

	a.Stop()

	select {
	case page := <-out:
		assert.Equal(t, uint64(3), page.LastSeq)
	default:
		t.Fatal("expected a final partial page to be emitted by Stop")
	}
}
