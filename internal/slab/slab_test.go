// slab_test.go
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s, err := New(4096, 2)
	require.NoError(t, err)
	defer s.Close()

	idx, page, err := s.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 4096, len(page))

	page[0] = 0xFF
	s.Release(idx)

	idx2, page2, err := s.Acquire()
	require.NoError(t, err)
	assert.Equal(t, idx, idx2, "LIFO free list should hand back the just-released page")
	assert.Equal(t, byte(0), page2[0], "reacquired page must be zeroed")
}

func TestAcquireExhaustion(t *testing.T) {
	s, err := New(4096, 1)
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Acquire()
	require.NoError(t, err)

	_, _, err = s.Acquire()
	assert.ErrorIs(t, err, ErrBackpressureStall)
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	_, err := New(0, 4)
	assert.Error(t, err)

	_, err = New(4096, 0)
	assert.Error(t, err)
}

func TestInUseTracksCheckedOutPages(t *testing.T) {
	s, err := New(4096, 3)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.InUse())

	idx, _, err := s.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, s.InUse())

	s.Release(idx)
	assert.Equal(t, 0, s.InUse())
}

func TestPageSizeAndPagesAccessors(t *testing.T) {
	s, err := New(4096, 3)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 4096, s.PageSize())
	assert.Equal(t, 3, s.Pages())
}
