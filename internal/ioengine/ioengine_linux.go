// ioengine_linux.go: O_DIRECT device backend
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package ioengine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// directDevice writes page-aligned buffers to a file opened with O_DIRECT,
// bypassing the page cache so a completed Pwrite reflects a write the
// kernel has handed to the device; Fdatasync is still required to flush
// the device's own volatile write cache and extend metadata.
type directDevice struct {
	fd       int
	pageSize int
}

func openDevice(path string, pageSize int) (device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_DIRECT, 0o644)
	if err != nil {
		if err == unix.EINVAL {
			// Some filesystems (tmpfs, overlayfs) reject O_DIRECT outright;
			// fall back so picolog remains usable there, at the cost of the
			// page-cache bypass guarantee.
			fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
		}
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
	}
	return &directDevice{fd: fd, pageSize: pageSize}, nil
}

func (d *directDevice) WriteAt(page []byte, offset int64) error {
	if len(page) != d.pageSize {
		return fmt.Errorf("picolog: write size %d does not match page size %d", len(page), d.pageSize)
	}
	n, err := unix.Pwrite(d.fd, page, offset)
	if err != nil {
		return fmt.Errorf("pwrite: %w", err)
	}
	if n != len(page) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(page))
	}
	return unix.Fdatasync(d.fd)
}

func (d *directDevice) Close() error {
	return unix.Close(d.fd)
}
