// ioengine_other.go: portable device backend
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package ioengine

import (
	"fmt"
	"os"
)

// portableDevice is the non-Linux fallback: ordinary buffered file I/O
// with an explicit Sync after every page, since O_DIRECT has no portable
// equivalent. Durability is still achieved, just without the page-cache
// bypass.
type portableDevice struct {
	f        *os.File
	pageSize int
}

func openDevice(path string, pageSize int) (device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &portableDevice{f: f, pageSize: pageSize}, nil
}

func (d *portableDevice) WriteAt(page []byte, offset int64) error {
	if len(page) != d.pageSize {
		return fmt.Errorf("picolog: write size %d does not match page size %d", len(page), d.pageSize)
	}
	n, err := d.f.WriteAt(page, offset)
	if err != nil {
		return err
	}
	if n != len(page) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(page))
	}
	return d.f.Sync()
}

func (d *portableDevice) Close() error {
	return d.f.Close()
}
