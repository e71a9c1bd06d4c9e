// errors.go: sentinel errors for the public API
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package picolog

import "errors"

var (
	// ErrAlreadyStarted is returned by Start if the logger is already running.
	ErrAlreadyStarted = errors.New("picolog: already started")

	// ErrNotStarted is returned by Read if called on a write-mode Logger
	// (one not obtained from NewReader), whether or not it has been started.
	ErrNotStarted = errors.New("picolog: not started")

	// ErrLoggerFailed is observed once the I/O engine has hit a fatal
	// write failure: the logger is wedged and Log stops accepting records.
	ErrLoggerFailed = errors.New("picolog: logger entered a failed state")

	// ErrNotFound is returned by NewReader when the target file does not exist.
	ErrNotFound = errors.New("picolog: wal file not found")

	// ErrCorrupt is returned by Read when the file's contents cannot be
	// decoded as a valid sequence of pages under the configured layout.
	ErrCorrupt = errors.New("picolog: wal file is corrupt")

	// ErrAlignment is returned by NewWriter when the configured page size is
	// not a multiple of 4096, or is too small to hold one record slot.
	ErrAlignment = errors.New("picolog: buffer or offset is not page-aligned")
)
