// doc.go: package documentation
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package picolog is a write-ahead log for latency-sensitive trading
// engines: a lock-free single-producer/single-consumer hot path hands
// fixed-size records to a background assembler, which packs them into
// page-aligned buffers and submits them for direct I/O, advancing a
// durable high-water mark only once a contiguous prefix of pages has
// reached the device.
//
// # Quick start
//
//	type Fill struct {
//		OrderID  uint64
//		Price    int64
//		Quantity int64
//		Side     uint8
//		_        [7]byte // pad to a multiple of 8 for a tidy on-disk layout
//	}
//
//	logger, err := picolog.NewWriter[Fill](picolog.WriteConfig{
//		Path:         "fills.wal",
//		RingCapacity: 1 << 16,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := logger.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Stop()
//
//	seq, ok := logger.Log(Fill{OrderID: 42, Price: 10100, Quantity: 3})
//	if !ok {
//		// ring is full: retry, drop, or escalate per the caller's policy
//	}
//
//	for logger.DurableSeq() < seq {
//		runtime.Gosched()
//	}
//
// # Record type requirements
//
// T must be a fixed-size, pointer-free struct (or other flat value): no
// slices, strings, maps, channels, funcs, interfaces, or pointers at any
// depth. NewWriter and NewReader validate this once at construction via
// reflection; the hot path never inspects T's layout again.
//
// # Recovery
//
//	logger, err := picolog.NewReader[Fill]("fills.wal")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Stop()
//
//	fills, err := logger.Read()
//
// # Durability model
//
// A record is durable once DurableSeq() reaches its assigned sequence
// number. Submission to the device is ordered by file offset; device
// completions may arrive out of order, but the durable high-water mark
// only ever advances across a contiguous acknowledged prefix, so a crash
// can never leave a gap of missing, already-acknowledged records ahead of
// an unacknowledged one.
package picolog
