// main.go: throughput benchmark CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Command picolog-bench writes a configurable number of fixed-size records
// through picolog.Logger and reports throughput and durability lag. It is
// a thin caller exercising the public API end to end, not part of the
// library's core.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/agilira/picolog"
)

// record is a stand-in trading-engine event: fixed size, no pointers.
type record struct {
	Seq   uint64
	Price int64
	Qty   int64
	Side  uint8
	_     [7]byte
}

func main() {
	path := flag.String("path", "bench.wal", "WAL file path")
	count := flag.Int64("count", 1_000_000, "number of records to write")
	ring := flag.Int("ring", 1<<16, "ring capacity")
	pageSize := flag.Int("page-size", 4096, "page size in bytes")
	flag.Parse()

	logger, err := picolog.NewWriter[record](picolog.WriteConfig{
		Path:         *path,
		RingCapacity: *ring,
		PageSize:     *pageSize,
		ErrorCallback: func(op string, err error) {
			log.Printf("picolog: %s: %v", op, err)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Start(); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := logger.Stop(); err != nil {
			log.Printf("stop: %v", err)
		}
	}()

	start := time.Now()
	var last uint64
	for i := int64(0); i < *count; i++ {
		rec := record{Seq: uint64(i), Price: 10_000 + i%500, Qty: 1}
		for {
			seq, ok := logger.Log(rec)
			if ok {
				last = seq
				break
			}
		}
	}
	submitElapsed := time.Since(start)

	for logger.DurableSeq() < last {
		time.Sleep(100 * time.Microsecond)
	}
	totalElapsed := time.Since(start)

	stats := logger.Stats()
	fmt.Fprintf(os.Stdout,
		"wrote=%d submit=%s durable=%s backpressured=%d durable_lag=%d rate=%.0f rec/s\n",
		stats.Written, submitElapsed, totalElapsed, stats.Backpressured, stats.DurableLag,
		float64(stats.Written)/totalElapsed.Seconds())
}
