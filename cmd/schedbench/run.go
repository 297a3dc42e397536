// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package main

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/timerbench/schedkit/scheduler"
)

type runOptions struct {
	minIters int
	maxTime  time.Duration
}

type scenarioResult struct {
	variant scheduler.Variant
	name    string
	iters   int
	perIter time.Duration
}

// scenario is one repeatable unit of work measured across every variant,
// mirroring original_source/Benchmark.cpp's BENCHMARK macro: a closure run
// n times, timed, with the caller starting n at min_iters and doubling it
// until one batch takes long enough to measure or the time budget runs out.
type scenario struct {
	name string
	run  func(v scheduler.Variant, opts runOptions) scenarioResult
}

var scenarios = []scenario{
	{name: "start", run: runStartScenario},
	{name: "start-cancel", run: runStartCancelScenario},
	{name: "dense-cancellation-tick", run: runDenseCancellationScenario},
}

// timeBatch doubles n (starting at minIters) until minNanos of wall time
// has elapsed for a single timed batch, or the time budget is exhausted —
// the same doubling-epoch strategy as runBenchmarkGetNSPerIteration in
// original_source/Benchmark.cpp, simplified to a single epoch since Go's
// scheduler jitter is reported separately via the benchmark package for
// anything needing statistical rigor; this command favors a fast,
// readable comparison table.
func timeBatch(opts runOptions, body func(n int)) (iters int, perIter time.Duration) {
	const minNanos = 100 * 1000
	deadline := time.Now().Add(opts.maxTime)
	n := opts.minIters
	if n < 1 {
		n = 1
	}
	for {
		start := time.Now()
		body(n)
		elapsed := time.Since(start)
		if elapsed.Nanoseconds() >= minNanos || time.Now().After(deadline) {
			return n, elapsed / time.Duration(n)
		}
		n *= 2
	}
}

func runStartScenario(v scheduler.Variant, opts runOptions) scenarioResult {
	clk := scheduler.NewManualClock(0)
	s := scheduler.New(v, clk)
	iters, perIter := timeBatch(opts, func(n int) {
		for i := 0; i < n; i++ {
			s.Start(uint64(1000+i), func() {})
		}
	})
	return scenarioResult{variant: v, name: "start", iters: iters, perIter: perIter}
}

func runStartCancelScenario(v scheduler.Variant, opts runOptions) scenarioResult {
	clk := scheduler.NewManualClock(0)
	s := scheduler.New(v, clk)
	iters, perIter := timeBatch(opts, func(n int) {
		for i := 0; i < n; i++ {
			id := s.Start(uint64(1000+i), func() {})
			s.Cancel(id)
		}
	})
	return scenarioResult{variant: v, name: "start-cancel", iters: iters, perIter: perIter}
}

// runDenseCancellationScenario reproduces the scenario the scheduler
// package's TestDenseCancellation exercises for correctness: a large population of
// timers with random durations, half cancelled at random, then drained via
// repeated Tick calls. Here it is timed rather than asserted.
func runDenseCancellationScenario(v scheduler.Variant, opts runOptions) scenarioResult {
	clk := scheduler.NewManualClock(0)
	iters, perIter := timeBatch(opts, func(n int) {
		s := scheduler.New(v, clk)
		rng := rand.New(rand.NewSource(42))
		ids := make([]uint64, 0, n)
		for i := 0; i < n; i++ {
			d := uint64(rng.Intn(5000) + 1)
			ids = append(ids, s.Start(d, func() {}))
		}
		for i := 0; i < n/2; i++ {
			s.Cancel(ids[rng.Intn(len(ids))])
		}
		for now := int64(100); now <= 10000; now += 100 {
			s.Tick(now)
		}
	})
	return scenarioResult{variant: v, name: "dense-cancellation-tick", iters: iters, perIter: perIter}
}

// printTable renders results grouped by scenario, then by variant, in the
// time-per-iter and iters-per-second columns of original_source's
// printBenchmarkResultsAsTable; its relative column is not printed.
func printTable(results []scenarioResult) {
	byScenario := map[string][]scenarioResult{}
	var order []string
	for _, r := range results {
		if _, ok := byScenario[r.name]; !ok {
			order = append(order, r.name)
		}
		byScenario[r.name] = append(byScenario[r.name], r)
	}

	for _, name := range order {
		fmt.Println(strings.Repeat("=", 76))
		fmt.Printf("%-48s %12s %12s\n", name, "time/iter", "iters/s")
		fmt.Println(strings.Repeat("=", 76))
		for _, r := range byScenario[name] {
			itersPerSec := 1e9 / float64(r.perIter.Nanoseconds())
			fmt.Printf("%-48s %12s %12.2f\n", r.variant.String(), r.perIter, itersPerSec)
		}
	}
}
