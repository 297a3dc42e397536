// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command schedbench compares the five scheduler variants against each
// other, reporting ns/iter and iters/s the way original_source's
// Benchmark.cpp table does, plus a dense-cancellation scenario drawn from
// the package's own test suite.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/timerbench/schedkit/scheduler"
)

func main() {
	app := &cli.App{
		Name:  "schedbench",
		Usage: "compare scheduler variants",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "variant",
				Usage: "only run the named variant (binary-heap, quad-heap, ordered-tree, hashed-wheel, hierarchical-wheel); empty runs all",
			},
			&cli.IntFlag{
				Name:  "min-iters",
				Usage: "minimum iterations per scenario",
				Value: 1000,
			},
			&cli.DurationFlag{
				Name:  "max-time",
				Usage: "time budget per scenario",
				Value: 2 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug-level logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func run(c *cli.Context) error {
	runID := uuid.New()
	logger := newLogger(c.Bool("verbose"))
	defer logger.Sync()

	variants := scheduler.Variants()
	if name := c.String("variant"); name != "" {
		filtered := variants[:0]
		for _, v := range variants {
			if v.String() == name {
				filtered = append(filtered, v)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("unknown variant %q", name)
		}
		variants = filtered
	}

	logger.Info("starting benchmark run",
		zap.String("run_id", runID.String()),
		zap.Int("variant_count", len(variants)),
	)

	opts := runOptions{
		minIters: c.Int("min-iters"),
		maxTime:  c.Duration("max-time"),
	}

	results := make([]scenarioResult, 0, len(variants)*len(scenarios))
	for _, v := range variants {
		for _, sc := range scenarios {
			r := sc.run(v, opts)
			logger.Debug("scenario finished",
				zap.String("variant", v.String()),
				zap.String("scenario", sc.name),
				zap.Int("iters", r.iters),
				zap.Duration("per_iter", r.perIter),
			)
			results = append(results, r)
		}
	}

	printTable(results)
	return nil
}
