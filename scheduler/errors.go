// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

import "errors"

// ErrDurationTooHigh backs the panic message checkDuration's caller raises
// when Start is asked to arm a duration past MaxDurationMs. The Scheduler
// contract has no error-returning path — every precondition violation is a
// caller bug, reported via BUG/PANIC (assert.go) — so this sentinel never
// reaches a caller directly; it exists so that message is built with
// errors.New/fmt.Errorf's %s verb instead of a bare string literal.
var ErrDurationTooHigh = errors.New("scheduler: duration exceeds maximum representable offset")
