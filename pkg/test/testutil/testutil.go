// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testutil contains utility functions for kernel object tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/zircon/pkg/kernel/sched"
)

// pollInterval is short because the conditions polled for are goroutines
// parking, which take microseconds.
const pollInterval = 5 * time.Millisecond

// Poll is a shorthand function to poll for something with given timeout.
func Poll(cb func() error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return PollContext(ctx, cb)
}

// PollContext is like Poll, but takes a context instead of a timeout.
func PollContext(ctx context.Context, cb func() error) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)
	return backoff.Retry(cb, b)
}

// WaitBlocked polls until every thread in ts is parked on a wait queue.
func WaitBlocked(timeout time.Duration, ts ...*sched.Thread) error {
	return Poll(func() error {
		for _, t := range ts {
			if !t.Blocked() {
				return fmt.Errorf("thread %s is not blocked", t.Name())
			}
		}
		return nil
	}, timeout)
}

// Seed returns the seed for randomized tests: $TEST_SEED if set, otherwise
// the current time.
func Seed() int64 {
	if s, err := strconv.ParseInt(os.Getenv("TEST_SEED"), 10, 64); err == nil {
		return s
	}
	return time.Now().UnixNano()
}

// NewRand returns a random source seeded with Seed, logging the seed so
// failures can be reproduced.
func NewRand(logf func(format string, v ...any)) *rand.Rand {
	seed := Seed()
	logf("using seed %d (set TEST_SEED to reproduce)", seed)
	return rand.New(rand.NewSource(seed))
}
