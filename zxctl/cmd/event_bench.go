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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/kernel/event"
	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/zxctl/cmd/util"
	"gvisor.dev/zircon/zxctl/config"
)

// eventBenchResult summarizes one run.
type eventBenchResult struct {
	// Rounds is the number of completed ping-pong round trips.
	Rounds int
	PingPong time.Duration

	// Released is the number of gate waiters that returned.
	Released  int
	Broadcast time.Duration
}

// pingPong bounces between two auto-unsignal events iterations times.
func pingPong(ctx context.Context, iterations int, timeout time.Duration) (int, error) {
	ping := event.New(nil, false, event.FlagAutoUnsignal)
	pong := event.New(nil, false, event.FlagAutoUnsignal)
	defer ping.Destroy()
	defer pong.Destroy()

	rounds := 0
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := sched.NewThread("event-bench-ping")
		for i := 0; i < iterations; i++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			ping.Signal(false, nil)
			if err := pong.WaitDeadline(t, zircon.DeadlineAfter(timeout), true); err != nil {
				return fmt.Errorf("%v: round %d: %w", t, i, err)
			}
			rounds++
		}
		return nil
	})
	g.Go(func() error {
		t := sched.NewThread("event-bench-pong")
		for i := 0; i < iterations; i++ {
			if err := ping.WaitDeadline(t, zircon.DeadlineAfter(timeout), true); err != nil {
				return fmt.Errorf("%v: round %d: %w", t, i, err)
			}
			pong.Signal(false, nil)
		}
		return nil
	})
	err := g.Wait()
	return rounds, err
}

// broadcast releases threads waiters with one signal of a manual-reset
// event. Waiters that arrive after the signal pass straight through.
func broadcast(ctx context.Context, threads int, timeout time.Duration) (int, error) {
	gate := event.New(nil, false, 0)
	defer gate.Destroy()

	released := make(chan struct{}, threads)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		t := sched.NewThread(fmt.Sprintf("event-bench-gate-%d", i))
		g.Go(func() error {
			if err := gate.WaitDeadline(t, zircon.DeadlineAfter(timeout), true); err != nil {
				return fmt.Errorf("%v: %w", t, err)
			}
			released <- struct{}{}
			return nil
		})
	}
	woken := gate.Signal(false, nil)
	log.Debugf("event-bench: gate signal woke %d of %d threads", woken, threads)
	err := g.Wait()
	return len(released), err
}

// runEventBench runs the ping-pong and broadcast phases.
func runEventBench(ctx context.Context, threads, iterations int, timeout time.Duration) (eventBenchResult, error) {
	var res eventBenchResult
	start := time.Now()
	rounds, err := pingPong(ctx, iterations, timeout)
	res.Rounds, res.PingPong = rounds, time.Since(start)
	if err != nil {
		return res, err
	}

	start = time.Now()
	released, err := broadcast(ctx, threads, timeout)
	res.Released, res.Broadcast = released, time.Since(start)
	return res, err
}

// EventBench implements subcommands.Command for the "event-bench" command.
type EventBench struct{}

// Name implements subcommands.Command.Name.
func (*EventBench) Name() string {
	return "event-bench"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*EventBench) Synopsis() string {
	return "ping-pong and broadcast on events"
}

// Usage implements subcommands.Command.Usage.
func (*EventBench) Usage() string {
	return `event-bench - bounces between two auto-unsignal events --iterations times, then releases --threads waiters with one manual-reset signal.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*EventBench) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*EventBench) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	res, err := runEventBench(ctx, conf.Threads, conf.Iterations, conf.Timeout)
	if err != nil {
		return util.Exit(err)
	}
	util.Infof("event-bench: %d round trips in %v, %d waiters released in %v", res.Rounds, res.PingPong, res.Released, res.Broadcast)
	return subcommands.ExitSuccess
}
