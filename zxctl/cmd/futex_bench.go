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
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/futex"
	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/kernel/vm"
	"gvisor.dev/zircon/pkg/kernel/vmar"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/zxctl/cmd/util"
	"gvisor.dev/zircon/zxctl/config"
)

// benchBase is where benchmarks place their address space.
const benchBase = 0x200000

// Futex word states.
const (
	mutexUnlocked uint32 = 0
	mutexLocked   uint32 = 1
)

// futexMutex is a mutex whose word lives in a mapped VM object.
type futexMutex struct {
	ctx     *futex.Context
	mem     *vm.AddressRegion
	addr    uintptr
	timeout time.Duration
}

func (m *futexMutex) lock(t *sched.Thread) error {
	for {
		prev, err := m.mem.CompareAndSwapUint32(m.addr, mutexUnlocked, mutexLocked)
		if err != nil {
			return err
		}
		if prev == mutexUnlocked {
			return nil
		}
		err = m.ctx.Wait(t, m.mem, m.addr, mutexLocked, zircon.DeadlineAfter(m.timeout))
		if err != nil && err != zxerr.ErrBadState {
			return err
		}
	}
}

func (m *futexMutex) unlock() error {
	if err := m.mem.StoreUint32(m.addr, mutexUnlocked); err != nil {
		return err
	}
	return m.ctx.Wake(m.addr, 1)
}

// newBenchSpace returns an address space with one read-write page mapped at
// its base.
func newBenchSpace() (*vm.AddressRegion, uintptr, error) {
	root := vm.NewRootRegion(benchBase, 16*zircon.PageSize)
	d, _ := vmar.Create(root, vm.MMUPermUser)
	obj, err := vm.NewObject(zircon.PageSize, false)
	if err != nil {
		return nil, 0, err
	}
	m, err := d.Map(0, obj, 0, zircon.PageSize, zircon.VMPermRead|zircon.VMPermWrite|zircon.VMSpecific|zircon.VMMapRange)
	if err != nil {
		return nil, 0, err
	}
	return root, uintptr(m.Base()), nil
}

// futexBenchResult summarizes one run.
type futexBenchResult struct {
	Counter uint64
	Elapsed time.Duration
	Waiters int
}

// runFutexBench has threads goroutines increment a shared counter
// iterations times each under a futex mutex.
func runFutexBench(ctx context.Context, threads, iterations int, timeout time.Duration) (futexBenchResult, error) {
	mem, addr, err := newBenchSpace()
	if err != nil {
		return futexBenchResult{}, err
	}
	m := &futexMutex{ctx: futex.NewContext(), mem: mem, addr: addr, timeout: timeout}

	var counter uint64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		t := sched.NewThread(fmt.Sprintf("futex-bench-%d", i))
		g.Go(func() error {
			for j := 0; j < iterations; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := m.lock(t); err != nil {
					return fmt.Errorf("%v: lock: %w", t, err)
				}
				counter++
				if err := m.unlock(); err != nil {
					return fmt.Errorf("%v: unlock: %w", t, err)
				}
			}
			return nil
		})
	}
	err = g.Wait()
	res := futexBenchResult{
		Counter: counter,
		Elapsed: time.Since(start),
		Waiters: m.ctx.WaiterCount(addr),
	}
	if err == nil && res.Counter != uint64(threads*iterations) {
		err = fmt.Errorf("counter is %d, want %d", res.Counter, threads*iterations)
	}
	return res, err
}

// FutexBench implements subcommands.Command for the "futex-bench" command.
type FutexBench struct{}

// Name implements subcommands.Command.Name.
func (*FutexBench) Name() string {
	return "futex-bench"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*FutexBench) Synopsis() string {
	return "contend on a futex-backed mutex"
}

// Usage implements subcommands.Command.Usage.
func (*FutexBench) Usage() string {
	return `futex-bench - runs --threads threads that each take a futex mutex --iterations times.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*FutexBench) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*FutexBench) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	log.Debugf("futex-bench: %d threads, %d iterations", conf.Threads, conf.Iterations)

	res, err := runFutexBench(ctx, conf.Threads, conf.Iterations, conf.Timeout)
	if err != nil {
		return util.Exit(err)
	}
	ops := float64(res.Counter) / res.Elapsed.Seconds()
	util.Infof("futex-bench: %d lock rounds in %v (%.0f/s), %d waiters left", res.Counter, res.Elapsed, ops, res.Waiters)
	return subcommands.ExitSuccess
}
