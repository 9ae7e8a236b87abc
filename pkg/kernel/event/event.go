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

// Package event implements a one-bit synchronization object.
//
// An Event is either signaled or not. Waiting on a signaled event returns
// immediately; waiting on an unsignaled one blocks until Signal. A manual
// reset event stays signaled, releasing every waiter, until Unsignal. An
// event created with FlagAutoUnsignal releases at most one waiter per signal
// and then reverts to unsignaled.
package event

import (
	"fmt"
	"sync/atomic"
	"time"

	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/pkg/metric"
	"gvisor.dev/zircon/pkg/sync"
)

// Flags modify an event's behavior.
type Flags uint32

// FlagAutoUnsignal makes each signal release at most one waiter.
const FlagAutoUnsignal Flags = 1 << 0

// magic marks an initialized event ("evnt").
const magic = 0x65766e74

var (
	signalsMetric = metric.MustCreateNewUint64Metric("/event/signals", "Number of event signals that changed state or woke a waiter.")
	waitsMetric   = metric.MustCreateNewUint64Metric("/event/waits", "Number of event waits that blocked.")
)

// Event is a one-bit synchronization object.
type Event struct {
	sync.NoCopy

	// lock is the thread lock. It protects signaled and waitQueue. It may
	// be shared with other objects.
	lock *sync.Mutex

	// magic is cleared by Destroy. It is read without lock.
	magic atomic.Uint32

	// signaled is the event state.
	signaled bool

	flags Flags

	waitQueue sched.WaitQueue
}

// New returns an initialized event. If lock is nil the event gets its own.
func New(lock *sync.Mutex, initial bool, flags Flags) *Event {
	e := &Event{}
	e.Init(lock, initial, flags)
	return e
}

// Init initializes an embedded event. If lock is nil the event gets its own.
func (e *Event) Init(lock *sync.Mutex, initial bool, flags Flags) {
	if lock == nil {
		lock = new(sync.Mutex)
	}
	e.lock = lock
	e.magic.Store(magic)
	e.signaled = initial
	e.flags = flags
	e.waitQueue.Init(lock)
}

// Initialized returns true if the event has been initialized and not
// destroyed.
func (e *Event) Initialized() bool {
	return e.magic.Load() == magic
}

func (e *Event) checkMagic() {
	if e.magic.Load() != magic {
		panic(fmt.Sprintf("event: use of uninitialized or destroyed event %p", e))
	}
}

// ThreadLock returns the event's thread lock, for use with SignalLocked.
func (e *Event) ThreadLock() *sync.Mutex {
	return e.lock
}

// Wait waits for the event to be signaled. If the event is already signaled
// it returns immediately, unsignaling an auto-unsignal event. Otherwise t
// blocks until a signal, which supplies the return status, or until the
// deadline passes (zxerr.ErrTimedOut). A zero deadline never expires.
//
// If interruptible is true, signals raised on t other than those in mask
// abort the wait.
func (e *Event) Wait(t *sched.Thread, deadline time.Time, interruptible bool, mask sched.Signals) error {
	e.checkMagic()

	e.lock.Lock()
	defer e.lock.Unlock()

	t.SetInterruptible(interruptible)
	defer t.SetInterruptible(false)

	if e.signaled {
		if e.flags&FlagAutoUnsignal != 0 {
			e.signaled = false
		}
		return nil
	}
	waitsMetric.Increment()
	return e.waitQueue.BlockWithMask(t, deadline, mask)
}

// WaitDeadline waits with no signal mask.
func (e *Event) WaitDeadline(t *sched.Thread, deadline time.Time, interruptible bool) error {
	return e.Wait(t, deadline, interruptible, 0)
}

// WaitWithMask waits interruptibly with no deadline, ignoring the signals
// in mask.
func (e *Event) WaitWithMask(t *sched.Thread, mask sched.Signals) error {
	return e.Wait(t, zircon.Infinite, true, mask)
}

// signalLocked implements Signal.
//
// Preconditions: e.lock is held.
func (e *Event) signalLocked(reschedule bool, status error) int {
	if e.signaled {
		return 0
	}
	signalsMetric.Increment()
	if e.flags&FlagAutoUnsignal != 0 {
		if e.waitQueue.WakeOne(reschedule, status) {
			return 1
		}
		// Nobody was waiting; the next waiter falls through.
		e.signaled = true
		return 0
	}
	e.signaled = true
	return e.waitQueue.WakeAll(reschedule, status)
}

// Signal signals the event, waking waiters with status. It returns the
// number of threads woken. Signaling a signaled event does nothing.
func (e *Event) Signal(reschedule bool, status error) int {
	e.checkMagic()
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.signalLocked(reschedule, status)
}

// SignalLocked is Signal for callers that already hold the event's lock.
//
// Preconditions: e.ThreadLock() is held.
func (e *Event) SignalLocked(reschedule bool, status error) int {
	e.checkMagic()
	return e.signalLocked(reschedule, status)
}

// Unsignal clears the signaled state. It always succeeds.
func (e *Event) Unsignal() error {
	e.checkMagic()
	e.lock.Lock()
	e.signaled = false
	e.lock.Unlock()
	return nil
}

// Signaled returns the current state.
func (e *Event) Signaled() bool {
	e.checkMagic()
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.signaled
}

// Destroy invalidates the event. Threads still waiting are woken with
// zxerr.ErrBadState. Any later use of the event panics.
func (e *Event) Destroy() {
	e.checkMagic()
	e.lock.Lock()
	defer e.lock.Unlock()
	e.magic.Store(0)
	e.signaled = false
	e.flags = 0
	if n := e.waitQueue.Destroy(zxerr.ErrBadState); n > 0 {
		log.Debugf("event: destroyed %p with %d waiters", e, n)
	}
}
