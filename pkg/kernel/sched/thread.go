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

// Package sched provides the blocking primitives used by the kernel object
// packages: threads that park and the wait queues they park on.
//
// A Thread is a blocking context, normally one per goroutine. A WaitQueue is
// a FIFO of blocked threads guarded by a lock supplied by the object that owns
// the queue (the "thread lock"). All WaitQueue methods other than Init require
// that lock to be held.
package sched

import (
	"sync/atomic"

	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/ilist"
)

// Signals is a set of pending thread signals.
type Signals uint32

// Thread signals.
const (
	// SignalKill asks the thread to terminate. Interrupted blocks return
	// zxerr.ErrInternalIntrKilled.
	SignalKill Signals = 1 << iota

	// SignalSuspend asks the thread to suspend. Interrupted blocks return
	// zxerr.ErrInternalIntrRetry.
	SignalSuspend
)

// signalError returns the block status for the pending signals sigs.
func signalError(sigs Signals) error {
	if sigs&SignalKill != 0 {
		return zxerr.ErrInternalIntrKilled
	}
	return zxerr.ErrInternalIntrRetry
}

// Thread is a blocking context.
type Thread struct {
	ilist.Entry[*Thread]

	name string

	// wake receives one token per wakeup. A token is only sent by the waker
	// that dequeued the thread, under the queue's lock.
	wake chan struct{}

	// queue is the WaitQueue the thread is blocked on, or nil. It is written
	// with that queue's lock held.
	queue atomic.Pointer[WaitQueue]

	// The fields below are protected by the lock of the queue the thread is
	// blocked on.
	queued     bool
	wakeStatus error
	blockMask  Signals

	interruptible atomic.Bool
	signals       atomic.Uint32
}

// NewThread returns a new, unblocked thread.
func NewThread(name string) *Thread {
	return &Thread{
		name: name,
		wake: make(chan struct{}, 1),
	}
}

// Name returns the thread's name.
func (t *Thread) Name() string {
	return t.name
}

// String implements fmt.Stringer.String.
func (t *Thread) String() string {
	return t.name
}

// SetInterruptible sets whether pending signals may abort the thread's
// blocking operations. Only the thread itself may call it.
func (t *Thread) SetInterruptible(interruptible bool) {
	t.interruptible.Store(interruptible)
}

// Interruptible returns the value last set by SetInterruptible.
func (t *Thread) Interruptible() bool {
	return t.interruptible.Load()
}

// PendingSignals returns the set of signals raised and not yet cleared.
func (t *Thread) PendingSignals() Signals {
	return Signals(t.signals.Load())
}

// ClearSignals clears sigs from the pending set.
func (t *Thread) ClearSignals(sigs Signals) {
	t.signals.And(^uint32(sigs))
}

// Blocked returns true if the thread is currently parked on a WaitQueue.
func (t *Thread) Blocked() bool {
	return t.queue.Load() != nil
}

// Signal raises sigs on the thread. If the thread is blocked interruptibly
// and any of sigs is outside its block mask, it is woken with the
// corresponding interrupt status.
func (t *Thread) Signal(sigs Signals) {
	t.signals.Or(uint32(sigs))
	for {
		q := t.queue.Load()
		if q == nil {
			// Not blocked. The next Block observes the signal.
			return
		}
		q.lock.Lock()
		if t.queue.Load() != q {
			// Woken or moved before we got the lock; try again.
			q.lock.Unlock()
			continue
		}
		if t.queued && t.interruptible.Load() {
			if pending := t.PendingSignals() &^ t.blockMask; pending != 0 {
				q.dequeue(t, signalError(pending))
			}
		}
		q.lock.Unlock()
		return
	}
}

// pendingError returns the interrupt status for t if it is interruptible and
// has a signal outside mask pending.
func (t *Thread) pendingError(mask Signals) error {
	if !t.interruptible.Load() {
		return nil
	}
	if pending := t.PendingSignals() &^ mask; pending != 0 {
		return signalError(pending)
	}
	return nil
}
