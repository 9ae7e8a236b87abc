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

package sched

import (
	"runtime"
	"time"

	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/ilist"
	"gvisor.dev/zircon/pkg/sync"
)

// WaitQueue is a FIFO queue of blocked threads.
//
// The zero value is not usable; call Init first.
type WaitQueue struct {
	// lock is the thread lock. It protects the fields below and the
	// per-thread block state of every queued thread.
	lock *sync.Mutex

	waiters ilist.List[*Thread]
	count   int
}

// Init initializes q to use lock as its thread lock.
func (q *WaitQueue) Init(lock *sync.Mutex) {
	q.lock = lock
	q.waiters.Reset()
	q.count = 0
}

// Lock returns the queue's thread lock.
func (q *WaitQueue) Lock() *sync.Mutex {
	return q.lock
}

// Count returns the number of blocked threads.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) Count() int {
	return q.count
}

// IsEmpty returns true if no thread is blocked on q.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) IsEmpty() bool {
	return q.count == 0
}

// Block is BlockWithMask with an empty mask.
func (q *WaitQueue) Block(t *Thread, deadline time.Time) error {
	return q.BlockWithMask(t, deadline, 0)
}

// BlockWithMask parks t on q until it is woken, the deadline passes, or (if
// t is interruptible) a signal outside mask is raised. A zero deadline never
// expires.
//
// The thread lock is released while t is parked and is held again when
// BlockWithMask returns. The returned error is the status passed by the
// waker, zxerr.ErrTimedOut, or an interrupt status.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) BlockWithMask(t *Thread, deadline time.Time, mask Signals) error {
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return zxerr.ErrTimedOut
	}

	t.blockMask = mask
	t.wakeStatus = nil
	t.queued = true
	q.waiters.PushBack(t)
	q.count++
	t.queue.Store(q)

	// Check signals only after publishing t.queue, so that a concurrent
	// Signal either sees the queue or its signal is seen here.
	if err := t.pendingError(mask); err != nil {
		q.remove(t)
		t.queue.Store(nil)
		return err
	}

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	q.lock.Unlock()
	woken := false
	select {
	case <-t.wake:
		woken = true
	case <-timeout:
	}
	q.lock.Lock()

	t.queue.Store(nil)
	if t.queued {
		// Nobody dequeued us, so the timer fired.
		q.remove(t)
		return zxerr.ErrTimedOut
	}
	if !woken {
		// Dequeued by a waker that raced with the timer. Its token was
		// sent under the lock and is waiting for us.
		<-t.wake
	}
	return t.wakeStatus
}

// WakeOne wakes the longest-waiting thread with status. It returns true if a
// thread was woken. If reschedule is true the caller yields afterwards.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) WakeOne(reschedule bool, status error) bool {
	t := q.waiters.Front()
	if t == nil {
		return false
	}
	q.dequeue(t, status)
	if reschedule {
		runtime.Gosched()
	}
	return true
}

// WakeAll wakes every blocked thread with status, in FIFO order, and returns
// how many were woken.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) WakeAll(reschedule bool, status error) int {
	n := 0
	for t := q.waiters.Front(); t != nil; t = q.waiters.Front() {
		q.dequeue(t, status)
		n++
	}
	if reschedule && n > 0 {
		runtime.Gosched()
	}
	return n
}

// Destroy wakes every blocked thread with status in preparation for the
// queue's owner being destroyed. It returns the number of threads woken.
//
// Preconditions: q.Lock() is held.
func (q *WaitQueue) Destroy(status error) int {
	return q.WakeAll(false, status)
}

// dequeue removes t from q and hands it a wake token.
func (q *WaitQueue) dequeue(t *Thread, status error) {
	q.remove(t)
	t.wakeStatus = status
	select {
	case t.wake <- struct{}{}:
	default:
		panic("thread " + t.name + " woken twice")
	}
}

func (q *WaitQueue) remove(t *Thread) {
	if !t.queued {
		panic("thread " + t.name + " is not queued")
	}
	q.waiters.Remove(t)
	q.count--
	t.queued = false
}
