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

package event

import (
	"testing"
	"time"

	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/sync"
	"gvisor.dev/zircon/pkg/test/testutil"
)

const pollTimeout = 10 * time.Second

// startWaiter blocks a new thread on e and waits until it is parked.
func startWaiter(t *testing.T, e *Event, name string) (*sched.Thread, <-chan error) {
	t.Helper()
	th := sched.NewThread(name)
	ch := make(chan error, 1)
	go func() {
		ch <- e.WaitDeadline(th, time.Time{}, true)
	}()
	if err := testutil.WaitBlocked(pollTimeout, th); err != nil {
		t.Fatalf("WaitBlocked: %v", err)
	}
	return th, ch
}

func expectBlocked(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("waiter returned early with %v", err)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestInitialState(t *testing.T) {
	for _, initial := range []bool{false, true} {
		e := New(nil, initial, 0)
		if !e.Initialized() {
			t.Errorf("New(%t): not initialized", initial)
		}
		if got := e.Signaled(); got != initial {
			t.Errorf("New(%t).Signaled(): got %t", initial, got)
		}
	}
}

// A manual-reset event wakes its waiter and stays signaled.
func TestManualResetSignal(t *testing.T) {
	e := New(nil, false, 0)
	_, ch := startWaiter(t, e, "a")

	if n := e.Signal(false, nil); n != 1 {
		t.Errorf("Signal: got %d woken, wanted 1", n)
	}
	if err := <-ch; err != nil {
		t.Errorf("Wait: got %v, wanted nil", err)
	}

	// Later waiters fall through until Unsignal.
	for i := 0; i < 2; i++ {
		if err := e.WaitDeadline(sched.NewThread("c"), time.Time{}, true); err != nil {
			t.Errorf("Wait on signaled event: got %v, wanted nil", err)
		}
	}
	if !e.Signaled() {
		t.Errorf("manual-reset event unsignaled by a wait")
	}

	if err := e.Unsignal(); err != nil {
		t.Errorf("Unsignal: %v", err)
	}
	if err := e.WaitDeadline(sched.NewThread("d"), time.Now().Add(5*time.Millisecond), false); err != zxerr.ErrTimedOut {
		t.Errorf("Wait after Unsignal: got %v, wanted %v", err, zxerr.ErrTimedOut)
	}
}

func TestManualResetWakesAll(t *testing.T) {
	e := New(nil, false, 0)
	var chs []<-chan error
	for _, name := range []string{"a", "b", "c"} {
		_, ch := startWaiter(t, e, name)
		chs = append(chs, ch)
	}
	if n := e.Signal(true, zxerr.ErrCanceled); n != 3 {
		t.Errorf("Signal: got %d woken, wanted 3", n)
	}
	for _, ch := range chs {
		if err := <-ch; err != zxerr.ErrCanceled {
			t.Errorf("Wait: got %v, wanted the signal status %v", err, zxerr.ErrCanceled)
		}
	}
}

func TestSignalIdempotent(t *testing.T) {
	e := New(nil, false, 0)
	if n := e.Signal(false, nil); n != 0 {
		t.Errorf("first Signal: got %d, wanted 0", n)
	}
	if n := e.Signal(false, nil); n != 0 {
		t.Errorf("second Signal: got %d, wanted 0", n)
	}
	if !e.Signaled() {
		t.Errorf("event not signaled")
	}
}

// Each signal of an auto-unsignal event releases exactly one waiter.
func TestAutoUnsignalWakesOne(t *testing.T) {
	e := New(nil, false, FlagAutoUnsignal)
	_, a := startWaiter(t, e, "a")
	_, b := startWaiter(t, e, "b")

	if n := e.Signal(false, nil); n != 1 {
		t.Errorf("Signal: got %d woken, wanted 1", n)
	}
	if err := <-a; err != nil {
		t.Errorf("first waiter: got %v, wanted nil", err)
	}
	expectBlocked(t, b)
	if e.Signaled() {
		t.Errorf("auto-unsignal event left signaled after waking a waiter")
	}

	if n := e.Signal(false, nil); n != 1 {
		t.Errorf("Signal: got %d woken, wanted 1", n)
	}
	if err := <-b; err != nil {
		t.Errorf("second waiter: got %v, wanted nil", err)
	}
}

// Signaling an auto-unsignal event with no waiters lets exactly one later
// waiter fall through.
func TestAutoUnsignalLatches(t *testing.T) {
	e := New(nil, false, FlagAutoUnsignal)
	if n := e.Signal(false, nil); n != 0 {
		t.Errorf("Signal: got %d woken, wanted 0", n)
	}
	if !e.Signaled() {
		t.Fatalf("event not latched")
	}
	if err := e.WaitDeadline(sched.NewThread("a"), time.Time{}, false); err != nil {
		t.Errorf("first Wait: got %v, wanted nil", err)
	}
	if e.Signaled() {
		t.Errorf("event still signaled after one waiter fell through")
	}
	if err := e.WaitDeadline(sched.NewThread("b"), time.Now().Add(5*time.Millisecond), false); err != zxerr.ErrTimedOut {
		t.Errorf("second Wait: got %v, wanted %v", err, zxerr.ErrTimedOut)
	}
}

func TestWaitWithMask(t *testing.T) {
	e := New(nil, false, 0)
	th := sched.NewThread("masked")
	ch := make(chan error, 1)
	go func() {
		ch <- e.WaitWithMask(th, sched.SignalSuspend)
	}()
	if err := testutil.WaitBlocked(pollTimeout, th); err != nil {
		t.Fatalf("WaitBlocked: %v", err)
	}

	th.Signal(sched.SignalSuspend)
	expectBlocked(t, ch)

	th.Signal(sched.SignalKill)
	if err := <-ch; err != zxerr.ErrInternalIntrKilled {
		t.Errorf("Wait: got %v, wanted %v", err, zxerr.ErrInternalIntrKilled)
	}
}

func TestSignalLockedSharedLock(t *testing.T) {
	var mu sync.Mutex
	e1 := New(&mu, false, 0)
	e2 := New(&mu, false, FlagAutoUnsignal)
	if e1.ThreadLock() != e2.ThreadLock() {
		t.Fatalf("events do not share the lock")
	}

	_, ch := startWaiter(t, e2, "a")
	mu.Lock()
	n1 := e1.SignalLocked(false, nil)
	n2 := e2.SignalLocked(false, nil)
	mu.Unlock()
	if n1 != 0 || n2 != 1 {
		t.Errorf("SignalLocked: got (%d, %d), wanted (0, 1)", n1, n2)
	}
	if err := <-ch; err != nil {
		t.Errorf("Wait: got %v, wanted nil", err)
	}
}

func TestSignalLockedStatus(t *testing.T) {
	e := New(nil, false, 0)
	_, ch := startWaiter(t, e, "a")

	e.ThreadLock().Lock()
	n := e.SignalLocked(true, zxerr.ErrCanceled)
	e.ThreadLock().Unlock()
	if n != 1 {
		t.Errorf("SignalLocked: got %d woken, wanted 1", n)
	}
	if err := <-ch; err != zxerr.ErrCanceled {
		t.Errorf("Wait: got %v, wanted %v", err, zxerr.ErrCanceled)
	}
	if !e.Signaled() {
		t.Errorf("event not signaled after SignalLocked")
	}
}

func TestDestroyWhileObserved(t *testing.T) {
	e := New(nil, false, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e.Initialized() {
		}
	}()
	e.Destroy()
	select {
	case <-done:
	case <-time.After(pollTimeout):
		t.Fatalf("Initialized still true after Destroy")
	}
}

func TestDestroyWakesWaiters(t *testing.T) {
	e := New(nil, false, 0)
	_, ch := startWaiter(t, e, "a")

	e.Destroy()
	if err := <-ch; err != zxerr.ErrBadState {
		t.Errorf("Wait: got %v, wanted %v", err, zxerr.ErrBadState)
	}
	if e.Initialized() {
		t.Errorf("destroyed event still initialized")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Signal on a destroyed event did not panic")
		}
	}()
	e.Signal(false, nil)
}
