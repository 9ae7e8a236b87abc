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

// Package futex provides an implementation of Zircon-style futexes.
//
// Waiters on one futex address form a circular list of Nodes. A Context maps
// addresses to the heads of those lists and implements wait, wake and
// requeue on top of the list operations in node.go.
//
// Lock ordering: Context.mu (the futex lock), then the thread lock.
package futex

import (
	"math"
	"runtime"
	"time"

	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/pkg/metric"
	"gvisor.dev/zircon/pkg/sync"
)

// WakeAll may be passed as a count to wake or requeue every waiter.
const WakeAll = math.MaxUint32

var (
	waitsMetric    = metric.MustCreateNewUint64Metric("/futex/waits", "Number of futex waits that blocked.")
	wakesMetric    = metric.MustCreateNewUint64Metric("/futex/wakes", "Number of threads woken from futexes.")
	requeuesMetric = metric.MustCreateNewUint64Metric("/futex/requeues", "Number of waiters moved between futexes.")
	timeoutsMetric = metric.MustCreateNewUint64Metric("/futex/timeouts", "Number of futex waits that ended without a wake.")
)

// timeoutLog limits how often aborted waits are logged.
var timeoutLog = log.BasicRateLimitedLogger(time.Second)

// Memory provides access to futex words.
type Memory interface {
	// LoadUint32 atomically loads the 32-bit value at addr.
	LoadUint32(addr uintptr) (uint32, error)
}

// Context is the futex state of one address space.
type Context struct {
	// mu is the futex lock. It protects table and every list reachable
	// from it.
	mu sync.Mutex

	// threadLock guards the wait queues of all nodes of this context.
	threadLock sync.Mutex

	// table maps a futex address to the head of its waiter list.
	table map[uintptr]*Node

	nodes sync.Pool
}

// NewContext returns an empty futex context.
func NewContext() *Context {
	c := &Context{
		table: make(map[uintptr]*Node),
	}
	c.nodes.New = func() any { return &Node{} }
	return c
}

func validateAddr(addr uintptr) error {
	if addr == 0 || addr&0x3 != 0 {
		return zxerr.ErrInvalidArgs
	}
	return nil
}

func (c *Context) getNode(t *sched.Thread) *Node {
	n := c.nodes.Get().(*Node)
	n.init(t, &c.threadLock)
	return n
}

func (c *Context) putNode(n *Node) {
	if n.IsInQueue() {
		panic("futex: releasing a queued node")
	}
	n.thread = nil
	c.nodes.Put(n)
}

// insertLocked appends the list headed by head to the list for key.
//
// Preconditions: c.mu is locked.
func (c *Context) insertLocked(key uintptr, head *Node) {
	if existing, ok := c.table[key]; ok {
		existing.AppendList(head)
		return
	}
	c.table[key] = head
}

// Wait blocks t on the futex at addr if the value there is current. It
// returns nil when woken, zxerr.ErrBadState if the value differs, and
// zxerr.ErrTimedOut if the deadline passes first. A zero deadline never
// expires. If t is signaled the corresponding interrupt status is returned.
func (c *Context) Wait(t *sched.Thread, mem Memory, addr uintptr, current uint32, deadline time.Time) error {
	if err := validateAddr(addr); err != nil {
		return err
	}

	c.mu.Lock()
	val, err := mem.LoadUint32(addr)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if val != current {
		c.mu.Unlock()
		return zxerr.ErrBadState
	}

	n := c.getNode(t)
	n.SetKey(addr)
	n.SetAsSingletonList()
	c.insertLocked(addr, n)
	waitsMetric.Increment()

	// BlockThread releases c.mu.
	err = n.BlockThread(&c.mu, deadline)
	if err == nil {
		c.mu.Lock()
		c.putNode(n)
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !n.IsInQueue() {
		// A waker unlinked us after the wait ended but before we got the
		// lock back. Its wake counts.
		c.putNode(n)
		return nil
	}

	// The node may have been requeued, so look it up by its current key.
	key := n.Key()
	head := RemoveNodeFromList(c.table[key], n)
	if head == nil {
		delete(c.table, key)
	} else {
		c.table[key] = head
	}
	n.SetKey(0)
	c.putNode(n)

	if zxerr.Equals(zxerr.ErrTimedOut, err) {
		timeoutsMetric.Increment()
	}
	timeoutLog.Debugf("futex: wait by %s on %#x ended: %v", t.Name(), key, err)
	return err
}

// Wake wakes up to count waiters on addr, oldest first.
func (c *Context) Wake(addr uintptr, count uint32) error {
	if err := validateAddr(addr); err != nil {
		return err
	}

	c.mu.Lock()
	woken := c.wakeLocked(addr, count)
	c.mu.Unlock()

	if woken {
		runtime.Gosched()
	}
	return nil
}

// wakeLocked wakes up to count waiters on addr.
//
// Preconditions: c.mu is locked.
func (c *Context) wakeLocked(addr uintptr, count uint32) bool {
	head, ok := c.table[addr]
	if !ok || count == 0 {
		return false
	}
	delete(c.table, addr)
	rest, woken := WakeThreads(head, count, addr)
	if rest != nil {
		c.table[addr] = rest
	}
	return woken
}

// Requeue checks that the value at wakeAddr is current, wakes up to
// wakeCount waiters on wakeAddr, then moves up to requeueCount of the
// remaining waiters to requeueAddr without waking them.
func (c *Context) Requeue(mem Memory, wakeAddr uintptr, wakeCount uint32, current uint32, requeueAddr uintptr, requeueCount uint32) error {
	if err := validateAddr(wakeAddr); err != nil {
		return err
	}
	if err := validateAddr(requeueAddr); err != nil {
		return err
	}
	if wakeAddr == requeueAddr {
		return zxerr.ErrInvalidArgs
	}

	c.mu.Lock()
	val, err := mem.LoadUint32(wakeAddr)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if val != current {
		c.mu.Unlock()
		return zxerr.ErrBadState
	}

	woken := c.wakeLocked(wakeAddr, wakeCount)
	if head, ok := c.table[wakeAddr]; ok && requeueCount > 0 {
		delete(c.table, wakeAddr)
		rest := RemoveFromHead(head, requeueCount, wakeAddr, requeueAddr)
		moved := countList(head)
		c.insertLocked(requeueAddr, head)
		if rest != nil {
			c.table[wakeAddr] = rest
		}
		requeuesMetric.IncrementBy(uint64(moved))
		if log.IsLogging(log.Debug) {
			log.Debugf("futex: requeued %d waiters from %#x to %#x", moved, wakeAddr, requeueAddr)
		}
	}
	c.mu.Unlock()

	if woken {
		runtime.Gosched()
	}
	return nil
}

// WaiterCount returns the number of threads queued on addr.
func (c *Context) WaiterCount(addr uintptr) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return countList(c.table[addr])
}

// countList returns the length of the list headed by head.
func countList(head *Node) int {
	if head == nil {
		return 0
	}
	n := 1
	for node := head.queueNext; node != head; node = node.queueNext {
		n++
	}
	return n
}
