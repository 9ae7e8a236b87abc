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

package futex

import (
	"fmt"
	"time"

	"gvisor.dev/zircon/pkg/kernel/sched"
	"gvisor.dev/zircon/pkg/sync"
)

// Node is the record for one thread blocked on a futex. Nodes waiting on the
// same address form an intrusive circular doubly-linked list; the list does
// not own its nodes.
//
// A node that is not in any list has both link pointers nil. A singleton
// list points to itself in both directions.
//
// All methods except WakeThread's wake step require the futex lock of the
// owning Context.
type Node struct {
	// waitQueue is where the node's thread parks. Its lock is the owning
	// Context's thread lock.
	waitQueue sched.WaitQueue

	// thread is the thread that blocks on this node.
	thread *sched.Thread

	queueNext *Node
	queuePrev *Node

	// hashKey is the futex address the node waits on. Requeue rewrites it
	// when the node moves to another address.
	hashKey uintptr
}

// NewNode returns a node for t whose wait queue is guarded by threadLock.
func NewNode(t *sched.Thread, threadLock *sync.Mutex) *Node {
	n := &Node{}
	n.init(t, threadLock)
	return n
}

func (n *Node) init(t *sched.Thread, threadLock *sync.Mutex) {
	if n.IsInQueue() {
		panic("futex: reinitializing a queued node")
	}
	n.waitQueue.Init(threadLock)
	n.thread = t
	n.hashKey = 0
}

// Key returns the futex address the node is associated with.
func (n *Node) Key() uintptr {
	return n.hashKey
}

// SetKey sets the futex address the node is associated with.
func (n *Node) SetKey(key uintptr) {
	n.hashKey = key
}

// Thread returns the thread blocked (or about to block) on the node.
func (n *Node) Thread() *sched.Thread {
	return n.thread
}

// Next returns the node's successor in its list, or nil.
func (n *Node) Next() *Node {
	return n.queueNext
}

// IsInQueue returns true if the node is in a list.
func (n *Node) IsInQueue() bool {
	if (n.queueNext == nil) != (n.queuePrev == nil) {
		panic(fmt.Sprintf("futex: node %p half linked: next=%p prev=%p", n, n.queueNext, n.queuePrev))
	}
	return n.queueNext != nil
}

// SetAsSingletonList makes n a list of one.
func (n *Node) SetAsSingletonList() {
	if n.IsInQueue() {
		panic("futex: SetAsSingletonList on a queued node")
	}
	n.queueNext = n
	n.queuePrev = n
}

func (n *Node) markAsNotInQueue() {
	n.queueNext = nil
	n.queuePrev = nil
}

// AppendList merges the list containing head onto the end of the list
// containing n.
func (n *Node) AppendList(head *Node) {
	SpliceNodes(n, head)
}

// relinkAsAdjacent makes n2 the successor of n1.
func relinkAsAdjacent(n1, n2 *Node) {
	n1.queueNext = n2
	n2.queuePrev = n1
}

// SpliceNodes merges two disjoint lists at n1 and n2, or splits one list
// into two at n1 and n2. It is its own inverse.
//
// Merging places n2's list, starting at n2, before n1. Splitting leaves one
// list running from n1 to n2's predecessor and one running from n2 to n1's
// predecessor.
func SpliceNodes(n1, n2 *Node) {
	if n1 == n2 {
		panic("futex: SpliceNodes on a single node")
	}
	n1Prev := n1.queuePrev
	n2Prev := n2.queuePrev
	relinkAsAdjacent(n1Prev, n2)
	relinkAsAdjacent(n2Prev, n1)
}

// RemoveNodeFromList unlinks node from the list headed by head and returns
// the list's new head, or nil if the list is now empty.
func RemoveNodeFromList(head, node *Node) *Node {
	if node.queueNext == node {
		if node.queuePrev != node {
			panic("futex: corrupt singleton list")
		}
		head = nil
	} else {
		if node == head {
			head = node.queueNext
		}
		relinkAsAdjacent(node.queuePrev, node.queueNext)
	}
	node.markAsNotInQueue()
	return head
}

// WakeThreads removes and wakes up to count nodes of the list starting at
// node, in list order. Every node woken must have key oldKey; its key is
// cleared. It returns the rest of the list (nil if nothing remains) and
// whether any thread was actually woken.
func WakeThreads(node *Node, count uint32, oldKey uintptr) (*Node, bool) {
	if node == nil {
		panic("futex: WakeThreads on an empty list")
	}
	// node may be reused by its thread as soon as it is woken, so capture
	// everything needed from it first.
	listEnd := node.queuePrev
	anyWoken := false
	for i := uint32(0); i < count; i++ {
		if node.hashKey != oldKey {
			panic(fmt.Sprintf("futex: node key %#x in list for %#x", node.hashKey, oldKey))
		}
		node.hashKey = 0
		next := node.queueNext
		isLast := node == listEnd
		if node.WakeThread() {
			anyWoken = true
		}
		if isLast {
			return nil, anyWoken
		}
		node = next
	}
	relinkAsAdjacent(listEnd, node)
	return node, anyWoken
}

// RemoveFromHead detaches the first count nodes of the list headed by head,
// rekeying each from oldKey to newKey. head then heads the detached list.
// It returns the remainder, or nil if the whole list was detached.
func RemoveFromHead(head *Node, count uint32, oldKey, newKey uintptr) *Node {
	if count == 0 {
		return head
	}
	node := head
	for i := uint32(0); i < count; i++ {
		if node.hashKey != oldKey {
			panic(fmt.Sprintf("futex: node key %#x in list for %#x", node.hashKey, oldKey))
		}
		node.hashKey = newKey
		node = node.queueNext
		if node == head {
			return nil
		}
	}
	SpliceNodes(head, node)
	return node
}

// BlockThread releases mu and blocks the node's thread until it is woken or
// the deadline passes. mu is released only after the thread lock is held, so
// a waker that takes mu cannot run before the thread is enqueued. mu is not
// reacquired on return.
//
// Preconditions: mu is locked and is the futex lock guarding n's list.
func (n *Node) BlockThread(mu *sync.Mutex, deadline time.Time) error {
	threadLock := n.waitQueue.Lock()
	threadLock.Lock()
	mu.Unlock()

	n.thread.SetInterruptible(true)
	err := n.waitQueue.Block(n.thread, deadline)
	n.thread.SetInterruptible(false)

	threadLock.Unlock()
	return err
}

// WakeThread marks the node as out of its list and wakes its thread without
// rescheduling. It returns false if the thread was no longer blocked, e.g.
// because it timed out.
//
// The node must not be touched after the wake: its thread may reuse it.
func (n *Node) WakeThread() bool {
	n.markAsNotInQueue()
	threadLock := n.waitQueue.Lock()
	threadLock.Lock()
	defer threadLock.Unlock()
	if !n.waitQueue.WakeOne(false, nil) {
		return false
	}
	wakesMetric.Increment()
	return true
}
