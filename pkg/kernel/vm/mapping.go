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

package vm

import (
	"fmt"

	"gvisor.dev/zircon/pkg/errors/zxerr"
)

// VmMapping is a range of an Object installed in an AddressRegion. Its
// fields are protected by the owning tree's lock.
type VmMapping struct {
	parent    *AddressRegion
	name      string
	base      uint64
	size      uint64
	obj       Object
	objOffset uint64
	mmu       MMUFlags

	// destroyed is set once the mapping has been fully unmapped.
	destroyed bool
}

var _ Mapping = (*VmMapping)(nil)

func (m *VmMapping) start() uint64 { return m.base }
func (m *VmMapping) limit() uint64 { return m.base + m.size }

// Base implements Mapping.Base.
func (m *VmMapping) Base() uint64 {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	return m.base
}

// Size implements Mapping.Size.
func (m *VmMapping) Size() uint64 {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	return m.size
}

// MMUFlags implements Mapping.MMUFlags.
func (m *VmMapping) MMUFlags() MMUFlags {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	return m.mmu
}

// ObjectOffset returns the offset in the object of the mapping's first page.
func (m *VmMapping) ObjectOffset() uint64 {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	return m.objOffset
}

// Object returns the mapped object.
func (m *VmMapping) Object() Object { return m.obj }

// Destroyed returns true once the mapping has been fully unmapped.
func (m *VmMapping) Destroyed() bool {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	return m.destroyed
}

// String implements fmt.Stringer.String.
func (m *VmMapping) String() string {
	return fmt.Sprintf("mapping %q [%#x, %#x) %v", m.name, m.base, m.limit(), m.mmu)
}

// splitLocked cuts m at address at, which must be strictly inside it, and
// returns the new mapping covering [at, limit).
func (m *VmMapping) splitLocked(at uint64) *VmMapping {
	if at <= m.base || at >= m.limit() {
		panic(fmt.Sprintf("vm: split of %v at %#x", m, at))
	}
	tail := &VmMapping{
		parent:    m.parent,
		name:      m.name,
		base:      at,
		size:      m.limit() - at,
		obj:       m.obj,
		objOffset: m.objOffset + (at - m.base),
		mmu:       m.mmu,
	}
	m.size = at - m.base
	m.parent.children.ReplaceOrInsert(tail)
	return tail
}

// trimLocked removes [start, end) from m, which must overlap it.
func (m *VmMapping) trimLocked(start, end uint64) {
	children := m.parent.children
	switch {
	case start <= m.base && end >= m.limit():
		children.Delete(m)
		m.destroyed = true
	case start <= m.base:
		// Head cut. The base is the tree key, so reinsert.
		children.Delete(m)
		cut := end - m.base
		m.base = end
		m.size -= cut
		m.objOffset += cut
		children.ReplaceOrInsert(m)
	case end >= m.limit():
		m.size = start - m.base
	default:
		m.splitLocked(end)
		m.size = start - m.base
	}
}

// committer is implemented by objects that track committed pages.
type committer interface {
	commitRange(offset, size uint64) error
}

// MapRange implements Mapping.MapRange.
func (m *VmMapping) MapRange(offset, size uint64, commit bool) error {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	if m.destroyed {
		return zxerr.ErrBadState
	}
	if size == 0 {
		return zxerr.ErrInvalidArgs
	}
	if offset+size < offset || offset+size > m.size {
		return zxerr.ErrOutOfRange
	}
	if !commit {
		return nil
	}
	if c, ok := m.obj.(committer); ok {
		return c.commitRange(m.objOffset+offset, size)
	}
	return nil
}
