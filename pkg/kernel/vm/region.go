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

	"github.com/google/btree"
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/pkg/sync"
)

// childDegree is the degree of the per-region btree of children.
const childDegree = 8

// vmNode is a child of an AddressRegion: a sub-region or a mapping.
type vmNode interface {
	start() uint64
	limit() uint64
}

// addrKey is a search key for the children tree.
type addrKey uint64

func (k addrKey) start() uint64 { return uint64(k) }
func (k addrKey) limit() uint64 { return uint64(k) }

func newChildren() *btree.BTreeG[vmNode] {
	return btree.NewG(childDegree, func(a, b vmNode) bool {
		return a.start() < b.start()
	})
}

// AddressRegion is an in-memory Region. A tree of regions rooted at
// NewRootRegion shares one lock.
type AddressRegion struct {
	// mu protects the mutable state of every region and mapping in the
	// tree.
	mu *sync.Mutex

	parent *AddressRegion
	name   string
	base   uint64
	size   uint64
	flags  RegionFlags

	// destroyed is set once the region has been destroyed or unmapped.
	destroyed bool

	// children holds sub-regions and mappings ordered by base. They never
	// overlap.
	children *btree.BTreeG[vmNode]
}

var _ Region = (*AddressRegion)(nil)

// NewRootRegion returns the root region of a new address space covering
// [base, base+size). The root may map anything anywhere.
func NewRootRegion(base, size uint64) *AddressRegion {
	if !zircon.PageAligned(base) || !zircon.PageAligned(size) || size == 0 || base+size < base {
		panic(fmt.Sprintf("vm: bad root region [%#x, +%#x)", base, size))
	}
	return &AddressRegion{
		mu:       new(sync.Mutex),
		name:     "root",
		base:     base,
		size:     size,
		flags:    RegionCanMapSpecific | RegionCanMapRWX,
		children: newChildren(),
	}
}

func (r *AddressRegion) start() uint64 { return r.base }
func (r *AddressRegion) limit() uint64 { return r.base + r.size }

// Base implements Region.Base.
func (r *AddressRegion) Base() uint64 { return r.base }

// Size implements Region.Size.
func (r *AddressRegion) Size() uint64 { return r.size }

// Flags implements Region.Flags.
func (r *AddressRegion) Flags() RegionFlags { return r.flags }

// Name returns the name the region was created with.
func (r *AddressRegion) Name() string { return r.name }

// String implements fmt.Stringer.String.
func (r *AddressRegion) String() string {
	return fmt.Sprintf("vmar %q [%#x, %#x) %v", r.name, r.base, r.limit(), r.flags)
}

// Destroyed returns true once the region has been destroyed.
func (r *AddressRegion) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// alignment returns the placement alignment for alignPow2.
func alignment(alignPow2 uint8) uint64 {
	if alignPow2 == 0 || uint64(1)<<alignPow2 < zircon.PageSize {
		return zircon.PageSize
	}
	return uint64(1) << alignPow2
}

// alignUp rounds v up to a multiple of align, a power of two. ok is false on
// overflow.
func alignUp(v, align uint64) (uint64, bool) {
	r := (v + align - 1) &^ (align - 1)
	return r, r >= v
}

// checkRangeLocked validates [base, base+size) as a page-aligned range
// inside r and returns its page-rounded end.
func (r *AddressRegion) checkRangeLocked(base, size uint64) (uint64, error) {
	if r.destroyed {
		return 0, zxerr.ErrBadState
	}
	if size == 0 || !zircon.PageAligned(base) {
		return 0, zxerr.ErrInvalidArgs
	}
	size, ok := zircon.PageRoundUp(size)
	if !ok || base+size < base {
		return 0, zxerr.ErrInvalidArgs
	}
	end := base + size
	if base < r.base || end > r.limit() {
		return 0, zxerr.ErrInvalidArgs
	}
	return end, nil
}

// checkMMULocked checks that mappings with page table flags mmu may be
// placed in r.
func (r *AddressRegion) checkMMULocked(mmu MMUFlags) error {
	if mmu&^mmuValid != 0 {
		return zxerr.ErrInvalidArgs
	}
	if mmu&MMUPermRead != 0 && r.flags&RegionCanMapRead == 0 {
		return zxerr.ErrAccessDenied
	}
	if mmu&MMUPermWrite != 0 && r.flags&RegionCanMapWrite == 0 {
		return zxerr.ErrAccessDenied
	}
	if mmu&MMUPermExecute != 0 && r.flags&RegionCanMapExecute == 0 {
		return zxerr.ErrAccessDenied
	}
	return nil
}

// overlappingLocked returns the children intersecting [start, end), in
// address order.
func (r *AddressRegion) overlappingLocked(start, end uint64) []vmNode {
	var nodes []vmNode
	r.children.DescendLessOrEqual(addrKey(start), func(n vmNode) bool {
		if n.start() < start && n.limit() > start {
			nodes = append(nodes, n)
		}
		return false
	})
	r.children.AscendRange(addrKey(start), addrKey(end), func(n vmNode) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

// findSpotLocked returns the lowest aligned address in r with size free
// bytes.
func (r *AddressRegion) findSpotLocked(size, align uint64) (uint64, error) {
	cursor, ok := alignUp(r.base, align)
	if !ok {
		return 0, zxerr.ErrNoMemory
	}
	found := false
	r.children.Ascend(func(n vmNode) bool {
		if n.limit() <= cursor {
			return true
		}
		if cursor+size <= n.start() {
			found = true
			return false
		}
		cursor, ok = alignUp(n.limit(), align)
		return ok
	})
	if !ok {
		return 0, zxerr.ErrNoMemory
	}
	if found || (cursor+size >= cursor && cursor+size <= r.limit()) {
		return cursor, nil
	}
	return 0, zxerr.ErrNoMemory
}

// placeLocked picks the base of a new child of size bytes. With specific
// set the child goes at r.base+offset; overwrite additionally unmaps any
// mappings in the way. It returns the base and the page-rounded size.
func (r *AddressRegion) placeLocked(offset, size uint64, alignPow2 uint8, specific, overwrite bool) (uint64, uint64, error) {
	if size == 0 {
		return 0, 0, zxerr.ErrInvalidArgs
	}
	size, ok := zircon.PageRoundUp(size)
	if !ok {
		return 0, 0, zxerr.ErrInvalidArgs
	}
	align := alignment(alignPow2)

	if !specific {
		if offset != 0 {
			return 0, 0, zxerr.ErrInvalidArgs
		}
		base, err := r.findSpotLocked(size, align)
		return base, size, err
	}

	if r.flags&RegionCanMapSpecific == 0 {
		return 0, 0, zxerr.ErrAccessDenied
	}
	if offset&(align-1) != 0 {
		return 0, 0, zxerr.ErrInvalidArgs
	}
	if offset >= r.size || size > r.size-offset {
		return 0, 0, zxerr.ErrInvalidArgs
	}
	base := r.base + offset
	if len(r.overlappingLocked(base, base+size)) == 0 {
		return base, size, nil
	}
	if !overwrite {
		return 0, 0, zxerr.ErrNoMemory
	}
	if err := r.unmapLocked(base, size, false); err != nil {
		return 0, 0, err
	}
	return base, size, nil
}

// CreateSubRegion implements Region.CreateSubRegion.
func (r *AddressRegion) CreateSubRegion(offset, size uint64, alignPow2 uint8, flags RegionFlags, name string) (Region, error) {
	if flags&^subRegionFlags != 0 {
		return nil, zxerr.ErrInvalidArgs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, zxerr.ErrBadState
	}
	if (flags&RegionCanMapRWX)&^(r.flags&RegionCanMapRWX) != 0 {
		return nil, zxerr.ErrAccessDenied
	}
	base, size, err := r.placeLocked(offset, size, alignPow2, flags&RegionSpecific != 0, false)
	if err != nil {
		return nil, err
	}
	child := &AddressRegion{
		mu:       r.mu,
		parent:   r,
		name:     name,
		base:     base,
		size:     size,
		flags:    flags &^ (RegionSpecific | RegionCompact),
		children: newChildren(),
	}
	r.children.ReplaceOrInsert(child)
	return child, nil
}

// CreateMapping implements Region.CreateMapping.
func (r *AddressRegion) CreateMapping(offset, size uint64, alignPow2 uint8, flags RegionFlags, obj Object, objOffset uint64, mmu MMUFlags, name string) (Mapping, error) {
	if obj == nil || flags&^mappingFlags != 0 || !zircon.PageAligned(objOffset) {
		return nil, zxerr.ErrInvalidArgs
	}
	if flags&RegionRequireNonResizable != 0 && obj.IsResizable() {
		return nil, zxerr.ErrNotSupported
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, zxerr.ErrBadState
	}
	if err := r.checkMMULocked(mmu); err != nil {
		return nil, err
	}
	overwrite := flags&RegionSpecificOverwrite != 0
	specific := overwrite || flags&RegionSpecific != 0
	base, size, err := r.placeLocked(offset, size, alignPow2, specific, overwrite)
	if err != nil {
		return nil, err
	}
	if objOffset+size < objOffset {
		return nil, zxerr.ErrInvalidArgs
	}
	m := &VmMapping{
		parent:    r,
		name:      name,
		base:      base,
		size:      size,
		obj:       obj,
		objOffset: objOffset,
		mmu:       mmu,
	}
	r.children.ReplaceOrInsert(m)
	return m, nil
}

// Protect implements Region.Protect. Every page of the range must be mapped
// directly in r.
func (r *AddressRegion) Protect(base, size uint64, mmu MMUFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	end, err := r.checkRangeLocked(base, size)
	if err != nil {
		return err
	}
	if err := r.checkMMULocked(mmu); err != nil {
		return err
	}

	nodes := r.overlappingLocked(base, end)
	cursor := base
	for _, n := range nodes {
		if _, ok := n.(*VmMapping); !ok {
			return zxerr.ErrInvalidArgs
		}
		if n.start() > cursor {
			return zxerr.ErrNotFound
		}
		cursor = n.limit()
	}
	if cursor < end {
		return zxerr.ErrNotFound
	}

	for _, n := range nodes {
		m := n.(*VmMapping)
		if m.base < base {
			m = m.splitLocked(base)
		}
		if m.limit() > end {
			m.splitLocked(end)
		}
		m.mmu = mmu
	}
	return nil
}

// Unmap implements Region.Unmap. Sub-regions entirely inside the range are
// destroyed; a sub-region that straddles either end is an error. Unmapping a
// range with nothing in it succeeds.
func (r *AddressRegion) Unmap(base, size uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unmapLocked(base, size, true)
}

func (r *AddressRegion) unmapLocked(base, size uint64, destroyRegions bool) error {
	end, err := r.checkRangeLocked(base, size)
	if err != nil {
		return err
	}
	nodes := r.overlappingLocked(base, end)
	for _, n := range nodes {
		if sub, ok := n.(*AddressRegion); ok {
			if !destroyRegions || sub.base < base || sub.limit() > end {
				return zxerr.ErrInvalidArgs
			}
		}
	}
	for _, n := range nodes {
		switch v := n.(type) {
		case *AddressRegion:
			r.children.Delete(v)
			v.destroyLocked()
		case *VmMapping:
			v.trimLocked(base, end)
		}
	}
	return nil
}

// Destroy implements Region.Destroy.
func (r *AddressRegion) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return zxerr.ErrBadState
	}
	if r.parent != nil {
		r.parent.children.Delete(r)
	}
	r.destroyLocked()
	return nil
}

func (r *AddressRegion) destroyLocked() {
	r.destroyed = true
	n := 0
	r.children.Ascend(func(c vmNode) bool {
		switch v := c.(type) {
		case *AddressRegion:
			v.destroyLocked()
		case *VmMapping:
			v.destroyed = true
		}
		n++
		return true
	})
	r.children.Clear(false)
	if n > 0 && log.IsLogging(log.Debug) {
		log.Debugf("vm: destroyed %v with %d children", r, n)
	}
}

// lookupLocked returns the mapping containing addr, searching sub-regions.
func (r *AddressRegion) lookupLocked(addr uint64) (*VmMapping, error) {
	var found vmNode
	r.children.DescendLessOrEqual(addrKey(addr), func(n vmNode) bool {
		if addr < n.limit() {
			found = n
		}
		return false
	})
	switch v := found.(type) {
	case *VmMapping:
		return v, nil
	case *AddressRegion:
		return v.lookupLocked(addr)
	default:
		return nil, zxerr.ErrNotFound
	}
}

// Lookup returns the mapping containing addr, or zxerr.ErrNotFound.
func (r *AddressRegion) Lookup(addr uint64) (*VmMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, zxerr.ErrBadState
	}
	return r.lookupLocked(addr)
}

// ChildCount returns the number of direct children.
func (r *AddressRegion) ChildCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.children.Len()
}
