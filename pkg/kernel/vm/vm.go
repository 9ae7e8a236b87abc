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

// Package vm defines the virtual memory layer consumed by VMAR handles:
// address regions, the mappings installed in them and the memory objects
// those mappings reference.
//
// The interfaces are what the handle layer depends on. AddressRegion,
// VmMapping and VmObject are an in-memory implementation of them.
package vm

import (
	"strings"
)

// RegionFlags control how a sub-region or mapping is placed and what it may
// contain.
type RegionFlags uint32

// Region flags.
const (
	// RegionCompact asks for the child to be placed near its siblings.
	RegionCompact RegionFlags = 1 << iota

	// RegionSpecific places the child at exactly the requested offset.
	RegionSpecific

	// RegionSpecificOverwrite is RegionSpecific, replacing any mappings
	// already in the range. Only valid for mappings.
	RegionSpecificOverwrite

	// RegionCanMapSpecific allows specific placement of children.
	RegionCanMapSpecific

	// RegionCanMapRead allows readable mappings.
	RegionCanMapRead

	// RegionCanMapWrite allows writable mappings.
	RegionCanMapWrite

	// RegionCanMapExecute allows executable mappings.
	RegionCanMapExecute

	// RegionRequireNonResizable rejects resizable objects. Only valid for
	// mappings.
	RegionRequireNonResizable
)

// RegionCanMapRWX is the set of CAN_MAP permission flags.
const RegionCanMapRWX = RegionCanMapRead | RegionCanMapWrite | RegionCanMapExecute

const (
	subRegionFlags = RegionCompact | RegionSpecific | RegionCanMapSpecific | RegionCanMapRWX
	mappingFlags   = RegionCompact | RegionSpecific | RegionSpecificOverwrite | RegionRequireNonResizable
)

var regionFlagNames = []struct {
	f    RegionFlags
	name string
}{
	{RegionCompact, "COMPACT"},
	{RegionSpecific, "SPECIFIC"},
	{RegionSpecificOverwrite, "SPECIFIC_OVERWRITE"},
	{RegionCanMapSpecific, "CAN_MAP_SPECIFIC"},
	{RegionCanMapRead, "CAN_MAP_READ"},
	{RegionCanMapWrite, "CAN_MAP_WRITE"},
	{RegionCanMapExecute, "CAN_MAP_EXECUTE"},
	{RegionRequireNonResizable, "REQUIRE_NON_RESIZABLE"},
}

// String implements fmt.Stringer.String.
func (f RegionFlags) String() string {
	var parts []string
	for _, fn := range regionFlagNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// MMUFlags are architecture-independent page table flags.
type MMUFlags uint32

// Cache policy, in the low bits.
const (
	MMUCacheCached         MMUFlags = 0
	MMUCacheUncached       MMUFlags = 1
	MMUCacheUncachedDevice MMUFlags = 2
	MMUCacheWriteCombining MMUFlags = 3
	MMUCacheMask           MMUFlags = 3
)

// Permissions.
const (
	MMUPermUser    MMUFlags = 1 << 2
	MMUPermRead    MMUFlags = 1 << 3
	MMUPermWrite   MMUFlags = 1 << 4
	MMUPermExecute MMUFlags = 1 << 5

	MMUPermRWX = MMUPermRead | MMUPermWrite | MMUPermExecute
)

const mmuValid = MMUCacheMask | MMUPermUser | MMUPermRWX

// String implements fmt.Stringer.String.
func (f MMUFlags) String() string {
	var b strings.Builder
	for _, p := range []struct {
		f MMUFlags
		c byte
	}{{MMUPermRead, 'r'}, {MMUPermWrite, 'w'}, {MMUPermExecute, 'x'}} {
		if f&p.f != 0 {
			b.WriteByte(p.c)
		} else {
			b.WriteByte('-')
		}
	}
	if f&MMUPermUser != 0 {
		b.WriteString(" user")
	}
	switch f & MMUCacheMask {
	case MMUCacheUncached:
		b.WriteString(" uncached")
	case MMUCacheUncachedDevice:
		b.WriteString(" device")
	case MMUCacheWriteCombining:
		b.WriteString(" wc")
	}
	return b.String()
}

// Region is an address range that holds sub-regions and mappings.
type Region interface {
	// Base returns the first address of the region.
	Base() uint64

	// Size returns the size of the region in bytes.
	Size() uint64

	// Flags returns the flags the region was created with.
	Flags() RegionFlags

	// CreateSubRegion creates a child region. offset is relative to Base
	// and is only used with RegionSpecific. alignPow2 of zero means page
	// alignment.
	CreateSubRegion(offset, size uint64, alignPow2 uint8, flags RegionFlags, name string) (Region, error)

	// CreateMapping maps size bytes of obj, starting at objOffset, into
	// the region with the given page table flags.
	CreateMapping(offset, size uint64, alignPow2 uint8, flags RegionFlags, obj Object, objOffset uint64, mmu MMUFlags, name string) (Mapping, error)

	// Protect changes the page table flags of the mapped range
	// [base, base+size).
	Protect(base, size uint64, mmu MMUFlags) error

	// Unmap removes mappings and sub-regions in [base, base+size).
	Unmap(base, size uint64) error

	// Destroy unmaps everything in the region and makes it unusable.
	Destroy() error
}

// Object is a memory object that can be mapped.
type Object interface {
	// Size returns the object's size in bytes.
	Size() uint64

	// IsResizable returns true if the object's size may change.
	IsResizable() bool
}

// Mapping is a range of an Object installed in a Region.
type Mapping interface {
	Base() uint64
	Size() uint64
	MMUFlags() MMUFlags

	// MapRange installs page table entries for [offset, offset+size) of
	// the mapping, committing the object's pages first if commit is true.
	MapRange(offset, size uint64, commit bool) error
}
