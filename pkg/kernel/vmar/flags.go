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

package vmar

import (
	"fmt"

	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/vm"
)

// Options is the result of splitting a zircon.VMOption word.
type Options struct {
	// RegionFlags are the placement and capability flags.
	RegionFlags vm.RegionFlags

	// MMUFlags are the page table permissions requested.
	MMUFlags vm.MMUFlags

	// AlignPow2 is the requested alignment exponent, or 0 for none.
	AlignPow2 uint8
}

// String implements fmt.Stringer.String.
func (o Options) String() string {
	return fmt.Sprintf("region=%v mmu=%q align=%d", o.RegionFlags, o.MMUFlags, o.AlignPow2)
}

const (
	minAlignPow2 = 10
	maxAlignPow2 = 32

	permBits  = zircon.VMPermRead | zircon.VMPermWrite | zircon.VMPermExecute
	alignMask = ^zircon.VMOption(1<<zircon.VMAlignBase - 1)
)

// regionOptions maps option bits to region flags one to one.
var regionOptions = []struct {
	opt  zircon.VMOption
	flag vm.RegionFlags
}{
	{zircon.VMCompact, vm.RegionCompact},
	{zircon.VMSpecific, vm.RegionSpecific},
	{zircon.VMSpecificOverwrite, vm.RegionSpecificOverwrite},
	{zircon.VMCanMapSpecific, vm.RegionCanMapSpecific},
	{zircon.VMCanMapRead, vm.RegionCanMapRead},
	{zircon.VMCanMapWrite, vm.RegionCanMapWrite},
	{zircon.VMCanMapExecute, vm.RegionCanMapExecute},
	{zircon.VMRequireNonResizable, vm.RegionRequireNonResizable},
}

// ValidAlignment returns true if pow2 is an alignment exponent a caller may
// request: zero, or 10 through 32.
func ValidAlignment(pow2 uint32) bool {
	return pow2 == 0 || (pow2 >= minAlignPow2 && pow2 <= maxAlignPow2)
}

// IsValidMappingProtection returns false if flags ask for a mapping that is
// writable or executable but not readable. There is no way to express such a
// mapping.
func IsValidMappingProtection(flags zircon.VMOption) bool {
	if flags&zircon.VMPermRead != 0 {
		return true
	}
	return flags&(zircon.VMPermWrite|zircon.VMPermExecute) == 0
}

// SplitFlags splits an option word into region flags, page table
// permissions and an alignment.
//
// Write permission without read permission is dropped rather than rejected;
// callers that install mappings check IsValidMappingProtection first.
func SplitFlags(flags zircon.VMOption) (Options, error) {
	var opts Options

	switch flags & (zircon.VMPermRead | zircon.VMPermWrite) {
	case zircon.VMPermRead:
		opts.MMUFlags |= vm.MMUPermRead
	case zircon.VMPermRead | zircon.VMPermWrite:
		opts.MMUFlags |= vm.MMUPermRead | vm.MMUPermWrite
	}
	if flags&zircon.VMPermExecute != 0 {
		opts.MMUFlags |= vm.MMUPermExecute
	}
	flags &^= permBits

	for _, ro := range regionOptions {
		if flags&ro.opt != 0 {
			opts.RegionFlags |= ro.flag
			flags &^= ro.opt
		}
	}

	if flags&^alignMask != 0 {
		return Options{}, zxerr.ErrInvalidArgs
	}
	pow2 := uint32(flags >> zircon.VMAlignBase)
	if !ValidAlignment(pow2) {
		return Options{}, zxerr.ErrInvalidArgs
	}
	opts.AlignPow2 = uint8(pow2)
	return opts, nil
}
