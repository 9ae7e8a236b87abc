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

package zircon

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// VMOption is the option word passed to the VMAR allocate, map and protect
// system calls, from <zircon/types.h>.
type VMOption uint32

// VM option bits.
const (
	VMPermRead            VMOption = 1 << 0
	VMPermWrite           VMOption = 1 << 1
	VMPermExecute         VMOption = 1 << 2
	VMCompact             VMOption = 1 << 3
	VMSpecific            VMOption = 1 << 4
	VMSpecificOverwrite   VMOption = 1 << 5
	VMCanMapSpecific      VMOption = 1 << 6
	VMCanMapRead          VMOption = 1 << 7
	VMCanMapWrite         VMOption = 1 << 8
	VMCanMapExecute       VMOption = 1 << 9
	VMMapRange            VMOption = 1 << 10
	VMRequireNonResizable VMOption = 1 << 11
)

// VMAlignBase is the bit offset of the alignment field. The field holds a
// power-of-two exponent; zero means "no alignment requested".
const VMAlignBase = 24

// Named alignment requests.
const (
	VMAlign1KB   = VMOption(10 << VMAlignBase)
	VMAlign2KB   = VMOption(11 << VMAlignBase)
	VMAlign4KB   = VMOption(12 << VMAlignBase)
	VMAlign8KB   = VMOption(13 << VMAlignBase)
	VMAlign16KB  = VMOption(14 << VMAlignBase)
	VMAlign32KB  = VMOption(15 << VMAlignBase)
	VMAlign64KB  = VMOption(16 << VMAlignBase)
	VMAlign128KB = VMOption(17 << VMAlignBase)
	VMAlign256KB = VMOption(18 << VMAlignBase)
	VMAlign512KB = VMOption(19 << VMAlignBase)
	VMAlign1MB   = VMOption(20 << VMAlignBase)
	VMAlign2MB   = VMOption(21 << VMAlignBase)
	VMAlign4MB   = VMOption(22 << VMAlignBase)
	VMAlign8MB   = VMOption(23 << VMAlignBase)
	VMAlign16MB  = VMOption(24 << VMAlignBase)
	VMAlign32MB  = VMOption(25 << VMAlignBase)
	VMAlign64MB  = VMOption(26 << VMAlignBase)
	VMAlign128MB = VMOption(27 << VMAlignBase)
	VMAlign256MB = VMOption(28 << VMAlignBase)
	VMAlign512MB = VMOption(29 << VMAlignBase)
	VMAlign1GB   = VMOption(30 << VMAlignBase)
	VMAlign2GB   = VMOption(31 << VMAlignBase)
	VMAlign4GB   = VMOption(32 << VMAlignBase)
)

// VMAlign returns the option bits requesting 1<<pow2 byte alignment. pow2 is
// not validated.
func VMAlign(pow2 uint32) VMOption {
	return VMOption(pow2 << VMAlignBase)
}

var vmOptionNames = []struct {
	opt  VMOption
	name string
}{
	{VMPermRead, "read"},
	{VMPermWrite, "write"},
	{VMPermExecute, "execute"},
	{VMCompact, "compact"},
	{VMSpecific, "specific"},
	{VMSpecificOverwrite, "specific-overwrite"},
	{VMCanMapSpecific, "can-map-specific"},
	{VMCanMapRead, "can-map-read"},
	{VMCanMapWrite, "can-map-write"},
	{VMCanMapExecute, "can-map-execute"},
	{VMMapRange, "map-range"},
	{VMRequireNonResizable, "require-non-resizable"},
}

// String implements fmt.Stringer.String. The result can be read back with
// ParseVMOption.
func (o VMOption) String() string {
	var parts []string
	for _, on := range vmOptionNames {
		if o&on.opt != 0 {
			parts = append(parts, on.name)
			o &^= on.opt
		}
	}
	if align := uint32(o >> VMAlignBase); align != 0 {
		parts = append(parts, "align="+strconv.FormatUint(uint64(align), 10))
		o &= (1 << VMAlignBase) - 1
	}
	if o != 0 {
		parts = append(parts, "0x"+formatHex(uint64(o)))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// ParseVMOption parses either a number (in any base accepted by
// strconv.ParseUint) or a '|'-separated list of option names as produced by
// VMOption.String.
func ParseVMOption(s string) (VMOption, error) {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return VMOption(v), nil
	}
	var o VMOption
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "align="); ok {
			pow2, err := strconv.ParseUint(rest, 10, 8)
			if err != nil {
				return 0, &OptionError{Option: part}
			}
			o |= VMAlign(uint32(pow2))
			continue
		}
		found := false
		for _, on := range vmOptionNames {
			if on.name == part {
				o |= on.opt
				found = true
				break
			}
		}
		if !found {
			if v, err := strconv.ParseUint(part, 0, 32); err == nil {
				o |= VMOption(v)
				continue
			}
			return 0, &OptionError{Option: part}
		}
	}
	return o, nil
}

// OptionError is returned by ParseVMOption for an unrecognized option name.
type OptionError struct {
	Option string
}

// Error implements error.Error.
func (e *OptionError) Error() string {
	return "unknown VM option " + strconv.Quote(e.Option)
}

// PageSize is the page size assumed by the VM layer.
const PageSize = 4096

// PageAligned returns true if v is a multiple of PageSize.
func PageAligned(v uint64) bool {
	return v&(PageSize-1) == 0
}

// PageRoundDown returns v rounded down to a page boundary.
func PageRoundDown(v uint64) uint64 {
	return v &^ (PageSize - 1)
}

// PageRoundUp returns v rounded up to a page boundary. ok is false if the
// result overflows.
func PageRoundUp(v uint64) (rounded uint64, ok bool) {
	rounded = PageRoundDown(v + PageSize - 1)
	return rounded, rounded >= v
}

// HostPageSize returns the page size of the host running this process, which
// may differ from PageSize.
func HostPageSize() int {
	return unix.Getpagesize()
}

func formatHex(v uint64) string {
	return strconv.FormatUint(v, 16)
}
