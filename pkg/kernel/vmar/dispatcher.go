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

// Package vmar implements VMAR handles: it translates the option words of
// the allocate, map, protect and unmap calls and validates them before
// anything reaches the VM layer.
package vmar

import (
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/vm"
	"gvisor.dev/zircon/pkg/log"
	"gvisor.dev/zircon/pkg/metric"
)

// allocName is the name given to regions and mappings created through a
// handle.
const allocName = "useralloc"

var (
	errUnalignedBase = errors.New(zircon.ErrInvalidArgs, "base address is not page aligned")
	errProtection    = errors.New(zircon.ErrInvalidArgs, "write or execute requested without read")
	errMixedFlags    = errors.New(zircon.ErrInvalidArgs, "permission bits are not allowed here")
	errProtectFlags  = errors.New(zircon.ErrInvalidArgs, "protect takes permission bits only")
	errMapRange      = errors.New(zircon.ErrInvalidArgs, "map-range cannot be combined with specific-overwrite")
	errNoObject      = errors.New(zircon.ErrInvalidArgs, "no object to map")
)

var (
	mapsMetric     = metric.MustCreateNewUint64Metric("/vmar/maps", "Number of mappings created through VMAR handles.")
	rejectedMetric = metric.MustCreateNewUint64Metric("/vmar/rejected", "Number of VMAR calls rejected before reaching the VM layer.",
		metric.NewField("op", []string{"allocate", "map", "protect", "unmap"}))
)

// reject counts and logs a call that failed validation.
func reject(op string, flags zircon.VMOption, err error) error {
	rejectedMetric.Increment(op)
	if log.IsLogging(log.Debug) {
		log.Debugf("vmar: %s with options %v rejected: %v", op, flags, err)
	}
	return err
}

// Dispatcher is a handle to a region. It holds no state beyond the region
// and the page table flags every mapping made through it receives.
type Dispatcher struct {
	region  vm.Region
	baseMMU vm.MMUFlags
}

// Create wraps region in a Dispatcher. The rights of the new handle follow
// the region's own CAN_MAP flags, so a handle never carries more rights than
// the region it names.
func Create(region vm.Region, baseMMU vm.MMUFlags) (*Dispatcher, zircon.Rights) {
	rights := zircon.DefaultVmarRights
	flags := region.Flags()
	if flags&vm.RegionCanMapRead != 0 {
		rights |= zircon.RightRead
	}
	if flags&vm.RegionCanMapWrite != 0 {
		rights |= zircon.RightWrite
	}
	if flags&vm.RegionCanMapExecute != 0 {
		rights |= zircon.RightExecute
	}
	return &Dispatcher{region: region, baseMMU: baseMMU}, rights
}

// Region returns the region the handle names.
func (d *Dispatcher) Region() vm.Region {
	return d.region
}

// BaseMMUFlags returns the flags added to every mapping.
func (d *Dispatcher) BaseMMUFlags() vm.MMUFlags {
	return d.baseMMU
}

// Allocate creates a sub-region and returns a handle to it.
func (d *Dispatcher) Allocate(offset, size uint64, flags zircon.VMOption) (*Dispatcher, zircon.Rights, error) {
	opts, err := SplitFlags(flags)
	if err != nil {
		return nil, 0, reject("allocate", flags, err)
	}
	// Allocation is structural. Permissions belong to mappings.
	if opts.MMUFlags != 0 {
		return nil, 0, reject("allocate", flags, errMixedFlags)
	}

	region, err := d.region.CreateSubRegion(offset, size, opts.AlignPow2, opts.RegionFlags, allocName)
	if err != nil {
		return nil, 0, err
	}
	sub, rights := Create(region, d.baseMMU)
	return sub, rights, nil
}

// Destroy destroys the region.
func (d *Dispatcher) Destroy() error {
	return d.region.Destroy()
}

// Map maps size bytes of obj starting at objOffset. With VMMapRange the page
// tables are populated before Map returns.
func (d *Dispatcher) Map(vmarOffset uint64, obj vm.Object, objOffset, size uint64, flags zircon.VMOption) (vm.Mapping, error) {
	if obj == nil {
		return nil, reject("map", flags, errNoObject)
	}
	if !IsValidMappingProtection(flags) {
		return nil, reject("map", flags, errProtection)
	}

	mapRange := flags&zircon.VMMapRange != 0
	flags &^= zircon.VMMapRange
	if mapRange && flags&zircon.VMSpecificOverwrite != 0 {
		return nil, reject("map", flags, errMapRange)
	}

	opts, err := SplitFlags(flags)
	if err != nil {
		return nil, reject("map", flags, err)
	}
	if opts.RegionFlags&vm.RegionRequireNonResizable != 0 {
		opts.RegionFlags &^= vm.RegionRequireNonResizable
		if obj.IsResizable() {
			return nil, reject("map", flags, zxerr.ErrNotSupported)
		}
	}

	m, err := d.region.CreateMapping(vmarOffset, size, opts.AlignPow2, opts.RegionFlags, obj, objOffset, opts.MMUFlags|d.baseMMU, allocName)
	if err != nil {
		return nil, err
	}
	if mapRange {
		if err := m.MapRange(0, size, true); err != nil {
			// Nothing may be left behind that the caller has no handle to.
			if uerr := d.region.Unmap(m.Base(), m.Size()); uerr != nil {
				log.Warningf("vmar: failed to remove mapping [%#x, %#x) after MapRange error %v: %v", m.Base(), m.Base()+m.Size(), err, uerr)
			}
			return nil, err
		}
	}
	mapsMetric.Increment()
	return m, nil
}

// Protect changes the permissions of [base, base+size).
func (d *Dispatcher) Protect(base, size uint64, flags zircon.VMOption) error {
	if !zircon.PageAligned(base) {
		return reject("protect", flags, errUnalignedBase)
	}
	if !IsValidMappingProtection(flags) {
		return reject("protect", flags, errProtection)
	}
	opts, err := SplitFlags(flags)
	if err != nil {
		return reject("protect", flags, err)
	}
	if opts.RegionFlags != 0 || opts.AlignPow2 != 0 {
		return reject("protect", flags, errProtectFlags)
	}
	return d.region.Protect(base, size, opts.MMUFlags|d.baseMMU)
}

// Unmap removes everything in [base, base+size).
func (d *Dispatcher) Unmap(base, size uint64) error {
	if !zircon.PageAligned(base) {
		return reject("unmap", 0, errUnalignedBase)
	}
	return d.region.Unmap(base, size)
}
