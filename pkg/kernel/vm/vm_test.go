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
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
)

const (
	page     = zircon.PageSize
	rootBase = 0x10000000
	rootSize = 256 * page
	rw       = MMUPermRead | MMUPermWrite
)

// span describes one child of a region, in root-relative page units.
type span struct {
	Page    uint64
	Pages   uint64
	MMU     MMUFlags
	ObjPage uint64
	Region  bool
}

func layout(r *AddressRegion) []span {
	r.mu.Lock()
	defer r.mu.Unlock()
	var spans []span
	r.children.Ascend(func(n vmNode) bool {
		s := span{
			Page:  (n.start() - rootBase) / page,
			Pages: (n.limit() - n.start()) / page,
		}
		switch v := n.(type) {
		case *VmMapping:
			s.MMU = v.mmu
			s.ObjPage = v.objOffset / page
		case *AddressRegion:
			s.Region = true
		}
		spans = append(spans, s)
		return true
	})
	return spans
}

func newObject(t *testing.T, pages uint64) *VmObject {
	t.Helper()
	o, err := NewObject(pages*page, false)
	if err != nil {
		t.Fatalf("NewObject(%d pages) failed: %v", pages, err)
	}
	return o
}

func mustMap(t *testing.T, r Region, offset, size uint64, flags RegionFlags, obj Object, mmu MMUFlags) *VmMapping {
	t.Helper()
	m, err := r.CreateMapping(offset, size, 0, flags, obj, 0, mmu, "test")
	if err != nil {
		t.Fatalf("CreateMapping(%#x, %#x, %v) failed: %v", offset, size, flags, err)
	}
	return m.(*VmMapping)
}

func mustSubRegion(t *testing.T, r Region, offset, size uint64, flags RegionFlags) *AddressRegion {
	t.Helper()
	sub, err := r.CreateSubRegion(offset, size, 0, flags, "test")
	if err != nil {
		t.Fatalf("CreateSubRegion(%#x, %#x, %v) failed: %v", offset, size, flags, err)
	}
	return sub.(*AddressRegion)
}

func TestFlagStrings(t *testing.T) {
	for _, tc := range []struct {
		got  string
		want string
	}{
		{RegionFlags(0).String(), "0"},
		{(RegionSpecific | RegionCanMapRead).String(), "SPECIFIC|CAN_MAP_READ"},
		{(rw | MMUPermUser).String(), "rw- user"},
		{(MMUPermExecute | MMUCacheUncachedDevice).String(), "--x device"},
	} {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestNewRootRegionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("NewRootRegion with unaligned base did not panic")
		}
	}()
	NewRootRegion(rootBase+1, rootSize)
}

func TestSubRegionFirstFit(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	a := mustSubRegion(t, root, 0, 2*page, RegionCanMapRead)
	b := mustSubRegion(t, root, 0, page+1, RegionCanMapRead)
	if a.Base() != rootBase || b.Base() != rootBase+2*page {
		t.Errorf("got bases %#x, %#x, want %#x, %#x", a.Base(), b.Base(), rootBase, rootBase+2*page)
	}
	if b.Size() != 2*page {
		t.Errorf("sub-region size got %#x, want %#x", b.Size(), 2*page)
	}

	if err := a.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	c := mustSubRegion(t, root, 0, page, 0)
	if c.Base() != rootBase {
		t.Errorf("hole not reused: got base %#x, want %#x", c.Base(), rootBase)
	}

	aligned, err := root.CreateSubRegion(0, page, 16, 0, "aligned")
	if err != nil {
		t.Fatalf("CreateSubRegion with alignment failed: %v", err)
	}
	if got, want := aligned.Base(), uint64(rootBase+0x10000); got != want {
		t.Errorf("aligned base got %#x, want %#x", got, want)
	}
}

func TestSubRegionFull(t *testing.T) {
	root := NewRootRegion(rootBase, 4*page)
	mustSubRegion(t, root, 0, 3*page, 0)
	if _, err := root.CreateSubRegion(0, 2*page, 0, 0, "big"); err != zxerr.ErrNoMemory {
		t.Errorf("CreateSubRegion in full region got %v, want %v", err, zxerr.ErrNoMemory)
	}
}

func TestCreateSubRegionErrors(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	mustSubRegion(t, root, 0, 2*page, RegionSpecific)
	noSpecific := mustSubRegion(t, root, 16*page, 8*page, RegionSpecific|RegionCanMapRead)

	for _, tc := range []struct {
		name   string
		r      Region
		offset uint64
		size   uint64
		flags  RegionFlags
		want   error
	}{
		{"zero size", root, 0, 0, 0, zxerr.ErrInvalidArgs},
		{"offset without specific", root, page, page, 0, zxerr.ErrInvalidArgs},
		{"overwrite", root, 4 * page, page, RegionSpecificOverwrite, zxerr.ErrInvalidArgs},
		{"mapping flag", root, 0, page, RegionRequireNonResizable, zxerr.ErrInvalidArgs},
		{"unaligned offset", root, 4*page + 1, page, RegionSpecific, zxerr.ErrInvalidArgs},
		{"out of bounds", root, rootSize - page, 2 * page, RegionSpecific, zxerr.ErrInvalidArgs},
		{"overlap", root, page, page, RegionSpecific, zxerr.ErrNoMemory},
		{"no can map specific", noSpecific, 0, page, RegionSpecific, zxerr.ErrAccessDenied},
		{"escalate permissions", noSpecific, 0, page, RegionCanMapWrite, zxerr.ErrAccessDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.r.CreateSubRegion(tc.offset, tc.size, 0, tc.flags, tc.name); err != tc.want {
				t.Errorf("CreateSubRegion got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateMappingErrors(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 4)
	resizable, err := NewObject(page, true)
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	ro := mustSubRegion(t, root, 32*page, 8*page, RegionSpecific|RegionCanMapRead)

	for _, tc := range []struct {
		name      string
		r         Region
		flags     RegionFlags
		obj       Object
		objOffset uint64
		mmu       MMUFlags
		want      error
	}{
		{"nil object", root, 0, nil, 0, MMUPermRead, zxerr.ErrInvalidArgs},
		{"region flag", root, RegionCanMapRead, obj, 0, MMUPermRead, zxerr.ErrInvalidArgs},
		{"unaligned object offset", root, 0, obj, 1, MMUPermRead, zxerr.ErrInvalidArgs},
		{"resizable", root, RegionRequireNonResizable, resizable, 0, MMUPermRead, zxerr.ErrNotSupported},
		{"bad mmu bits", root, 0, obj, 0, 1 << 12, zxerr.ErrInvalidArgs},
		{"write in read-only region", ro, 0, obj, 0, rw, zxerr.ErrAccessDenied},
		{"execute in read-only region", ro, 0, obj, 0, MMUPermExecute, zxerr.ErrAccessDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.r.CreateMapping(0, page, 0, tc.flags, tc.obj, tc.objOffset, tc.mmu, tc.name); err != tc.want {
				t.Errorf("CreateMapping got %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := root.CreateMapping(0, page, 0, 0, resizable, 0, MMUPermRead, "ok"); err != nil {
		t.Errorf("CreateMapping of resizable object without RequireNonResizable failed: %v", err)
	}
}

func TestSpecificOverwrite(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 4)
	mustMap(t, root, 0, 3*page, RegionSpecific, obj, rw)

	if _, err := root.CreateMapping(page, page, 0, RegionSpecific, obj, 0, MMUPermRead, "b"); err != zxerr.ErrNoMemory {
		t.Errorf("overlapping specific mapping got %v, want %v", err, zxerr.ErrNoMemory)
	}
	mustMap(t, root, page, page, RegionSpecificOverwrite, obj, MMUPermRead)

	want := []span{
		{Page: 0, Pages: 1, MMU: rw, ObjPage: 0},
		{Page: 1, Pages: 1, MMU: MMUPermRead, ObjPage: 0},
		{Page: 2, Pages: 1, MMU: rw, ObjPage: 2},
	}
	if diff := cmp.Diff(want, layout(root)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	mustSubRegion(t, root, 8*page, page, RegionSpecific)
	if _, err := root.CreateMapping(8*page, page, 0, RegionSpecificOverwrite, obj, 0, MMUPermRead, "c"); err != zxerr.ErrInvalidArgs {
		t.Errorf("overwriting a sub-region got %v, want %v", err, zxerr.ErrInvalidArgs)
	}
}

func TestProtect(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 4)
	mustMap(t, root, 0, 4*page, RegionSpecific, obj, rw)

	if err := root.Protect(rootBase+page, 2*page, MMUPermRead); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	want := []span{
		{Page: 0, Pages: 1, MMU: rw, ObjPage: 0},
		{Page: 1, Pages: 2, MMU: MMUPermRead, ObjPage: 1},
		{Page: 3, Pages: 1, MMU: rw, ObjPage: 3},
	}
	if diff := cmp.Diff(want, layout(root)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	// Protecting across the pieces changes all of them.
	if err := root.Protect(rootBase, 4*page, MMUPermRead|MMUPermExecute); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	for _, s := range layout(root) {
		if s.MMU != MMUPermRead|MMUPermExecute {
			t.Errorf("mapping at page %d has flags %v, want r-x", s.Page, s.MMU)
		}
	}
}

func TestProtectErrors(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 4)
	mustMap(t, root, 0, 2*page, RegionSpecific, obj, rw)
	mustMap(t, root, 3*page, page, RegionSpecific, obj, rw)
	mustSubRegion(t, root, 8*page, 2*page, RegionSpecific)
	ro := mustSubRegion(t, root, 16*page, 2*page, RegionSpecific|RegionCanMapRead)
	mustMap(t, ro, 0, page, 0, obj, MMUPermRead)

	for _, tc := range []struct {
		name string
		r    Region
		base uint64
		size uint64
		mmu  MMUFlags
		want error
	}{
		{"zero size", root, rootBase, 0, MMUPermRead, zxerr.ErrInvalidArgs},
		{"unaligned", root, rootBase + 1, page, MMUPermRead, zxerr.ErrInvalidArgs},
		{"below region", root, rootBase - page, page, MMUPermRead, zxerr.ErrInvalidArgs},
		{"past region", root, rootBase + rootSize, page, MMUPermRead, zxerr.ErrInvalidArgs},
		{"bad mmu bits", root, rootBase, page, 1 << 12, zxerr.ErrInvalidArgs},
		{"gap", root, rootBase + page, 2 * page, MMUPermRead, zxerr.ErrNotFound},
		{"unmapped", root, rootBase + 4*page, page, MMUPermRead, zxerr.ErrNotFound},
		{"sub-region", root, rootBase + 8*page, page, MMUPermRead, zxerr.ErrInvalidArgs},
		{"escalate", ro, rootBase + 16*page, page, rw, zxerr.ErrAccessDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.r.Protect(tc.base, tc.size, tc.mmu); err != tc.want {
				t.Errorf("Protect got %v, want %v", err, tc.want)
			}
		})
	}

	// Failed calls leave the mappings untouched.
	for _, s := range layout(root) {
		if !s.Region && s.MMU != rw {
			t.Errorf("mapping at page %d has flags %v, want %v", s.Page, s.MMU, rw)
		}
	}
}

func TestUnmap(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 8)
	m := mustMap(t, root, 0, 4*page, RegionSpecific, obj, rw)

	// Head.
	if err := root.Unmap(rootBase, page); err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	if m.Base() != rootBase+page || m.Size() != 3*page || m.ObjectOffset() != page {
		t.Errorf("after head unmap got %v objOffset %#x", m, m.ObjectOffset())
	}

	// Tail.
	if err := root.Unmap(rootBase+3*page, page); err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	if m.Base() != rootBase+page || m.Size() != 2*page {
		t.Errorf("after tail unmap got %v", m)
	}

	// Nothing there.
	if err := root.Unmap(rootBase+32*page, page); err != nil {
		t.Errorf("Unmap of empty range got %v, want nil", err)
	}

	if err := root.Unmap(rootBase+page, 2*page); err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	if !m.Destroyed() {
		t.Errorf("mapping not destroyed after full unmap")
	}
	if err := m.MapRange(0, page, false); err != zxerr.ErrBadState {
		t.Errorf("MapRange on unmapped mapping got %v, want %v", err, zxerr.ErrBadState)
	}
	if n := root.ChildCount(); n != 0 {
		t.Errorf("ChildCount got %d, want 0", n)
	}
}

func TestUnmapHole(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 8)
	mustMap(t, root, 0, 8*page, RegionSpecific, obj, rw)

	if err := root.Unmap(rootBase+2*page, 3*page); err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	want := []span{
		{Page: 0, Pages: 2, MMU: rw, ObjPage: 0},
		{Page: 5, Pages: 3, MMU: rw, ObjPage: 5},
	}
	if diff := cmp.Diff(want, layout(root)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmapSubRegion(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	sub := mustSubRegion(t, root, 8*page, 2*page, RegionSpecific|RegionCanMapRead)
	mustMap(t, sub, 0, page, 0, newObject(t, 1), MMUPermRead)

	if err := root.Unmap(rootBase+8*page, page); err != zxerr.ErrInvalidArgs {
		t.Errorf("partial sub-region unmap got %v, want %v", err, zxerr.ErrInvalidArgs)
	}
	if sub.Destroyed() {
		t.Fatalf("sub-region destroyed by failed unmap")
	}
	if err := root.Unmap(rootBase+7*page, 4*page); err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	if !sub.Destroyed() {
		t.Errorf("contained sub-region not destroyed")
	}
	if _, err := sub.CreateSubRegion(0, page, 0, 0, "late"); err != zxerr.ErrBadState {
		t.Errorf("CreateSubRegion on destroyed region got %v, want %v", err, zxerr.ErrBadState)
	}
}

func TestDestroy(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	sub := mustSubRegion(t, root, 0, 8*page, RegionCanMapRead|RegionCanMapWrite)
	inner := mustSubRegion(t, sub, 0, 2*page, RegionCanMapRead)
	m := mustMap(t, sub, 0, page, 0, newObject(t, 1), rw)

	if err := sub.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !inner.Destroyed() || !m.Destroyed() {
		t.Errorf("children not destroyed: region %t, mapping %t", inner.Destroyed(), m.Destroyed())
	}
	if n := root.ChildCount(); n != 0 {
		t.Errorf("root ChildCount got %d, want 0", n)
	}
	if err := sub.Destroy(); err != zxerr.ErrBadState {
		t.Errorf("second Destroy got %v, want %v", err, zxerr.ErrBadState)
	}
	if err := sub.Protect(sub.Base(), page, MMUPermRead); err != zxerr.ErrBadState {
		t.Errorf("Protect on destroyed region got %v, want %v", err, zxerr.ErrBadState)
	}
	if err := sub.Unmap(sub.Base(), page); err != zxerr.ErrBadState {
		t.Errorf("Unmap on destroyed region got %v, want %v", err, zxerr.ErrBadState)
	}
}

func TestMapRange(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 4)
	m := mustMap(t, root, 0, 4*page, 0, obj, rw)

	if err := m.MapRange(0, 4*page, false); err != nil {
		t.Errorf("MapRange without commit failed: %v", err)
	}
	if n := obj.CommittedPages(); n != 0 {
		t.Errorf("CommittedPages got %d, want 0", n)
	}
	if err := m.MapRange(page, 2*page, true); err != nil {
		t.Errorf("MapRange failed: %v", err)
	}
	if n := obj.CommittedPages(); n != 2 {
		t.Errorf("CommittedPages got %d, want 2", n)
	}
	if err := m.MapRange(0, 0, true); err != zxerr.ErrInvalidArgs {
		t.Errorf("MapRange of nothing got %v, want %v", err, zxerr.ErrInvalidArgs)
	}
	if err := m.MapRange(page, 4*page, true); err != zxerr.ErrOutOfRange {
		t.Errorf("MapRange past end got %v, want %v", err, zxerr.ErrOutOfRange)
	}
}

func TestObjectResize(t *testing.T) {
	fixed := newObject(t, 1)
	if err := fixed.Resize(2 * page); err != zxerr.ErrNotSupported {
		t.Errorf("Resize of fixed object got %v, want %v", err, zxerr.ErrNotSupported)
	}

	o, err := NewObject(1, true)
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	if o.Size() != page {
		t.Errorf("Size got %#x, want %#x", o.Size(), page)
	}
	if err := o.Resize(4 * page); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if err := o.commitRange(0, 4*page); err != nil {
		t.Fatalf("commitRange failed: %v", err)
	}
	if err := o.Resize(page); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if o.Size() != page || o.CommittedPages() != 1 {
		t.Errorf("after shrink got size %#x and %d committed pages, want %#x and 1", o.Size(), o.CommittedPages(), page)
	}
}

func TestWordAccess(t *testing.T) {
	root := NewRootRegion(rootBase, rootSize)
	obj := newObject(t, 2)
	mustMap(t, root, 0, 2*page, RegionSpecific, obj, rw)
	mustMap(t, root, 4*page, page, RegionSpecific, newObject(t, 1), MMUPermRead)
	sub := mustSubRegion(t, root, 16*page, 4*page, RegionSpecific|RegionCanMapRead|RegionCanMapWrite)
	mustMap(t, sub, 0, page, 0, newObject(t, 1), rw)

	addr := uintptr(rootBase + page + 8)
	if err := root.StoreUint32(addr, 42); err != nil {
		t.Fatalf("StoreUint32 failed: %v", err)
	}
	if v, err := root.LoadUint32(addr); err != nil || v != 42 {
		t.Errorf("LoadUint32 got (%d, %v), want (42, nil)", v, err)
	}
	if n := obj.CommittedPages(); n != 1 {
		t.Errorf("CommittedPages got %d, want 1", n)
	}

	if prev, err := root.CompareAndSwapUint32(addr, 42, 7); err != nil || prev != 42 {
		t.Errorf("CompareAndSwapUint32 got (%d, %v), want (42, nil)", prev, err)
	}
	if prev, err := root.CompareAndSwapUint32(addr, 42, 9); err != nil || prev != 7 {
		t.Errorf("failed CompareAndSwapUint32 got (%d, %v), want (7, nil)", prev, err)
	}
	if v, _ := root.LoadUint32(addr); v != 7 {
		t.Errorf("LoadUint32 got %d, want 7", v)
	}

	// Nested lookup.
	inner := uintptr(rootBase + 16*page)
	if err := root.StoreUint32(inner, 5); err != nil {
		t.Fatalf("StoreUint32 through sub-region failed: %v", err)
	}
	if v, err := sub.LoadUint32(inner); err != nil || v != 5 {
		t.Errorf("LoadUint32 got (%d, %v), want (5, nil)", v, err)
	}

	for _, tc := range []struct {
		name string
		addr uintptr
		want error
	}{
		{"unaligned", addr + 2, zxerr.ErrInvalidArgs},
		{"unmapped", rootBase + 2*page, zxerr.ErrNotFound},
		{"read-only", rootBase + 4*page, zxerr.ErrAccessDenied},
		{"empty sub-region", rootBase + 17*page, zxerr.ErrNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := root.StoreUint32(tc.addr, 1); err != tc.want {
				t.Errorf("StoreUint32 got %v, want %v", err, tc.want)
			}
		})
	}
}
