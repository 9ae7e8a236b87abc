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
	"sync/atomic"

	"gvisor.dev/zircon/pkg/errors/zxerr"
)

// wordAccess resolves the 32-bit word at addr, checks that the mapping
// allows perms and runs fn on it with the object locked.
func (r *AddressRegion) wordAccess(addr uintptr, perms MMUFlags, fn func(p *uint32)) error {
	if addr%4 != 0 {
		return zxerr.ErrInvalidArgs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return zxerr.ErrBadState
	}
	m, err := r.lookupLocked(uint64(addr))
	if err != nil {
		return err
	}
	if m.mmu&perms != perms {
		return zxerr.ErrAccessDenied
	}
	o, ok := m.obj.(*VmObject)
	if !ok {
		return zxerr.ErrNotSupported
	}
	off := m.objOffset + (uint64(addr) - m.base)

	o.mu.Lock()
	defer o.mu.Unlock()
	if off+4 > uint64(len(o.data)) {
		return zxerr.ErrOutOfRange
	}
	if perms&MMUPermWrite != 0 {
		if err := o.commitRangeLocked(off, 4); err != nil {
			return err
		}
	}
	fn(wordAt(o.data, off))
	return nil
}

// LoadUint32 atomically loads the 32-bit word mapped at addr.
func (r *AddressRegion) LoadUint32(addr uintptr) (uint32, error) {
	var v uint32
	err := r.wordAccess(addr, MMUPermRead, func(p *uint32) {
		v = atomic.LoadUint32(p)
	})
	return v, err
}

// StoreUint32 atomically stores v to the 32-bit word mapped at addr.
func (r *AddressRegion) StoreUint32(addr uintptr, v uint32) error {
	return r.wordAccess(addr, MMUPermWrite, func(p *uint32) {
		atomic.StoreUint32(p, v)
	})
}

// CompareAndSwapUint32 atomically replaces the word at addr with new if it
// holds old. It returns the value the word held before the operation.
func (r *AddressRegion) CompareAndSwapUint32(addr uintptr, old, new uint32) (uint32, error) {
	var prev uint32
	err := r.wordAccess(addr, MMUPermRead|MMUPermWrite, func(p *uint32) {
		for {
			prev = atomic.LoadUint32(p)
			if prev != old || atomic.CompareAndSwapUint32(p, old, new) {
				return
			}
		}
	})
	return prev, err
}
