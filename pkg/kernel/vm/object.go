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
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/sync"
)

// VmObject is an Object backed by host memory. Pages are committed on first
// store or when a mapping asks for it.
type VmObject struct {
	resizable bool

	// mu protects the fields below.
	mu        sync.Mutex
	data      []byte
	committed map[uint64]struct{}
}

var _ Object = (*VmObject)(nil)

// NewObject returns a zero-filled object of size bytes, rounded up to a
// page.
func NewObject(size uint64, resizable bool) (*VmObject, error) {
	size, ok := zircon.PageRoundUp(size)
	if !ok || int(size) < 0 || uint64(int(size)) != size {
		return nil, zxerr.ErrOutOfRange
	}
	return &VmObject{
		resizable: resizable,
		data:      make([]byte, size),
		committed: make(map[uint64]struct{}),
	}, nil
}

// Size implements Object.Size.
func (o *VmObject) Size() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return uint64(len(o.data))
}

// IsResizable implements Object.IsResizable.
func (o *VmObject) IsResizable() bool {
	return o.resizable
}

// Resize changes the size of a resizable object. Pages past the new end are
// decommitted.
func (o *VmObject) Resize(size uint64) error {
	if !o.resizable {
		return zxerr.ErrNotSupported
	}
	size, ok := zircon.PageRoundUp(size)
	if !ok || int(size) < 0 || uint64(int(size)) != size {
		return zxerr.ErrOutOfRange
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if size <= uint64(len(o.data)) {
		o.data = o.data[:size:size]
		for p := range o.committed {
			if p >= size {
				delete(o.committed, p)
			}
		}
		return nil
	}
	data := make([]byte, size)
	copy(data, o.data)
	o.data = data
	return nil
}

// CommittedPages returns the number of committed pages.
func (o *VmObject) CommittedPages() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.committed)
}

// commitRange implements committer.commitRange.
func (o *VmObject) commitRange(offset, size uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.commitRangeLocked(offset, size)
}

func (o *VmObject) commitRangeLocked(offset, size uint64) error {
	end := offset + size
	if end < offset || end > uint64(len(o.data)) {
		return zxerr.ErrOutOfRange
	}
	for p := zircon.PageRoundDown(offset); p < end; p += zircon.PageSize {
		o.committed[p] = struct{}{}
	}
	return nil
}
