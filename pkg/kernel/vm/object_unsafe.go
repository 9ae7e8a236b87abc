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
	"unsafe"
)

// wordAt returns a pointer to the 32-bit word at off in b. off must be
// 4-byte aligned and in bounds.
func wordAt(b []byte, off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off]))
}
