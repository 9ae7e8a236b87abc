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
	"strings"
)

// Rights is a set of handle rights, from <zircon/rights.h>.
type Rights uint32

// Handle rights.
const (
	RightDuplicate   Rights = 1 << 0
	RightTransfer    Rights = 1 << 1
	RightRead        Rights = 1 << 2
	RightWrite       Rights = 1 << 3
	RightExecute     Rights = 1 << 4
	RightMap         Rights = 1 << 5
	RightGetProperty Rights = 1 << 6
	RightSetProperty Rights = 1 << 7
	RightEnumerate   Rights = 1 << 8
	RightDestroy     Rights = 1 << 9
	RightSetPolicy   Rights = 1 << 10
	RightGetPolicy   Rights = 1 << 11
	RightSignal      Rights = 1 << 12
	RightSignalPeer  Rights = 1 << 13
	RightWait        Rights = 1 << 14
	RightInspect     Rights = 1 << 15

	// RightsBasic are the rights every handle to a kernel object carries.
	RightsBasic = RightTransfer | RightDuplicate | RightWait | RightInspect

	// DefaultVmarRights are the rights of a new VMAR handle before the
	// region's CAN_MAP_* permissions are added.
	DefaultVmarRights = RightsBasic
)

var rightNames = []struct {
	r    Rights
	name string
}{
	{RightDuplicate, "DUPLICATE"},
	{RightTransfer, "TRANSFER"},
	{RightRead, "READ"},
	{RightWrite, "WRITE"},
	{RightExecute, "EXECUTE"},
	{RightMap, "MAP"},
	{RightGetProperty, "GET_PROPERTY"},
	{RightSetProperty, "SET_PROPERTY"},
	{RightEnumerate, "ENUMERATE"},
	{RightDestroy, "DESTROY"},
	{RightSetPolicy, "SET_POLICY"},
	{RightGetPolicy, "GET_POLICY"},
	{RightSignal, "SIGNAL"},
	{RightSignalPeer, "SIGNAL_PEER"},
	{RightWait, "WAIT"},
	{RightInspect, "INSPECT"},
}

// String implements fmt.Stringer.String.
func (r Rights) String() string {
	if r == 0 {
		return "NONE"
	}
	var parts []string
	for _, rn := range rightNames {
		if r&rn.r != 0 {
			parts = append(parts, rn.name)
			r &^= rn.r
		}
	}
	if r != 0 {
		parts = append(parts, "0x"+strings.ToUpper(formatHex(uint64(r))))
	}
	return strings.Join(parts, "|")
}

// HasAll returns true if r contains every right in want.
func (r Rights) HasAll(want Rights) bool {
	return r&want == want
}
