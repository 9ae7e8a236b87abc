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
	"time"
)

// Infinite is the deadline that never expires. Deadlines are absolute
// times; the zero time.Time is the only infinite value.
var Infinite time.Time

// DeadlineAfter returns the deadline d from now. A negative or zero d yields
// a deadline that has already passed.
func DeadlineAfter(d time.Duration) time.Time {
	return time.Now().Add(d)
}
