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

// Package zircon contains the constants and types shared with Zircon's
// kernel ABI: status codes, handle rights, VM option words and page size
// helpers.
package zircon

import (
	"fmt"
)

// Status is a Zircon status code, from <zircon/errors.h>.
type Status int32

// Status values.
const (
	OK                    Status = 0
	ErrInternal           Status = -1
	ErrNotSupported       Status = -2
	ErrNoResources        Status = -3
	ErrNoMemory           Status = -4
	ErrInternalIntrRetry  Status = -6
	ErrInvalidArgs        Status = -10
	ErrBadHandle          Status = -11
	ErrWrongType          Status = -12
	ErrOutOfRange         Status = -14
	ErrBadState           Status = -20
	ErrTimedOut           Status = -21
	ErrShouldWait         Status = -22
	ErrCanceled           Status = -23
	ErrNotFound           Status = -25
	ErrAlreadyExists      Status = -26
	ErrAccessDenied       Status = -30
	ErrInternalIntrKilled Status = -502
)

var statusNames = map[Status]string{
	OK:                    "ZX_OK",
	ErrInternal:           "ZX_ERR_INTERNAL",
	ErrNotSupported:       "ZX_ERR_NOT_SUPPORTED",
	ErrNoResources:        "ZX_ERR_NO_RESOURCES",
	ErrNoMemory:           "ZX_ERR_NO_MEMORY",
	ErrInternalIntrRetry:  "ZX_ERR_INTERNAL_INTR_RETRY",
	ErrInvalidArgs:        "ZX_ERR_INVALID_ARGS",
	ErrBadHandle:          "ZX_ERR_BAD_HANDLE",
	ErrWrongType:          "ZX_ERR_WRONG_TYPE",
	ErrOutOfRange:         "ZX_ERR_OUT_OF_RANGE",
	ErrBadState:           "ZX_ERR_BAD_STATE",
	ErrTimedOut:           "ZX_ERR_TIMED_OUT",
	ErrShouldWait:         "ZX_ERR_SHOULD_WAIT",
	ErrCanceled:           "ZX_ERR_CANCELED",
	ErrNotFound:           "ZX_ERR_NOT_FOUND",
	ErrAlreadyExists:      "ZX_ERR_ALREADY_EXISTS",
	ErrAccessDenied:       "ZX_ERR_ACCESS_DENIED",
	ErrInternalIntrKilled: "ZX_ERR_INTERNAL_INTR_KILLED",
}

// String implements fmt.Stringer.String.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ZX_STATUS(%d)", int32(s))
}
