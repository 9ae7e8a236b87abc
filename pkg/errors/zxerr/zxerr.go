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

// Package zxerr contains Zircon status codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package zxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors"
)

// The following errors correspond one to one with zircon.Status values.
// Packages may declare further *errors.Error values with their own messages
// that carry one of these statuses; compare those with Equals.
var (
	noError               *errors.Error = nil
	ErrInternal                         = errors.New(zircon.ErrInternal, "internal error")
	ErrNotSupported                     = errors.New(zircon.ErrNotSupported, "operation not supported")
	ErrNoResources                      = errors.New(zircon.ErrNoResources, "out of resources")
	ErrNoMemory                         = errors.New(zircon.ErrNoMemory, "out of memory or address space")
	ErrInternalIntrRetry                = errors.New(zircon.ErrInternalIntrRetry, "interrupted, should be retried")
	ErrInvalidArgs                      = errors.New(zircon.ErrInvalidArgs, "invalid argument")
	ErrBadHandle                        = errors.New(zircon.ErrBadHandle, "bad handle")
	ErrWrongType                        = errors.New(zircon.ErrWrongType, "wrong object type")
	ErrOutOfRange                       = errors.New(zircon.ErrOutOfRange, "argument out of range")
	ErrBadState                         = errors.New(zircon.ErrBadState, "object in bad state")
	ErrTimedOut                         = errors.New(zircon.ErrTimedOut, "timed out")
	ErrShouldWait                       = errors.New(zircon.ErrShouldWait, "operation should wait")
	ErrCanceled                         = errors.New(zircon.ErrCanceled, "operation canceled")
	ErrNotFound                         = errors.New(zircon.ErrNotFound, "not found")
	ErrAlreadyExists                    = errors.New(zircon.ErrAlreadyExists, "already exists")
	ErrAccessDenied                     = errors.New(zircon.ErrAccessDenied, "access denied")
	ErrInternalIntrKilled               = errors.New(zircon.ErrInternalIntrKilled, "interrupted, thread killed")
)

var statusToError = map[zircon.Status]*errors.Error{
	zircon.ErrInternal:           ErrInternal,
	zircon.ErrNotSupported:       ErrNotSupported,
	zircon.ErrNoResources:        ErrNoResources,
	zircon.ErrNoMemory:           ErrNoMemory,
	zircon.ErrInternalIntrRetry:  ErrInternalIntrRetry,
	zircon.ErrInvalidArgs:        ErrInvalidArgs,
	zircon.ErrBadHandle:          ErrBadHandle,
	zircon.ErrWrongType:          ErrWrongType,
	zircon.ErrOutOfRange:         ErrOutOfRange,
	zircon.ErrBadState:           ErrBadState,
	zircon.ErrTimedOut:           ErrTimedOut,
	zircon.ErrShouldWait:         ErrShouldWait,
	zircon.ErrCanceled:           ErrCanceled,
	zircon.ErrNotFound:           ErrNotFound,
	zircon.ErrAlreadyExists:      ErrAlreadyExists,
	zircon.ErrAccessDenied:       ErrAccessDenied,
	zircon.ErrInternalIntrKilled: ErrInternalIntrKilled,
}

var statusToUnix = map[zircon.Status]unix.Errno{
	zircon.ErrInternal:           unix.EIO,
	zircon.ErrNotSupported:       unix.ENOTSUP,
	zircon.ErrNoResources:        unix.ENOSPC,
	zircon.ErrNoMemory:           unix.ENOMEM,
	zircon.ErrInternalIntrRetry:  unix.EINTR,
	zircon.ErrInvalidArgs:        unix.EINVAL,
	zircon.ErrBadHandle:          unix.EBADF,
	zircon.ErrWrongType:          unix.EBADF,
	zircon.ErrOutOfRange:         unix.ERANGE,
	zircon.ErrBadState:           unix.EAGAIN,
	zircon.ErrTimedOut:           unix.ETIMEDOUT,
	zircon.ErrShouldWait:         unix.EAGAIN,
	zircon.ErrCanceled:           unix.ECANCELED,
	zircon.ErrNotFound:           unix.ENOENT,
	zircon.ErrAlreadyExists:      unix.EEXIST,
	zircon.ErrAccessDenied:       unix.EACCES,
	zircon.ErrInternalIntrKilled: unix.EINTR,
}

// FromStatus returns the error for s, or nil for zircon.OK. An unknown
// status yields ErrInternal.
func FromStatus(s zircon.Status) error {
	if s == zircon.OK {
		return nil
	}
	if e, ok := statusToError[s]; ok {
		return e
	}
	return ErrInternal
}

// ToStatus returns the status carried by err. nil maps to zircon.OK; errors
// that do not wrap an *errors.Error map to zircon.ErrInternal.
func ToStatus(err error) zircon.Status {
	if err == nil {
		return zircon.OK
	}
	var e *errors.Error
	if goerrors.As(err, &e) && e != noError {
		return e.Status()
	}
	return zircon.ErrInternal
}

// ToUnix converts err to the closest host errno. nil maps to zero.
func ToUnix(err error) unix.Errno {
	s := ToStatus(err)
	if s == zircon.OK {
		return 0
	}
	if e, ok := statusToUnix[s]; ok {
		return e
	}
	return unix.EIO
}

// Equals compares a zxerr to a given error by status.
func Equals(e *errors.Error, err error) bool {
	if e == noError {
		return err == nil
	}
	if err == nil {
		return false
	}
	if e == err {
		return true
	}
	return ToStatus(err) == e.Status()
}
