// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package rfserrors defines the client-internal error taxonomy of spec §7
// and its mapping onto the POSIX errno values the kernel expects back from
// a FUSE op.
package rfserrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is the small, closed set of ways a remote-filesystem operation can
// fail. It is independent of transport (HTTP status, connection reset,
// timeout all map down to one of these).
type Kind int

const (
	// Unknown is never returned by a correctly classified error; seeing it
	// at the kernel boundary is a bug in the classifier.
	Unknown Kind = iota
	NotFound
	AlreadyExists
	InvalidArgument
	PermissionDenied
	NotADirectory
	IsADirectory
	Transport
	Canceled
	TooLarge
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case InvalidArgument:
		return "invalid_argument"
	case PermissionDenied:
		return "permission_denied"
	case NotADirectory:
		return "not_a_directory"
	case IsADirectory:
		return "is_a_directory"
	case Transport:
		return "transport"
	case Canceled:
		return "canceled"
	case TooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// Error is the error type every component above C2 deals in. Op and Path
// identify what was being attempted, for logging; Kind drives the errno
// mapping at the kernel boundary.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error, wrapping a lower-level cause.
func New(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf extracts the Kind carried by err, or Transport if err does not
// wrap an *Error — an un-annotated error below C2 is treated as an opaque
// transport failure rather than silently surfaced as success.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}

// ToErrno maps err onto the errno the kernel expects back from a FUSE op,
// per spec §7. A nil err maps to nil so callers can pass straight through.
func ToErrno(err error) error {
	if err == nil {
		return nil
	}

	switch KindOf(err) {
	case NotFound:
		return syscall.ENOENT
	case AlreadyExists:
		return syscall.EEXIST
	case InvalidArgument:
		return syscall.EINVAL
	case PermissionDenied:
		return syscall.EACCES
	case NotADirectory:
		return syscall.ENOTDIR
	case IsADirectory:
		return syscall.EISDIR
	case Canceled:
		return syscall.EINTR
	case TooLarge:
		return syscall.EFBIG
	case Transport:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
