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

// Package pathutil maps kernel inode/name pairs to canonical relative paths
// and validates them against the remote service's wire contract. It holds no
// state and has no side effects: every function here is pure.
package pathutil

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Root is the canonical form of the mount root.
const Root = "."

var (
	// ErrTraversal is returned when a name is empty, "." or "..", i.e. does
	// not name a distinct child of its parent directory.
	ErrTraversal = errors.New("pathutil: path traversal rejected")

	// ErrInvalidName is returned for null-byte-containing, "/"-containing,
	// or non-UTF-8 names.
	ErrInvalidName = errors.New("pathutil: invalid name")
)

// ValidateName checks a single path component as supplied by the kernel in a
// lookup, create, mkdir, unlink, rmdir, or rename upcall. It does not accept
// "/" in name; that would indicate a kernel bug.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrTraversal
	}
	if strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	if strings.ContainsRune(name, '/') {
		return ErrInvalidName
	}
	if !utf8.ValidString(name) {
		return ErrInvalidName
	}
	return nil
}

// Join returns the canonical path for a child named name within parent,
// where parent is itself already canonical (as returned by Join or equal to
// Root). The canonical form for the root is exactly "." and for every other
// path is "./a/b/c".
func Join(parent, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if parent == Root {
		return Root + "/" + name, nil
	}
	return parent + "/" + name, nil
}

// Split returns the canonical parent path and base name of p. It panics if p
// is Root, since the root has no parent; callers must special-case it.
func Split(p string) (parent, base string) {
	if p == Root {
		panic("pathutil: Split called on root")
	}
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		// Shouldn't happen for a canonical path, but degrade gracefully.
		return Root, p
	}
	parent = p[:idx]
	if parent == "." {
		parent = Root
	}
	base = p[idx+1:]
	return parent, base
}

// Normalize collapses redundant "./" prefixes and validates every component
// of an externally-supplied relative path (e.g. one echoed back from the
// remote service). It rejects "..", empty components, and non-UTF-8 names.
func Normalize(p string) (string, error) {
	if !utf8.ValidString(p) {
		return "", ErrInvalidName
	}
	if strings.ContainsRune(p, 0) {
		return "", ErrInvalidName
	}

	trimmed := p
	for strings.HasPrefix(trimmed, "./") {
		trimmed = strings.TrimPrefix(trimmed, "./")
	}
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" || trimmed == "." {
		return Root, nil
	}

	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		if err := ValidateName(part); err != nil {
			return "", err
		}
	}
	return Root + "/" + strings.Join(parts, "/"), nil
}

// IsRoot reports whether p is the canonical root path.
func IsRoot(p string) bool {
	return p == Root
}
