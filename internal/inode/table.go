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

// Package inode allocates and tracks the bijective mapping between kernel
// inode IDs and canonical remote paths for the lifetime of one mount.
package inode

import (
	"sync"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/EmanuelePietroCometti/remotefs/internal/pathutil"
)

// Root is reserved for the mount root, per spec.
const Root = fuseops.RootInodeID

// Table is a bidirectional path <-> ino map with strictly monotonic
// allocation. Freed inos are never reused; unlinking a path forgets its
// entry so a subsequent lookup mints a new ino with a new generation.
//
// GUARDED_BY(mu)
type Table struct {
	mu sync.Mutex

	pathToIno map[string]fuseops.InodeID
	inoToPath map[fuseops.InodeID]string

	// generation counts how many times each path has been allocated an ino
	// across the lifetime of the mount, so that stale handles referring to a
	// since-unlinked-and-recreated path can be told apart if ever needed.
	generation map[string]uint64

	next fuseops.InodeID
}

// New returns a table with only the root path registered.
func New() *Table {
	t := &Table{
		pathToIno: make(map[string]fuseops.InodeID),
		inoToPath: make(map[fuseops.InodeID]string),
		generation: make(map[string]uint64),
		next:      Root + 1,
	}
	t.pathToIno[pathutil.Root] = Root
	t.inoToPath[Root] = pathutil.Root
	t.generation[pathutil.Root] = 1
	return t
}

// PathOf returns the path bound to ino, or false if ino is not live.
func (t *Table) PathOf(ino fuseops.InodeID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.inoToPath[ino]
	return p, ok
}

// InoOf returns the live ino for path, allocating one (and bumping its
// generation) if none exists yet. This is the path used by a kernel lookup
// for a name not yet seen by this mount.
func (t *Table) InoOf(path string) fuseops.InodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inoOfLocked(path)
}

func (t *Table) inoOfLocked(path string) fuseops.InodeID {
	if ino, ok := t.pathToIno[path]; ok {
		return ino
	}

	ino := t.next
	t.next++
	t.pathToIno[path] = ino
	t.inoToPath[ino] = path
	t.generation[path]++
	return ino
}

// Generation reports how many times path has been allocated an ino in this
// mount's lifetime (1 on first allocation).
func (t *Table) Generation(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation[path]
}

// Forget drops path's entry, turning it into a tombstone: the ino is never
// handed out again, but a fresh lookup for the same path will mint a new one
// with an incremented generation. Called after a successful unlink/rmdir.
func (t *Table) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.pathToIno[path]
	if !ok {
		return
	}
	delete(t.pathToIno, path)
	delete(t.inoToPath, ino)
}

// Rename re-keys oldPath to newPath in both directions atomically. If
// newPath already had a live ino (the overwritten destination), that ino is
// dropped from the table; the caller is responsible for invalidating any
// cache entries keyed by it. If oldPath is not registered but newPath is
// (the rename was already applied), the table is left unchanged.
func (t *Table) Rename(oldPath, newPath string) (overwrittenIno fuseops.InodeID, overwritten bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ino, ok := t.pathToIno[oldPath]
	if !ok {
		if _, live := t.pathToIno[newPath]; live {
			return 0, false
		}
		// Nothing registered yet for the source; mint on demand so the
		// destination still resolves.
		ino = t.inoOfLocked(oldPath)
	}

	if existing, ok := t.pathToIno[newPath]; ok && existing != ino {
		overwrittenIno = existing
		overwritten = true
		delete(t.inoToPath, existing)
	}

	delete(t.pathToIno, oldPath)
	t.pathToIno[newPath] = ino
	t.inoToPath[ino] = newPath
	return overwrittenIno, overwritten
}

// Len reports the number of live path/ino pairs, for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pathToIno)
}
