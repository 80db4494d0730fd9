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

package handle

import (
	"fmt"
	"sync"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

// Table allocates monotonic fh values and tracks the live Handle behind
// each one. Multiple handles may be open on the same path at once; the
// Table does not deduplicate by path.
//
// GUARDED_BY(mu)
type Table struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
	next    uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		handles: make(map[uint64]*Handle),
		next:    1,
	}
}

// Open allocates a new handle for ino/path and registers it.
func (t *Table) Open(ino fuseops.InodeID, path string, client *remote.Client) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	fh := t.next
	t.next++

	h := New(fh, ino, path, client)
	t.handles[fh] = h
	return h
}

// Get returns the live handle for fh, or an error if it is not open.
func (t *Table) Get(fh uint64) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[fh]
	if !ok {
		return nil, fmt.Errorf("handle: no open handle with fh %d", fh)
	}
	return h, nil
}

// Close releases and forgets fh, returning the handle's Release error, if
// any. Closing an unknown fh is a programming error in the caller (the
// kernel never emits a release for an fh it wasn't given).
func (t *Table) Close(fh uint64) error {
	t.mu.Lock()
	h, ok := t.handles[fh]
	delete(t.handles, fh)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("handle: no open handle with fh %d", fh)
	}
	return h.Release()
}

// Len reports the number of open handles, for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
