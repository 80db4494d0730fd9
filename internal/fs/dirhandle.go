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

package fs

import (
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dirHandle buffers one directory's full listing (synthetic "." and ".."
// prepended) for the lifetime of an OpenDir/ReadDir/ReleaseDirHandle cycle.
// Unlike the GCS listing API this component was modeled on, the remote
// service has no continuation token: the whole listing is fetched once, up
// front, and ReadDir only paginates it by the kernel-supplied byte budget.
//
// GUARDED_BY(mu)
type dirHandle struct {
	mu      sync.Mutex
	entries []fuseops.Dirent
}

func newDirHandle(entries []dirRow) *dirHandle {
	dh := &dirHandle{
		entries: make([]fuseops.Dirent, 0, len(entries)+2),
	}

	var offset fuseops.DirOffset = 1
	dh.entries = append(dh.entries, fuseops.Dirent{
		Offset: offset,
		Inode:  0, // filled by caller once "." and ".." inos are known
		Name:   ".",
		Type:   fuseops.DT_Directory,
	})
	offset++
	dh.entries = append(dh.entries, fuseops.Dirent{
		Offset: offset,
		Name:   "..",
		Type:   fuseops.DT_Directory,
	})
	offset++

	for _, e := range entries {
		typ := fuseops.DT_File
		if e.isDir {
			typ = fuseops.DT_Directory
		}
		dh.entries = append(dh.entries, fuseops.Dirent{
			Offset: offset,
			Inode:  e.ino,
			Name:   e.name,
			Type:   typ,
		})
		offset++
	}

	return dh
}

// dirRow is the minimal shape ReadDir needs per child; kept separate from
// cache.DirEntry so this package isn't forced to import the cache package's
// Kind type into fuseops' DirentType space.
type dirRow struct {
	name  string
	isDir bool
	ino   fuseops.InodeID
}

// ReadDir serves one ReadDirOp by copying as many buffered entries as fit
// into op.Dst, starting at op.Offset.
func (dh *dirHandle) ReadDir(op *fuseops.ReadDirOp) {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	index := int(op.Offset)
	if index < 0 || index > len(dh.entries) {
		return
	}

	for i := index; i < len(dh.entries); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dh.entries[i])
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
}
