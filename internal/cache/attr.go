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

package cache

import "os"

// Kind distinguishes the two inode kinds this system supports. Symlinks and
// other special files are out of scope (spec §1 Non-goals).
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Attr is the file-attribute record returned by getattr/lookup/setattr,
// mirrored from spec §3. Size and Mode are authoritative from the server;
// Uid/Gid come from the mounting process, never from the wire.
type Attr struct {
	Ino     uint64
	Kind    Kind
	Size    int64
	Mode    os.FileMode
	MtimeS  int64
	AtimeS  int64
	CtimeS  int64
	Nlink   uint32
	Uid     uint32
	Gid     uint32
}

// Blocks returns ceil(Size/512), the 512-byte block count st_blocks expects.
func (a Attr) Blocks() int64 {
	if a.Size <= 0 {
		return 0
	}
	return (a.Size + 511) / 512
}

// DefaultNlink returns the nlink value to use when the server omits the
// field (older servers; see spec §9 design notes): 1 for files, 2 for
// directories.
func DefaultNlink(kind Kind) uint32 {
	if kind == KindDir {
		return 2
	}
	return 1
}

// DirEntry is one row of a directory listing: (name, kind, ino).
type DirEntry struct {
	Name string
	Kind Kind
	Ino  uint64
}
