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

package remote

// DirentDTO is one row of the JSON array returned by GET /list, per spec §6.
type DirentDTO struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Parent      string `json:"parent"`
	IsDir       bool   `json:"is_dir"`
	Size        int64  `json:"size"`
	MtimeS      int64  `json:"mtime"`
	Permissions uint32 `json:"permissions"`
	Nlink       uint32 `json:"nlink"`
	Version     int64  `json:"version"`
}

// WriteResponseDTO is the JSON body returned by a successful PUT /files.
type WriteResponseDTO struct {
	Message string `json:"message"`
	Written int64  `json:"written"`
}

// StatFSDTO is the JSON body returned by GET /stats. Every field is a
// decimal string on the wire (spec §6); parseStatFS converts it to the
// integers of VolumeStats.
type StatFSDTO struct {
	Bsize  string `json:"bsize"`
	Blocks string `json:"blocks"`
	Bfree  string `json:"bfree"`
	Bavail string `json:"bavail"`
	Files  string `json:"files"`
	Ffree  string `json:"ffree"`
}

// VolumeStats is the parsed, 64-bit-integer form of StatFSDTO.
type VolumeStats struct {
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Inodes          uint64
	InodesFree      uint64
}

// ChangeEventDTO is one event emitted on the push channel, per spec §4.6.
type ChangeEventDTO struct {
	Op      string     `json:"op"`
	Path    string     `json:"path"`
	OldPath string     `json:"oldPath,omitempty"`
	NewPath string     `json:"newPath,omitempty"`
	Attr    *DirentDTO `json:"attr,omitempty"`
}

// Change operation tags, per spec §4.6.
const (
	OpAdd       = "add"
	OpWrite     = "write"
	OpChange    = "change"
	OpAddDir    = "addDir"
	OpUnlink    = "unlink"
	OpUnlinkDir = "unlinkDir"
	OpRename    = "rename"
	OpRenameDir = "renameDir"
)
