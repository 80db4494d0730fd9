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
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

// RootMode is the permission bits synthesized for the mount root, per
// spec §4.1.
const RootMode = os.FileMode(0755)

// attrFromDirent converts one wire row into the cache's Attr shape. ino must
// already be allocated in the Inode Table.
func attrFromDirent(ino fuseops.InodeID, d remote.DirentDTO) cache.Attr {
	kind := cache.KindFile
	if d.IsDir {
		kind = cache.KindDir
	}

	nlink := d.Nlink
	if nlink == 0 {
		nlink = cache.DefaultNlink(kind)
	}

	mode := os.FileMode(d.Permissions & 0777)
	if kind == cache.KindDir {
		mode |= os.ModeDir
	}

	return cache.Attr{
		Ino:    uint64(ino),
		Kind:   kind,
		Size:   d.Size,
		Mode:   mode,
		MtimeS: d.MtimeS,
		AtimeS: d.MtimeS,
		CtimeS: d.MtimeS,
		Nlink:  nlink,
	}
}

// syntheticRootAttr returns the Attr used to answer getattr(1) without a
// round trip, per spec §4.1.
func syntheticRootAttr(uid, gid uint32) cache.Attr {
	return cache.Attr{
		Ino:   uint64(fuseops.RootInodeID),
		Kind:  cache.KindDir,
		Mode:  os.ModeDir | RootMode,
		Nlink: cache.DefaultNlink(cache.KindDir),
		Uid:   uid,
		Gid:   gid,
	}
}

// toInodeAttributes renders an internal Attr as the struct FUSE wants back,
// filling in uid/gid from the mounting process (spec §3: "not remote").
func toInodeAttributes(a cache.Attr, uid, gid uint32) fuseops.InodeAttributes {
	mtime := time.Unix(a.MtimeS, 0)
	atime := time.Unix(a.AtimeS, 0)
	ctime := time.Unix(a.CtimeS, 0)

	return fuseops.InodeAttributes{
		Size:   uint64(a.Size),
		Nlink:  a.Nlink,
		Mode:   a.Mode,
		Atime:  atime,
		Mtime:  mtime,
		Ctime:  ctime,
		Uid:    uid,
		Gid:    gid,
	}
}
