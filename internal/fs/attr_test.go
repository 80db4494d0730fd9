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
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

func TestAttrFromDirentFile(t *testing.T) {
	d := remote.DirentDTO{
		Path:        "./a/b",
		Name:        "b",
		IsDir:       false,
		Size:        1234,
		MtimeS:      1000,
		Permissions: 0644,
	}
	attr := attrFromDirent(fuseops.InodeID(7), d)

	assert.Equal(t, cache.KindFile, attr.Kind)
	assert.EqualValues(t, 1234, attr.Size)
	assert.Equal(t, os.FileMode(0644), attr.Mode)
	assert.EqualValues(t, 1000, attr.MtimeS)
	assert.EqualValues(t, 1000, attr.AtimeS)
	assert.EqualValues(t, cache.DefaultNlink(cache.KindFile), attr.Nlink)
}

func TestAttrFromDirentDirSetsModeDirBit(t *testing.T) {
	d := remote.DirentDTO{Path: "./a", Name: "a", IsDir: true, Permissions: 0755}
	attr := attrFromDirent(fuseops.InodeID(3), d)

	assert.Equal(t, cache.KindDir, attr.Kind)
	assert.True(t, attr.Mode&os.ModeDir != 0)
	assert.Equal(t, os.FileMode(0755), attr.Mode&0777)
}

func TestAttrFromDirentHonorsServerNlink(t *testing.T) {
	d := remote.DirentDTO{Path: "./a", Name: "a", IsDir: true, Nlink: 5, Permissions: 0700}
	attr := attrFromDirent(fuseops.InodeID(3), d)
	assert.EqualValues(t, 5, attr.Nlink)
}

func TestSyntheticRootAttr(t *testing.T) {
	attr := syntheticRootAttr(1000, 1000)
	assert.Equal(t, cache.KindDir, attr.Kind)
	assert.EqualValues(t, fuseops.RootInodeID, attr.Ino)
	assert.Equal(t, RootMode, attr.Mode&0777)
	assert.True(t, attr.Mode&os.ModeDir != 0)
	assert.EqualValues(t, 1000, attr.Uid)
}

func TestToInodeAttributesCopiesTimesAndOwner(t *testing.T) {
	attr := cache.Attr{
		Size: 42, Mode: 0644, Nlink: 1,
		MtimeS: 100, AtimeS: 200, CtimeS: 300,
	}
	ia := toInodeAttributes(attr, 501, 20)

	assert.EqualValues(t, 42, ia.Size)
	assert.EqualValues(t, 501, ia.Uid)
	assert.EqualValues(t, 20, ia.Gid)
	assert.EqualValues(t, 100, ia.Mtime.Unix())
	assert.EqualValues(t, 200, ia.Atime.Unix())
	assert.EqualValues(t, 300, ia.Ctime.Unix())
}
