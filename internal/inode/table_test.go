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

package inode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelePietroCometti/remotefs/internal/inode"
	"github.com/EmanuelePietroCometti/remotefs/internal/pathutil"
)

func TestRootIsPreregistered(t *testing.T) {
	tbl := inode.New()

	p, ok := tbl.PathOf(inode.Root)
	require.True(t, ok)
	assert.Equal(t, pathutil.Root, p)
	assert.Equal(t, inode.Root, tbl.InoOf(pathutil.Root))
	assert.EqualValues(t, 1, tbl.Generation(pathutil.Root))
}

func TestInoOfAllocatesOnce(t *testing.T) {
	tbl := inode.New()

	a := tbl.InoOf("./foo")
	b := tbl.InoOf("./foo")
	assert.Equal(t, a, b)
	assert.NotEqual(t, inode.Root, a)
}

func TestInoOfDistinctPathsGetDistinctInos(t *testing.T) {
	tbl := inode.New()

	a := tbl.InoOf("./foo")
	b := tbl.InoOf("./bar")
	assert.NotEqual(t, a, b)
}

func TestForgetThenRelookupMintsNewGeneration(t *testing.T) {
	tbl := inode.New()

	first := tbl.InoOf("./foo")
	tbl.Forget("./foo")

	_, ok := tbl.PathOf(first)
	assert.False(t, ok)

	second := tbl.InoOf("./foo")
	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, tbl.Generation("./foo"))
}

func TestForgetUnknownPathIsNoop(t *testing.T) {
	tbl := inode.New()
	tbl.Forget("./never-seen")
	assert.Equal(t, 1, tbl.Len())
}

func TestRenameRekeysBothDirections(t *testing.T) {
	tbl := inode.New()
	ino := tbl.InoOf("./old")

	overwritten, ok := tbl.Rename("./old", "./new")
	assert.False(t, ok)
	assert.Zero(t, overwritten)

	p, found := tbl.PathOf(ino)
	require.True(t, found)
	assert.Equal(t, "./new", p)
	assert.Equal(t, ino, tbl.InoOf("./new"))
}

func TestRenameOverOverwritesDestination(t *testing.T) {
	tbl := inode.New()
	srcIno := tbl.InoOf("./src")
	dstIno := tbl.InoOf("./dst")

	overwritten, ok := tbl.Rename("./src", "./dst")
	require.True(t, ok)
	assert.Equal(t, dstIno, overwritten)

	_, found := tbl.PathOf(dstIno)
	assert.False(t, found)
	assert.Equal(t, srcIno, tbl.InoOf("./dst"))
}

func TestRenameOfUnseenSourceMintsInoForDestination(t *testing.T) {
	tbl := inode.New()

	_, ok := tbl.Rename("./never-looked-up", "./dst")
	assert.False(t, ok)

	p, found := tbl.PathOf(tbl.InoOf("./dst"))
	require.True(t, found)
	assert.Equal(t, "./dst", p)
}
