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

// Tests in this file exercise FileSystem's unexported helpers directly with
// a plain context.Context, rather than going through fuseops.*Op. Building a
// *fuseops.XxxOp with a working Context() requires the FUSE connection
// machinery that constructs them for a real op dispatch; jacobsa/fuse does
// not expose a way to fabricate one outside of a real mount, which is also
// why gcsfuse's own fs package tests drive FileSystem through a mounted
// directory (see fstesting) rather than unit-calling its methods.
package fs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/handle"
	"github.com/EmanuelePietroCometti/remotefs/internal/inode"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

func newTestFileSystem(t *testing.T, mux *http.ServeMux) (*FileSystem, func()) {
	t.Helper()
	srv := httptest.NewServer(mux)

	client, err := remote.New(srv.URL, remote.DefaultConfig())
	require.NoError(t, err)

	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	f := &FileSystem{
		clock:      clock,
		client:     client,
		cache:      cache.New(clock, cache.DefaultConfig()),
		inodes:     inode.New(),
		handles:    handle.NewTable(),
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
	}
	return f, srv.Close
}

func TestListRowsFetchesAndCachesOnMiss(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]remote.DirentDTO{
			{Path: "./docs", Name: "docs", IsDir: true, Permissions: 0755},
			{Path: "./readme.txt", Name: "readme.txt", IsDir: false, Size: 10, Permissions: 0644},
		})
	})
	f, closeFn := newTestFileSystem(t, mux)
	defer closeFn()

	rows, err := f.listRows(context.Background(), "./proj")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 1, calls)

	// Second call within the dir TTL must be served from cache, not the
	// remote server.
	rows2, err := f.listRows(context.Background(), "./proj")
	require.NoError(t, err)
	require.Len(t, rows2, 2)
	require.Equal(t, 1, calls)
}

func TestRemoveInvalidatesInodeAndCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "unexpected", http.StatusBadRequest)
	})
	f, closeFn := newTestFileSystem(t, mux)
	defer closeFn()

	const parentPath = "./dir"
	parentIno := f.inodes.InoOf(parentPath)
	f.cache.PutAttr("./dir/file.txt", cache.Attr{Ino: 99, Kind: cache.KindFile})

	err := f.remove(context.Background(), parentIno, "file.txt")
	require.NoError(t, err)

	_, ok := f.cache.GetAttr("./dir/file.txt")
	require.False(t, ok)
	_, ok = f.inodes.PathOf(fuseops.InodeID(99))
	require.False(t, ok)
}

func TestInvalidateForPathDropsParentListing(t *testing.T) {
	mux := http.NewServeMux()
	f, closeFn := newTestFileSystem(t, mux)
	defer closeFn()

	f.cache.PutAttr("./a/b.txt", cache.Attr{Ino: 5})
	f.cache.PutDir("./a", []cache.DirEntry{{Name: "b.txt", Ino: 5}})

	f.invalidateForPath("./a/b.txt")

	_, ok := f.cache.GetAttr("./a/b.txt")
	require.False(t, ok)
	_, ok = f.cache.GetDir("./a")
	require.False(t, ok)
}
