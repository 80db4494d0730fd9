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

// Package fs is the Kernel-Protocol Adapter (C6): it implements
// fuseutil.FileSystem by translating each upcall into C1-C5/C7 calls and
// mapping the result back onto a FUSE op or a POSIX errno.
package fs

import (
	"bytes"
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/handle"
	"github.com/EmanuelePietroCometti/remotefs/internal/inode"
	"github.com/EmanuelePietroCometti/remotefs/internal/metrics"
	"github.com/EmanuelePietroCometti/remotefs/internal/pathutil"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
	"github.com/EmanuelePietroCometti/remotefs/internal/rfserrors"
)

// ServerConfig bundles everything NewServer needs to wire up the adapter,
// in the style of gcsfuse's own ServerConfig.
type ServerConfig struct {
	// A clock used for cache expiration. Tests inject a
	// *timeutil.SimulatedClock here.
	Clock timeutil.Clock

	// The remote client this mount talks to.
	Client *remote.Client

	// Cache TTLs. Zero-value Config fields disable caching for that kind.
	CacheConfig cache.Config

	// Uid/Gid to report for every inode; taken from the mounting process,
	// never from the wire (spec §3).
	Uid uint32
	Gid uint32

	// Metrics records cache hit/miss and remote call counters. Nil means
	// metrics are disabled for this mount.
	Metrics metrics.Recorder
}

// Dependencies exposes the cache and inode table a FileSystem was wired
// with, so a caller (the mount command) can hand the same instances to the
// change subscriber (C7) without NewServer needing to know about notify.
type Dependencies struct {
	Cache  *cache.Cache
	Inodes *inode.Table
}

// NewServer wires a FileSystem and wraps it as a fuse.Server, mirroring the
// shape of gcsfuse's fs.NewServer.
func NewServer(cfg *ServerConfig) (fuse.Server, Dependencies, error) {
	c := cache.New(cfg.Clock, cfg.CacheConfig)
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Noop()
	}
	c.SetRecorder(rec)
	cfg.Client.SetRecorder(rec)

	inodes := inode.New()
	fs := &FileSystem{
		clock:      cfg.Clock,
		client:     cfg.Client,
		cache:      c,
		inodes:     inodes,
		handles:    handle.NewTable(),
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
		uid:        cfg.Uid,
		gid:        cfg.Gid,
		attrTTL:    cfg.CacheConfig.AttrTTL,
	}
	return fuseutil.NewFileSystemServer(fs), Dependencies{Cache: c, Inodes: inodes}, nil
}

// FileSystem implements fuseutil.FileSystem. Every exported field of its
// dependencies (cache, inode table, handle table) is independently safe for
// concurrent use, so this type itself only needs to guard the directory
// handle map and the statfs cache.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock   timeutil.Clock
	client  *remote.Client
	cache   *cache.Cache
	inodes  *inode.Table
	handles *handle.Table

	uid, gid uint32
	attrTTL  time.Duration

	// GUARDED_BY(mu)
	mu            sync.Mutex
	dirHandles    map[fuseops.HandleID]*dirHandle
	nextDirHandle fuseops.HandleID

	// GUARDED_BY(statfsMu)
	statfsMu       sync.Mutex
	statfsCache    *remote.VolumeStats
	statfsDeadline time.Time
}

func (fs *FileSystem) Init(op *fuseops.InitOp) error {
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	parentPath, ok := fs.inodes.PathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}

	childPath, err := pathutil.Join(parentPath, op.Name)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "lookup", parentPath, err))
	}

	var ino fuseops.InodeID
	attr, ok := fs.cache.GetAttr(childPath)
	if !ok {
		dto, err := fs.client.Stat(op.Context(), childPath)
		if err != nil {
			return rfserrors.ToErrno(err)
		}
		ino = fs.inodes.InoOf(childPath)
		attr = attrFromDirent(ino, dto)
		fs.cache.PutAttr(childPath, attr)
	} else {
		ino = fs.inodes.InoOf(childPath)
	}

	exp := fs.clock.Now().Add(fs.attrTTL)
	op.Entry.Child = ino
	op.Entry.Attributes = toInodeAttributes(attr, fs.uid, fs.gid)
	op.Entry.AttributesExpiration = exp
	op.Entry.EntryExpiration = exp
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	var path string
	if op.Inode == inode.Root {
		path = pathutil.Root
	} else {
		var ok bool
		path, ok = fs.inodes.PathOf(op.Inode)
		if !ok {
			return syscall.ENOENT
		}
	}

	attr, ok := fs.cache.GetAttr(path)
	if !ok {
		if op.Inode == inode.Root {
			attr = syntheticRootAttr(fs.uid, fs.gid)
		} else {
			dto, err := fs.client.Stat(op.Context(), path)
			if err != nil {
				return rfserrors.ToErrno(err)
			}
			attr = attrFromDirent(op.Inode, dto)
		}
		fs.cache.PutAttr(path, attr)
	}

	op.Attributes = toInodeAttributes(attr, fs.uid, fs.gid)
	op.AttributesExpiration = fs.clock.Now().Add(fs.attrTTL)
	return nil
}

// SetInodeAttributes maps to remote chmod/truncate/utimes, in that order;
// uid/gid changes are accepted but ignored, per spec §4.1.
func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	path, ok := fs.inodes.PathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	ctx := op.Context()

	if op.Mode != nil {
		if err := fs.client.Chmod(ctx, path, uint32(op.Mode.Perm())); err != nil {
			return rfserrors.ToErrno(err)
		}
	}
	if op.Size != nil {
		if err := fs.client.Truncate(ctx, path, int64(*op.Size)); err != nil {
			return rfserrors.ToErrno(err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		var atimeS, mtimeS *int64
		if op.Atime != nil {
			v := op.Atime.Unix()
			atimeS = &v
		}
		if op.Mtime != nil {
			v := op.Mtime.Unix()
			mtimeS = &v
		}
		if err := fs.client.Utimes(ctx, path, atimeS, mtimeS); err != nil {
			return rfserrors.ToErrno(err)
		}
	}

	dto, err := fs.client.Stat(ctx, path)
	if err != nil {
		return rfserrors.ToErrno(err)
	}
	attr := attrFromDirent(op.Inode, dto)
	fs.cache.PutAttr(path, attr)

	op.Attributes = toInodeAttributes(attr, fs.uid, fs.gid)
	op.AttributesExpiration = fs.clock.Now().Add(fs.attrTTL)
	return nil
}

// ForgetInode is a no-op: path->ino bindings live for the lifetime of the
// mount (or until an unlink/rmdir tombstones them), independent of the
// kernel's dentry cache refcounting.
func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	return nil
}

func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) error {
	parentPath, ok := fs.inodes.PathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	childPath, err := pathutil.Join(parentPath, op.Name)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "mkdir", parentPath, err))
	}

	if err := fs.client.Mkdir(op.Context(), childPath); err != nil {
		return rfserrors.ToErrno(err)
	}

	ino := fs.inodes.InoOf(childPath)
	attr := cache.Attr{
		Ino:   uint64(ino),
		Kind:  cache.KindDir,
		Mode:  os.ModeDir | op.Mode.Perm(),
		Nlink: cache.DefaultNlink(cache.KindDir),
	}
	fs.cache.PutAttr(childPath, attr)
	fs.cache.InvalidateDir(parentPath)

	exp := fs.clock.Now().Add(fs.attrTTL)
	op.Entry.Child = ino
	op.Entry.Attributes = toInodeAttributes(attr, fs.uid, fs.gid)
	op.Entry.AttributesExpiration = exp
	op.Entry.EntryExpiration = exp
	return nil
}

// CreateFile issues a zero-length write to mint the remote file, then
// allocates an ino and a handle, per spec §4.1.
func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) error {
	parentPath, ok := fs.inodes.PathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	childPath, err := pathutil.Join(parentPath, op.Name)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "create", parentPath, err))
	}

	if _, err := fs.client.WriteAt(op.Context(), childPath, 0, bytes.NewReader(nil)); err != nil {
		return rfserrors.ToErrno(err)
	}

	ino := fs.inodes.InoOf(childPath)
	attr := cache.Attr{
		Ino:   uint64(ino),
		Kind:  cache.KindFile,
		Mode:  op.Mode.Perm(),
		Nlink: cache.DefaultNlink(cache.KindFile),
	}
	fs.cache.PutAttr(childPath, attr)
	fs.cache.InvalidateDir(parentPath)

	h := fs.handles.Open(ino, childPath, fs.client)

	exp := fs.clock.Now().Add(fs.attrTTL)
	op.Handle = fuseops.HandleID(h.FH)
	op.Entry.Child = ino
	op.Entry.Attributes = toInodeAttributes(attr, fs.uid, fs.gid)
	op.Entry.AttributesExpiration = exp
	op.Entry.EntryExpiration = exp
	return nil
}

func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) error {
	return fs.remove(op.Context(), op.Parent, op.Name)
}

func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) error {
	return fs.remove(op.Context(), op.Parent, op.Name)
}

func (fs *FileSystem) remove(ctx context.Context, parent fuseops.InodeID, name string) error {
	parentPath, ok := fs.inodes.PathOf(parent)
	if !ok {
		return syscall.ENOENT
	}
	childPath, err := pathutil.Join(parentPath, name)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "remove", parentPath, err))
	}

	if err := fs.client.Delete(ctx, childPath); err != nil {
		return rfserrors.ToErrno(err)
	}

	fs.inodes.Forget(childPath)
	fs.cache.InvalidateSubtree(childPath)
	fs.cache.InvalidateDir(parentPath)
	return nil
}

func (fs *FileSystem) Rename(op *fuseops.RenameOp) error {
	oldParentPath, ok := fs.inodes.PathOf(op.OldParent)
	if !ok {
		return syscall.ENOENT
	}
	newParentPath, ok := fs.inodes.PathOf(op.NewParent)
	if !ok {
		return syscall.ENOENT
	}

	oldPath, err := pathutil.Join(oldParentPath, op.OldName)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "rename", oldParentPath, err))
	}
	newPath, err := pathutil.Join(newParentPath, op.NewName)
	if err != nil {
		return rfserrors.ToErrno(rfserrors.New(rfserrors.InvalidArgument, "rename", newParentPath, err))
	}

	if err := fs.client.Rename(op.Context(), oldPath, newPath); err != nil {
		return rfserrors.ToErrno(err)
	}

	fs.inodes.Rename(oldPath, newPath)
	fs.cache.InvalidateSubtree(oldPath)
	fs.cache.InvalidateAttr(newPath)
	fs.cache.InvalidateDir(oldParentPath)
	fs.cache.InvalidateDir(newParentPath)
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	path, ok := fs.inodes.PathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	rows, err := fs.listRows(op.Context(), path)
	if err != nil {
		return rfserrors.ToErrno(err)
	}

	dh := newDirHandle(rows)
	dh.entries[0].Inode = op.Inode

	parentPath := pathutil.Root
	if !pathutil.IsRoot(path) {
		parentPath, _ = pathutil.Split(path)
	}
	dh.entries[1].Inode = fs.inodes.InoOf(parentPath)

	fs.mu.Lock()
	id := fs.nextDirHandle
	fs.nextDirHandle++
	fs.dirHandles[id] = dh
	fs.mu.Unlock()

	op.Handle = id
	return nil
}

// listRows returns the directory's children, preferring the cache and
// falling back to a remote list call, per spec §4.1.
func (fs *FileSystem) listRows(ctx context.Context, path string) ([]dirRow, error) {
	if entries, ok := fs.cache.GetDir(path); ok {
		return dirRowsFromCache(entries), nil
	}

	dtos, err := fs.client.List(ctx, path)
	if err != nil {
		return nil, err
	}

	entries := make([]cache.DirEntry, len(dtos))
	rows := make([]dirRow, len(dtos))
	for i, d := range dtos {
		childPath, err := pathutil.Normalize(d.Path)
		if err != nil {
			continue
		}
		ino := fs.inodes.InoOf(childPath)
		kind := cache.KindFile
		if d.IsDir {
			kind = cache.KindDir
		}

		entries[i] = cache.DirEntry{Name: d.Name, Kind: kind, Ino: uint64(ino)}
		rows[i] = dirRow{name: d.Name, isDir: d.IsDir, ino: ino}
		fs.cache.PutAttr(childPath, attrFromDirent(ino, d))
	}
	fs.cache.PutDir(path, entries)
	return rows, nil
}

func dirRowsFromCache(entries []cache.DirEntry) []dirRow {
	rows := make([]dirRow, len(entries))
	for i, e := range entries {
		rows[i] = dirRow{name: e.Name, isDir: e.Kind == cache.KindDir, ino: fuseops.InodeID(e.Ino)}
	}
	return rows
}

func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dh := fs.dirHandles[op.Handle]
	fs.mu.Unlock()

	if dh == nil {
		return syscall.EIO
	}
	dh.ReadDir(op)
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}

// OpenFile validates that the inode exists via getattr and allocates an
// open-file handle; no remote "open" call exists, per spec §4.1.
func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	path, ok := fs.inodes.PathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	attr, ok := fs.cache.GetAttr(path)
	if !ok {
		dto, err := fs.client.Stat(op.Context(), path)
		if err != nil {
			return rfserrors.ToErrno(err)
		}
		attr = attrFromDirent(op.Inode, dto)
		fs.cache.PutAttr(path, attr)
	}
	if attr.Kind == cache.KindDir {
		return syscall.EISDIR
	}

	h := fs.handles.Open(op.Inode, path, fs.client)
	op.Handle = fuseops.HandleID(h.FH)
	return nil
}

func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	h, err := fs.handles.Get(uint64(op.Handle))
	if err != nil {
		return syscall.EIO
	}

	n, err := h.ReadAt(op.Context(), op.Dst, op.Offset)
	if err != nil {
		return rfserrors.ToErrno(err)
	}
	op.BytesRead = n
	return nil
}

func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) error {
	h, err := fs.handles.Get(uint64(op.Handle))
	if err != nil {
		return syscall.EIO
	}

	if _, err := h.WriteAt(op.Context(), op.Data, op.Offset); err != nil {
		return rfserrors.ToErrno(err)
	}
	return nil
}

func (fs *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	h, err := fs.handles.Get(uint64(op.Handle))
	if err != nil {
		return syscall.EIO
	}

	releaseErr := fs.handles.Close(uint64(op.Handle))
	fs.invalidateForPath(h.Path)
	if releaseErr != nil {
		return rfserrors.ToErrno(releaseErr)
	}
	return nil
}

func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) error {
	h, err := fs.handles.Get(uint64(op.Handle))
	if err != nil {
		return syscall.EIO
	}

	if err := h.Flush(); err != nil {
		return rfserrors.ToErrno(err)
	}
	fs.invalidateForPath(h.Path)
	return nil
}

func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) error {
	h, err := fs.handles.Get(uint64(op.Handle))
	if err != nil {
		return syscall.EIO
	}

	if err := h.Flush(); err != nil {
		return rfserrors.ToErrno(err)
	}
	fs.invalidateForPath(h.Path)
	return nil
}

func (fs *FileSystem) invalidateForPath(path string) {
	fs.cache.InvalidateAttr(path)
	parent := pathutil.Root
	if !pathutil.IsRoot(path) {
		parent, _ = pathutil.Split(path)
	}
	fs.cache.InvalidateDir(parent)
}

// StatFS answers with the volume summary, cached for the attribute TTL.
func (fs *FileSystem) StatFS(op *fuseops.StatFSOp) error {
	fs.statfsMu.Lock()
	defer fs.statfsMu.Unlock()

	if fs.statfsCache == nil || !fs.clock.Now().Before(fs.statfsDeadline) {
		vs, err := fs.client.StatFS(op.Context())
		if err != nil {
			return rfserrors.ToErrno(err)
		}
		fs.statfsCache = &vs
		fs.statfsDeadline = fs.clock.Now().Add(fs.attrTTL)
	}

	op.BlockSize = fs.statfsCache.BlockSize
	op.Blocks = fs.statfsCache.Blocks
	op.BlocksFree = fs.statfsCache.BlocksFree
	op.BlocksAvailable = fs.statfsCache.BlocksAvailable
	op.Inodes = fs.statfsCache.Inodes
	op.InodesFree = fs.statfsCache.InodesFree
	return nil
}
