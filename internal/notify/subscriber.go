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

// Package notify implements the Change Subscriber (C7): a long-lived
// consumer of the server's push channel that keeps the Attribute & Dirent
// Cache and Inode Table fresh without the client ever polling for changes.
//
// The wire contract (spec §6) describes the push channel only as "a
// bidirectional socket on the same origin"; it does not pin a transport. No
// WebSocket/SSE client is wired in elsewhere in this module, so the
// subscriber consumes a long-lived GET whose response body is newline-
// delimited JSON events, the same shape gcsfuse's own background watchers
// (fs/garbage_collect.go) use for a cancellable long-running goroutine
// started alongside the server.
package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jpillora/backoff"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/pathutil"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

// Config controls reconnect backoff and the unlink/add rename-correlation
// window, per spec §4.6 and §9.
type Config struct {
	// ReconnectMin/ReconnectMax bound the exponential backoff applied
	// between reconnect attempts after a transport failure.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// RenameWindow is how long a pending unlink waits for a correlating add
	// before it is applied as a genuine delete, per spec §4.6's "~200 ms
	// window".
	RenameWindow time.Duration
}

// DefaultConfig matches the values named in spec §4.6/§9.
func DefaultConfig() Config {
	return Config{
		ReconnectMin: 200 * time.Millisecond,
		ReconnectMax: 30 * time.Second,
		RenameWindow: 200 * time.Millisecond,
	}
}

// cacheInvalidator is the subset of *cache.Cache the subscriber needs to
// apply an event; an interface so tests can substitute a fake.
type cacheInvalidator interface {
	InvalidateAttr(path string)
	InvalidateDir(path string)
	InvalidateSubtree(path string)
	PutAttr(path string, attr cache.Attr)
}

// inodeTable is the subset of *inode.Table the subscriber needs.
type inodeTable interface {
	Forget(path string)
	Rename(oldPath, newPath string) (overwrittenIno fuseops.InodeID, overwritten bool)
}

// pendingUnlink is an unlink/unlinkDir event the subscriber is holding back
// for RenameWindow, waiting to see whether a correlating add arrives.
type pendingUnlink struct {
	path  string
	timer *time.Timer
}

// Subscriber consumes the push channel and applies each event to the cache
// and inode table, per spec §4.6.
type Subscriber struct {
	baseURL *url.URL
	http    *http.Client
	cache   cacheInvalidator
	inodes  inodeTable
	cfg     Config
	log     *slog.Logger

	mu      sync.Mutex
	pending *pendingUnlink

	// onConnect is invoked once a connection attempt reaches a 200
	// response, so Run can reset its backoff; nil outside of Run.
	onConnect func()
}

// New returns a Subscriber that will connect to baseURL (the same origin
// internal/remote.Client talks to) once Run is called.
func New(baseURL string, cache cacheInvalidator, inodes inodeTable, cfg Config, log *slog.Logger) (*Subscriber, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("notify: parsing base URL: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		baseURL: u,
		http:    &http.Client{}, // no per-request timeout: this is a long-lived stream
		cache:   cache,
		inodes:  inodes,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run connects to the push channel and processes events until ctx is
// cancelled, reconnecting with exponential backoff on transport failure. It
// never performs a full resync on reconnect; the cache's TTL bounds the
// staleness window during an outage, per spec §4.6.
func (s *Subscriber) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    s.cfg.ReconnectMin,
		Max:    s.cfg.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}
	s.onConnect = b.Reset

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := b.Duration()
		if err != nil {
			s.log.Warn("notify: push channel disconnected", "error", err, "backoff", wait)
		} else {
			// The connection was accepted and then closed cleanly; still
			// back off so a misbehaving server can't spin us in a tight
			// reconnect loop.
			s.log.Warn("notify: push channel closed, reconnecting", "backoff", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connectAndConsume opens one long-lived GET and streams events from it
// until the connection breaks or ctx is cancelled.
func (s *Subscriber) connectAndConsume(ctx context.Context) error {
	u := *s.baseURL
	u.Path = "/changes"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: push channel returned status %d", resp.StatusCode)
	}
	if s.onConnect != nil {
		s.onConnect()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev remote.ChangeEventDTO
		if err := json.Unmarshal(line, &ev); err != nil {
			s.log.Warn("notify: discarding malformed event", "error", err)
			continue
		}
		s.handle(ev)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return fmt.Errorf("notify: push channel closed")
}

// handle applies one event. It is idempotent: applying the same event
// twice (an explicit rename and its unlink/add echo, or a redelivered
// event after reconnect) leaves the cache and inode table in the same
// state as applying it once, per spec §4.6.
func (s *Subscriber) handle(ev remote.ChangeEventDTO) {
	switch ev.Op {
	case remote.OpAdd, remote.OpWrite, remote.OpChange:
		s.handleAddOrChange(ev)
	case remote.OpAddDir:
		s.invalidateParentDirent(ev.Path)
	case remote.OpUnlink, remote.OpUnlinkDir:
		s.handleUnlink(ev.Path)
	case remote.OpRename, remote.OpRenameDir:
		s.applyRename(ev.OldPath, ev.NewPath)
	default:
		s.log.Warn("notify: unknown event op", "op", ev.Op)
	}
}

func (s *Subscriber) handleAddOrChange(ev remote.ChangeEventDTO) {
	path, err := pathutil.Normalize(ev.Path)
	if err != nil {
		return
	}

	// An add may be the second half of an unlink/add rename pair the
	// server emits instead of an explicit rename event.
	if ev.Op == remote.OpAdd {
		if old, ok := s.popPendingUnlink(); ok && old != path {
			s.applyRename(old, path)
			return
		}
	}

	s.cache.InvalidateAttr(path)
	s.invalidateParentDirent(path)
	if ev.Attr != nil {
		ino := fuseops.InodeID(0)
		s.cache.PutAttr(path, attrFromDTO(ino, *ev.Attr))
	}
}

func (s *Subscriber) handleUnlink(rawPath string) {
	path, err := pathutil.Normalize(rawPath)
	if err != nil {
		return
	}

	s.mu.Lock()
	var superseded string
	var hadSuperseded bool
	if s.pending != nil {
		s.pending.timer.Stop()
		superseded, hadSuperseded = s.pending.path, true
	}
	timer := time.AfterFunc(s.cfg.RenameWindow, func() {
		s.mu.Lock()
		if s.pending == nil || s.pending.path != path {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.mu.Unlock()
		s.applyUnlink(path)
	})
	s.pending = &pendingUnlink{path: path, timer: timer}
	s.mu.Unlock()

	// A second unlink arriving before the first's window elapsed means the
	// first was never paired with an add; it's a genuine delete.
	if hadSuperseded {
		s.applyUnlink(superseded)
	}
}

// popPendingUnlink returns and clears the pending unlink, if any, stopping
// its timer so it cannot also fire as a genuine delete.
func (s *Subscriber) popPendingUnlink() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	s.pending.timer.Stop()
	path := s.pending.path
	s.pending = nil
	return path, true
}

func (s *Subscriber) applyUnlink(path string) {
	s.cache.InvalidateSubtree(path)
	s.inodes.Forget(path)
	s.invalidateParentDirent(path)
}

func (s *Subscriber) applyRename(rawOld, rawNew string) {
	oldPath, err := pathutil.Normalize(rawOld)
	if err != nil {
		return
	}
	newPath, err := pathutil.Normalize(rawNew)
	if err != nil {
		return
	}

	s.inodes.Rename(oldPath, newPath)
	s.cache.InvalidateSubtree(oldPath)
	s.cache.InvalidateAttr(newPath)
	s.invalidateParentDirent(oldPath)
	s.invalidateParentDirent(newPath)
}

func (s *Subscriber) invalidateParentDirent(path string) {
	if pathutil.IsRoot(path) {
		s.cache.InvalidateDir(pathutil.Root)
		return
	}
	parent, _ := pathutil.Split(path)
	s.cache.InvalidateDir(parent)
}

// attrFromDTO mirrors internal/fs.attrFromDirent without importing the fs
// package (which would create an import cycle, since fs will one day also
// depend on notify's Config). Kept deliberately small.
func attrFromDTO(ino fuseops.InodeID, d remote.DirentDTO) cache.Attr {
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
