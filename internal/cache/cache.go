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

// Package cache implements the TTL-keyed attribute and directory-listing
// cache described in spec §4.3. It is the only component permitted to
// mutate its own entries; every other component reaches it through the
// methods below.
package cache

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/EmanuelePietroCometti/remotefs/internal/metrics"
	"github.com/jacobsa/timeutil"
)

const shardCount = 16

// Config bundles the two default TTLs from spec §3. A zero TTL disables
// caching for that entry kind outright (every access is treated as a miss).
type Config struct {
	AttrTTL time.Duration
	DirTTL  time.Duration
}

// DefaultConfig matches the recommendation in spec §3.
func DefaultConfig() Config {
	return Config{
		AttrTTL: 2 * time.Second,
		DirTTL:  1 * time.Second,
	}
}

type attrEntry struct {
	attr     Attr
	deadline time.Time
}

type dirEntry struct {
	entries  []DirEntry
	deadline time.Time
}

type shard struct {
	mu    sync.Mutex
	attrs map[string]attrEntry
	dirs  map[string]dirEntry
}

// Cache is a sharded, per-entry-TTL store of Attr and directory-listing
// results, keyed by canonical path. All mutations are ordered per shard; two
// different paths may be mutated concurrently if they land in different
// shards.
type Cache struct {
	clock   timeutil.Clock
	cfg     Config
	metrics metrics.Recorder
	shards  [shardCount]*shard
}

// New returns an empty cache using clock for deadlines. Hit/miss counts are
// discarded; use SetRecorder to wire a Recorder in.
func New(clock timeutil.Clock, cfg Config) *Cache {
	c := &Cache{clock: clock, cfg: cfg, metrics: metrics.Noop()}
	for i := range c.shards {
		c.shards[i] = &shard{
			attrs: make(map[string]attrEntry),
			dirs:  make(map[string]dirEntry),
		}
	}
	return c
}

// SetRecorder wires r in for cache hit/miss counts. Not safe to call
// concurrently with cache lookups.
func (c *Cache) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.Noop()
	}
	c.metrics = r
}

func (c *Cache) shardFor(path string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return c.shards[h.Sum32()%shardCount]
}

// GetAttr returns the cached Attr for path if present and not yet expired.
func (c *Cache) GetAttr(path string) (Attr, bool) {
	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.attrs[path]
	if !ok || !c.clock.Now().Before(e.deadline) {
		c.metrics.CacheMiss("attr")
		return Attr{}, false
	}
	c.metrics.CacheHit("attr")
	return e.attr, true
}

// PutAttr inserts or replaces the Attr for path, valid for the configured
// attribute TTL from now.
func (c *Cache) PutAttr(path string, attr Attr) {
	if c.cfg.AttrTTL <= 0 {
		return
	}
	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[path] = attrEntry{attr: attr, deadline: c.clock.Now().Add(c.cfg.AttrTTL)}
}

// InvalidateAttr drops the cached Attr for path, if any.
func (c *Cache) InvalidateAttr(path string) {
	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, path)
}

// GetDir returns the cached directory listing for path if present and not
// yet expired.
func (c *Cache) GetDir(path string) ([]DirEntry, bool) {
	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dirs[path]
	if !ok || !c.clock.Now().Before(e.deadline) {
		c.metrics.CacheMiss("dir")
		return nil, false
	}
	c.metrics.CacheHit("dir")
	return e.entries, true
}

// PutDir inserts or replaces the directory listing for path, valid for the
// configured directory TTL from now. The slice is copied so later mutation
// by the caller cannot corrupt the cached copy.
func (c *Cache) PutDir(path string, entries []DirEntry) {
	if c.cfg.DirTTL <= 0 {
		return
	}
	cp := make([]DirEntry, len(entries))
	copy(cp, entries)

	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path] = dirEntry{entries: cp, deadline: c.clock.Now().Add(c.cfg.DirTTL)}
}

// InvalidateDir drops the cached listing for path, if any.
func (c *Cache) InvalidateDir(path string) {
	s := c.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, path)
}

// InvalidateSubtree drops every attr and dir entry whose path equals root or
// lies beneath it (prefix match on path components). Used after rmdir and
// rename, where a whole subtree's cache entries must be dropped atomically
// from the kernel's point of view.
func (c *Cache) InvalidateSubtree(root string) {
	prefix := root
	if prefix != "." {
		prefix += "/"
	}

	for _, s := range c.shards {
		s.mu.Lock()
		for p := range s.attrs {
			if p == root || strings.HasPrefix(p, prefix) {
				delete(s.attrs, p)
			}
		}
		for p := range s.dirs {
			if p == root || strings.HasPrefix(p, prefix) {
				delete(s.dirs, p)
			}
		}
		s.mu.Unlock()
	}
}
