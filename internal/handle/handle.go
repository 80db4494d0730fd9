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

// Package handle implements the Open-File Table (C5): per-fh state for a
// stateless read path and a stateful streaming write path.
//
// External synchronization of a single *Handle is provided by the handle
// itself; the Table that hands out fh values is independently safe for
// concurrent use.
package handle

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/EmanuelePietroCometti/remotefs/internal/remote"
)

// writer is the subset of *remote.Client a Handle needs; defined as an
// interface so tests can fake the upload without an HTTP server.
type writer interface {
	WriteAt(ctx context.Context, path string, offset int64, body io.Reader) (int64, error)
}

// reader is the subset of *remote.Client a Handle's (stateless) read path
// needs.
type reader interface {
	ReadRange(ctx context.Context, path string, start, endInclusive int64) (io.ReadCloser, error)
}

type streamResult struct {
	written int64
	err     error
}

// stream is one half-open streamed PUT: bytes written to pw flow to the
// server as the body of a single HTTP request running in its own goroutine.
type stream struct {
	startOffset int64
	pw          *io.PipeWriter
	done        chan streamResult
}

// Handle is one open file description, per spec §3 and §4.5.
//
// Operations on a single fh are serialized by mu, per spec §5: the kernel
// may dispatch overlapping write/flush/release upcalls for the same fh from
// different threads, and all of them touch stream/writeCursor/dirty/sticky.
// FH/Ino/Path are fixed at creation and read without holding mu.
type Handle struct {
	FH   uint64
	Ino  fuseops.InodeID
	Path string

	writer writer
	reader reader

	mu sync.Mutex

	writeCursor int64
	dirty       bool
	stream      *stream

	// sticky holds a mid-stream write failure until it is observed by the
	// next write, flush, fsync, or release call, per spec §7.
	sticky error

	destroyed bool
}

// New returns a handle for path/ino, addressable by fh.
func New(fh uint64, ino fuseops.InodeID, path string, client *remote.Client) *Handle {
	return &Handle{
		FH:     fh,
		Ino:    ino,
		Path:   path,
		writer: client,
		reader: client,
	}
}

// ReadAt serves a read. The read path is stateless: every call issues a
// fresh range request regardless of write state, per spec §4.5.
func (h *Handle) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.destroyed {
		panic("handle: ReadAt on destroyed handle")
	}
	end := offset + int64(len(buf)) - 1
	body, err := h.reader.ReadRange(ctx, h.Path, offset, end)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.ReadFull(body, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return n, err
}

// WriteAt serves a write. A sequential write (offset == current cursor) is
// appended to the open stream; any other offset finalizes the current
// stream (if one is open) and starts a new one at offset, per spec §4.5.
func (h *Handle) WriteAt(ctx context.Context, data []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		panic("handle: WriteAt on destroyed handle")
	}
	if h.sticky != nil {
		return 0, h.sticky
	}

	if h.stream == nil {
		h.startStream(offset)
	} else if offset != h.writeCursor {
		if err := h.finalizeStream(); err != nil {
			h.sticky = err
			return 0, err
		}
		h.startStream(offset)
	}

	n, werr := h.stream.pw.Write(data)
	if werr != nil {
		res := <-h.stream.done
		h.stream = nil
		h.sticky = fmt.Errorf("handle: write to %s at offset %d: %w", h.Path, offset, res.err)
		return 0, h.sticky
	}

	h.writeCursor += int64(n)
	h.dirty = true
	return n, nil
}

func (h *Handle) startStream(offset int64) {
	pr, pw := io.Pipe()
	done := make(chan streamResult, 1)
	h.stream = &stream{startOffset: offset, pw: pw, done: done}
	h.writeCursor = offset

	go func() {
		written, err := h.writer.WriteAt(context.Background(), h.Path, offset, pr)
		pr.CloseWithError(err)
		done <- streamResult{written: written, err: err}
	}()
}

// finalizeStream closes the write side of the current stream, if any, and
// waits for the server's response. It is a no-op if no stream is open.
func (h *Handle) finalizeStream() error {
	if h.stream == nil {
		return nil
	}
	s := h.stream
	h.stream = nil

	_ = s.pw.Close()
	res := <-s.done
	return res.err
}

// Flush finalizes any open write stream without closing the handle. Called
// on a kernel flush or fsync upcall.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked()
}

// flushLocked is Flush's body, split out so Release can finalize the stream
// and mark the handle destroyed under a single lock/unlock instead of
// calling back into Flush (which would deadlock on mu).
func (h *Handle) flushLocked() error {
	if h.sticky != nil {
		err := h.sticky
		h.sticky = nil
		return err
	}
	if err := h.finalizeStream(); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// Dirty reports whether the handle has unflushed writes.
func (h *Handle) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty || h.stream != nil
}

// Release finalizes any open stream and marks the handle unusable. Called
// on a kernel release upcall.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.flushLocked()
	h.destroyed = true
	return err
}
