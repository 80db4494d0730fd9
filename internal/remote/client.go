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

// Package remote is the HTTP client for the remote metadata-and-bytes
// service (C2). It owns retry/backoff for idempotent calls and streams file
// bodies in both directions without buffering them whole in memory.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/EmanuelePietroCometti/remotefs/internal/metrics"
	"github.com/EmanuelePietroCometti/remotefs/internal/rfserrors"
)

// requestIDHeader carries a per-call correlation id on every attempt of a
// request, including retries, so the server's access log can be joined back
// to a single logical call even when it was retried.
const requestIDHeader = "X-Request-Id"

// Config controls the client's retry behavior, per spec §4.2.
type Config struct {
	// MaxAttempts bounds how many times an idempotent request is tried in
	// total (the first attempt plus retries). Default 3.
	MaxAttempts int

	// MaxElapsed caps the total wall-clock time spent retrying a single
	// call. Default 10s.
	MaxElapsed time.Duration

	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration
}

// DefaultConfig matches the defaults named in spec §4.2.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		MaxElapsed:     10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client talks to one remote-filesystem server over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cfg     Config
	metrics metrics.Recorder
}

// New returns a client rooted at baseURL (e.g. "http://10.0.0.5:8080").
func New(baseURL string, cfg Config) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parsing base URL: %w", err)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		metrics: metrics.Noop(),
	}, nil
}

// SetRecorder wires r in for remote call latency/error/retry counts. Not
// safe to call concurrently with in-flight requests.
func (c *Client) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.Noop()
	}
	c.metrics = r
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = path
	u.RawQuery = query.Encode()
	return u.String()
}

// retryableBackoff returns a fresh backoff with jitter, per spec §4.2.
func (c *Client) retryableBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// doIdempotent performs req, retrying transport errors and 5xx responses
// with exponential backoff, up to MaxAttempts or MaxElapsed, whichever
// comes first. newReq builds a fresh request for each attempt, since an
// *http.Request's body cannot be replayed once read.
func (c *Client) doIdempotent(ctx context.Context, op, path string, newReq func() (*http.Request, error)) (*http.Response, error) {
	b := c.retryableBackoff()
	deadline := time.Now().Add(c.cfg.MaxElapsed)
	start := time.Now()
	reqID := uuid.New().String()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.Retry(op)
		}

		req, err := newReq()
		if err != nil {
			c.metrics.RemoteCall(op, time.Since(start), err)
			return nil, rfserrors.New(rfserrors.InvalidArgument, op, path, err)
		}
		req.Header.Set(requestIDHeader, reqID)

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				c.metrics.RemoteCall(op, time.Since(start), ctx.Err())
				return nil, rfserrors.New(rfserrors.Canceled, op, path, ctx.Err())
			}
			lastErr = err
		} else if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		} else if resp.StatusCode >= 400 {
			err := statusToError(op, path, resp)
			c.metrics.RemoteCall(op, time.Since(start), err)
			return nil, err
		} else {
			c.metrics.RemoteCall(op, time.Since(start), nil)
			return resp, nil
		}

		if attempt == c.cfg.MaxAttempts || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			c.metrics.RemoteCall(op, time.Since(start), ctx.Err())
			return nil, rfserrors.New(rfserrors.Canceled, op, path, ctx.Err())
		case <-time.After(b.Duration()):
		}
	}
	err := rfserrors.New(rfserrors.Transport, op, path, lastErr)
	c.metrics.RemoteCall(op, time.Since(start), err)
	return nil, err
}

// statusToError classifies a non-5xx, non-2xx response into the client's
// error taxonomy and drains+closes the body.
func statusToError(op, path string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return rfserrors.New(rfserrors.NotFound, op, path, cause)
	case http.StatusConflict:
		return rfserrors.New(rfserrors.AlreadyExists, op, path, cause)
	case http.StatusForbidden, http.StatusUnauthorized:
		return rfserrors.New(rfserrors.PermissionDenied, op, path, cause)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return rfserrors.New(rfserrors.InvalidArgument, op, path, cause)
	case http.StatusRequestEntityTooLarge:
		return rfserrors.New(rfserrors.TooLarge, op, path, cause)
	default:
		return rfserrors.New(rfserrors.Transport, op, path, cause)
	}
}

// List returns the directory entries for path. GET is idempotent, so the
// call is retried per the configured policy.
func (c *Client) List(ctx context.Context, path string) ([]DirentDTO, error) {
	resp, err := c.doIdempotent(ctx, "list", path, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.url("/list", url.Values{"relPath": {path}}), nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dtos []DirentDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, rfserrors.New(rfserrors.Transport, "list", path, err)
	}
	return dtos, nil
}

// Stat returns the metadata row for a single path. GET /list/updatedMetadata
// returns 404 if the path is not tracked by the server.
func (c *Client) Stat(ctx context.Context, path string) (DirentDTO, error) {
	resp, err := c.doIdempotent(ctx, "stat", path, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.url("/list/updatedMetadata", url.Values{"relPath": {path}}), nil)
	})
	if err != nil {
		return DirentDTO{}, err
	}
	defer resp.Body.Close()

	var dto DirentDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return DirentDTO{}, rfserrors.New(rfserrors.Transport, "stat", path, err)
	}
	return dto, nil
}

// StatFS returns the volume summary used to answer a kernel statfs call.
func (c *Client) StatFS(ctx context.Context) (VolumeStats, error) {
	resp, err := c.doIdempotent(ctx, "statfs", "", func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.url("/stats", nil), nil)
	})
	if err != nil {
		return VolumeStats{}, err
	}
	defer resp.Body.Close()

	var dto StatFSDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return VolumeStats{}, rfserrors.New(rfserrors.Transport, "statfs", "", err)
	}
	return parseStatFS(dto)
}

func parseStatFS(dto StatFSDTO) (VolumeStats, error) {
	var vs VolumeStats

	parse := func(field, s string) (uint64, error) {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, rfserrors.New(rfserrors.Transport, "statfs", "", fmt.Errorf("parsing %s=%q: %w", field, s, err))
		}
		return n, nil
	}

	bsize, err := parse("bsize", dto.Bsize)
	if err != nil {
		return VolumeStats{}, err
	}
	vs.BlockSize = uint32(bsize)

	for _, f := range []struct {
		name string
		src  string
		dst  *uint64
	}{
		{"blocks", dto.Blocks, &vs.Blocks},
		{"bfree", dto.Bfree, &vs.BlocksFree},
		{"bavail", dto.Bavail, &vs.BlocksAvailable},
		{"files", dto.Files, &vs.Inodes},
		{"ffree", dto.Ffree, &vs.InodesFree},
	} {
		n, err := parse(f.name, f.src)
		if err != nil {
			return VolumeStats{}, err
		}
		*f.dst = n
	}
	return vs, nil
}

// ReadRange returns a lazy stream of the bytes [start, endInclusive] of
// path. The caller must Close the returned ReadCloser. Uses a Range header
// so the server can respond 206 without materializing the whole file.
func (c *Client) ReadRange(ctx context.Context, path string, start, endInclusive int64) (io.ReadCloser, error) {
	resp, err := c.doIdempotent(ctx, "read_range", path, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.url("/files", url.Values{"relPath": {path}}), nil)
		if err != nil {
			return nil, err
		}
		if endInclusive >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, endInclusive))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// WriteAt streams body to the server starting at offset, returning the
// number of bytes the server reports it wrote. Once any byte of body has
// reached the transport it is NOT retried: a partially sent streamed write
// cannot be safely replayed (spec §4.2). The one exception is a connect
// failure before the first byte leaves this process — nothing reached the
// server, so that attempt is retried exactly like an idempotent call.
func (c *Client) WriteAt(ctx context.Context, path string, offset int64, body io.Reader) (int64, error) {
	start := time.Now()
	written, err := c.writeAt(ctx, path, offset, body)
	c.metrics.RemoteCall("write_at", time.Since(start), err)
	return written, err
}

// countingReader tracks how many bytes have been read from the underlying
// body, so writeAt can tell a clean connect failure (zero bytes sent) apart
// from a mid-stream failure (which must not be retried).
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *Client) writeAt(ctx context.Context, path string, offset int64, body io.Reader) (int64, error) {
	cr := &countingReader{r: body}
	b := c.retryableBackoff()
	deadline := time.Now().Add(c.cfg.MaxElapsed)
	reqID := uuid.New().String()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.url("/files", url.Values{"relPath": {path}, "offset": {strconv.FormatInt(offset, 10)}}), cr)
		if err != nil {
			return 0, rfserrors.New(rfserrors.InvalidArgument, "write_at", path, err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set(requestIDHeader, reqID)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, rfserrors.New(rfserrors.Canceled, "write_at", path, ctx.Err())
			}
			if cr.n == 0 && attempt < c.cfg.MaxAttempts && time.Now().Before(deadline) {
				c.metrics.Retry("write_at")
				select {
				case <-ctx.Done():
					return 0, rfserrors.New(rfserrors.Canceled, "write_at", path, ctx.Err())
				case <-time.After(b.Duration()):
				}
				continue
			}
			return 0, rfserrors.New(rfserrors.Transport, "write_at", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return 0, statusToError("write_at", path, resp)
		}

		var wr WriteResponseDTO
		if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
			return 0, rfserrors.New(rfserrors.Transport, "write_at", path, err)
		}
		return wr.Written, nil
	}
}

// Delete removes a file, or recursively removes a directory.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.doIdempotent(ctx, "delete", path, func() (*http.Request, error) {
		return http.NewRequest(http.MethodDelete, c.url("/files", url.Values{"relPath": {path}}), nil)
	})
	if err != nil {
		return err
	}
	return nil
}

// Chmod sets a file's permission bits, given as a Go os.FileMode's
// permission bits (0-0777); the wire format is an octal string.
func (c *Client) Chmod(ctx context.Context, path string, perm uint32) error {
	_, err := c.doIdempotent(ctx, "chmod", path, func() (*http.Request, error) {
		q := url.Values{"relPath": {path}, "perm": {strconv.FormatUint(uint64(perm), 8)}}
		return http.NewRequest(http.MethodPatch, c.url("/files/chmod", q), nil)
	})
	return err
}

// Truncate sets path's size to size.
func (c *Client) Truncate(ctx context.Context, path string, size int64) error {
	_, err := c.doIdempotent(ctx, "truncate", path, func() (*http.Request, error) {
		q := url.Values{"relPath": {path}, "size": {strconv.FormatInt(size, 10)}}
		return http.NewRequest(http.MethodPatch, c.url("/files/truncate", q), nil)
	})
	return err
}

// Utimes sets path's access and/or modification time, in seconds since the
// epoch. A nil pointer leaves that field untouched on the server.
func (c *Client) Utimes(ctx context.Context, path string, atimeS, mtimeS *int64) error {
	q := url.Values{"relPath": {path}}
	if atimeS != nil {
		q.Set("atime", strconv.FormatInt(*atimeS, 10))
	}
	if mtimeS != nil {
		q.Set("mtime", strconv.FormatInt(*mtimeS, 10))
	}
	_, err := c.doIdempotent(ctx, "utimes", path, func() (*http.Request, error) {
		return http.NewRequest(http.MethodPatch, c.url("/files/utimes", q), nil)
	})
	return err
}

// Rename moves oldPath to newPath, overwriting newPath if it exists.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	_, err := c.doIdempotent(ctx, "rename", oldPath, func() (*http.Request, error) {
		q := url.Values{"oldRelPath": {oldPath}, "newRelPath": {newPath}}
		return http.NewRequest(http.MethodPatch, c.url("/files/rename", q), nil)
	})
	return err
}

// Mkdir creates a directory at path. The server answers 409 if it already
// exists, which doIdempotent turns into an AlreadyExists error.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	_, err := c.doIdempotent(ctx, "mkdir", path, func() (*http.Request, error) {
		return http.NewRequest(http.MethodPost, c.url("/mkdir", url.Values{"relPath": {path}}), nil)
	})
	return err
}

// Reachable performs a lightweight GET /stats to verify the server answers
// before the mount proceeds, per spec §6 ("unreachable server at startup").
func (c *Client) Reachable(ctx context.Context) error {
	_, err := c.StatFS(ctx)
	return err
}
