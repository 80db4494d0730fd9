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

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderExposesCountersOverHTTP(t *testing.T) {
	rec, handler := New()

	rec.CacheHit("attr")
	rec.CacheHit("attr")
	rec.CacheMiss("dir")
	rec.RemoteCall("list", 10*time.Millisecond, nil)
	rec.RemoteCall("list", 5*time.Millisecond, errors.New("boom"))
	rec.Retry("list")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `remotefs_cache_hits_total{kind="attr"} 2`)
	assert.Contains(t, body, `remotefs_cache_misses_total{kind="dir"} 1`)
	assert.Contains(t, body, `remotefs_remote_calls_total{op="list"} 2`)
	assert.Contains(t, body, `remotefs_remote_errors_total{op="list"} 1`)
	assert.Contains(t, body, `remotefs_remote_retries_total{op="list"} 1`)
	assert.True(t, strings.Contains(body, "remotefs_remote_call_latency_seconds"))
}

func TestNoopRecorderDoesNotPanic(t *testing.T) {
	rec := Noop()
	rec.CacheHit("attr")
	rec.CacheMiss("attr")
	rec.RemoteCall("list", time.Millisecond, nil)
	rec.Retry("list")
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	_, handler := New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, "127.0.0.1:0", handler)
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
