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

// Package metrics exposes Prometheus counters and histograms for the
// ambient health of the mount (cache hit rate, remote call latency, retry
// counts). None of it is on the FUSE request path's correctness — Noop()
// returns a Recorder whose every method does nothing, so the rest of the
// tree is never forced to nil-check before recording.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the narrow interface C2/C3 depend on, so tests can supply a
// fake instead of standing up a prometheus.Registry.
type Recorder interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	RemoteCall(op string, d time.Duration, err error)
	Retry(op string)
}

// promRecorder is the production Recorder, registered against its own
// prometheus.Registry so a disabled metrics server never pulls in the
// default global registry's process/go collectors as a side effect.
type promRecorder struct {
	registry *prometheus.Registry

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	remoteCalls *prometheus.CounterVec
	remoteErrs  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	retries     *prometheus.CounterVec
}

// New returns a Recorder backed by a fresh registry, along with an
// http.Handler serving it in the Prometheus text exposition format.
func New() (Recorder, http.Handler) {
	reg := prometheus.NewRegistry()
	r := &promRecorder{
		registry: reg,
		cacheHits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "remotefs",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of cache lookups served from the local attr/dir cache.",
		}, []string{"kind"}),
		cacheMisses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "remotefs",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of cache lookups that required a remote call.",
		}, []string{"kind"}),
		remoteCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "remotefs",
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Number of requests issued to the remote metadata/bytes service.",
		}, []string{"op"}),
		remoteErrs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "remotefs",
			Subsystem: "remote",
			Name:      "errors_total",
			Help:      "Number of requests to the remote service that returned an error.",
		}, []string{"op"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "remotefs",
			Subsystem: "remote",
			Name:      "call_latency_seconds",
			Help:      "Latency of calls to the remote metadata/bytes service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		retries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "remotefs",
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Number of retry attempts made against the remote service.",
		}, []string{"op"}),
	}
	return r, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (r *promRecorder) CacheHit(kind string)  { r.cacheHits.WithLabelValues(kind).Inc() }
func (r *promRecorder) CacheMiss(kind string) { r.cacheMisses.WithLabelValues(kind).Inc() }

func (r *promRecorder) RemoteCall(op string, d time.Duration, err error) {
	r.remoteCalls.WithLabelValues(op).Inc()
	r.latency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		r.remoteErrs.WithLabelValues(op).Inc()
	}
}

func (r *promRecorder) Retry(op string) { r.retries.WithLabelValues(op).Inc() }

// noopRecorder discards everything; used when metrics are disabled by
// config, or by components constructed without a Recorder at all.
type noopRecorder struct{}

func (noopRecorder) CacheHit(string)                      {}
func (noopRecorder) CacheMiss(string)                     {}
func (noopRecorder) RemoteCall(string, time.Duration, error) {}
func (noopRecorder) Retry(string)                         {}

// Noop returns a Recorder that does nothing, for components constructed
// before a real Recorder is available, and for tests.
func Noop() Recorder { return noopRecorder{} }

// Serve starts an HTTP server exposing handler at /metrics on addr. It
// blocks until ctx is cancelled, then shuts the server down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
