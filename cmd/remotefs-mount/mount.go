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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"

	"github.com/EmanuelePietroCometti/remotefs/internal/cache"
	"github.com/EmanuelePietroCometti/remotefs/internal/config"
	"github.com/EmanuelePietroCometti/remotefs/internal/logger"
	"github.com/EmanuelePietroCometti/remotefs/internal/metrics"
	"github.com/EmanuelePietroCometti/remotefs/internal/notify"
	"github.com/EmanuelePietroCometti/remotefs/internal/remote"

	"github.com/EmanuelePietroCometti/remotefs/internal/fs"
)

const inBackgroundModeEnvVar = "REMOTEFS_IN_BACKGROUND_MODE"

// run dispatches "remotefs-mount stop" and "remotefs-mount <ip> [daemon]"
// per spec §6's mount surface.
func run(args []string, cfg *config.Config) error {
	if args[0] == "stop" {
		return stop(cfg.FileSystem.MountPoint)
	}

	serverIP := args[0]
	wantDaemon := len(args) == 2 && args[1] == "daemon"

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Shutdown()

	if wantDaemon && os.Getenv(inBackgroundModeEnvVar) != "true" {
		return spawnDaemon(serverIP, cfg)
	}

	err := mountAndServe(serverIP, cfg)
	if wantDaemon {
		if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
			logger.Errorf("failed to signal mount outcome to parent: %v", sigErr)
		}
	}
	return err
}

// stop unmounts a running daemon at mountPoint, per spec §6's "stop"
// argument.
func stop(mountPoint string) error {
	if mountPoint == "" {
		return fmt.Errorf("stop: no mount point configured")
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		return fmt.Errorf("unmounting %s: %w", mountPoint, err)
	}
	fmt.Fprintf(os.Stdout, "Unmounted %s.\n", mountPoint)
	return nil
}

// spawnDaemon re-execs this binary in the background without the "daemon"
// keyword, in the style of gcsfuse's cmd/legacy_main.go daemonize.Run call,
// and waits for the child to report mount success or failure.
func spawnDaemon(serverIP string, cfg *config.Config) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	args := []string{serverIP, "--mount-point", cfg.FileSystem.MountPoint}
	env := append(os.Environ(), inBackgroundModeEnvVar+"=true")

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintln(os.Stdout, "File system has been successfully mounted.")
	return nil
}

// mountAndServe mounts the FUSE file system in the foreground and blocks
// until it is unmounted.
func mountAndServe(serverIP string, cfg *config.Config) error {
	remoteClient, err := remote.New(serverURL(serverIP), remote.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		MaxElapsed:     time.Duration(cfg.Retry.MaxElapsedSecs) * time.Second,
		RequestTimeout: time.Duration(cfg.Retry.RequestTimeoutSecs) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("constructing remote client: %w", err)
	}

	if err := remoteClient.Reachable(context.Background()); err != nil {
		return fmt.Errorf("server %s is not reachable: %w", serverIP, err)
	}

	rec := metrics.Noop()
	if cfg.Metrics.Enabled {
		r, h := metrics.New()
		rec = r
		go func() {
			if err := metrics.Serve(context.Background(), cfg.Metrics.ListenAddr, h); err != nil {
				logger.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	server, deps, err := fs.NewServer(&fs.ServerConfig{
		Clock:  timeutil.RealClock(),
		Client: remoteClient,
		CacheConfig: cache.Config{
			AttrTTL: cfg.MetadataCache.AttrTTL(),
			DirTTL:  cfg.MetadataCache.DirTTL(),
		},
		Uid:     uint32(cfg.FileSystem.Uid),
		Gid:     uint32(cfg.FileSystem.Gid),
		Metrics: rec,
	})
	if err != nil {
		return fmt.Errorf("constructing file system server: %w", err)
	}

	if err := os.MkdirAll(cfg.FileSystem.MountPoint, 0755); err != nil {
		return fmt.Errorf("creating mount point %s: %w", cfg.FileSystem.MountPoint, err)
	}

	mfs, err := fuse.Mount(cfg.FileSystem.MountPoint, server, &fuse.MountConfig{})
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", cfg.FileSystem.MountPoint, err)
	}
	logger.Infof("Mounted %s at %s", serverIP, cfg.FileSystem.MountPoint)

	notifyCtx, cancelNotify := context.WithCancel(context.Background())
	defer cancelNotify()
	startChangeSubscriber(notifyCtx, serverIP, cfg, deps)

	registerSIGINTHandler(cfg.FileSystem.MountPoint)

	return mfs.Join(context.Background())
}

// startChangeSubscriber wires the push-channel consumer (C7) in as a
// background goroutine against the same cache and inode table the mount's
// FileSystem uses, best-effort: a server that doesn't expose the push
// channel still leaves the mount fully usable, falling back to the cache's
// TTL for staleness, per spec §4.6.
func startChangeSubscriber(ctx context.Context, serverIP string, cfg *config.Config, deps fs.Dependencies) {
	sub, err := notify.New(serverURL(serverIP), deps.Cache, deps.Inodes, notify.Config{
		ReconnectMin: time.Duration(cfg.Notify.ReconnectMinMs) * time.Millisecond,
		ReconnectMax: time.Duration(cfg.Notify.ReconnectMaxMs) * time.Millisecond,
		RenameWindow: time.Duration(cfg.Notify.RenameWindowMs) * time.Millisecond,
	}, nil)
	if err != nil {
		logger.Warnf("change subscriber disabled: %v", err)
		return
	}
	go sub.Run(ctx)
}

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		logger.Infof("received SIGINT, attempting to unmount %s", mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("failed to unmount in response to SIGINT: %v", err)
		}
	}()
}

func serverURL(serverIP string) string {
	return fmt.Sprintf("http://%s", serverIP)
}
