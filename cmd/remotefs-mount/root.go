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

// Command remotefs-mount mounts a remote filesystem server as a local FUSE
// mount point, mirroring the shape of gcsfuse's own cmd/root.go + cmd/mount.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmanuelePietroCometti/remotefs/internal/config"
)

// newRootCmd builds the root command, dispatching a fully resolved Config
// to runFn instead of calling run directly, so tests can inject a fake
// runFn in place of the real mount/daemonize/fuse.Mount machinery, in the
// style of the teacher's own NewRootCmd(f mountFn).
func newRootCmd(runFn func(args []string, cfg *config.Config) error) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "remotefs-mount [flags] server-ip [daemon]",
		Short: "Mount a remote filesystem server locally over FUSE",
		Long: `remotefs-mount is a FUSE adapter that lets you mount a remote
metadata-and-bytes server as a local directory. Run with a server IP to
mount in the foreground; append "daemon" to detach; run "remotefs-mount
stop" to unmount a running daemon.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountConfig, err := config.FromFlagSet(cmd.Flags())
			if err != nil {
				return fmt.Errorf("reading flags: %w", err)
			}
			if err := config.Rationalize(&mountConfig); err != nil {
				return fmt.Errorf("rationalizing config: %w", err)
			}
			if err := config.Validate(&mountConfig); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runFn(args, &mountConfig)
		},
	}
	if err := config.BindFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return cmd, nil
}

// Execute runs the root command, exiting the process with a non-zero
// status on any error per spec §6's exit-code contract.
func Execute() {
	cmd, err := newRootCmd(run)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
