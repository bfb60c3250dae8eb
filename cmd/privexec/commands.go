// Copyright 2024 privexec authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/privexec/internal"
	"github.com/docker/privexec/internal/isolate"
	"github.com/docker/privexec/internal/probe"
	"github.com/docker/privexec/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	root       string
	prober     string
	maxThreads int64
	logLevel   string
	logJSON    bool
	json       bool
}

func (o *rootOptions) target() internal.Target {
	return internal.Target{Path: o.root}
}

// print writes v as JSON when --json is set and as text otherwise.
func (o *rootOptions) print(w io.Writer, v interface{}, text string) error {
	if o.json {
		return json.NewEncoder(w).Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// checkArgs wraps a positional argument validator so its failures are
// reported as usage errors.
func checkArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func newRootCommand(cfg *internal.Config) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "privexec",
		Short:         "Run file, account and device operations inside a provisioning root",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := enableLogs(opts.logLevel, opts.logJSON); err != nil {
				return usageError{err}
			}
			if opts.maxThreads <= 0 {
				return usageError{fmt.Errorf("--max-threads must be positive")}
			}
			isolate.SetDefault(isolate.NewExecutor(opts.maxThreads))
			logrus.Debugf("starting privexec %s", version.Version)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", cfg.Root, "root filesystem to operate in (default host root)")
	flags.StringVar(&opts.prober, "prober", cfg.Prober, `device prober: "blkid", "native" or "auto"`)
	flags.Int64Var(&opts.maxThreads, "max-threads", cfg.MaxThreads, "maximum isolated threads alive at once")
	flags.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "log level")
	flags.BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")
	flags.BoolVar(&opts.json, "json", false, "print results as JSON")

	cmd.AddCommand(
		newLookupUserCommand(opts),
		newLookupGroupCommand(opts),
		newCreateCommand(opts),
		newMkdirCommand(opts),
		newRenameCommand(opts),
		newProbeCommand(opts),
		newAuthorizeKeysCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

func newLookupUserCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup-user NAME",
		Short: "Look up a user in the root's passwd database",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := opts.target().LookupUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), u, fmt.Sprintf("%s %d %d %s", u.Name, u.UID, u.GID, u.Home))
		},
	}
}

func newLookupGroupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup-group NAME",
		Short: "Look up a group in the root's group database",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := opts.target().LookupGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), g, fmt.Sprintf("%s %d", g.Name, g.GID))
		},
	}
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		id   identityFlags
		mode os.FileMode
	)
	cmd := &cobra.Command{
		Use:   "create PATH",
		Short: "Create a file as another user",
		Long:  "Create a file as another user. The umask is 077, so group and other permission bits are never granted.",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.target().FS(id.uid, id.gid).OpenFile(cmd.Context(), args[0], os.O_WRONLY|os.O_CREATE, mode)
			if err != nil {
				return err
			}
			return f.Close()
		},
	}
	id.install(cmd.Flags())
	cmd.Flags().Var(newModeValue(0o644, &mode), "mode", "permission bits of a new file")
	return cmd
}

func newMkdirCommand(opts *rootOptions) *cobra.Command {
	var (
		id   identityFlags
		mode os.FileMode
	)
	cmd := &cobra.Command{
		Use:   "mkdir PATH",
		Short: "Create a directory and its parents as another user",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.target().FS(id.uid, id.gid).MkdirAll(cmd.Context(), args[0], mode)
		},
	}
	id.install(cmd.Flags())
	cmd.Flags().Var(newModeValue(0o755, &mode), "mode", "permission bits of created directories")
	return cmd
}

func newRenameCommand(opts *rootOptions) *cobra.Command {
	var id identityFlags
	cmd := &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a file as another user",
		Args:  checkArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.target().FS(id.uid, id.gid).Rename(cmd.Context(), args[0], args[1])
		},
	}
	id.install(cmd.Flags())
	return cmd
}

type probeResult struct {
	Device string `json:"device"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

func newProbeCommand(opts *rootOptions) *cobra.Command {
	var (
		mountpoint string
		size       int
	)
	cmd := &cobra.Command{
		Use:   "probe [DEVICE] FIELD",
		Short: "Read a filesystem field such as TYPE, UUID or LABEL from a device",
		Args: checkArgs(func(cmd *cobra.Command, args []string) error {
			if mountpoint != "" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 {
				return usageError{fmt.Errorf("--size must not be negative")}
			}
			p, err := probe.New(opts.prober)
			if err != nil {
				return usageError{err}
			}

			var device, field string
			if mountpoint != "" {
				if device, err = probe.DeviceForMount(mountpoint); err != nil {
					return err
				}
				field = args[0]
			} else {
				device, field = args[0], args[1]
			}

			buf := make([]byte, size)
			n, err := probe.Field(p, device, field, buf)
			if err != nil {
				return err
			}
			value := string(bytes.TrimRight(buf[:n], "\x00"))
			return opts.print(cmd.OutOrStdout(), probeResult{Device: device, Field: field, Value: value}, value)
		},
	}
	cmd.Flags().StringVar(&mountpoint, "mountpoint", "", "probe the device mounted here instead of DEVICE")
	cmd.Flags().IntVar(&size, "size", 256, "value buffer size in bytes, including the terminating NUL")
	return cmd
}

func newAuthorizeKeysCommand(opts *rootOptions) *cobra.Command {
	var fragment string
	cmd := &cobra.Command{
		Use:   "authorize-keys USER KEY...",
		Short: "Install SSH authorized keys for a user",
		Args:  checkArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.target().AuthorizeSSHKeys(cmd.Context(), args[0], fragment, args[1:])
		},
	}
	cmd.Flags().StringVar(&fragment, "fragment", "privexec", "name of the authorized_keys.d fragment to write")
	return cmd
}

type versionInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := version.Version
			if version.Revision != "" {
				text += " (" + version.Revision + ")"
			}
			return opts.print(cmd.OutOrStdout(), versionInfo{Version: version.Version, Revision: version.Revision}, text)
		},
	}
}
