// Copyright 2025 Sandlot Authors
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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	buildcmd "github.com/blindmansion/sandlot/internal/commands/build"
	"github.com/blindmansion/sandlot/internal/commands/execcmd"
	installcmd "github.com/blindmansion/sandlot/internal/commands/install"
	"github.com/blindmansion/sandlot/internal/commands/mcpserver"
	"github.com/blindmansion/sandlot/internal/commands/shared"
	typecheckcmd "github.com/blindmansion/sandlot/internal/commands/typecheck"
	versioncmd "github.com/blindmansion/sandlot/internal/commands/version"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	opts := &shared.Options{}
	mcpserver.Version = version

	root := &cobra.Command{
		Use:   "sandlot",
		Short: "An in-process build service for TypeScript/JSX projects",
		Long: `Sandlot builds small TypeScript/JSX projects living in a virtual
filesystem: it pins npm packages with their type definitions, typechecks,
bundles through an esbuild plugin, and loads the produced ES module.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to sandlot.yaml")
	root.PersistentFlags().StringVar(&opts.Dir, "dir", "", "mirror a host directory into the sandbox")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		buildcmd.NewBuildCommand(opts),
		installcmd.NewInstallCommand(opts),
		installcmd.NewUninstallCommand(opts),
		typecheckcmd.NewTypecheckCommand(opts),
		execcmd.NewExecCommand(opts),
		mcpserver.NewMCPCommand(opts),
		versioncmd.NewVersionCommand(versioncmd.Info{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	if err := root.Execute(); err != nil {
		var exit *buildcmd.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
