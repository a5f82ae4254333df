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

package install

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blindmansion/sandlot/internal/commands/build"
	"github.com/blindmansion/sandlot/internal/commands/shared"
)

// NewInstallCommand creates the install command.
func NewInstallCommand(opts *shared.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "install <package[@version]>...",
		Short: "Pin packages and fetch their type definitions",
		Long: `Install pins each package into /package.json and fetches its type
definition tree (plus discovered peer types) from the module-graph CDN
into /node_modules. Missing types are reported but do not fail the
install.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			exitCode := 0
			for _, spec := range args {
				result := ctx.Sandbox.Exec(cmd.Context(), "install "+spec)
				fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
				fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
				if result.ExitCode > exitCode {
					exitCode = result.ExitCode
				}
			}
			if exitCode != 0 {
				cmd.SilenceErrors = true
				cmd.SilenceUsage = true
				return &build.ExitError{Code: exitCode}
			}
			return nil
		},
	}
}

// NewUninstallCommand creates the uninstall command.
func NewUninstallCommand(opts *shared.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Remove a pinned package and its type tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			result := ctx.Sandbox.Exec(cmd.Context(), "uninstall "+args[0])
			fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
			if result.ExitCode != 0 {
				cmd.SilenceErrors = true
				cmd.SilenceUsage = true
				return &build.ExitError{Code: result.ExitCode}
			}
			return nil
		},
	}
}
