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

package execcmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blindmansion/sandlot/internal/commands/build"
	"github.com/blindmansion/sandlot/internal/commands/shared"
)

// NewExecCommand creates the exec command: the raw shell-command
// surface, one command string in, stdout/stderr/exit code out.
func NewExecCommand(opts *shared.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command...>",
		Short: "Run a sandbox shell command",
		Long: `Exec dispatches a shell command string to the sandbox with the same
semantics as the direct methods:

  install <spec>
  uninstall <name>
  build [--skip-typecheck] [--minify] [--tailwind] [<entry>]
  typecheck [<entry>]`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			result := ctx.Sandbox.Exec(cmd.Context(), strings.Join(args, " "))
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
