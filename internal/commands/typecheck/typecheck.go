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

package typecheck

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blindmansion/sandlot/internal/commands/build"
	"github.com/blindmansion/sandlot/internal/commands/shared"
)

// NewTypecheckCommand creates the typecheck command.
func NewTypecheckCommand(opts *shared.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "typecheck [entry]",
		Short: "Typecheck the project from its entry point",
		Long: `Typecheck analyzes the entry point and its transitive import
closure; files outside the closure are not checked. Diagnostics print
as SEVERITY: file:line:col: message.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			command := "typecheck"
			if len(args) == 1 {
				command += " " + args[0]
			}

			result := ctx.Sandbox.Exec(cmd.Context(), command)
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
