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

package build

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blindmansion/sandlot/internal/commands/shared"
)

// NewBuildCommand creates the build command. It routes through the
// sandbox's shell surface so CLI behavior and Exec stay identical.
func NewBuildCommand(opts *shared.Options) *cobra.Command {
	var skipTypecheck, minify, tailwind bool
	var outFile string

	cmd := &cobra.Command{
		Use:   "build [entry]",
		Short: "Typecheck, bundle and load the project",
		Long: `Build runs the full pipeline over the project: entry resolution,
typecheck, bundle, load, validate. With --dir the project is mirrored
from a host directory; otherwise the sandbox starts empty.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			command := "build"
			if skipTypecheck {
				command += " --skip-typecheck"
			}
			if minify {
				command += " --minify"
			}
			if tailwind {
				command += " --tailwind"
			}
			if len(args) == 1 {
				command += " " + args[0]
			}

			result := ctx.Sandbox.Exec(cmd.Context(), command)
			fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)

			if outFile != "" && result.ExitCode == 0 {
				last := ctx.Sandbox.LastBuild()
				if last != nil {
					if err := os.WriteFile(outFile, []byte(last.Code), 0o644); err != nil {
						return fmt.Errorf("writing %s: %w", outFile, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outFile)
				}
			}

			if result.ExitCode != 0 {
				// The message is already on stderr; just carry the code.
				cmd.SilenceErrors = true
				cmd.SilenceUsage = true
				return exitError(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipTypecheck, "skip-typecheck", false, "skip the typecheck stage")
	cmd.Flags().BoolVar(&minify, "minify", false, "minify the produced module")
	cmd.Flags().BoolVar(&tailwind, "tailwind", false, "mark the build for host-side tailwind post-processing")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the produced module to a file")
	return cmd
}

// ExitError carries a process exit code through cobra.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

func exitError(code int) error {
	return &ExitError{Code: code}
}
