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

package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// Exit codes of the shell command surface.
const (
	ExitOK       = 0
	ExitUsage    = 1 // caller error: bad args, unknown command, missing target
	ExitPipeline = 2 // pipeline failure: typecheck, bundle, load or validate failed
)

// ExecResult is the outcome of one shell command.
type ExecResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Exec parses a shell command string and dispatches it to the direct
// method with identical semantics. The supported surface:
//
//	install <spec>
//	uninstall <name>
//	build [--skip-typecheck] [--minify] [--tailwind] [<entry>]
//	typecheck [<entry>]
//
// Unknown commands exit 1 with a message on stderr.
func (s *Sandbox) Exec(ctx context.Context, command string) *ExecResult {
	args := splitCommand(command)
	if len(args) == 0 {
		return &ExecResult{ExitCode: ExitUsage, Stderr: "empty command\n"}
	}

	switch args[0] {
	case "install":
		return s.execInstall(ctx, args[1:])
	case "uninstall":
		return s.execUninstall(args[1:])
	case "build":
		return s.execBuild(ctx, args[1:])
	case "typecheck":
		return s.execTypecheck(ctx, args[1:])
	default:
		return &ExecResult{
			ExitCode: ExitUsage,
			Stderr:   fmt.Sprintf("unknown command: %s\n", args[0]),
		}
	}
}

func (s *Sandbox) execInstall(ctx context.Context, args []string) *ExecResult {
	if len(args) != 1 {
		return &ExecResult{ExitCode: ExitUsage, Stderr: "usage: install <package[@version]>\n"}
	}

	result, err := s.Install(ctx, args[0])
	if err != nil {
		return &ExecResult{ExitCode: ExitUsage, Stderr: err.Error() + "\n"}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "installed %s@%s", result.Name, result.Version)
	if result.TypesInstalled {
		fmt.Fprintf(&out, " (%d type files", result.TypeFilesCount)
		if result.FromCache {
			out.WriteString(", cached")
		}
		out.WriteString(")")
	}
	out.WriteString("\n")
	if result.TypesError != "" {
		fmt.Fprintf(&out, "warning: %s\n", result.TypesError)
	}
	return &ExecResult{ExitCode: ExitOK, Stdout: out.String()}
}

func (s *Sandbox) execUninstall(args []string) *ExecResult {
	if len(args) != 1 {
		return &ExecResult{ExitCode: ExitUsage, Stderr: "usage: uninstall <package>\n"}
	}

	result, err := s.Uninstall(args[0])
	if err != nil {
		return &ExecResult{ExitCode: ExitUsage, Stderr: err.Error() + "\n"}
	}
	if !result.Removed {
		return &ExecResult{
			ExitCode: ExitUsage,
			Stderr:   fmt.Sprintf("package not installed: %s\n", result.Name),
		}
	}
	return &ExecResult{ExitCode: ExitOK, Stdout: fmt.Sprintf("removed %s\n", result.Name)}
}

func (s *Sandbox) execBuild(ctx context.Context, args []string) *ExecResult {
	opts := BuildOptions{}
	for _, arg := range args {
		switch {
		case arg == "--skip-typecheck":
			opts.SkipTypecheck = true
		case arg == "--minify":
			opts.Minify = true
		case arg == "--tailwind":
			opts.Tailwind = true
		case strings.HasPrefix(arg, "--"):
			return &ExecResult{ExitCode: ExitUsage, Stderr: fmt.Sprintf("unknown flag: %s\n", arg)}
		case opts.Entry == "":
			opts.Entry = arg
		default:
			return &ExecResult{ExitCode: ExitUsage, Stderr: "build takes at most one entry\n"}
		}
	}

	result, err := s.Build(ctx, opts)
	if err != nil {
		return &ExecResult{ExitCode: ExitUsage, Stderr: err.Error() + "\n"}
	}

	if result.Success {
		stdout := fmt.Sprintf("built %s (%d bytes, %d files)\n",
			result.Entry, len(result.Code), len(result.IncludedFiles))
		return &ExecResult{ExitCode: ExitOK, Stdout: stdout + formatWarnings(result.Warnings)}
	}

	switch result.Phase {
	case PhaseEntry:
		return &ExecResult{ExitCode: ExitUsage, Stderr: result.Message + "\n"}
	case PhaseTypecheck:
		return &ExecResult{ExitCode: ExitPipeline, Stderr: formatDiagnostics(result.Diagnostics)}
	case PhaseBundle:
		return &ExecResult{ExitCode: ExitPipeline, Stderr: formatBundleErrors(result.BundleErrors)}
	default:
		return &ExecResult{
			ExitCode: ExitPipeline,
			Stderr:   fmt.Sprintf("%s failed: %s\n", result.Phase, result.Message),
		}
	}
}

func (s *Sandbox) execTypecheck(ctx context.Context, args []string) *ExecResult {
	opts := TypecheckOptions{}
	switch len(args) {
	case 0:
	case 1:
		opts.Entry = args[0]
	default:
		return &ExecResult{ExitCode: ExitUsage, Stderr: "usage: typecheck [<entry>]\n"}
	}

	result, err := s.Typecheck(ctx, opts)
	if err != nil {
		return &ExecResult{ExitCode: ExitUsage, Stderr: err.Error() + "\n"}
	}

	if result.Success {
		stdout := "typecheck passed\n"
		return &ExecResult{ExitCode: ExitOK, Stdout: stdout + formatDiagnostics(result.Diagnostics)}
	}
	return &ExecResult{ExitCode: ExitPipeline, Stderr: formatDiagnostics(result.Diagnostics)}
}

// splitCommand splits on whitespace, honoring single and double quotes.
func splitCommand(command string) []string {
	var args []string
	var current strings.Builder
	var quote byte

	flush := func() {
		if current.Len() > 0 {
			args = append(args, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return args
}
