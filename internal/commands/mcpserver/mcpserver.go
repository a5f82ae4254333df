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

// Package mcpserver exposes one sandbox over the Model Context
// Protocol, so agent hosts can drive the build core as tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/blindmansion/sandlot/internal/commands/shared"
	"github.com/blindmansion/sandlot/pkg/sandbox"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

// Version is stamped by the root command.
var Version = "dev"

// NewMCPCommand creates the mcp command (stdio transport).
func NewMCPCommand(opts *shared.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the sandbox over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := shared.Setup(opts)
			if err != nil {
				return err
			}
			defer ctx.Close()

			return Serve(ctx.Sandbox)
		},
	}
}

// Serve runs the stdio MCP server over sb until the client hangs up.
func Serve(sb *sandbox.Sandbox) error {
	h := &handlers{sandbox: sb}

	s := server.NewMCPServer(
		"sandlot",
		Version,
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("install",
		mcp.WithDescription("Install an npm package: pin its version and fetch its type definitions"),
		mcp.WithString("spec", mcp.Required(), mcp.Description("Package specifier, e.g. nanoid@5.1.6 or @tanstack/react-query")),
	), h.handleInstall)

	s.AddTool(mcp.NewTool("uninstall",
		mcp.WithDescription("Remove an installed package and its type tree"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Package name to remove")),
	), h.handleUninstall)

	s.AddTool(mcp.NewTool("build",
		mcp.WithDescription("Build the project: typecheck, bundle, load; returns the outcome and bundle size"),
		mcp.WithString("entry", mcp.Description("Entry point override (default: package.json main, then /index.ts)")),
		mcp.WithBoolean("skip_typecheck", mcp.Description("Skip the typecheck stage")),
	), h.handleBuild)

	s.AddTool(mcp.NewTool("typecheck",
		mcp.WithDescription("Typecheck the project from its entry point and return diagnostics"),
		mcp.WithString("entry", mcp.Description("Entry point override")),
	), h.handleTypecheck)

	s.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Write a file into the project filesystem"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute project path, e.g. /src/app.tsx")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
	), h.handleWriteFile)

	s.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file with line-number prefixes"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute project path")),
	), h.handleReadFile)

	s.AddTool(mcp.NewTool("edit_file",
		mcp.WithDescription("Replace a unique string in a file"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute project path")),
		mcp.WithString("old_string", mcp.Required(), mcp.Description("Text to replace; must occur exactly once unless replace_all")),
		mcp.WithString("new_string", mcp.Required(), mcp.Description("Replacement text")),
		mcp.WithBoolean("replace_all", mcp.Description("Replace every occurrence")),
	), h.handleEditFile)

	return server.ServeStdio(s)
}

type handlers struct {
	sandbox *sandbox.Sandbox
}

func (h *handlers) handleInstall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec, err := req.RequireString("spec")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: spec"), nil
	}

	result, err := h.sandbox.Install(ctx, spec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (h *handlers) handleUninstall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}

	result, err := h.sandbox.Uninstall(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (h *handlers) handleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := sandbox.BuildOptions{
		Entry:         req.GetString("entry", ""),
		SkipTypecheck: req.GetBool("skip_typecheck", false),
	}

	result, err := h.sandbox.Build(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// The loaded module object is host state, not serializable tool
	// output; report everything else.
	view := map[string]any{
		"success":       result.Success,
		"entry":         result.Entry,
		"phase":         result.Phase,
		"message":       result.Message,
		"bytes":         len(result.Code),
		"includedFiles": result.IncludedFiles,
		"warnings":      result.Warnings,
		"diagnostics":   result.Diagnostics,
		"bundleErrors":  result.BundleErrors,
	}
	return jsonResult(view)
}

func (h *handlers) handleTypecheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.sandbox.Typecheck(ctx, sandbox.TypecheckOptions{
		Entry: req.GetString("entry", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (h *handlers) handleWriteFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}

	if err := h.sandbox.FS().WriteFile(path, content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"path":%q,"bytes":%d}`, path, len(content))), nil
}

func (h *handlers) handleReadFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	content, err := vfs.ReadLines(h.sandbox.FS(), path, vfs.ReadOptions{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (h *handlers) handleEditFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	oldString, err := req.RequireString("old_string")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: old_string"), nil
	}
	newString, err := req.RequireString("new_string")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: new_string"), nil
	}

	err = vfs.Edit(h.sandbox.FS(), path, vfs.EditSpec{
		OldString:  oldString,
		NewString:  newString,
		ReplaceAll: req.GetBool("replace_all", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"path":%q,"edited":true}`, path)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
