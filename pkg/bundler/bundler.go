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

// Package bundler produces a single ES module from a VFS entry point.
//
// The engine is esbuild; a single resolve/load plugin is the only point
// where the pipeline knows what a virtual filesystem is. Every import
// resolves to one of three places: a VFS file, an installed package's
// CDN URL (left external), or a shared-module stub.
package bundler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

// Options parameterize one bundle invocation. InstalledPackages and the
// registry are snapshots taken by the orchestrator before the build.
type Options struct {
	// Entry is the normalized VFS path of the entry point.
	Entry string

	// InstalledPackages maps package name to pinned version, from
	// /package.json at snapshot time.
	InstalledPackages map[string]string

	// Registry resolves shared-module imports. May be nil.
	Registry *sharedmod.Registry

	// Minify enables whitespace/identifier/syntax minification.
	Minify bool

	// Define maps identifiers to constant replacements.
	Define map[string]string
}

// Warning is a non-fatal bundling message. Warnings never fail a build.
type Warning struct {
	Text   string `json:"text"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Error is one structured bundling failure, including the offending
// source line when the engine provides it.
type Error struct {
	Text     string `json:"text"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	LineText string `json:"lineText,omitempty"`
}

// Failure carries every error of a failed bundle.
type Failure struct {
	Errors []Error
}

func (f *Failure) Error() string {
	if len(f.Errors) == 0 {
		return "bundle failed"
	}
	return fmt.Sprintf("bundle failed: %s", f.Errors[0].Text)
}

// Result is a successful bundle.
type Result struct {
	// Code is the produced ES module.
	Code string

	// Warnings collected during the build.
	Warnings []Warning

	// IncludedFiles lists every VFS file read during the build in
	// first-visit order.
	IncludedFiles []string
}

// Bundler is the pluggable bundling contract.
type Bundler interface {
	Bundle(ctx context.Context, fs vfs.FS, opts Options) (*Result, error)
}

// ESBuild is the esbuild-backed Bundler. One instance serves a whole
// sandlot; the orchestration queue upstream guarantees one simultaneous
// invocation per sandbox.
type ESBuild struct {
	cdnBase string
	logger  *slog.Logger
}

// NewESBuild creates a bundler that rewrites installed-package imports
// against cdnBase.
func NewESBuild(cdnBase string, logger *slog.Logger) *ESBuild {
	if logger == nil {
		logger = slog.Default()
	}
	return &ESBuild{
		cdnBase: strings.TrimSuffix(cdnBase, "/"),
		logger:  logger.With("component", "bundler"),
	}
}

// Bundle runs esbuild over the VFS. On engine failure it returns a
// *Failure with structured errors.
func (b *ESBuild) Bundle(ctx context.Context, fs vfs.FS, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plugin := newVFSPlugin(fs, b.cdnBase, opts)

	buildOpts := api.BuildOptions{
		EntryPoints: []string{opts.Entry},
		Bundle:      true,
		Write:       false,
		Outfile:     "/bundle.js",
		Format:      api.FormatESModule,
		Target:      api.ES2020,
		Platform:    api.PlatformBrowser,
		JSX:         api.JSXAutomatic,
		Plugins:     []api.Plugin{plugin.plugin()},
		LogLevel:    api.LogLevelSilent,
		Define:      opts.Define,
	}
	if opts.Minify {
		buildOpts.MinifyWhitespace = true
		buildOpts.MinifyIdentifiers = true
		buildOpts.MinifySyntax = true
	}

	result := api.Build(buildOpts)

	if len(result.Errors) > 0 {
		return nil, &Failure{Errors: mapErrors(result.Errors)}
	}

	var code string
	for _, out := range result.OutputFiles {
		if strings.HasSuffix(out.Path, ".js") || code == "" {
			code = string(out.Contents)
		}
	}

	res := &Result{
		Code:          code,
		Warnings:      mapWarnings(result.Warnings),
		IncludedFiles: plugin.includedFiles(),
	}
	b.logger.Debug("bundle complete",
		"entry", opts.Entry,
		"bytes", len(res.Code),
		"included_files", len(res.IncludedFiles),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func mapWarnings(msgs []api.Message) []Warning {
	warnings := make([]Warning, 0, len(msgs))
	for _, msg := range msgs {
		w := Warning{Text: msg.Text}
		if msg.Location != nil {
			w.File = msg.Location.File
			w.Line = msg.Location.Line
			w.Column = msg.Location.Column + 1
		}
		warnings = append(warnings, w)
	}
	return warnings
}

func mapErrors(msgs []api.Message) []Error {
	errs := make([]Error, 0, len(msgs))
	for _, msg := range msgs {
		e := Error{Text: msg.Text}
		if msg.Location != nil {
			e.File = msg.Location.File
			e.Line = msg.Location.Line
			e.Column = msg.Location.Column + 1
			e.LineText = msg.Location.LineText
		}
		errs = append(errs, e)
	}
	return errs
}
