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
	"errors"
	"fmt"
	"time"

	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/loader"
	"github.com/blindmansion/sandlot/pkg/typecheck"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

// Phase identifies the pipeline stage a build failed in.
type Phase string

const (
	PhaseEntry     Phase = "entry"
	PhaseTypecheck Phase = "typecheck"
	PhaseBundle    Phase = "bundle"
	PhaseLoad      Phase = "load"
	PhaseValidate  Phase = "validate"
)

// BuildOptions parameterize one build.
type BuildOptions struct {
	// Entry overrides entry resolution. Empty falls back to the
	// manifest's main field, then /index.ts.
	Entry string

	// SkipTypecheck skips the typecheck stage entirely.
	SkipTypecheck bool

	// Minify passes through to the bundler.
	Minify bool

	// Tailwind marks the build for post-bundle CSS processing by the
	// host; the core records it and does nothing else.
	Tailwind bool
}

// BuildResult is the discriminated outcome of one build. On success
// Code, Warnings, IncludedFiles and Module are set; on failure Phase
// plus the phase-specific payload.
type BuildResult struct {
	Success bool   `json:"success"`
	Entry   string `json:"entry"`

	Code          string            `json:"code,omitempty"`
	Warnings      []bundler.Warning `json:"warnings,omitempty"`
	IncludedFiles []string          `json:"includedFiles,omitempty"`

	// Module is the loaded module object, possibly replaced by the
	// validator.
	Module any `json:"-"`

	Phase        Phase                  `json:"phase,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Diagnostics  []typecheck.Diagnostic `json:"diagnostics,omitempty"`
	BundleErrors []bundler.Error        `json:"bundleErrors,omitempty"`

	Duration time.Duration `json:"-"`
}

// Build runs the pipeline: resolve entry, typecheck, bundle, load,
// validate, publish. Each stage is an independent failure phase; a
// failed build leaves lastBuild untouched and notifies nobody.
func (s *Sandbox) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	s.op.Lock()
	defer s.op.Unlock()

	start := time.Now()
	result, err := s.build(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	recordBuild(result)
	if s.svc.History != nil && !s.disposed.Load() {
		s.svc.History.Record(ctx, s.id, result)
	}

	if result.Success {
		s.publish(result)
	}

	s.logger.Info("build finished",
		"entry", result.Entry,
		"success", result.Success,
		"phase", string(result.Phase),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Sandbox) build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	// Stage 1: entry resolution.
	entry := s.resolveEntry(opts.Entry)
	if !s.fs.Exists(entry) {
		return &BuildResult{
			Entry:   entry,
			Phase:   PhaseEntry,
			Message: fmt.Sprintf("entry point %s does not exist", entry),
		}, nil
	}
	result := &BuildResult{Entry: entry}

	// Stage 2: typecheck.
	if !opts.SkipTypecheck {
		check, err := s.ensureChecker(ctx).Check(ctx, entry)
		if err != nil {
			return nil, err
		}
		if !check.Success {
			result.Phase = PhaseTypecheck
			result.Diagnostics = check.Diagnostics
			return result, nil
		}
		result.Diagnostics = check.Diagnostics
	}

	// Stage 3: bundle, against snapshots of the manifest and registry.
	bundleResult, err := s.svc.Bundler.Bundle(ctx, s.fs, bundler.Options{
		Entry:             entry,
		InstalledPackages: s.readManifest().Dependencies(),
		Registry:          s.svc.Registry,
		Minify:            opts.Minify,
	})
	if err != nil {
		var failure *bundler.Failure
		if errors.As(err, &failure) {
			result.Phase = PhaseBundle
			result.BundleErrors = failure.Errors
			return result, nil
		}
		return nil, err
	}
	result.Code = bundleResult.Code
	result.Warnings = bundleResult.Warnings
	result.IncludedFiles = bundleResult.IncludedFiles

	// Stage 4: load.
	module, err := s.svc.Loader.Load(ctx, bundleResult.Code, s.svc.Registry)
	if err != nil {
		result.Phase = PhaseLoad
		result.Message = err.Error()
		return result, nil
	}
	result.Module = module

	// Stage 5: validate.
	if s.svc.Validator != nil {
		replacement, err := validate(s.svc.Validator, module)
		if err != nil {
			result.Phase = PhaseValidate
			result.Message = err.Error()
			return result, nil
		}
		if replacement != nil {
			result.Module = replacement
		}
	}

	result.Success = true
	return result, nil
}

// validate guards the host's validator against panics; a panic fails
// the validate phase like a returned error.
func validate(v Validator, module *loader.Module) (replacement any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return v(module)
}

// resolveEntry applies the fallback chain: explicit entry, manifest
// main, /index.ts.
func (s *Sandbox) resolveEntry(explicit string) string {
	if explicit != "" {
		return vfs.Normalize(explicit)
	}
	if main := s.readManifest().Main(); main != "" {
		return vfs.Normalize(main)
	}
	return DefaultEntry
}

// TypecheckOptions parameterize a direct typecheck.
type TypecheckOptions struct {
	// Entry overrides entry resolution, same fallback chain as Build.
	Entry string
}

// Typecheck runs the typecheck stage directly and reports the result.
func (s *Sandbox) Typecheck(ctx context.Context, opts TypecheckOptions) (*typecheck.Result, error) {
	s.op.Lock()
	defer s.op.Unlock()

	entry := s.resolveEntry(opts.Entry)
	result, err := s.ensureChecker(ctx).Check(ctx, entry)
	if err != nil {
		return nil, err
	}
	recordTypecheck(result.Success)
	return result, nil
}
