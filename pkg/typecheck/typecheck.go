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

// Package typecheck hosts a long-lived checking service over the VFS.
//
// The service is entry-point aware: a check pulls the entry's transitive
// import closure and nothing else. Files are re-analyzed only when their
// content changes; each change bumps a per-file version counter so a
// sandbox-lifetime service stays incremental instead of rebuilding a
// program per call.
//
// The default checker reports syntax diagnostics (through the bundling
// engine's parser), unresolved module imports, and annotated-literal
// type mismatches. Deeper structural analysis plugs in behind the
// Checker interface.
package typecheck

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one reported problem. Line and Column are 1-based; zero
// values mean the diagnostic is not tied to a position.
type Diagnostic struct {
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of one check. Success is false iff any
// diagnostic has severity error.
type Result struct {
	Success     bool         `json:"success"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Checker is the pluggable typechecking contract.
type Checker interface {
	// Check analyzes entry and its transitive import closure.
	Check(ctx context.Context, entry string) (*Result, error)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// FS is the sandbox filesystem the service is rooted at. Required.
	FS vfs.FS

	// Libs maps TypeScript lib names to their content; served under the
	// lib root through the host facade.
	Libs map[string]string

	// SharedModules lists module ids resolvable without installation.
	SharedModules []string

	// Logger receives check summaries. Default: slog.Default().
	Logger *slog.Logger
}

// Service is the default Checker. One instance lives per sandbox; calls
// are serialized by the sandbox, the internal mutex only protects
// against misuse.
type Service struct {
	fs     vfs.FS
	libs   map[string]string
	shared map[string]bool
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*fileState
}

// fileState caches one file's analysis at a given version.
type fileState struct {
	version     int
	fingerprint string
	imports     []importRef
	diagnostics []Diagnostic
}

// NewService creates a checking service rooted at the given filesystem.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shared := make(map[string]bool, len(opts.SharedModules))
	for _, id := range opts.SharedModules {
		shared[id] = true
	}
	return &Service{
		fs:     opts.FS,
		libs:   opts.Libs,
		shared: shared,
		logger: logger.With("component", "typecheck"),
	}
}

// SetSharedModules replaces the shared-module id set, used when a
// registry snapshot accompanies a check.
func (s *Service) SetSharedModules(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.shared[id] = true
	}
}

// FileVersion returns the service's current version counter for path
// (0 when the file has never been analyzed).
func (s *Service) FileVersion(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.files[path]; ok {
		return state.version
	}
	return 0
}

// Check analyzes entry and its transitive import closure against the
// current VFS state.
func (s *Service) Check(ctx context.Context, entry string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.files == nil {
		s.files = make(map[string]*fileState)
	}

	entry = vfs.Normalize(entry)
	if !s.fs.Exists(entry) {
		return &Result{
			Success: false,
			Diagnostics: []Diagnostic{{
				File:     entry,
				Message:  fmt.Sprintf("File '%s' not found.", entry),
				Severity: SeverityError,
			}},
		}, nil
	}

	cfg, cfgDiags := loadConfig(s.fs)

	var diagnostics []Diagnostic
	diagnostics = append(diagnostics, cfgDiags...)

	visited := map[string]bool{}
	queue := []string{entry}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file := queue[0]
		queue = queue[1:]
		if visited[file] {
			continue
		}
		visited[file] = true

		state, err := s.analyze(file)
		if err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, state.diagnostics...)

		for _, imp := range state.imports {
			resolved, diag := s.resolveImport(file, imp, cfg)
			if diag != nil {
				diagnostics = append(diagnostics, *diag)
				continue
			}
			if resolved != "" && !visited[resolved] {
				queue = append(queue, resolved)
			}
		}
	}

	sortDiagnostics(diagnostics)
	result := &Result{Success: true, Diagnostics: diagnostics}
	for _, d := range diagnostics {
		if d.Severity == SeverityError {
			result.Success = false
			break
		}
	}

	s.logger.Debug("check complete",
		"entry", entry,
		"files", len(visited),
		"diagnostics", len(diagnostics),
		"success", result.Success,
	)
	return result, nil
}

// analyze returns the cached analysis for file, refreshing it when the
// content fingerprint changed since the last check.
func (s *Service) analyze(file string) (*fileState, error) {
	content, err := s.fs.ReadFile(file)
	if err != nil {
		return nil, err
	}

	fingerprint := fingerprintOf(content)
	if state, ok := s.files[file]; ok && state.fingerprint == fingerprint {
		return state, nil
	}

	version := 1
	if prev, ok := s.files[file]; ok {
		version = prev.version + 1
	}

	imports, diagnostics := analyzeSource(file, content)
	state := &fileState{
		version:     version,
		fingerprint: fingerprint,
		imports:     imports,
		diagnostics: diagnostics,
	}
	s.files[file] = state
	return state, nil
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Column < diags[j].Column
	})
}
