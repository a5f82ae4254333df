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

// Package sandbox is the build-core facade: one isolated project with a
// VFS, an installed-packages view derived from /package.json, and a
// build history.
//
// Calls to Build, Typecheck, Install and Uninstall are serialized per
// sandbox; a second call started while the first is suspended queues
// behind it instead of interleaving. Shared caches upstream are safe
// under cross-sandbox interleaving, so no ordering is guaranteed across
// sandboxes.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/loader"
	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/typecheck"
	"github.com/blindmansion/sandlot/pkg/typefetch"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

// PackageJSONPath is the project manifest location.
const PackageJSONPath = "/package.json"

// DefaultEntry is the entry point used when neither the caller nor the
// manifest names one.
const DefaultEntry = "/index.ts"

// Validator inspects (and may replace) a loaded module before it is
// published. Returning a non-nil value substitutes the module; a nil
// value keeps it; an error fails the build in the validate phase.
type Validator func(module *loader.Module) (any, error)

// Subscriber observes published builds. Subscriber panics and errors
// are logged and swallowed; they never fail a build.
type Subscriber func(result *BuildResult)

// BuildRecorder persists build outcomes; wired by the sandlot when a
// history store is configured.
type BuildRecorder interface {
	Record(ctx context.Context, sandboxID string, result *BuildResult)
}

// Services are the pooled collaborators a sandbox runs against.
type Services struct {
	Bundler  bundler.Bundler
	Resolver *typefetch.Resolver
	Libs     *typefetch.LibFetcher
	Loader   *loader.Loader
	Registry *sharedmod.Registry

	// NewChecker builds the typechecking service for this sandbox.
	// Nil uses the default checker.
	NewChecker func(fs vfs.FS, libs map[string]string, shared []string) typecheck.Checker

	Validator Validator
	History   BuildRecorder
	Logger    *slog.Logger
}

// Sandbox owns one project. Create through a sandlot.
type Sandbox struct {
	id  string
	fs  *vfs.MemFS
	svc Services

	// op serializes the stateful pipeline operations.
	op sync.Mutex

	checker   typecheck.Checker
	checkLibs map[string]string

	subMu       sync.Mutex
	subscribers []subscription
	nextSubID   int

	lastBuild atomic.Pointer[BuildResult]
	disposed  atomic.Bool

	logger *slog.Logger
}

type subscription struct {
	id int
	fn Subscriber
}

// New creates a sandbox over a fresh VFS. Most callers go through
// sandlot.New().NewSandbox() instead.
func New(svc Services) *Sandbox {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Sandbox{
		id:     id,
		fs:     vfs.NewMemFS(),
		svc:    svc,
		logger: logger.With("component", "sandbox", "sandbox_id", id),
	}
}

// ID returns the sandbox's unique identifier.
func (s *Sandbox) ID() string { return s.id }

// FS returns the sandbox's filesystem. The sandbox owns it exclusively;
// it dies with the sandbox.
func (s *Sandbox) FS() *vfs.MemFS { return s.fs }

// LastBuild returns the most recently published build, or nil.
func (s *Sandbox) LastBuild() *BuildResult { return s.lastBuild.Load() }

// Subscribe registers fn for published builds and returns an
// unsubscribe function. Subscribers run sequentially in registration
// order after lastBuild is visible.
func (s *Sandbox) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Dispose tears the sandbox down. An in-flight build completes against
// the orphaned VFS but its result is discarded; subscribers are not
// invoked after disposal.
func (s *Sandbox) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.subMu.Lock()
	s.subscribers = nil
	s.subMu.Unlock()
	s.logger.Debug("sandbox disposed")
}

// Disposed reports whether Dispose has been called.
func (s *Sandbox) Disposed() bool { return s.disposed.Load() }

// publish stores the result and notifies subscribers in order.
func (s *Sandbox) publish(result *BuildResult) {
	if s.disposed.Load() {
		return
	}
	s.lastBuild.Store(result)

	s.subMu.Lock()
	subs := make([]subscription, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("build subscriber panicked", "error", fmt.Sprint(r))
				}
			}()
			sub.fn(result)
		}()
	}
}

// ensureChecker lazily constructs the typechecking service with the
// standard-library closure and the registry's shared ids.
func (s *Sandbox) ensureChecker(ctx context.Context) typecheck.Checker {
	if s.checker != nil {
		return s.checker
	}

	if s.checkLibs == nil && s.svc.Libs != nil {
		libs, err := s.svc.Libs.Fetch(ctx, nil)
		if err != nil {
			// Checking proceeds without ambient libs; resolution of
			// project files does not depend on them.
			s.logger.Warn("standard library fetch failed", "error", err)
			libs = map[string]string{}
		}
		s.checkLibs = libs
	}

	var shared []string
	if s.svc.Registry != nil {
		shared = s.svc.Registry.List()
	}

	if s.svc.NewChecker != nil {
		s.checker = s.svc.NewChecker(s.fs, s.checkLibs, shared)
	} else {
		s.checker = typecheck.NewService(typecheck.ServiceOptions{
			FS:            s.fs,
			Libs:          s.checkLibs,
			SharedModules: shared,
			Logger:        s.logger,
		})
	}
	return s.checker
}

// manifest is the parsed view of /package.json. Unknown fields are
// preserved through edits.
type manifest struct {
	raw map[string]json.RawMessage
}

func (s *Sandbox) readManifest() *manifest {
	m := &manifest{raw: map[string]json.RawMessage{}}
	content, err := s.fs.ReadFile(PackageJSONPath)
	if err != nil {
		return m
	}
	// A corrupt manifest behaves like an empty one; typecheck surfaces
	// the consequences.
	_ = json.Unmarshal([]byte(content), &m.raw)
	return m
}

func (s *Sandbox) writeManifest(m *manifest) error {
	data, err := json.MarshalIndent(m.raw, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(PackageJSONPath, string(data)+"\n")
}

// Main returns the manifest's main entry, or "".
func (m *manifest) Main() string {
	raw, ok := m.raw["main"]
	if !ok {
		return ""
	}
	var main string
	if err := json.Unmarshal(raw, &main); err != nil {
		return ""
	}
	return main
}

// Dependencies returns the pinned dependency map (never nil).
func (m *manifest) Dependencies() map[string]string {
	deps := map[string]string{}
	if raw, ok := m.raw["dependencies"]; ok {
		_ = json.Unmarshal(raw, &deps)
	}
	return deps
}

func (m *manifest) setDependency(name, version string) {
	deps := m.Dependencies()
	deps[name] = version
	data, _ := json.Marshal(deps)
	m.raw["dependencies"] = data
}

func (m *manifest) removeDependency(name string) bool {
	deps := m.Dependencies()
	if _, ok := deps[name]; !ok {
		return false
	}
	delete(deps, name)
	data, _ := json.Marshal(deps)
	m.raw["dependencies"] = data
	return true
}

// InstalledPackages returns the current dependency pins.
func (s *Sandbox) InstalledPackages() map[string]string {
	return s.readManifest().Dependencies()
}
