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

// Package sharedmod implements the shared-module registry.
//
// A shared module is a module the host pins by value so bundled code
// reuses the host's instance at runtime. The registry lives under an
// instance-unique key in an ambient global table; the bundler bakes that
// key into the stub it emits, and the loader exposes the registry it is
// given under that key on the JS runtime's global object. That key is the only bridge between host
// state and bundled code, which keeps independent sandlots isolated from
// each other.
package sharedmod

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Module is a host module's export set, keyed by export name. The key
// "default" carries the default export.
type Module map[string]any

// identifierPattern matches JS identifier-shaped export names.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// reservedWords are names never emitted as static re-exports. "default"
// is handled by the stub's runtime fallback instead.
var reservedWords = map[string]bool{
	"default":  true,
	"class":    true,
	"function": true,
	"var":      true,
	"let":      true,
	"const":    true,
	"import":   true,
	"export":   true,
}

type registration struct {
	module      Module
	exportNames []string
}

// Registry pins host modules for the lifetime of a sandlot. It is written
// only at construction and read-only afterwards.
type Registry struct {
	key     string
	entries map[string]registration
}

// New creates a registry over the given modules, computes each module's
// legal re-export names, and binds the registry into the ambient global
// table under a fresh instance-unique key.
func New(modules map[string]Module) *Registry {
	r := &Registry{
		key:     fmt.Sprintf("__sandlot_registry_%s__", strings.ReplaceAll(uuid.NewString(), "-", "")),
		entries: make(map[string]registration, len(modules)),
	}
	for id, mod := range modules {
		r.entries[id] = registration{
			module:      mod,
			exportNames: introspectExports(mod),
		}
	}
	bindAmbient(r.key, r)
	return r
}

// introspectExports returns the sorted subset of the module's own keys
// that are valid identifiers and not reserved words.
func introspectExports(mod Module) []string {
	var names []string
	for name := range mod {
		if !identifierPattern.MatchString(name) || reservedWords[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryKey returns the global property name this registry is bound
// under.
func (r *Registry) RegistryKey() string {
	return r.key
}

// Has reports whether id names a registered module.
func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Get returns the module registered under id. An unknown id is a
// developer error and returns *UnknownModuleError naming every registered
// id; it never silently returns a stub.
func (r *Registry) Get(id string) (Module, error) {
	reg, ok := r.entries[id]
	if !ok {
		return nil, &UnknownModuleError{ID: id, Known: r.List()}
	}
	return reg.module, nil
}

// ExportNames returns the pre-computed re-export names for id.
func (r *Registry) ExportNames(id string) ([]string, error) {
	reg, ok := r.entries[id]
	if !ok {
		return nil, &UnknownModuleError{ID: id, Known: r.List()}
	}
	names := make([]string, len(reg.exportNames))
	copy(names, reg.exportNames)
	return names, nil
}

// List returns every registered module id, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close removes the registry's ambient global binding. The registry is
// unusable from bundled code afterwards.
func (r *Registry) Close() {
	unbindAmbient(r.key)
}

// UnknownModuleError is returned for lookups of unregistered module ids.
type UnknownModuleError struct {
	ID    string
	Known []string
}

func (e *UnknownModuleError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown shared module %q; no modules are registered", e.ID)
	}
	return fmt.Sprintf("unknown shared module %q; registered modules: %s", e.ID, strings.Join(e.Known, ", "))
}

// ambient is the process-wide global table registries bind into, the Go
// analogue of the host's globalThis. The loader does not read this table;
// it binds the registry passed to Load under the same key.
var (
	ambientMu sync.RWMutex
	ambient   = make(map[string]*Registry)
)

func bindAmbient(key string, r *Registry) {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	ambient[key] = r
}

func unbindAmbient(key string) {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	delete(ambient, key)
}

// Ambient returns the registry bound under key, if any.
func Ambient(key string) (*Registry, bool) {
	ambientMu.RLock()
	defer ambientMu.RUnlock()
	r, ok := ambient[key]
	return r, ok
}
