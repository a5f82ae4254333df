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

// Package loader turns a bundled ES module into a live module object.
//
// The artifact stays an ES module; for evaluation it is converted to
// CommonJS and run in an embedded JS runtime under a
// (module, exports, require) wrapper. require resolves absolute CDN
// URLs over HTTP with per-URL memoization, which is how installed
// packages left external by the bundler come alive at load time. The
// shared-module registry is bound onto the runtime's global object
// under its registry key before anything executes, so the bundler's
// stubs find the very same host values.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/blindmansion/sandlot/pkg/sharedmod"
)

// Error is a load-phase failure: evaluation threw, an external module
// could not be fetched, or the artifact could not be converted.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("load failed: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Module is a loaded module object.
type Module struct {
	rt      *goja.Runtime
	exports *goja.Object
}

// Loader evaluates bundles. One instance serves a sandlot; each Load
// call builds a fresh runtime so sandboxes never share JS state.
type Loader struct {
	http   *http.Client
	logger *slog.Logger
}

// New creates a Loader. httpClient serves external module fetches;
// nil means http.DefaultClient.
func New(httpClient *http.Client, logger *slog.Logger) *Loader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{http: httpClient, logger: logger.With("component", "loader")}
}

// Load evaluates code (an ES module) and returns its module object.
// registry may be nil when no modules are shared.
func (l *Loader) Load(ctx context.Context, code string, registry *sharedmod.Registry) (*Module, error) {
	rt := goja.New()

	if registry != nil {
		if err := bindRegistry(rt, registry); err != nil {
			return nil, &Error{Message: "binding shared-module registry", Cause: err}
		}
	}

	// Interrupt evaluation when the context dies.
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				rt.Interrupt(ctx.Err())
			case <-stop:
			}
		}()
	}

	eval := &evaluator{loader: l, rt: rt, ctx: ctx, modules: make(map[string]goja.Value)}
	exports, err := eval.run(code, "")
	if err != nil {
		return nil, err
	}
	return &Module{rt: rt, exports: exports}, nil
}

// Get returns the exported value under name, unwrapped to its Go
// representation. Host-provided shared values come back identical to
// what the host registered.
func (m *Module) Get(name string) any {
	v := m.exports.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}

// Default returns the module's default export, or nil.
func (m *Module) Default() any {
	return m.Get("default")
}

// Names returns the module's export names, sorted.
func (m *Module) Names() []string {
	keys := m.exports.Keys()
	sort.Strings(keys)
	return keys
}

// Call invokes the exported function under name.
func (m *Module) Call(name string, args ...any) (any, error) {
	fn, ok := goja.AssertFunction(m.exports.Get(name))
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("export %q is not a function", name)}
	}
	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = m.rt.ToValue(arg)
	}
	result, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("calling export %q", name), Cause: err}
	}
	return result.Export(), nil
}

// bindRegistry exposes get/has on globalThis under the registry key.
// Module objects are memoized per runtime so repeated gets observe the
// same JS object.
func bindRegistry(rt *goja.Runtime, registry *sharedmod.Registry) error {
	memo := make(map[string]goja.Value)

	obj := rt.NewObject()
	if err := obj.Set("get", func(id string) (goja.Value, error) {
		if cached, ok := memo[id]; ok {
			return cached, nil
		}
		mod, err := registry.Get(id)
		if err != nil {
			return nil, err
		}
		value := rt.ToValue(map[string]any(mod))
		memo[id] = value
		return value, nil
	}); err != nil {
		return err
	}
	if err := obj.Set("has", registry.Has); err != nil {
		return err
	}
	if err := obj.Set("list", registry.List); err != nil {
		return err
	}
	return rt.GlobalObject().Set(registry.RegistryKey(), obj)
}

// evaluator runs one load's module graph with per-URL memoization.
type evaluator struct {
	loader  *Loader
	rt      *goja.Runtime
	ctx     context.Context
	modules map[string]goja.Value // URL -> module.exports
}

// run converts an ES module body to CommonJS and evaluates it.
// from is the module's own URL ("" for the root bundle), used to
// resolve relative imports of external modules.
func (e *evaluator) run(code, from string) (*goja.Object, error) {
	cjs, err := toCommonJS(code, from)
	if err != nil {
		return nil, err
	}

	wrapper := "(function (module, exports, require) {\n" + cjs + "\n})"
	fnValue, err := e.rt.RunString(wrapper)
	if err != nil {
		return nil, &Error{Message: "compiling module", Cause: err}
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, &Error{Message: "module wrapper did not compile to a function"}
	}

	module := e.rt.NewObject()
	exports := e.rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, &Error{Message: "preparing module object", Cause: err}
	}

	require := e.rt.ToValue(func(spec string) (goja.Value, error) {
		return e.require(spec, from)
	})

	if _, err := fn(goja.Undefined(), module, exports, require); err != nil {
		return nil, &Error{Message: "evaluating module", Cause: err}
	}

	result := module.Get("exports")
	obj, ok := result.(*goja.Object)
	if !ok {
		obj = result.ToObject(e.rt)
	}
	return obj, nil
}

// require resolves one runtime import: absolute (or importer-relative)
// URLs are fetched and evaluated; anything else is unavailable at
// runtime by contract.
func (e *evaluator) require(spec, from string) (goja.Value, error) {
	target, err := resolveRuntimeSpec(spec, from)
	if err != nil {
		return nil, err
	}

	if cached, ok := e.modules[target]; ok {
		return cached, nil
	}

	body, err := e.fetch(target)
	if err != nil {
		return nil, err
	}

	// Publish a placeholder first so cyclic URL graphs terminate.
	placeholder := e.rt.NewObject()
	e.modules[target] = placeholder

	exports, err := e.run(body, target)
	if err != nil {
		delete(e.modules, target)
		return nil, err
	}
	e.modules[target] = exports
	return exports, nil
}

func (e *evaluator) fetch(target string) (string, error) {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &Error{Message: "building module request", Cause: err}
	}
	resp, err := e.loader.http.Do(req)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("fetching module %s", target), Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Message: fmt.Sprintf("fetching module %s: HTTP %d", target, resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("reading module %s", target), Cause: err}
	}
	e.loader.logger.Debug("external module loaded", "url", target, "bytes", len(body))
	return string(body), nil
}

// resolveRuntimeSpec maps a require specifier to an absolute URL.
func resolveRuntimeSpec(spec, from string) (string, error) {
	if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
		return spec, nil
	}
	if from != "" && (strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/")) {
		base, err := url.Parse(from)
		if err == nil {
			rel, err := url.Parse(spec)
			if err == nil {
				return base.ResolveReference(rel).String(), nil
			}
		}
	}
	return "", &Error{Message: fmt.Sprintf("module %q is not available at runtime; install it or register it as a shared module", spec)}
}

// toCommonJS converts an ES module body for evaluation. The conversion
// is loader-internal; the public artifact stays an ES module.
func toCommonJS(code, sourceName string) (string, error) {
	if sourceName == "" {
		sourceName = "bundle.js"
	}
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		Sourcefile: sourceName,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", &Error{Message: "converting module for evaluation: " + result.Errors[0].Text}
	}
	return string(result.Code), nil
}
