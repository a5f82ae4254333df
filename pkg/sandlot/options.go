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

package sandlot

import (
	"log/slog"
	"net/http"

	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/httpclient"
	"github.com/blindmansion/sandlot/pkg/loader"
	"github.com/blindmansion/sandlot/pkg/sandbox"
	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/typecache"
	"github.com/blindmansion/sandlot/pkg/typecheck"
	"github.com/blindmansion/sandlot/pkg/vfs"
	"golang.org/x/time/rate"
)

// httpClientIface keeps config free of a hard *http.Client field name
// clash; it is always an *http.Client.
type httpClientIface = *http.Client

// newCheckerFunc builds a per-sandbox typechecker.
type newCheckerFunc = func(fs vfs.FS, libs map[string]string, shared []string) typecheck.Checker

// Option customizes a sandlot.
type Option func(*config)

// WithCDNBase points the resolver, bundler and loader at a different
// module-graph CDN origin.
func WithCDNBase(base string) Option {
	return func(c *config) { c.cdnBase = base }
}

// WithLibURLTemplate overrides where lib.<name>.d.ts files come from.
// {version} and {name} are substituted.
func WithLibURLTemplate(template string) Option {
	return func(c *config) { c.libURLTemplate = template }
}

// WithTSVersion keys the lib cache to a specific compiler version.
func WithTSVersion(version string) Option {
	return func(c *config) { c.tsVersion = version }
}

// WithRateLimit bounds CDN requests per second.
func WithRateLimit(limit rate.Limit) Option {
	return func(c *config) { c.rateLimit = limit }
}

// WithHTTPConfig replaces the HTTP client factory configuration.
func WithHTTPConfig(cfg httpclient.Config) Option {
	return func(c *config) { c.httpConfig = cfg }
}

// WithHTTPClient supplies a pre-built client, bypassing the factory.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithDiskCache persists both type caches under dir using the
// filesystem layout (ts-libs/, package-types/).
func WithDiskCache(dir string) Option {
	return func(c *config) { c.cacheDir = dir }
}

// WithBoltCache persists both type caches in a single bbolt database.
func WithBoltCache(path string) Option {
	return func(c *config) { c.boltPath = path }
}

// WithPackageStore replaces the package type cache backend.
func WithPackageStore(store typecache.PackageStore) Option {
	return func(c *config) { c.packageStore = store }
}

// WithLibStore replaces the lib cache backend.
func WithLibStore(store typecache.LibStore) Option {
	return func(c *config) { c.libStore = store }
}

// WithSharedModules pins host modules so bundled code reuses the
// host's instances at runtime.
func WithSharedModules(modules map[string]sharedmod.Module) Option {
	return func(c *config) { c.sharedModules = modules }
}

// WithValidator installs the post-load validation hook on every
// sandbox this sandlot creates.
func WithValidator(v sandbox.Validator) Option {
	return func(c *config) { c.validator = v }
}

// WithHistory records every build outcome through the given recorder.
func WithHistory(recorder sandbox.BuildRecorder) Option {
	return func(c *config) { c.history = recorder }
}

// WithBundler replaces the bundling engine.
func WithBundler(b bundler.Bundler) Option {
	return func(c *config) { c.bundler = b }
}

// WithLoader replaces the module loader.
func WithLoader(l *loader.Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithChecker replaces the typechecker each sandbox constructs.
func WithChecker(factory newCheckerFunc) Option {
	return func(c *config) { c.newChecker = factory }
}

// WithLogger sets the root logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}
