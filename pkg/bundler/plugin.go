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

package bundler

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

const (
	nsVFS    = "vfs"
	nsShared = "shared"
)

// resolveExtensions is the try order for extensionless relative
// imports, then index files with the same order.
var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".json"}

// vfsPlugin routes every import of a build to the VFS, a CDN URL, or a
// shared-module stub.
type vfsPlugin struct {
	fs      vfs.FS
	cdnBase string
	opts    Options

	mu       sync.Mutex
	seen     map[string]bool
	included []string
}

func newVFSPlugin(fs vfs.FS, cdnBase string, opts Options) *vfsPlugin {
	return &vfsPlugin{
		fs:      fs,
		cdnBase: cdnBase,
		opts:    opts,
		seen:    make(map[string]bool),
	}
}

// includedFiles returns every VFS path read during the build, in
// first-visit order.
func (p *vfsPlugin) includedFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := make([]string, len(p.included))
	copy(files, p.included)
	return files
}

func (p *vfsPlugin) plugin() api.Plugin {
	return api.Plugin{
		Name: "sandlot-vfs",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, p.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: nsVFS}, p.onLoadVFS)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: nsShared}, p.onLoadShared)
		},
	}
}

func (p *vfsPlugin) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if args.Kind == api.ResolveEntryPoint {
		return api.OnResolveResult{Path: vfs.Normalize(args.Path), Namespace: nsVFS}, nil
	}

	if isBare(args.Path) {
		return p.resolveBare(args.Path)
	}

	base := args.Path
	if !strings.HasPrefix(base, "/") {
		base = path.Join(path.Dir(args.Importer), base)
	}
	if resolved := resolveFile(p.fs, base); resolved != "" {
		return api.OnResolveResult{Path: resolved, Namespace: nsVFS}, nil
	}
	return api.OnResolveResult{}, fmt.Errorf("could not resolve %q from %q", args.Path, args.Importer)
}

// resolveBare handles bare specifiers: shared module, installed
// package, or external as-is. An import of a package that is neither
// shared nor installed is left external unchanged; loading it is the
// runtime's problem, which is the documented "package not installed"
// behavior.
func (p *vfsPlugin) resolveBare(spec string) (api.OnResolveResult, error) {
	// Subpath sharing requires exact registration; a registered "react"
	// does not claim "react/jsx-runtime".
	if p.opts.Registry != nil && p.opts.Registry.Has(spec) {
		return api.OnResolveResult{Path: spec, Namespace: nsShared}, nil
	}

	pkg, subpath := splitBare(spec)
	if version, ok := p.opts.InstalledPackages[pkg]; ok {
		external := p.cdnBase + "/" + pkg + "@" + version
		if subpath != "" {
			external += "/" + subpath
		}
		return api.OnResolveResult{Path: external, External: true}, nil
	}

	return api.OnResolveResult{Path: spec, External: true}, nil
}

func (p *vfsPlugin) onLoadVFS(args api.OnLoadArgs) (api.OnLoadResult, error) {
	content, err := p.fs.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	p.mu.Lock()
	if !p.seen[args.Path] {
		p.seen[args.Path] = true
		p.included = append(p.included, args.Path)
	}
	p.mu.Unlock()

	return api.OnLoadResult{Contents: &content, Loader: loaderFor(args.Path)}, nil
}

func (p *vfsPlugin) onLoadShared(args api.OnLoadArgs) (api.OnLoadResult, error) {
	names, err := p.opts.Registry.ExportNames(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	stub := stubSource(p.opts.Registry.RegistryKey(), args.Path, names)
	return api.OnLoadResult{Contents: &stub, Loader: api.LoaderJS}, nil
}

// isBare reports whether spec refers to a package rather than a path.
func isBare(spec string) bool {
	return !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/")
}

// splitBare splits a bare specifier into package name and subpath;
// scoped names consume the first two segments.
func splitBare(spec string) (pkg, subpath string) {
	segments := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") {
		if len(segments) < 2 {
			return spec, ""
		}
		pkg = segments[0] + "/" + segments[1]
		if len(segments) == 3 {
			subpath = segments[2]
		}
		return pkg, subpath
	}
	pkg = segments[0]
	if len(segments) > 1 {
		subpath = strings.Join(segments[1:], "/")
	}
	return pkg, subpath
}

// resolveFile tries base as-is, then the extension order, then index
// files.
func resolveFile(fs vfs.FS, base string) string {
	base = vfs.Normalize(base)
	if info, err := fs.Stat(base); err == nil && !info.IsDir {
		return base
	}
	for _, ext := range resolveExtensions {
		candidate := base + ext
		if info, err := fs.Stat(candidate); err == nil && !info.IsDir {
			return candidate
		}
	}
	for _, ext := range resolveExtensions {
		candidate := base + "/index" + ext
		if info, err := fs.Stat(candidate); err == nil && !info.IsDir {
			return candidate
		}
	}
	return ""
}

// loaderFor picks the content loader by extension; unknown extensions
// load as js.
func loaderFor(p string) api.Loader {
	switch path.Ext(p) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".js", ".mjs":
		return api.LoaderJS
	case ".json":
		return api.LoaderJSON
	case ".css":
		return api.LoaderCSS
	case ".txt", ".text":
		return api.LoaderText
	default:
		return api.LoaderJS
	}
}
