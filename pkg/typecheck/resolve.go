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

package typecheck

import (
	"fmt"
	"path"
	"strings"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

// resolveExtensions is the try order for extensionless imports.
var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".json"}

// resolveImport routes one import: a VFS path to keep walking, or a
// diagnostic when nothing can satisfy the specifier. An empty path with
// a nil diagnostic means the import is satisfied outside the program
// (installed types, shared module, builtin).
func (s *Service) resolveImport(importer string, imp importRef, cfg CompilerOptions) (string, *Diagnostic) {
	spec := imp.spec

	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		base := spec
		if !strings.HasPrefix(spec, "/") {
			base = path.Join(path.Dir(importer), spec)
		}
		if resolved := resolveFile(s.fs, base); resolved != "" {
			return resolved, nil
		}
		return "", s.cannotFind(importer, imp)
	}

	// Alias resolution via tsconfig paths/baseUrl.
	for _, candidate := range resolveAlias(spec, cfg) {
		if resolved := resolveFile(s.fs, candidate); resolved != "" {
			return resolved, nil
		}
	}

	if s.shared[spec] || s.shared[packageName(spec)] {
		return "", nil
	}
	if isBuiltinModule(spec) {
		return "", nil
	}
	if s.hasInstalledTypes(packageName(spec)) {
		return "", nil
	}
	return "", s.cannotFind(importer, imp)
}

func (s *Service) cannotFind(importer string, imp importRef) *Diagnostic {
	return &Diagnostic{
		File:     importer,
		Line:     imp.line,
		Column:   imp.column,
		Message:  fmt.Sprintf("Cannot find module '%s' or its corresponding type declarations.", imp.spec),
		Severity: SeverityError,
	}
}

// resolveFile tries the extension order, then index files.
func resolveFile(fs vfs.FS, base string) string {
	base = vfs.Normalize(base)
	if fs.Exists(base) {
		if info, err := fs.Stat(base); err == nil && !info.IsDir {
			return base
		}
	}
	for _, ext := range resolveExtensions {
		if candidate := base + ext; fileExists(fs, candidate) {
			return candidate
		}
	}
	for _, ext := range resolveExtensions {
		if candidate := base + "/index" + ext; fileExists(fs, candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(fs vfs.FS, p string) bool {
	info, err := fs.Stat(p)
	return err == nil && !info.IsDir
}

// hasInstalledTypes reports whether a type tree exists under
// /node_modules/<pkg>.
func (s *Service) hasInstalledTypes(pkg string) bool {
	return s.fs.Exists("/node_modules/" + pkg)
}

// packageName splits a bare specifier down to its package, consuming
// two segments for scoped names.
func packageName(spec string) string {
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return spec
	}
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return spec[:i]
	}
	return spec
}

// builtinModules never need installed types for resolution to succeed.
var builtinModules = map[string]bool{
	"assert": true, "buffer": true, "crypto": true, "events": true,
	"fs": true, "http": true, "https": true, "os": true, "path": true,
	"process": true, "stream": true, "url": true, "util": true, "zlib": true,
}

func isBuiltinModule(spec string) bool {
	return strings.HasPrefix(spec, "node:") || builtinModules[spec]
}
