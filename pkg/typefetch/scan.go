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

package typefetch

import (
	"regexp"
	"strings"
)

// Declaration files are syntactically tame, so specifier extraction is a
// line scanner rather than a parser. It handles import/export-from
// clauses, bare side-effect imports, import(...) type positions, and
// triple-slash reference directives.
var (
	importFromPattern = regexp.MustCompile(`(?:import|export)\s+[^'"]*?\bfrom\s*['"]([^'"]+)['"]`)
	importBarePattern = regexp.MustCompile(`^\s*import\s*['"]([^'"]+)['"]`)
	importCallPattern = regexp.MustCompile(`import\(\s*['"]([^'"]+)['"]\s*\)`)
	referencePattern  = regexp.MustCompile(`^\s*///\s*<reference\s+(lib|path|types)\s*=\s*['"]([^'"]+)['"]`)
)

// scanResult is everything one file declares about other modules.
type scanResult struct {
	// specifiers are import/export specifiers, deduplicated in first-seen
	// order: relative paths, bare names, or absolute URLs.
	specifiers []string
	// referenceLibs are lib names from /// <reference lib="..."/> lines.
	referenceLibs []string
	// referenceTypes are package names from /// <reference types="..."/>.
	referenceTypes []string
	// referencePaths are relative paths from /// <reference path="..."/>.
	referencePaths []string
}

// scanFile extracts module references from one .d.ts file.
func scanFile(content string) scanResult {
	var res scanResult
	seen := make(map[string]bool)
	add := func(dst *[]string, value string) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		*dst = append(*dst, value)
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") && !strings.HasPrefix(trimmed, "///") {
			continue
		}

		if m := referencePattern.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case "lib":
				add(&res.referenceLibs, m[2])
			case "types":
				add(&res.referenceTypes, m[2])
			case "path":
				add(&res.referencePaths, m[2])
			}
			continue
		}

		if m := importBarePattern.FindStringSubmatch(line); m != nil {
			add(&res.specifiers, m[1])
		}
		for _, m := range importFromPattern.FindAllStringSubmatch(line, -1) {
			add(&res.specifiers, m[1])
		}
		for _, m := range importCallPattern.FindAllStringSubmatch(line, -1) {
			add(&res.specifiers, m[1])
		}
	}
	return res
}

// nodeBuiltins are specifiers that never become peer type dependencies.
var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "crypto": true,
	"events": true, "fs": true, "http": true, "https": true, "net": true,
	"os": true, "path": true, "process": true, "stream": true,
	"string_decoder": true, "timers": true, "tls": true, "tty": true,
	"url": true, "util": true, "worker_threads": true, "zlib": true,
}

// isBuiltin reports whether spec names a node builtin module.
func isBuiltin(spec string) bool {
	if strings.HasPrefix(spec, "node:") {
		return true
	}
	return nodeBuiltins[spec]
}

// packageOf splits a bare specifier into its package name, consuming two
// segments for scoped names: "@tanstack/react-query/build/x" yields
// "@tanstack/react-query".
func packageOf(spec string) string {
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
