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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

// ConfigPath is where the service looks for compiler options.
const ConfigPath = "/tsconfig.json"

// CompilerOptions is the subset of tsconfig.json the service honors.
type CompilerOptions struct {
	Target            string              `json:"target"`
	Module            string              `json:"module"`
	ModuleResolution  string              `json:"moduleResolution"`
	JSX               string              `json:"jsx"`
	Strict            bool                `json:"strict"`
	ESModuleInterop   bool                `json:"esModuleInterop"`
	SkipLibCheck      bool                `json:"skipLibCheck"`
	ResolveJSONModule bool                `json:"resolveJsonModule"`
	IsolatedModules   bool                `json:"isolatedModules"`
	BaseURL           string              `json:"baseUrl"`
	Paths             map[string][]string `json:"paths"`
	Lib               []string            `json:"lib"`
}

type tsconfig struct {
	CompilerOptions CompilerOptions `json:"compilerOptions"`
}

// defaultOptions are synthesized when /tsconfig.json is missing.
func defaultOptions() CompilerOptions {
	return CompilerOptions{
		Target:            "es2020",
		Module:            "esnext",
		ModuleResolution:  "bundler",
		JSX:               "react-jsx",
		Strict:            true,
		ESModuleInterop:   true,
		SkipLibCheck:      true,
		ResolveJSONModule: true,
		IsolatedModules:   true,
	}
}

// loadConfig reads /tsconfig.json, tolerating // line comments. A
// malformed config falls back to defaults and reports a warning rather
// than failing the check.
func loadConfig(fs vfs.FS) (CompilerOptions, []Diagnostic) {
	raw, err := fs.ReadFile(ConfigPath)
	if err != nil {
		return defaultOptions(), nil
	}

	var parsed tsconfig
	if err := json.Unmarshal([]byte(stripLineComments(raw)), &parsed); err != nil {
		return defaultOptions(), []Diagnostic{{
			File:     ConfigPath,
			Message:  fmt.Sprintf("tsconfig.json could not be parsed: %v; using defaults", err),
			Severity: SeverityWarning,
		}}
	}

	opts := defaultOptions()
	merge := parsed.CompilerOptions
	if merge.Target != "" {
		opts.Target = merge.Target
	}
	if merge.Module != "" {
		opts.Module = merge.Module
	}
	if merge.ModuleResolution != "" {
		opts.ModuleResolution = merge.ModuleResolution
	}
	if merge.JSX != "" {
		opts.JSX = merge.JSX
	}
	if merge.BaseURL != "" {
		opts.BaseURL = merge.BaseURL
	}
	if merge.Paths != nil {
		opts.Paths = merge.Paths
	}
	if merge.Lib != nil {
		opts.Lib = merge.Lib
	}
	return opts, nil
}

// stripLineComments removes // comments outside string literals; full
// JSONC is out of scope, line comments cover what editors emit.
func stripLineComments(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		inString := false
		cut := len(line)
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '"':
				if i == 0 || line[i-1] != '\\' {
					inString = !inString
				}
			case '/':
				if !inString && i+1 < len(line) && line[i+1] == '/' {
					cut = i
				}
			}
			if cut != len(line) {
				break
			}
		}
		b.WriteString(line[:cut])
		b.WriteByte('\n')
	}
	return b.String()
}

// resolveAlias applies paths/baseUrl mappings to a bare specifier,
// returning the mapped VFS path candidates: patterns in sorted order,
// each pattern's targets in declaration order.
func resolveAlias(spec string, opts CompilerOptions) []string {
	base := opts.BaseURL
	if base == "" {
		base = "/"
	}

	patterns := make([]string, 0, len(opts.Paths))
	for pattern := range opts.Paths {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	var candidates []string
	for _, pattern := range patterns {
		targets := opts.Paths[pattern]
		prefix, ok := strings.CutSuffix(pattern, "*")
		wildcard := ok
		if !wildcard && pattern != spec {
			continue
		}
		if wildcard && !strings.HasPrefix(spec, prefix) {
			continue
		}
		rest := strings.TrimPrefix(spec, prefix)
		for _, target := range targets {
			mapped := target
			if wildcard {
				mapped = strings.Replace(target, "*", rest, 1)
			}
			candidates = append(candidates, vfs.Normalize(joinPath(base, mapped)))
		}
	}
	return candidates
}

func joinPath(base, p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "./")
}
