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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// importRef is one import in a source file, with its 1-based position
// for diagnostics.
type importRef struct {
	spec   string
	line   int
	column int
}

var (
	srcImportFrom = regexp.MustCompile(`(?:import|export)\s+[^'"]*?\bfrom\s*('[^']+'|"[^"]+")`)
	srcImportBare = regexp.MustCompile(`^\s*import\s*('[^']+'|"[^"]+")`)
	srcImportCall = regexp.MustCompile(`import\(\s*('[^']+'|"[^"]+")\s*\)`)

	// declPattern matches annotated primitive declarations whose
	// initializer is a literal the checker can classify.
	declPattern = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*:\s*(number|string|boolean)\s*=\s*([^;]+?)\s*;`)

	numberLiteralPattern = regexp.MustCompile(`^-?(\d+(\.\d+)?|\.\d+)$`)
)

// analyzeSource produces one file's imports and diagnostics: parse
// errors through the bundling engine's parser, then the literal
// assignability check.
func analyzeSource(file, content string) ([]importRef, []Diagnostic) {
	var diagnostics []Diagnostic

	diagnostics = append(diagnostics, syntaxDiagnostics(file, content)...)
	diagnostics = append(diagnostics, literalDiagnostics(file, content)...)

	return scanSourceImports(content), diagnostics
}

// syntaxDiagnostics runs the file through an es2020 transform and maps
// the parser's messages.
func syntaxDiagnostics(file, content string) []Diagnostic {
	result := api.Transform(content, api.TransformOptions{
		Loader:     loaderFor(file),
		Target:     api.ES2020,
		JSX:        api.JSXAutomatic,
		Sourcefile: file,
		LogLevel:   api.LogLevelSilent,
	})

	var diagnostics []Diagnostic
	for _, msg := range result.Errors {
		diagnostics = append(diagnostics, messageDiagnostic(file, msg, SeverityError))
	}
	for _, msg := range result.Warnings {
		diagnostics = append(diagnostics, messageDiagnostic(file, msg, SeverityWarning))
	}
	return diagnostics
}

func messageDiagnostic(file string, msg api.Message, severity Severity) Diagnostic {
	d := Diagnostic{File: file, Message: msg.Text, Severity: severity}
	if msg.Location != nil {
		d.Line = msg.Location.Line
		d.Column = msg.Location.Column + 1
	}
	return d
}

// literalDiagnostics flags annotated primitive declarations initialized
// with a literal of a different primitive type.
func literalDiagnostics(file, content string) []Diagnostic {
	var diagnostics []Diagnostic
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		for _, m := range declPattern.FindAllStringSubmatchIndex(line, -1) {
			annotated := line[m[4]:m[5]]
			value := strings.TrimSpace(line[m[6]:m[7]])
			actual, ok := literalType(value)
			if !ok || actual == annotated {
				continue
			}
			diagnostics = append(diagnostics, Diagnostic{
				File:     file,
				Line:     i + 1,
				Column:   m[2] + 1,
				Message:  fmt.Sprintf("Type '%s' is not assignable to type '%s'.", literalDisplay(value, actual), annotated),
				Severity: SeverityError,
			})
		}
	}
	return diagnostics
}

// literalType classifies a literal initializer; ok is false for
// anything that is not a plain literal.
func literalType(value string) (string, bool) {
	switch {
	case value == "true" || value == "false":
		return "boolean", true
	case len(value) >= 2 && (value[0] == '\'' || value[0] == '"') && value[len(value)-1] == value[0]:
		return "string", true
	}
	if numberLiteralPattern.MatchString(value) {
		return "number", true
	}
	return "", false
}

// literalDisplay renders the literal the way the compiler names literal
// types: string literals keep their quoted text, others use the
// primitive name.
func literalDisplay(value, actual string) string {
	if actual == "string" {
		return `"` + strings.Trim(value, `'"`) + `"`
	}
	return value
}

// scanSourceImports extracts import specifiers with positions.
func scanSourceImports(content string) []importRef {
	var refs []importRef
	seen := make(map[string]bool)
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		record := func(loc []int) {
			quoted := line[loc[2]:loc[3]]
			spec := quoted[1 : len(quoted)-1]
			if spec == "" || seen[spec] {
				return
			}
			seen[spec] = true
			refs = append(refs, importRef{spec: spec, line: i + 1, column: loc[2] + 2})
		}
		if m := srcImportBare.FindStringSubmatchIndex(line); m != nil {
			record(m)
		}
		for _, m := range srcImportFrom.FindAllStringSubmatchIndex(line, -1) {
			record(m)
		}
		for _, m := range srcImportCall.FindAllStringSubmatchIndex(line, -1) {
			record(m)
		}
	}
	return refs
}

// loaderFor maps a file extension to a parse loader.
func loaderFor(file string) api.Loader {
	switch path.Ext(file) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}

// fingerprintOf identifies a file's content for incremental
// invalidation.
func fingerprintOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}
