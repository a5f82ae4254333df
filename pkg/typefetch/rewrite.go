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

// quotedURLPattern matches single- or double-quoted absolute URLs in
// specifier position.
var quotedURLPattern = regexp.MustCompile(`(['"])(https?://[^'"]+)(['"])`)

// rewriteContent replaces every quoted absolute CDN URL in a declaration
// file with the bare specifier of the package it points at, so the
// persisted bundle is portable across CDN origins. Rewriting runs only
// after all fetches complete, never during the walk, so fetch targets
// stay stable. The inverse rewrite is never applied at read time.
func rewriteContent(content, origin string) string {
	if !strings.Contains(content, "http") {
		return content
	}
	return quotedURLPattern.ReplaceAllStringFunc(content, func(match string) string {
		m := quotedURLPattern.FindStringSubmatch(match)
		ref, ok := parsePackageURL(m[2], origin)
		if !ok {
			return match
		}
		return m[1] + bareSpecifier(ref) + m[3]
	})
}
