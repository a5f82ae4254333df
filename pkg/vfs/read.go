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

package vfs

import (
	"fmt"
	"strings"
)

const (
	// lineNumberWidth is the minimum width line numbers are right-padded
	// to in line-addressed reads.
	lineNumberWidth = 6

	// maxLineLength is the point past which a line is truncated in
	// line-addressed reads.
	maxLineLength = 2000
)

// ReadOptions selects a window of lines for ReadLines. Offset is a
// 0-indexed line offset into the file; Limit caps the number of lines
// returned (0 means all remaining lines).
type ReadOptions struct {
	Offset int
	Limit  int
}

// ReadLines reads the file at p and returns it with each line prefixed by
// its right-padded 1-indexed line number and a "|" separator. Lines longer
// than 2000 characters are truncated with a trailing "...".
func ReadLines(fs FS, p string, opts ReadOptions) (string, error) {
	content, err := fs.ReadFile(p)
	if err != nil {
		return "", err
	}

	lines := strings.Split(content, "\n")
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		line := lines[i]
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		fmt.Fprintf(&b, "%-*d|%s", lineNumberWidth, i+1, line)
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// ReadRaw reads the file at p without any line decoration. It exists so
// callers that round-trip content never see the line prefixes.
func ReadRaw(fs FS, p string) (string, error) {
	return fs.ReadFile(p)
}
