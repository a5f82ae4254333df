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

import "strings"

// EditSpec describes a targeted string replacement inside one file.
type EditSpec struct {
	// OldString is the text to replace. It must occur in the file, and
	// exactly once unless ReplaceAll is set.
	OldString string

	// NewString is the replacement text.
	NewString string

	// ReplaceAll replaces every occurrence instead of requiring a unique
	// one.
	ReplaceAll bool
}

// Edit applies spec to the file at p with exactly one write on success.
// It fails with *NoChangeError when the strings are identical,
// *StringNotFoundError when OldString is absent, and *NotUniqueError when
// OldString occurs more than once without ReplaceAll.
func Edit(fs FS, p string, spec EditSpec) error {
	if spec.OldString == spec.NewString {
		return &NoChangeError{Path: p}
	}

	content, err := fs.ReadFile(p)
	if err != nil {
		return err
	}

	count := strings.Count(content, spec.OldString)
	switch {
	case count == 0:
		return &StringNotFoundError{Path: p}
	case count > 1 && !spec.ReplaceAll:
		return &NotUniqueError{Path: p, Occurrences: count}
	}

	var updated string
	if spec.ReplaceAll {
		updated = strings.ReplaceAll(content, spec.OldString, spec.NewString)
	} else {
		updated = strings.Replace(content, spec.OldString, spec.NewString, 1)
	}
	return fs.WriteFile(p, updated)
}
