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

// Package typecache provides the two persistent side caches of the build
// core: TypeScript standard-library files keyed by (compiler version,
// lib name), and resolved package type bundles keyed by (package name,
// version).
//
// Values are deterministic for a given key, so concurrent writers are
// last-writer-wins and interleaved cache fills across sandboxes are safe.
// Caches persist until an explicit Clear; closing the owning sandlot does
// not clear them.
package typecache

import "strings"

// ResolvedTypes is the persisted shape of one package's type fetch.
type ResolvedTypes struct {
	// PackageName is the package these types belong to.
	PackageName string `json:"packageName"`

	// Version is the resolved, non-range version string.
	Version string `json:"version"`

	// Files maps relative paths to .d.ts content. Every absolute CDN URL
	// inside has been rewritten to a bare specifier before persisting.
	Files map[string]string `json:"files"`

	// FromTypesPackage is true when the bundle was fetched from
	// @types/<name> rather than the package itself.
	FromTypesPackage bool `json:"fromTypesPackage"`

	// PeerTypeDeps maps discovered peer packages to their resolved
	// versions. Each peer's own type fetch is triggered as part of the
	// install that produced this bundle.
	PeerTypeDeps map[string]string `json:"peerTypeDeps,omitempty"`
}

// LibStore caches TypeScript lib.*.d.ts files per compiler version.
type LibStore interface {
	Get(tsVersion, lib string) (string, bool, error)
	Set(tsVersion, lib, content string) error
	Has(tsVersion, lib string) (bool, error)
	Delete(tsVersion, lib string) error
	Clear() error
}

// PackageStore caches resolved package type bundles.
type PackageStore interface {
	Get(name, version string) (*ResolvedTypes, bool, error)
	Set(bundle *ResolvedTypes) error
	Has(name, version string) (bool, error)
	Delete(name, version string) error
	Clear() error
}

// SafeName flattens a package name for use as a single path segment.
// Scoped names use "--" for the "/" so filenames stay flat:
// "@tanstack/react-query" becomes "@tanstack--react-query".
func SafeName(name string) string {
	return strings.ReplaceAll(name, "/", "--")
}

// libKey joins a lib cache key into a single string for flat backends.
func libKey(tsVersion, lib string) string {
	return tsVersion + "/" + lib
}

// packageKey joins a package cache key into a single string for flat
// backends.
func packageKey(name, version string) string {
	return SafeName(name) + "@" + version
}
