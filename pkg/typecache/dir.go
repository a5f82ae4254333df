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

package typecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore persists both caches on disk:
//
//	<root>/ts-libs/<ts-version>/<lib>.d.ts
//	<root>/package-types/<pkg-safe>/<version>/meta.json
//	<root>/package-types/<pkg-safe>/<version>/files/<relpath>
//
// Scoped package names are flattened with SafeName. The layout is
// content-addressed by key, so concurrent writers of the same key are
// harmless.
type DirStore struct {
	root string
}

// NewDirStore creates (if needed) and opens a disk cache rooted at root.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Libs returns the LibStore view of the cache.
func (d *DirStore) Libs() LibStore { return &dirLibStore{root: d.root} }

// Packages returns the PackageStore view of the cache.
func (d *DirStore) Packages() PackageStore { return &dirPackageStore{root: d.root} }

// ClearAll removes every cached entry, both libs and package types.
func (d *DirStore) ClearAll() error {
	for _, sub := range []string{"ts-libs", "package-types"} {
		if err := os.RemoveAll(filepath.Join(d.root, sub)); err != nil {
			return err
		}
	}
	return nil
}

type dirLibStore struct {
	root string
}

func (s *dirLibStore) path(tsVersion, lib string) string {
	return filepath.Join(s.root, "ts-libs", tsVersion, lib+".d.ts")
}

func (s *dirLibStore) Get(tsVersion, lib string) (string, bool, error) {
	data, err := os.ReadFile(s.path(tsVersion, lib))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *dirLibStore) Set(tsVersion, lib, content string) error {
	p := s.path(tsVersion, lib)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o644)
}

func (s *dirLibStore) Has(tsVersion, lib string) (bool, error) {
	_, err := os.Stat(s.path(tsVersion, lib))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *dirLibStore) Delete(tsVersion, lib string) error {
	err := os.Remove(s.path(tsVersion, lib))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *dirLibStore) Clear() error {
	return os.RemoveAll(filepath.Join(s.root, "ts-libs"))
}

type dirPackageStore struct {
	root string
}

// meta.json carries everything except file bodies, which live as real
// files so the cache stays inspectable.
type packageMeta struct {
	PackageName      string            `json:"packageName"`
	Version          string            `json:"version"`
	FromTypesPackage bool              `json:"fromTypesPackage"`
	PeerTypeDeps     map[string]string `json:"peerTypeDeps,omitempty"`
	FilePaths        []string          `json:"filePaths"`
}

func (s *dirPackageStore) dir(name, version string) string {
	return filepath.Join(s.root, "package-types", SafeName(name), version)
}

func (s *dirPackageStore) Get(name, version string) (*ResolvedTypes, bool, error) {
	dir := s.dir(name, version)
	metaData, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var meta packageMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, false, fmt.Errorf("corrupt meta.json for %s@%s: %w", name, version, err)
	}

	bundle := &ResolvedTypes{
		PackageName:      meta.PackageName,
		Version:          meta.Version,
		FromTypesPackage: meta.FromTypesPackage,
		PeerTypeDeps:     meta.PeerTypeDeps,
		Files:            make(map[string]string, len(meta.FilePaths)),
	}
	for _, rel := range meta.FilePaths {
		data, err := os.ReadFile(filepath.Join(dir, "files", filepath.FromSlash(rel)))
		if err != nil {
			return nil, false, fmt.Errorf("reading cached type file %s: %w", rel, err)
		}
		bundle.Files[rel] = string(data)
	}
	return bundle, true, nil
}

func (s *dirPackageStore) Set(bundle *ResolvedTypes) error {
	dir := s.dir(bundle.PackageName, bundle.Version)
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return err
	}

	meta := packageMeta{
		PackageName:      bundle.PackageName,
		Version:          bundle.Version,
		FromTypesPackage: bundle.FromTypesPackage,
		PeerTypeDeps:     bundle.PeerTypeDeps,
	}
	for rel, content := range bundle.Files {
		rel = strings.TrimPrefix(rel, "/")
		p := filepath.Join(filesDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
		meta.FilePaths = append(meta.FilePaths, rel)
	}

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), metaData, 0o644)
}

func (s *dirPackageStore) Has(name, version string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir(name, version), "meta.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *dirPackageStore) Delete(name, version string) error {
	return os.RemoveAll(s.dir(name, version))
}

func (s *dirPackageStore) Clear() error {
	return os.RemoveAll(filepath.Join(s.root, "package-types"))
}
