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
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultLibEntries     = 256
	defaultPackageEntries = 512
)

// MemoryLibStore is an LRU-bounded in-memory LibStore. It is the default
// backend and the stub used throughout the tests.
type MemoryLibStore struct {
	cache *lru.Cache[string, string]
}

// NewMemoryLibStore creates a lib store bounded to maxEntries entries
// (or a default when maxEntries <= 0).
func NewMemoryLibStore(maxEntries int) *MemoryLibStore {
	if maxEntries <= 0 {
		maxEntries = defaultLibEntries
	}
	cache, _ := lru.New[string, string](maxEntries)
	return &MemoryLibStore{cache: cache}
}

func (s *MemoryLibStore) Get(tsVersion, lib string) (string, bool, error) {
	content, ok := s.cache.Get(libKey(tsVersion, lib))
	return content, ok, nil
}

func (s *MemoryLibStore) Set(tsVersion, lib, content string) error {
	s.cache.Add(libKey(tsVersion, lib), content)
	return nil
}

func (s *MemoryLibStore) Has(tsVersion, lib string) (bool, error) {
	return s.cache.Contains(libKey(tsVersion, lib)), nil
}

func (s *MemoryLibStore) Delete(tsVersion, lib string) error {
	s.cache.Remove(libKey(tsVersion, lib))
	return nil
}

func (s *MemoryLibStore) Clear() error {
	s.cache.Purge()
	return nil
}

// MemoryPackageStore is an LRU-bounded in-memory PackageStore.
type MemoryPackageStore struct {
	cache *lru.Cache[string, *ResolvedTypes]
}

// NewMemoryPackageStore creates a package store bounded to maxEntries
// entries (or a default when maxEntries <= 0).
func NewMemoryPackageStore(maxEntries int) *MemoryPackageStore {
	if maxEntries <= 0 {
		maxEntries = defaultPackageEntries
	}
	cache, _ := lru.New[string, *ResolvedTypes](maxEntries)
	return &MemoryPackageStore{cache: cache}
}

func (s *MemoryPackageStore) Get(name, version string) (*ResolvedTypes, bool, error) {
	bundle, ok := s.cache.Get(packageKey(name, version))
	return bundle, ok, nil
}

func (s *MemoryPackageStore) Set(bundle *ResolvedTypes) error {
	s.cache.Add(packageKey(bundle.PackageName, bundle.Version), bundle)
	return nil
}

func (s *MemoryPackageStore) Has(name, version string) (bool, error) {
	return s.cache.Contains(packageKey(name, version)), nil
}

func (s *MemoryPackageStore) Delete(name, version string) error {
	s.cache.Remove(packageKey(name, version))
	return nil
}

func (s *MemoryPackageStore) Clear() error {
	s.cache.Purge()
	return nil
}
