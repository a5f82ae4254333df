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
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLibs     = []byte("ts-libs")
	bucketPackages = []byte("package-types")
)

// BoltStore backs both caches with a single bbolt database file. Bundles
// are JSON-encoded; keys are the flattened cache keys.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at path and
// ensures both buckets exist.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening type cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLibs, bucketPackages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database. Cached entries persist on disk.
func (b *BoltStore) Close() error { return b.db.Close() }

// Libs returns the LibStore view of the database.
func (b *BoltStore) Libs() LibStore { return &boltLibStore{db: b.db} }

// Packages returns the PackageStore view of the database.
func (b *BoltStore) Packages() PackageStore { return &boltPackageStore{db: b.db} }

type boltLibStore struct {
	db *bolt.DB
}

func (s *boltLibStore) Get(tsVersion, lib string) (string, bool, error) {
	var content string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketLibs).Get([]byte(libKey(tsVersion, lib))); v != nil {
			content = string(v)
			found = true
		}
		return nil
	})
	return content, found, err
}

func (s *boltLibStore) Set(tsVersion, lib, content string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLibs).Put([]byte(libKey(tsVersion, lib)), []byte(content))
	})
}

func (s *boltLibStore) Has(tsVersion, lib string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketLibs).Get([]byte(libKey(tsVersion, lib))) != nil
		return nil
	})
	return found, err
}

func (s *boltLibStore) Delete(tsVersion, lib string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLibs).Delete([]byte(libKey(tsVersion, lib)))
	})
}

func (s *boltLibStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketLibs); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketLibs)
		return err
	})
}

type boltPackageStore struct {
	db *bolt.DB
}

func (s *boltPackageStore) Get(name, version string) (*ResolvedTypes, bool, error) {
	var bundle *ResolvedTypes
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPackages).Get([]byte(packageKey(name, version)))
		if v == nil {
			return nil
		}
		bundle = &ResolvedTypes{}
		if err := json.Unmarshal(v, bundle); err != nil {
			return fmt.Errorf("corrupt cache entry for %s@%s: %w", name, version, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return bundle, bundle != nil, nil
}

func (s *boltPackageStore) Set(bundle *ResolvedTypes) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPackages).Put([]byte(packageKey(bundle.PackageName, bundle.Version)), data)
	})
}

func (s *boltPackageStore) Has(name, version string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketPackages).Get([]byte(packageKey(name, version))) != nil
		return nil
	})
	return found, err
}

func (s *boltPackageStore) Delete(name, version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPackages).Delete([]byte(packageKey(name, version)))
	})
}

func (s *boltPackageStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPackages); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketPackages)
		return err
	})
}
