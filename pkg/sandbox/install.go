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

package sandbox

import (
	"context"
	"errors"

	"github.com/blindmansion/sandlot/pkg/typecache"
	"github.com/blindmansion/sandlot/pkg/typefetch"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

// InstallResult reports one install.
type InstallResult struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	TypesInstalled bool   `json:"typesInstalled"`
	TypeFilesCount int    `json:"typeFilesCount"`
	// TypesError carries a non-fatal type-resolution failure; the
	// install itself still succeeded and typecheck will surface a
	// "cannot find module" diagnostic later.
	TypesError string `json:"typesError,omitempty"`
	FromCache  bool   `json:"fromCache"`
}

// UninstallResult reports one uninstall.
type UninstallResult struct {
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
}

// maxPeerDepth bounds transitive peer-type fan-out.
const maxPeerDepth = 4

// Install pins a package and fetches its type tree, plus the type trees
// of every discovered peer. A missing type tree or a CDN fetch failure is
// recorded, not raised, and the version pin lands either way; a malformed
// type tree fails the install.
func (s *Sandbox) Install(ctx context.Context, spec string) (*InstallResult, error) {
	s.op.Lock()
	defer s.op.Unlock()

	name, versionSpec, err := typefetch.ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	result := &InstallResult{Name: name}

	bundle, fromCache, err := s.svc.Resolver.Resolve(ctx, name, versionSpec)
	switch {
	case err == nil:
		result.Version = bundle.Version
		result.TypesInstalled = true
		result.TypeFilesCount = len(bundle.Files)
		result.FromCache = fromCache
		if err := s.writeTypeTree(name, bundle); err != nil {
			return nil, err
		}
	case isTypesError(err):
		result.TypesError = err.Error()
		result.Version = versionSpec
		if result.Version == "" {
			result.Version = "latest"
		}
		s.logger.Warn("types unavailable, install continues",
			"package", name, "error", err)
	default:
		return nil, err
	}

	m := s.readManifest()
	m.setDependency(name, result.Version)

	if bundle != nil {
		s.installPeers(ctx, bundle, m, map[string]bool{name: true}, 1)
	}

	if err := s.writeManifest(m); err != nil {
		return nil, err
	}

	recordInstall(result.TypesError == "", result.FromCache)
	s.logger.Info("package installed",
		"package", name,
		"version", result.Version,
		"type_files", result.TypeFilesCount,
		"from_cache", result.FromCache,
	)
	return result, nil
}

// installPeers resolves each discovered peer, writes its tree and pin,
// and recurses into the peers it discovers in turn. Peer failures are
// logged and skipped; typecheck reports whatever stays unresolved.
func (s *Sandbox) installPeers(ctx context.Context, bundle *typecache.ResolvedTypes, m *manifest, seen map[string]bool, depth int) {
	if depth > maxPeerDepth {
		return
	}
	deps := m.Dependencies()
	for _, peer := range typefetch.SortedPeers(bundle) {
		if seen[peer] {
			continue
		}
		seen[peer] = true
		if _, pinned := deps[peer]; pinned {
			continue
		}

		version := bundle.PeerTypeDeps[peer]
		spec := version
		if spec == "latest" {
			spec = ""
		}
		peerBundle, _, err := s.svc.Resolver.Resolve(ctx, peer, spec)
		if err != nil {
			s.logger.Warn("peer type fetch failed", "package", peer, "error", err)
			m.setDependency(peer, version)
			continue
		}
		if err := s.writeTypeTree(peer, peerBundle); err != nil {
			s.logger.Warn("peer type tree write failed", "package", peer, "error", err)
			continue
		}
		m.setDependency(peer, peerBundle.Version)
		s.installPeers(ctx, peerBundle, m, seen, depth+1)
	}
}

// writeTypeTree materializes a resolved bundle under /node_modules.
func (s *Sandbox) writeTypeTree(name string, bundle *typecache.ResolvedTypes) error {
	root := "/node_modules/" + name
	for rel, content := range bundle.Files {
		if err := s.fs.WriteFile(root+"/"+rel, content); err != nil {
			return err
		}
	}
	return nil
}

// Uninstall removes a dependency pin and its /node_modules subtree.
func (s *Sandbox) Uninstall(name string) (*UninstallResult, error) {
	s.op.Lock()
	defer s.op.Unlock()

	m := s.readManifest()
	removed := m.removeDependency(name)
	if removed {
		if err := s.writeManifest(m); err != nil {
			return nil, err
		}
	}

	treePath := "/node_modules/" + name
	if s.fs.Exists(treePath) {
		if err := s.fs.Remove(treePath); err != nil {
			var notFound *vfs.FileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
		removed = true
	}

	s.logger.Info("package uninstalled", "package", name, "removed", removed)
	return &UninstallResult{Name: name, Removed: removed}, nil
}

// isTypesError reports whether err is a non-fatal type-resolution
// failure per the error taxonomy.
func isTypesError(err error) bool {
	var noTypes *typefetch.NoTypesError
	var fetch *typefetch.FetchError
	return errors.As(err, &noTypes) || errors.As(err, &fetch)
}
