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

// Package typefetch resolves type-definition trees for npm packages from
// a module-graph CDN.
//
// The CDN contract: GET /<name>@<version> answers
// with an X-TypeScript-Types header naming the package's type entry;
// declaration files are fetched from there, the entry's same-package
// imports are followed transitively, and absolute CDN URLs inside the
// fetched files are rewritten to bare specifiers before the bundle is
// persisted. Bare specifiers of other packages become peer type
// dependencies whose own fetch is triggered by the caller.
package typefetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/blindmansion/sandlot/pkg/typecache"
)

// DefaultCDNBase is the module-graph CDN used when none is configured.
const DefaultCDNBase = "https://esm.sh"

// fetchConcurrency bounds parallel .d.ts requests inside one round.
const fetchConcurrency = 8

// Options configures a Resolver.
type Options struct {
	// CDNBase is the module-graph CDN origin. Default: DefaultCDNBase.
	CDNBase string

	// HTTPClient issues all requests. Default: http.DefaultClient.
	HTTPClient *http.Client

	// RateLimit bounds requests per second against the CDN (0 = no
	// limit).
	RateLimit rate.Limit

	// Packages is the persistent bundle cache. Default: an in-memory
	// store.
	Packages typecache.PackageStore

	// Logger receives fetch progress. Default: slog.Default().
	Logger *slog.Logger
}

// Resolver fetches and caches package type bundles.
type Resolver struct {
	cdn      *client
	packages typecache.PackageStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver from opts.
func NewResolver(opts Options) *Resolver {
	base := opts.CDNBase
	if base == "" {
		base = DefaultCDNBase
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(opts.RateLimit, int(opts.RateLimit)+1)
	}
	packages := opts.Packages
	if packages == nil {
		packages = typecache.NewMemoryPackageStore(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cdn:      newClient(base, opts.HTTPClient, limiter),
		packages: packages,
		logger:   logger.With("component", "typefetch"),
	}
}

// CDNBase returns the configured CDN origin.
func (r *Resolver) CDNBase() string { return r.cdn.base }

// Resolve fetches the type bundle for name at versionSpec. fromCache is
// true when the bundle was served without touching the network.
// A *NoTypesError is returned when neither the package nor its @types
// alias advertises types; resolver errors are never cached.
func (r *Resolver) Resolve(ctx context.Context, name, versionSpec string) (bundle *typecache.ResolvedTypes, fromCache bool, err error) {
	// An exact pin can be answered from cache without probing.
	if isExactVersion(versionSpec) {
		if cached, ok, cacheErr := r.packages.Get(name, versionSpec); cacheErr == nil && ok {
			return cached, true, nil
		}
	}

	typesURL, finalURL, fromTypes, err := r.locateTypesEntry(ctx, name, versionSpec)
	if err != nil {
		return nil, false, err
	}

	entryRef, ok := parsePackageURL(typesURL, r.cdn.base)
	if !ok {
		return nil, false, &MalformedTypesError{Package: name, Ref: typesURL, Cause: errors.New("types entry is not a CDN package URL")}
	}
	version := resolveVersion(entryRef, finalURL, r.cdn.base, versionSpec)

	if cached, ok, cacheErr := r.packages.Get(name, version); cacheErr == nil && ok {
		return cached, true, nil
	}

	walk, err := r.walk(ctx, name, entryRef.RawName, typesURL)
	if err != nil {
		return nil, false, err
	}

	bundle = &typecache.ResolvedTypes{
		PackageName:      name,
		Version:          version,
		FromTypesPackage: fromTypes,
		Files:            make(map[string]string, len(walk.files)),
		PeerTypeDeps:     walk.peers,
	}
	for rel, content := range walk.files {
		bundle.Files[rel] = rewriteContent(content, r.cdn.base)
	}

	if err := r.packages.Set(bundle); err != nil {
		r.logger.Warn("caching type bundle failed", "package", name, "version", version, "error", err)
	}
	r.logger.Info("resolved types",
		"package", name,
		"version", version,
		"files", len(bundle.Files),
		"peers", len(bundle.PeerTypeDeps),
		"from_types_package", fromTypes,
	)
	return bundle, false, nil
}

// locateTypesEntry probes the package itself, then @types/<name>.
func (r *Resolver) locateTypesEntry(ctx context.Context, name, versionSpec string) (typesURL, finalURL string, fromTypes bool, err error) {
	typesURL, finalURL, err = r.cdn.probe(ctx, r.cdn.packageURL(name, versionSpec))
	if err != nil && !isNotFound(err) {
		return "", "", false, err
	}
	if typesURL != "" {
		return typesURL, finalURL, false, nil
	}

	// The @types package is versioned independently, so the requested
	// version spec does not carry over.
	typesURL, finalURL, err = r.cdn.probe(ctx, r.cdn.packageURL(typesAlias(name), ""))
	if err != nil && !isNotFound(err) {
		return "", "", false, err
	}
	if typesURL == "" {
		return "", "", false, &NoTypesError{Package: name}
	}
	return typesURL, finalURL, true, nil
}

// walkResult accumulates one package's fetched tree.
type walkResult struct {
	files map[string]string // relative path -> content
	peers map[string]string // package name -> version or "latest"
}

// walk fetches the entry and every same-package reference until a fixed
// point. Fetches inside one round run in parallel; the fetched set keeps
// cyclic reference graphs terminating.
func (r *Resolver) walk(ctx context.Context, name, rawName, entryURL string) (*walkResult, error) {
	res := &walkResult{
		files: make(map[string]string),
		peers: make(map[string]string),
	}
	fetched := map[string]bool{}
	queue := []string{entryURL}

	var mu sync.Mutex
	for len(queue) > 0 {
		round := queue
		queue = nil
		for _, u := range round {
			fetched[u] = true
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchConcurrency)
		contents := make(map[string]string, len(round))

		for _, u := range round {
			g.Go(func() error {
				content, err := r.cdn.fetch(gctx, u)
				if err != nil {
					if u == entryURL {
						return err
					}
					return &MalformedTypesError{Package: name, Ref: u, Cause: err}
				}
				mu.Lock()
				contents[u] = content
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for fileURL, content := range contents {
			ref, ok := parsePackageURL(fileURL, r.cdn.base)
			if !ok {
				continue
			}
			res.files[relPath(ref)] = content

			scan := scanFile(content)
			for _, spec := range scan.specifiers {
				next, err := r.classify(fileURL, spec, name, rawName, res)
				if err != nil {
					return nil, err
				}
				if next != "" && !fetched[next] {
					fetched[next] = true
					queue = append(queue, next)
				}
			}
			for _, rel := range scan.referencePaths {
				next, err := resolveRelativeURL(fileURL, rel)
				if err != nil {
					return nil, &MalformedTypesError{Package: name, Ref: rel, Cause: err}
				}
				if !fetched[next] {
					fetched[next] = true
					queue = append(queue, next)
				}
			}
			for _, peer := range scan.referenceTypes {
				addPeer(res.peers, name, unaliasTypesName(peer), "")
			}
		}
	}
	return res, nil
}

// classify routes one scanned specifier: a same-package reference
// returns the next URL to fetch, anything else records a peer.
func (r *Resolver) classify(fileURL, spec, name, rawName string, res *walkResult) (string, error) {
	switch {
	case strings.HasPrefix(spec, "."):
		next, err := resolveRelativeURL(fileURL, spec)
		if err != nil {
			return "", &MalformedTypesError{Package: name, Ref: spec, Cause: err}
		}
		return next, nil

	case strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://"):
		ref, ok := parsePackageURL(spec, r.cdn.base)
		if !ok {
			// A foreign origin cannot be rewritten to a bare specifier;
			// the persisted bundle would violate the cache contract.
			return "", &MalformedTypesError{Package: name, Ref: spec, Cause: errors.New("absolute URL outside the configured CDN")}
		}
		if ref.RawName == rawName {
			return spec, nil
		}
		addPeer(res.peers, name, ref.Name, ref.Version)
		return "", nil

	default:
		pkg := packageOf(spec)
		if !isBuiltin(spec) && pkg != name {
			addPeer(res.peers, name, unaliasTypesName(pkg), "")
		}
		return "", nil
	}
}

func addPeer(peers map[string]string, self, name, version string) {
	if name == "" || name == self {
		return
	}
	if version == "" {
		if _, exists := peers[name]; exists {
			return
		}
		version = "latest"
	}
	peers[name] = version
}

// relPath is the path of a fetched file below its package root.
func relPath(ref packageRef) string {
	if ref.Subpath == "" {
		return "index.d.ts"
	}
	return ref.Subpath
}

// resolveVersion picks the resolved version for a bundle: the version in
// the types entry URL, then the version in the redirected probe URL,
// then an exact requested spec, then "latest".
func resolveVersion(entryRef packageRef, finalURL, origin, versionSpec string) string {
	if entryRef.Version != "" {
		return entryRef.Version
	}
	if ref, ok := parsePackageURL(finalURL, origin); ok && ref.Version != "" {
		return ref.Version
	}
	if isExactVersion(versionSpec) {
		return versionSpec
	}
	return "latest"
}

// isExactVersion reports whether spec pins a single semver version.
func isExactVersion(spec string) bool {
	if spec == "" {
		return false
	}
	_, err := semver.StrictNewVersion(spec)
	return err == nil
}

func isNotFound(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Status == http.StatusNotFound
}

// SortedPeers returns a bundle's peer names in stable order, for
// deterministic install fan-out.
func SortedPeers(bundle *typecache.ResolvedTypes) []string {
	names := make([]string, 0, len(bundle.PeerTypeDeps))
	for name := range bundle.PeerTypeDeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
