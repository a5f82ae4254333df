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
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blindmansion/sandlot/pkg/typecache"
)

// DefaultTSVersion keys the lib cache when no compiler version is
// configured.
const DefaultTSVersion = "5.6.3"

// DefaultLibURLTemplate serves lib.<name>.d.ts files at stable URLs
// keyed by compiler version. {version} and {name} are substituted.
const DefaultLibURLTemplate = "https://cdn.jsdelivr.net/npm/typescript@{version}/lib/lib.{name}.d.ts"

// DefaultLibs is the browser-default standard-library set.
var DefaultLibs = []string{"es2020", "dom", "dom.iterable"}

// LibFetcher acquires TypeScript standard-library files with their full
// /// <reference lib="..."/> closure. The language service never
// synthesizes these references itself, so the closure must be complete
// before typechecking.
type LibFetcher struct {
	urlTemplate string
	tsVersion   string
	http        *http.Client
	store       typecache.LibStore
	logger      *slog.Logger
}

// LibOptions configures a LibFetcher.
type LibOptions struct {
	// URLTemplate overrides DefaultLibURLTemplate.
	URLTemplate string
	// TSVersion keys the cache; a compiler upgrade misses and refills.
	TSVersion string
	// HTTPClient issues the fetches. Default: http.DefaultClient.
	HTTPClient *http.Client
	// Store is the persistent lib cache. Default: in-memory.
	Store typecache.LibStore
	// Logger receives fetch progress.
	Logger *slog.Logger
}

// NewLibFetcher creates a LibFetcher from opts.
func NewLibFetcher(opts LibOptions) *LibFetcher {
	template := opts.URLTemplate
	if template == "" {
		template = DefaultLibURLTemplate
	}
	version := opts.TSVersion
	if version == "" {
		version = DefaultTSVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	store := opts.Store
	if store == nil {
		store = typecache.NewMemoryLibStore(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LibFetcher{
		urlTemplate: template,
		tsVersion:   version,
		http:        httpClient,
		store:       store,
		logger:      logger.With("component", "typefetch"),
	}
}

// TSVersion returns the compiler version the cache is keyed by.
func (f *LibFetcher) TSVersion() string { return f.tsVersion }

// Fetch returns the requested libs plus their transitive reference
// closure, filling the cache as it goes. Requests within one closure
// round run in parallel.
func (f *LibFetcher) Fetch(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		names = DefaultLibs
	}

	libs := make(map[string]string)
	queued := make(map[string]bool)
	var queue []string
	enqueue := func(name string) {
		name = strings.ToLower(name)
		if name == "" || queued[name] {
			return
		}
		queued[name] = true
		queue = append(queue, name)
	}
	for _, name := range names {
		enqueue(name)
	}

	var mu sync.Mutex
	for len(queue) > 0 {
		round := queue
		queue = nil

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchConcurrency)
		for _, name := range round {
			g.Go(func() error {
				content, err := f.fetchOne(gctx, name)
				if err != nil {
					return err
				}
				mu.Lock()
				libs[name] = content
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, name := range round {
			for _, ref := range scanFile(libs[name]).referenceLibs {
				enqueue(ref)
			}
		}
	}

	f.logger.Debug("lib closure complete", "requested", len(names), "total", len(libs))
	return libs, nil
}

// fetchOne serves a single lib from cache or the CDN.
func (f *LibFetcher) fetchOne(ctx context.Context, name string) (string, error) {
	if content, ok, err := f.store.Get(f.tsVersion, name); err == nil && ok {
		return content, nil
	}

	u := strings.NewReplacer("{version}", f.tsVersion, "{name}", name).Replace(f.urlTemplate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &FetchError{URL: u, Cause: err}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", &FetchError{URL: u, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: u, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: u, Cause: err}
	}
	content := string(body)

	if err := f.store.Set(f.tsVersion, name, content); err != nil {
		f.logger.Warn("caching lib failed", "lib", name, "error", err)
	}
	return content, nil
}
