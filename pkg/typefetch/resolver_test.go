package typefetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindmansion/sandlot/internal/cdntest"
	"github.com/blindmansion/sandlot/pkg/typecache"
)

func newTestResolver(cdn *cdntest.Server) (*Resolver, typecache.PackageStore) {
	store := typecache.NewMemoryPackageStore(0)
	return NewResolver(Options{CDNBase: cdn.URL, Packages: store}), store
}

func TestResolveSimplePackage(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{
		Name:       "nanoid",
		Version:    "5.1.6",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": "export declare function nanoid(size?: number): string;",
		},
	})
	defer cdn.Close()

	resolver, _ := newTestResolver(cdn)
	bundle, fromCache, err := resolver.Resolve(context.Background(), "nanoid", "5.1.6")
	require.NoError(t, err)

	assert.False(t, fromCache)
	assert.Equal(t, "nanoid", bundle.PackageName)
	assert.Equal(t, "5.1.6", bundle.Version)
	assert.False(t, bundle.FromTypesPackage)
	require.Contains(t, bundle.Files, "index.d.ts")
	assert.Empty(t, bundle.PeerTypeDeps)
}

func TestResolveFollowsInternalImports(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{
		Name:       "widgets",
		Version:    "1.0.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts":      "export * from './types';\nexport { helper } from './lib/helper';",
			"types.d.ts":      "import './index';\nexport interface Widget {}",
			"lib/helper.d.ts": "export declare function helper(): void;",
		},
	})
	defer cdn.Close()

	resolver, _ := newTestResolver(cdn)
	bundle, _, err := resolver.Resolve(context.Background(), "widgets", "1.0.0")
	require.NoError(t, err)

	// All three files fetched; the cycle between index and types
	// terminates.
	assert.Len(t, bundle.Files, 3)
	assert.Contains(t, bundle.Files, "lib/helper.d.ts")
}

func TestResolveTypesPackageFallback(t *testing.T) {
	cdn := cdntest.New(
		&cdntest.Package{Name: "untyped", Version: "2.0.0", JS: "export default 1;"},
		&cdntest.Package{
			Name:       "@types/untyped",
			Version:    "2.0.3",
			TypesEntry: "index.d.ts",
			TypeFiles:  map[string]string{"index.d.ts": "declare const x: number;\nexport default x;"},
		},
	)
	defer cdn.Close()

	resolver, _ := newTestResolver(cdn)
	bundle, _, err := resolver.Resolve(context.Background(), "untyped", "")
	require.NoError(t, err)

	assert.True(t, bundle.FromTypesPackage)
	assert.Equal(t, "2.0.3", bundle.Version)
}

func TestResolveNoTypesFound(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{Name: "bare", Version: "1.0.0", JS: "export default 1;"})
	defer cdn.Close()

	resolver, store := newTestResolver(cdn)
	_, _, err := resolver.Resolve(context.Background(), "bare", "1.0.0")

	var noTypes *NoTypesError
	require.ErrorAs(t, err, &noTypes)
	assert.Equal(t, "bare", noTypes.Package)

	// Errors are never cached.
	has, err := store.Has("bare", "1.0.0")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResolveRewritesAbsoluteURLs(t *testing.T) {
	cdn := cdntest.New()
	defer cdn.Close()

	// The fixture needs the server's own origin inside the file, so the
	// package is added after the server is up.
	pkg := &cdntest.Package{
		Name:       "@tanstack/react-query",
		Version:    "5.62.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": `export { QueryClient } from "` + cdn.URL + `/@tanstack/query-core@5.62.0/index.d.ts";`,
		},
	}
	cdn.Add(pkg)

	resolver, _ := newTestResolver(cdn)
	bundle, _, err := resolver.Resolve(context.Background(), "@tanstack/react-query", "5.62.0")
	require.NoError(t, err)

	// The absolute URL was rewritten to the bare specifier and the
	// target recorded as a peer with its resolved version.
	assert.Contains(t, bundle.Files["index.d.ts"], `from "@tanstack/query-core"`)
	assert.NotContains(t, bundle.Files["index.d.ts"], cdn.URL)
	assert.Equal(t, map[string]string{"@tanstack/query-core": "5.62.0"}, bundle.PeerTypeDeps)
}

func TestResolveDiscoversBarePeers(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{
		Name:       "ui-kit",
		Version:    "3.1.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": "import { ReactNode } from 'react';\nimport 'path';\nexport declare function render(n: ReactNode): void;",
		},
	})
	defer cdn.Close()

	resolver, _ := newTestResolver(cdn)
	bundle, _, err := resolver.Resolve(context.Background(), "ui-kit", "3.1.0")
	require.NoError(t, err)

	// react becomes a peer; the node builtin does not.
	assert.Equal(t, map[string]string{"react": "latest"}, bundle.PeerTypeDeps)
	assert.Equal(t, []string{"react"}, SortedPeers(bundle))
}

func TestResolveServesFromCache(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{
		Name:       "nanoid",
		Version:    "5.1.6",
		TypesEntry: "index.d.ts",
		TypeFiles:  map[string]string{"index.d.ts": "export declare function nanoid(): string;"},
	})

	resolver, _ := newTestResolver(cdn)
	_, fromCache, err := resolver.Resolve(context.Background(), "nanoid", "5.1.6")
	require.NoError(t, err)
	require.False(t, fromCache)

	// A dead CDN proves the second resolve never leaves the cache.
	cdn.Close()

	bundle, fromCache, err := resolver.Resolve(context.Background(), "nanoid", "5.1.6")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "5.1.6", bundle.Version)
}

func TestResolveMalformedTree(t *testing.T) {
	cdn := cdntest.New(&cdntest.Package{
		Name:       "broken",
		Version:    "1.0.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": "export * from './missing';",
		},
	})
	defer cdn.Close()

	resolver, _ := newTestResolver(cdn)
	_, _, err := resolver.Resolve(context.Background(), "broken", "1.0.0")

	var malformed *MalformedTypesError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "broken", malformed.Package)
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec    string
		name    string
		version string
		wantErr bool
	}{
		{spec: "nanoid", name: "nanoid"},
		{spec: "nanoid@5.1.6", name: "nanoid", version: "5.1.6"},
		{spec: "@tanstack/react-query@5.x", name: "@tanstack/react-query", version: "5.x"},
		{spec: "@scope/pkg", name: "@scope/pkg"},
		{spec: "", wantErr: true},
		{spec: "@lonescope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, version, err := ParseSpec(tt.spec)
			if tt.wantErr {
				var invalid *InvalidSpecError
				require.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.version, version)
		})
	}
}
