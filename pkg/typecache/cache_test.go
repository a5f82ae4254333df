package typecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() *ResolvedTypes {
	return &ResolvedTypes{
		PackageName:      "@tanstack/react-query",
		Version:          "5.62.0",
		FromTypesPackage: false,
		PeerTypeDeps:     map[string]string{"@tanstack/query-core": "5.62.0"},
		Files: map[string]string{
			"index.d.ts":       "export * from './types';",
			"types.d.ts":       "export interface QueryClient {}",
			"build/utils.d.ts": "export declare function noop(): void;",
		},
	}
}

// libStores and packageStores build one of each backend against t's
// temp directory so the same assertions run across all of them.
func libStores(t *testing.T) map[string]LibStore {
	t.Helper()
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	b, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return map[string]LibStore{
		"memory": NewMemoryLibStore(0),
		"dir":    dir.Libs(),
		"bolt":   b.Libs(),
	}
}

func packageStores(t *testing.T) map[string]PackageStore {
	t.Helper()
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	b, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return map[string]PackageStore{
		"memory": NewMemoryPackageStore(0),
		"dir":    dir.Packages(),
		"bolt":   b.Packages(),
	}
}

func TestLibStoreRoundTrip(t *testing.T) {
	for name, store := range libStores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.Get("5.6.3", "es2020")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Set("5.6.3", "es2020", "declare const x: number;"))

			content, found, err := store.Get("5.6.3", "es2020")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "declare const x: number;", content)

			has, err := store.Has("5.6.3", "es2020")
			require.NoError(t, err)
			assert.True(t, has)

			// A different compiler version misses.
			has, err = store.Has("5.7.0", "es2020")
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, store.Delete("5.6.3", "es2020"))
			has, err = store.Has("5.6.3", "es2020")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestPackageStoreRoundTrip(t *testing.T) {
	for name, store := range packageStores(t) {
		t.Run(name, func(t *testing.T) {
			bundle := sampleBundle()
			require.NoError(t, store.Set(bundle))

			got, found, err := store.Get(bundle.PackageName, bundle.Version)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, bundle.PackageName, got.PackageName)
			assert.Equal(t, bundle.Version, got.Version)
			assert.Equal(t, bundle.Files, got.Files)
			assert.Equal(t, bundle.PeerTypeDeps, got.PeerTypeDeps)
			assert.False(t, got.FromTypesPackage)

			_, found, err = store.Get(bundle.PackageName, "0.0.1")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Clear())
			_, found, err = store.Get(bundle.PackageName, bundle.Version)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestDirStoreLayout(t *testing.T) {
	root := t.TempDir()
	dir, err := NewDirStore(root)
	require.NoError(t, err)

	require.NoError(t, dir.Libs().Set("5.6.3", "dom.iterable", "interface X {}"))
	require.NoError(t, dir.Packages().Set(sampleBundle()))

	// On-disk layout, scoped names flattened with "--".
	_, err = os.Stat(filepath.Join(root, "ts-libs", "5.6.3", "dom.iterable.d.ts"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "package-types", "@tanstack--react-query", "5.62.0", "meta.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "package-types", "@tanstack--react-query", "5.62.0", "files", "build", "utils.d.ts"))
	assert.NoError(t, err)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "nanoid", SafeName("nanoid"))
	assert.Equal(t, "@types--react", SafeName("@types/react"))
	assert.Equal(t, "@tanstack--react-query", SafeName("@tanstack/react-query"))
}

func TestBoltStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Libs().Set("5.6.3", "es2020", "content"))
	require.NoError(t, first.Close())

	second, err := NewBoltStore(path)
	require.NoError(t, err)
	defer second.Close()

	content, found, err := second.Libs().Get("5.6.3", "es2020")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "content", content)
}
