package typefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindmansion/sandlot/pkg/typecache"
)

// newLibServer serves lib.<name>.d.ts files under /typescript@<version>/.
func newLibServer(libs map[string]string, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		// Path shape: /typescript@<version>/lib/lib.<name>.d.ts
		base := path.Base(r.URL.Path)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "lib."), ".d.ts")
		content, ok := libs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))
}

func TestLibClosure(t *testing.T) {
	libs := map[string]string{
		"es2020":       `/// <reference lib="es2019" />` + "\ninterface BigIntConstructor {}",
		"es2019":       `/// <reference lib="es2018" />` + "\ninterface ArrayConstructor {}",
		"es2018":       "interface PromiseConstructor {}",
		"dom":          "interface Document {}",
		"dom.iterable": `/// <reference lib="dom" />` + "\ninterface NodeListOf<T> {}",
	}
	server := newLibServer(libs, nil)
	defer server.Close()

	store := typecache.NewMemoryLibStore(0)
	fetcher := NewLibFetcher(LibOptions{
		URLTemplate: server.URL + "/typescript@{version}/lib/lib.{name}.d.ts",
		TSVersion:   "5.6.3",
		Store:       store,
	})

	got, err := fetcher.Fetch(context.Background(), []string{"es2020", "dom.iterable"})
	require.NoError(t, err)

	// The closure pulled every transitively referenced lib.
	assert.Len(t, got, 5)
	for name := range libs {
		assert.Contains(t, got, name)
	}

	// Closure invariant: every lib referenced by a cached lib is cached.
	for name, content := range got {
		has, err := store.Has("5.6.3", name)
		require.NoError(t, err)
		assert.True(t, has, "lib %s should be cached", name)
		for _, ref := range scanFile(content).referenceLibs {
			has, err := store.Has("5.6.3", ref)
			require.NoError(t, err)
			assert.True(t, has, "referenced lib %s should be cached", ref)
		}
	}
}

func TestLibFetchUsesCache(t *testing.T) {
	var hits atomic.Int32
	server := newLibServer(map[string]string{"es2020": "interface X {}"}, &hits)
	defer server.Close()

	fetcher := NewLibFetcher(LibOptions{
		URLTemplate: server.URL + "/typescript@{version}/lib/lib.{name}.d.ts",
		TSVersion:   "5.6.3",
		Store:       typecache.NewMemoryLibStore(0),
	})

	_, err := fetcher.Fetch(context.Background(), []string{"es2020"})
	require.NoError(t, err)
	_, err = fetcher.Fetch(context.Background(), []string{"es2020"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
}

func TestLibFetchMissingLib(t *testing.T) {
	server := newLibServer(map[string]string{}, nil)
	defer server.Close()

	fetcher := NewLibFetcher(LibOptions{
		URLTemplate: server.URL + "/typescript@{version}/lib/lib.{name}.d.ts",
		TSVersion:   "5.6.3",
	})

	_, err := fetcher.Fetch(context.Background(), []string{"nope"})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
}

func TestScanFile(t *testing.T) {
	content := `/// <reference lib="es2020" />
/// <reference types="node" />
/// <reference path="./internal.d.ts" />
import { A } from './a';
import type { B } from "pkg-b";
export * from './c';
import 'side-effect';
export declare function f(x: import("pkg-d").D): void;
// import { Nope } from './commented-out';
`
	res := scanFile(content)
	assert.Equal(t, []string{"./a", "pkg-b", "./c", "side-effect", "pkg-d"}, res.specifiers)
	assert.Equal(t, []string{"es2020"}, res.referenceLibs)
	assert.Equal(t, []string{"node"}, res.referenceTypes)
	assert.Equal(t, []string{"./internal.d.ts"}, res.referencePaths)
}

func TestRewriteContent(t *testing.T) {
	origin := "https://esm.sh"
	content := `import { useState } from "https://esm.sh/@types/react@18.3.12/index.d.ts";
export { x } from 'https://esm.sh/v135/lodash-es@4.17.21/common.d.ts';
import { keep } from './local';`

	out := rewriteContent(content, origin)
	assert.Contains(t, out, `from "react"`)
	assert.Contains(t, out, `from 'lodash-es/common'`)
	assert.Contains(t, out, `from './local'`)
	assert.NotContains(t, out, "https://esm.sh")
}
