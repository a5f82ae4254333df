package bundler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/vfs"
)

const testCDN = "https://cdn.test"

func newFS(t *testing.T, files map[string]string) *vfs.MemFS {
	t.Helper()
	fs := vfs.NewMemFS()
	for p, content := range files {
		require.NoError(t, fs.WriteFile(p, content))
	}
	return fs
}

func TestBundleSingleFile(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "export const answer: number = 42;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)

	assert.Contains(t, res.Code, "42")
	assert.Equal(t, []string{"/index.ts"}, res.IncludedFiles)
}

func TestBundleRelativeImports(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts":      "import { greet } from './lib/greet';\nexport const msg = greet('world');",
		"/lib/greet.ts":  "export function greet(name: string) { return `hi ${name}`; }",
		"/lib/unused.ts": "export const dead = 1;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)

	// Entry first, then its import; the unreferenced file never loads.
	assert.Equal(t, []string{"/index.ts", "/lib/greet.ts"}, res.IncludedFiles)
	for _, f := range res.IncludedFiles {
		assert.True(t, fs.Exists(f))
	}
}

func TestBundleIndexResolution(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts":     "import { x } from './lib';\nexport const y = x;",
		"/lib/index.ts": "export const x = 1;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)
	assert.Contains(t, res.IncludedFiles, "/lib/index.ts")
}

func TestBundleInstalledPackageRewrite(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "import { nanoid } from 'nanoid';\nexport const id = nanoid();",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{
		Entry:             "/index.ts",
		InstalledPackages: map[string]string{"nanoid": "5.1.6"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.Code, testCDN+"/nanoid@5.1.6")
}

func TestBundleScopedSubpathRewrite(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "import { produce } from '@scope/pkg/dist/util';\nexport const p = produce;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{
		Entry:             "/index.ts",
		InstalledPackages: map[string]string{"@scope/pkg": "2.0.0"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Code, testCDN+"/@scope/pkg@2.0.0/dist/util")
}

func TestBundleUninstalledStaysExternal(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "import missing from 'not-installed';\nexport const m = missing;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)

	// Left external as-is; the runtime load is where this fails.
	assert.Contains(t, res.Code, `"not-installed"`)
}

func TestBundleSharedModuleStub(t *testing.T) {
	registry := sharedmod.New(map[string]sharedmod.Module{
		"react": {"useState": 1, "useEffect": 2},
	})
	defer registry.Close()

	fs := newFS(t, map[string]string{
		"/index.ts": "import { useState } from 'react';\nexport const hook = useState;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{
		Entry:    "/index.ts",
		Registry: registry,
	})
	require.NoError(t, err)

	assert.Contains(t, res.Code, registry.RegistryKey())
	assert.Contains(t, res.Code, `get("react")`)
}

func TestBundleSharedSubpathRequiresExactRegistration(t *testing.T) {
	registry := sharedmod.New(map[string]sharedmod.Module{"react": {}})
	defer registry.Close()

	fs := newFS(t, map[string]string{
		"/index.ts": "import { jsx } from 'react/jsx-runtime';\nexport const j = jsx;",
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{
		Entry:    "/index.ts",
		Registry: registry,
	})
	require.NoError(t, err)

	// Only exact ids are shared; the subpath stays external.
	assert.NotContains(t, res.Code, registry.RegistryKey())
	assert.Contains(t, res.Code, "react/jsx-runtime")
}

func TestBundleMissingRelativeImport(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "import { gone } from './missing';\nexport const g = gone;",
	})

	b := NewESBuild(testCDN, nil)
	_, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.NotEmpty(t, failure.Errors)
	assert.Contains(t, failure.Errors[0].Text, "./missing")
}

func TestBundleSharedDefaultFallback(t *testing.T) {
	registry := sharedmod.New(map[string]sharedmod.Module{"react": {}})
	defer registry.Close()

	fs := newFS(t, map[string]string{
		"/index.ts": "import r from 'react';\nexport const x = r;",
	})
	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts", Registry: registry})
	require.NoError(t, err)
	assert.Contains(t, res.Code, "__mod__.default ?? __mod__")
}

func TestBundleDeterministic(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "import { a } from './a';\nimport { b } from './b';\nexport const s = a + b;",
		"/a.ts":     "export const a = 1;",
		"/b.ts":     "export const b = 2;",
	})

	b := NewESBuild(testCDN, nil)
	first, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)
	second, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.IncludedFiles, second.IncludedFiles)
}

func TestBundleJSONImport(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts":    "import config from './config.json';\nexport const name = config.name;",
		"/config.json": `{"name": "sandlot"}`,
	})

	b := NewESBuild(testCDN, nil)
	res, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)
	assert.Contains(t, res.Code, "sandlot")
}

func TestBundleMinify(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/index.ts": "export const answer = 40 + 2;",
	})

	b := NewESBuild(testCDN, nil)
	plain, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts"})
	require.NoError(t, err)
	minified, err := b.Bundle(context.Background(), fs, Options{Entry: "/index.ts", Minify: true})
	require.NoError(t, err)

	assert.Less(t, len(minified.Code), len(plain.Code))
	assert.NotContains(t, minified.Code, "\n\n")
}

func TestStubSource(t *testing.T) {
	stub := stubSource("__key__", "react", []string{"useEffect", "useState"})

	assert.Contains(t, stub, `globalThis["__key__"]`)
	assert.Contains(t, stub, `registry.get("react")`)
	assert.Contains(t, stub, "export default __mod__.default ?? __mod__;")
	assert.Contains(t, stub, "export const useState = __mod__.useState;")
	assert.Contains(t, stub, "export const useEffect = __mod__.useEffect;")
	// Exactly one export per name plus the default.
	assert.Equal(t, 3, strings.Count(stub, "export "))
}

func TestSplitBare(t *testing.T) {
	tests := []struct {
		spec, pkg, subpath string
	}{
		{"nanoid", "nanoid", ""},
		{"nanoid/async", "nanoid", "async"},
		{"@scope/pkg", "@scope/pkg", ""},
		{"@scope/pkg/deep/path", "@scope/pkg", "deep/path"},
	}
	for _, tt := range tests {
		pkg, subpath := splitBare(tt.spec)
		assert.Equal(t, tt.pkg, pkg, tt.spec)
		assert.Equal(t, tt.subpath, subpath, tt.spec)
	}
}
