package sandbox

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindmansion/sandlot/internal/cdntest"
	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/loader"
	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/typefetch"
)

// testHarness wires a sandbox against an in-process CDN.
type testHarness struct {
	cdn      *cdntest.Server
	registry *sharedmod.Registry
	sandbox  *Sandbox
}

func newHarness(t *testing.T, shared map[string]sharedmod.Module, packages ...*cdntest.Package) *testHarness {
	t.Helper()
	cdn := cdntest.New(packages...)
	t.Cleanup(cdn.Close)

	var registry *sharedmod.Registry
	if shared != nil {
		registry = sharedmod.New(shared)
		t.Cleanup(registry.Close)
	}

	svc := Services{
		Bundler:  bundler.NewESBuild(cdn.URL, nil),
		Resolver: typefetch.NewResolver(typefetch.Options{CDNBase: cdn.URL}),
		Loader:   loader.New(nil, nil),
		Registry: registry,
	}
	sb := New(svc)
	t.Cleanup(sb.Dispose)
	return &testHarness{cdn: cdn, registry: registry, sandbox: sb}
}

func nanoidPackage() *cdntest.Package {
	return &cdntest.Package{
		Name:       "nanoid",
		Version:    "5.1.6",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": "export declare function nanoid(size?: number): string;",
		},
		JS: `export function nanoid(size = 21) {
  let id = "";
  const alphabet = "useandom26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict";
  for (let i = 0; i < size; i++) id += alphabet[(Math.random() * 64) | 0];
  return id;
}`,
	}
}

func TestSinglePackageRoundTrip(t *testing.T) {
	h := newHarness(t, nil, nanoidPackage())
	ctx := context.Background()

	install, err := h.sandbox.Install(ctx, "nanoid@5.1.6")
	require.NoError(t, err)
	assert.True(t, install.TypesInstalled)
	assert.Equal(t, "5.1.6", install.Version)
	assert.Greater(t, install.TypeFilesCount, 0)

	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import { nanoid } from 'nanoid';\nexport const id = nanoid();"))

	result, err := h.sandbox.Build(ctx, BuildOptions{SkipTypecheck: true})
	require.NoError(t, err)
	require.True(t, result.Success, "phase=%s message=%s bundleErrors=%v", result.Phase, result.Message, result.BundleErrors)

	module, ok := result.Module.(*loader.Module)
	require.True(t, ok)
	id, ok := module.Get("id").(string)
	require.True(t, ok)
	assert.Len(t, id, 21)
}

func TestTypecheckCatchesError(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/a.ts", `const n: number = "s";`))

	result, err := h.sandbox.Typecheck(context.Background(), TypecheckOptions{Entry: "/a.ts"})
	require.NoError(t, err)
	require.False(t, result.Success)

	found := false
	for _, d := range result.Diagnostics {
		if d.File == "/a.ts" && d.Line == 1 && d.Severity == "error" {
			found = true
		}
	}
	assert.True(t, found, "diagnostics: %v", result.Diagnostics)
}

func TestSharedModuleIdentity(t *testing.T) {
	hostUseState := func() string { return "host" }
	h := newHarness(t, map[string]sharedmod.Module{
		"react": {"useState": hostUseState},
	})

	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import { useState } from 'react';\nexport const hook = useState;"))

	result, err := h.sandbox.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.True(t, result.Success, "phase=%s message=%s diags=%v", result.Phase, result.Message, result.Diagnostics)

	module := result.Module.(*loader.Module)
	got := module.Get("hook")
	require.NotNil(t, got)
	assert.Equal(t, reflect.ValueOf(hostUseState).Pointer(), reflect.ValueOf(got).Pointer())
}

func TestPeerTypeDiscovery(t *testing.T) {
	h := newHarness(t, nil)
	h.cdn.Add(&cdntest.Package{
		Name:       "@tanstack/query-core",
		Version:    "5.62.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": "export declare class QueryClientCore {}",
		},
	})
	h.cdn.Add(&cdntest.Package{
		Name:       "@tanstack/react-query",
		Version:    "5.62.0",
		TypesEntry: "index.d.ts",
		TypeFiles: map[string]string{
			"index.d.ts": `import { QueryClientCore } from "` + h.cdn.URL + `/@tanstack/query-core@5.62.0/index.d.ts";
export declare class QueryClient extends QueryClientCore {}`,
		},
	})

	ctx := context.Background()
	install, err := h.sandbox.Install(ctx, "@tanstack/react-query@5.x")
	require.NoError(t, err)
	assert.True(t, install.TypesInstalled)

	// The peer was pinned and its tree written without a second install.
	deps := h.sandbox.InstalledPackages()
	assert.Contains(t, deps, "@tanstack/query-core")
	assert.True(t, h.sandbox.FS().Exists("/node_modules/@tanstack/query-core/index.d.ts"))

	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import { QueryClient } from '@tanstack/react-query';\nconst c = new QueryClient();\nexport default c;"))

	check, err := h.sandbox.Typecheck(ctx, TypecheckOptions{})
	require.NoError(t, err)
	assert.True(t, check.Success, "diagnostics: %v", check.Diagnostics)
}

func TestEntryPointFallback(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	fs := h.sandbox.FS()

	require.NoError(t, fs.WriteFile("/package.json", `{"main": "./src/app.tsx"}`))
	require.NoError(t, fs.WriteFile("/src/app.tsx", "export const app = 'running';"))

	result, err := h.sandbox.Build(ctx, BuildOptions{})
	require.NoError(t, err)
	require.True(t, result.Success, "phase=%s diags=%v", result.Phase, result.Diagnostics)
	assert.Equal(t, "/src/app.tsx", result.Entry)

	require.NoError(t, fs.Remove("/src/app.tsx"))
	result, err = h.sandbox.Build(ctx, BuildOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseEntry, result.Phase)
}

func TestBuildPhaseMonotonicity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	fs := h.sandbox.FS()

	// First a successful build to seed lastBuild.
	require.NoError(t, fs.WriteFile("/index.ts", "export const ok = 1;"))
	good, err := h.sandbox.Build(ctx, BuildOptions{})
	require.NoError(t, err)
	require.True(t, good.Success)
	require.Same(t, good, h.sandbox.LastBuild())

	// A typecheck failure must not publish and must carry no bundle
	// artifacts.
	require.NoError(t, fs.WriteFile("/index.ts", `const n: number = "s";`))
	bad, err := h.sandbox.Build(ctx, BuildOptions{})
	require.NoError(t, err)
	assert.False(t, bad.Success)
	assert.Equal(t, PhaseTypecheck, bad.Phase)
	assert.Empty(t, bad.Code)
	assert.Nil(t, bad.Module)
	assert.Same(t, good, h.sandbox.LastBuild())
}

func TestBundlePhaseFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import { gone } from './missing';\nexport const g = gone;"))

	result, err := h.sandbox.Build(context.Background(), BuildOptions{SkipTypecheck: true})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseBundle, result.Phase)
	require.NotEmpty(t, result.BundleErrors)
}

func TestLoadPhaseFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		`throw new Error("dies at load");`))

	result, err := h.sandbox.Build(context.Background(), BuildOptions{SkipTypecheck: true})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseLoad, result.Phase)
	assert.Contains(t, result.Message, "dies at load")
}

func TestValidatorReplacesModule(t *testing.T) {
	cdn := cdntest.New()
	t.Cleanup(cdn.Close)

	replacement := map[string]string{"kind": "replaced"}
	svc := Services{
		Bundler:  bundler.NewESBuild(cdn.URL, nil),
		Resolver: typefetch.NewResolver(typefetch.Options{CDNBase: cdn.URL}),
		Loader:   loader.New(nil, nil),
		Validator: func(module *loader.Module) (any, error) {
			return replacement, nil
		},
	}
	sb := New(svc)
	t.Cleanup(sb.Dispose)

	require.NoError(t, sb.FS().WriteFile("/index.ts", "export const x = 1;"))
	result, err := sb.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, replacement, result.Module)
}

func TestValidatorFailureIsValidatePhase(t *testing.T) {
	cdn := cdntest.New()
	t.Cleanup(cdn.Close)

	svc := Services{
		Bundler:  bundler.NewESBuild(cdn.URL, nil),
		Resolver: typefetch.NewResolver(typefetch.Options{CDNBase: cdn.URL}),
		Loader:   loader.New(nil, nil),
		Validator: func(module *loader.Module) (any, error) {
			panic("component must export a render function")
		},
	}
	sb := New(svc)
	t.Cleanup(sb.Dispose)

	require.NoError(t, sb.FS().WriteFile("/index.ts", "export const x = 1;"))
	result, err := sb.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseValidate, result.Phase)
	assert.Contains(t, result.Message, "render function")
	assert.Nil(t, sb.LastBuild())
}

func TestSubscribersRunInOrderAndSwallowPanics(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts", "export const x = 1;"))

	var order []string
	h.sandbox.Subscribe(func(result *BuildResult) {
		order = append(order, "first")
		panic("subscriber bug")
	})
	unsub := h.sandbox.Subscribe(func(result *BuildResult) {
		order = append(order, "second")
	})

	result, err := h.sandbox.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []string{"first", "second"}, order)

	unsub()
	_, err = h.sandbox.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "first"}, order)
}

func TestDisposedSandboxDoesNotPublish(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts", "export const x = 1;"))

	notified := false
	h.sandbox.Subscribe(func(result *BuildResult) { notified = true })

	h.sandbox.Dispose()
	result, err := h.sandbox.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, notified)
	assert.Nil(t, h.sandbox.LastBuild())
}

func TestInstallWithoutTypesStillPins(t *testing.T) {
	h := newHarness(t, nil, &cdntest.Package{
		Name: "untyped", Version: "1.2.3", JS: "export default 7;",
	})

	install, err := h.sandbox.Install(context.Background(), "untyped@1.2.3")
	require.NoError(t, err)
	assert.False(t, install.TypesInstalled)
	assert.NotEmpty(t, install.TypesError)
	assert.Equal(t, "1.2.3", install.Version)

	deps := h.sandbox.InstalledPackages()
	assert.Equal(t, "1.2.3", deps["untyped"])

	// Typecheck now surfaces the missing types as a diagnostic.
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import u from 'untyped';\nexport const x = u;"))
	check, err := h.sandbox.Typecheck(context.Background(), TypecheckOptions{})
	require.NoError(t, err)
	assert.False(t, check.Success)
}

func TestUninstallRemovesPinAndTree(t *testing.T) {
	h := newHarness(t, nil, nanoidPackage())
	ctx := context.Background()

	_, err := h.sandbox.Install(ctx, "nanoid@5.1.6")
	require.NoError(t, err)
	require.True(t, h.sandbox.FS().Exists("/node_modules/nanoid/index.d.ts"))

	result, err := h.sandbox.Uninstall("nanoid")
	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.False(t, h.sandbox.FS().Exists("/node_modules/nanoid"))
	assert.NotContains(t, h.sandbox.InstalledPackages(), "nanoid")

	result, err = h.sandbox.Uninstall("nanoid")
	require.NoError(t, err)
	assert.False(t, result.Removed)
}

func TestInstallFromCacheSecondSandbox(t *testing.T) {
	cdn := cdntest.New(nanoidPackage())
	t.Cleanup(cdn.Close)

	resolver := typefetch.NewResolver(typefetch.Options{CDNBase: cdn.URL})
	newSandbox := func() *Sandbox {
		sb := New(Services{
			Bundler:  bundler.NewESBuild(cdn.URL, nil),
			Resolver: resolver,
			Loader:   loader.New(nil, nil),
		})
		t.Cleanup(sb.Dispose)
		return sb
	}

	first, err := newSandbox().Install(context.Background(), "nanoid@5.1.6")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := newSandbox().Install(context.Background(), "nanoid@5.1.6")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
}
