package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)

	res := h.sandbox.Exec(context.Background(), "frobnicate --hard")
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Contains(t, res.Stderr, "unknown command: frobnicate")
}

func TestExecInstall(t *testing.T) {
	h := newHarness(t, nil, nanoidPackage())

	res := h.sandbox.Exec(context.Background(), "install nanoid@5.1.6")
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Contains(t, res.Stdout, "installed nanoid@5.1.6")
	assert.Contains(t, res.Stdout, "type files")

	res = h.sandbox.Exec(context.Background(), "install")
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Contains(t, res.Stderr, "usage:")
}

func TestExecUninstallNotInstalled(t *testing.T) {
	h := newHarness(t, nil)

	res := h.sandbox.Exec(context.Background(), "uninstall ghost")
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Contains(t, res.Stderr, "not installed")
}

func TestExecBuildSuccess(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts", "export const x = 1;"))

	res := h.sandbox.Exec(context.Background(), "build")
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Contains(t, res.Stdout, "built /index.ts")
}

func TestExecBuildFlagsAndEntry(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/main.ts", `const broken: number = "text";`))

	// --skip-typecheck lets the type error through to a working build.
	res := h.sandbox.Exec(context.Background(), "build --skip-typecheck --minify --tailwind /main.ts")
	assert.Equal(t, ExitOK, res.ExitCode)

	res = h.sandbox.Exec(context.Background(), "build --bogus")
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Contains(t, res.Stderr, "unknown flag")
}

func TestExecBuildTypecheckFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts", `const n: number = "s";`))

	res := h.sandbox.Exec(context.Background(), "build")
	assert.Equal(t, ExitPipeline, res.ExitCode)
	assert.Contains(t, res.Stderr, "ERROR: /index.ts:1:")
	assert.Contains(t, res.Stderr, "not assignable")
}

func TestExecBuildMissingEntryIsCallerError(t *testing.T) {
	h := newHarness(t, nil)

	res := h.sandbox.Exec(context.Background(), "build /nope.ts")
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Contains(t, res.Stderr, "/nope.ts")
}

func TestExecBuildBundleErrorShowsCaret(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts",
		"import { gone } from './missing';\nexport const g = gone;"))

	res := h.sandbox.Exec(context.Background(), "build --skip-typecheck")
	assert.Equal(t, ExitPipeline, res.ExitCode)
	assert.Contains(t, res.Stderr, "ERROR:")

	// The offending line and a caret pointer are included when the
	// engine reports a location.
	if strings.Contains(res.Stderr, "./missing';") {
		assert.Contains(t, res.Stderr, "^")
	}
}

func TestExecTypecheck(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sandbox.FS().WriteFile("/a.ts", "export const ok: string = 'yes';"))
	require.NoError(t, h.sandbox.FS().WriteFile("/index.ts", `const n: number = "s";`))

	res := h.sandbox.Exec(context.Background(), "typecheck /a.ts")
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Contains(t, res.Stdout, "typecheck passed")

	res = h.sandbox.Exec(context.Background(), "typecheck")
	assert.Equal(t, ExitPipeline, res.ExitCode)
	assert.Contains(t, res.Stderr, "ERROR: /index.ts:1:")
}

func TestExecEquivalenceWithDirectCalls(t *testing.T) {
	h := newHarness(t, nil, nanoidPackage())
	ctx := context.Background()

	res := h.sandbox.Exec(ctx, "install nanoid@5.1.6")
	require.Equal(t, ExitOK, res.ExitCode)

	// The shell surface and the direct surface observe the same state.
	deps := h.sandbox.InstalledPackages()
	assert.Equal(t, "5.1.6", deps["nanoid"])
	assert.True(t, h.sandbox.FS().Exists("/node_modules/nanoid/index.d.ts"))
}

func TestSplitCommand(t *testing.T) {
	assert.Equal(t, []string{"install", "nanoid@5.1.6"}, splitCommand("install  nanoid@5.1.6"))
	assert.Equal(t, []string{"build", "/my entry.ts"}, splitCommand(`build "/my entry.ts"`))
	assert.Equal(t, []string{"typecheck", "/a.ts"}, splitCommand("typecheck '/a.ts'"))
	assert.Empty(t, splitCommand("   "))
}
