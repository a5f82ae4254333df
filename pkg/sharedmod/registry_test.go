package sharedmod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGet(t *testing.T) {
	hostReact := Module{"useState": func() {}, "useEffect": func() {}}
	r := New(map[string]Module{"react": hostReact})
	defer r.Close()

	mod, err := r.Get("react")
	require.NoError(t, err)
	assert.NotNil(t, mod["useState"])

	assert.True(t, r.Has("react"))
	assert.False(t, r.Has("vue"))
}

func TestRegistryUnknownModule(t *testing.T) {
	r := New(map[string]Module{"react": {}, "react/jsx-runtime": {}})
	defer r.Close()

	_, err := r.Get("vue")
	var unknown *UnknownModuleError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "vue", unknown.ID)
	assert.Equal(t, []string{"react", "react/jsx-runtime"}, unknown.Known)
	assert.Contains(t, err.Error(), "react/jsx-runtime")
}

func TestExportNameIntrospection(t *testing.T) {
	r := New(map[string]Module{
		"lib": {
			"useState":   1,
			"_internal":  2,
			"$helper":    3,
			"default":    4,
			"class":      5,
			"not-valid!": 6,
			"v2":         7,
		},
	})
	defer r.Close()

	names, err := r.ExportNames("lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"$helper", "_internal", "useState", "v2"}, names)
}

func TestRegistryKeysAreUnique(t *testing.T) {
	a := New(map[string]Module{"react": {}})
	defer a.Close()
	b := New(map[string]Module{"react": {}})
	defer b.Close()

	assert.NotEqual(t, a.RegistryKey(), b.RegistryKey())

	got, ok := Ambient(a.RegistryKey())
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestCloseUnbindsAmbient(t *testing.T) {
	r := New(map[string]Module{})
	key := r.RegistryKey()

	_, ok := Ambient(key)
	require.True(t, ok)

	r.Close()
	_, ok = Ambient(key)
	assert.False(t, ok)
}
