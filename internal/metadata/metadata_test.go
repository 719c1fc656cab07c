package metadata

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skeleton() map[string]any {
	return map[string]any{
		KeyFiles:  map[string]any{},
		KeyTaskrc: "/store/.taskrc",
	}
}

func newFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/store", 0755))
	return fs
}

func readDocument(t *testing.T, fs afero.Fs, path string) map[string]any {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestOpen_InitializesSkeleton(t *testing.T) {
	fs := newFs(t)

	s, err := Open(fs, "/store/.meta", skeleton())
	require.NoError(t, err)

	assert.Equal(t, 0, s.Version())
	assert.Equal(t, "/store/.taskrc", s.GetString(KeyTaskrc, ""))
	assert.Equal(t, []string{KeyFiles, KeyTaskrc}, s.Keys())

	doc := readDocument(t, fs, "/store/.meta")
	assert.Equal(t, map[string]any{"files": map[string]any{}, "taskrc": "/store/.taskrc"}, doc)
}

func TestOpen_ReadsExisting(t *testing.T) {
	fs := newFs(t)
	require.NoError(t, afero.WriteFile(fs, "/store/.meta",
		[]byte(`{"version": 3, "files": {}, "taskrc": "/elsewhere/.taskrc"}`), 0600))

	s, err := Open(fs, "/store/.meta", skeleton())
	require.NoError(t, err)

	assert.Equal(t, 3, s.Version())
	assert.Equal(t, "/elsewhere/.taskrc", s.GetString(KeyTaskrc, ""))
}

func TestOpen_CorruptDocument(t *testing.T) {
	fs := newFs(t)
	require.NoError(t, afero.WriteFile(fs, "/store/.meta", []byte(`{not json`), 0600))

	_, err := Open(fs, "/store/.meta", skeleton())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestSet_PersistsWholeDocument(t *testing.T) {
	fs := newFs(t)
	s, err := Open(fs, "/store/.meta", skeleton())
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyCredentials, "org/alice/key"))
	require.NoError(t, s.SetVersion(2))

	doc := readDocument(t, fs, "/store/.meta")
	assert.Equal(t, "org/alice/key", doc[KeyCredentials])
	assert.Equal(t, float64(2), doc[KeyVersion])
	assert.Equal(t, "/store/.taskrc", doc[KeyTaskrc], "untouched keys are rewritten too")

	reopened, err := Open(fs, "/store/.meta", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Version())
}

func TestGetString_Defaults(t *testing.T) {
	fs := newFs(t)
	s, err := Open(fs, "/store/.meta", skeleton())
	require.NoError(t, err)

	assert.Equal(t, "def", s.GetString("missing", "def"))
	assert.Equal(t, "def", s.GetString(KeyFiles, "def"), "non-string values fall back")

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestItems_IsACopy(t *testing.T) {
	fs := newFs(t)
	s, err := Open(fs, "/store/.meta", skeleton())
	require.NoError(t, err)

	items := s.Items()
	items["injected"] = true

	_, ok := s.Get("injected")
	assert.False(t, ok)
}
