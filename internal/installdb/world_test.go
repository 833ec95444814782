package installdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldAddListRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	w := NewWorld(path)

	require.NoError(t, w.Add("dev-libs/zlib"))
	require.NoError(t, w.Add("sys-apps/coreutils"))
	require.NoError(t, w.Add("dev-libs/zlib"), "adding twice is a no-op")

	list, err := w.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-libs/zlib", "sys-apps/coreutils"}, list)

	ok, err := w.Contains("dev-libs/zlib")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, w.Remove("dev-libs/zlib"))
	list, err = w.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"sys-apps/coreutils"}, list)
}

func TestWorldPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")

	w1 := NewWorld(path)
	require.NoError(t, w1.Add("dev-libs/zlib"))

	w2 := NewWorld(path)
	list, err := w2.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-libs/zlib"}, list)
}
