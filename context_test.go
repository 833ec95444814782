package corebrew

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewContextCreatesLayout(t *testing.T) {
	root := t.TempDir()
	c, err := NewContext(root, "/bin/true", nil)
	require.NoError(t, err)

	require.DirExists(t, filepath.Join(root, "var", "db", "corebrew"))
	require.DirExists(t, filepath.Join(root, "var", "cache", "corebrew"))
	require.NotNil(t, c.Catalog)
	require.NotNil(t, c.Config)
	require.NotNil(t, c.World)
}
