package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
)

func buildTestArtifact(t *testing.T) *buildengine.BuildArtifact {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "zlib"), []byte("binary payload"), 0o755))
	require.NoError(t, os.Symlink("zlib", filepath.Join(root, "bin", "zlib.so")))

	return &buildengine.BuildArtifact{
		PackageID: gps.PackageId{Category: "dev-libs", Name: "zlib"},
		Version:   gps.MustParseVersion("1.2.13"),
		RootDir:   root,
		Manifest: []buildengine.FileManifestEntry{
			{Path: "bin", Type: buildengine.FileDir, Mode: 0o755},
			{Path: "bin/zlib", Type: buildengine.FileRegular, Mode: 0o755},
			{Path: "bin/zlib.so", Type: buildengine.FileSymlink},
		},
	}
}

func TestPackUnpackArtifactGzip(t *testing.T) {
	artifact := buildTestArtifact(t)

	var buf bytes.Buffer
	require.NoError(t, PackArtifact(artifact, CompressionGzip, &buf))

	destDir := t.TempDir()
	manifest, err := UnpackArtifact(context.Background(), &buf, CompressionGzip, destDir)
	require.NoError(t, err)
	require.Len(t, manifest, 3)

	data, err := os.ReadFile(filepath.Join(destDir, "bin", "zlib"))
	require.NoError(t, err)
	assert.Equal(t, "binary payload", string(data))

	target, err := os.Readlink(filepath.Join(destDir, "bin", "zlib.so"))
	require.NoError(t, err)
	assert.Equal(t, "zlib", target)
}

func TestPackUnpackArtifactZstd(t *testing.T) {
	artifact := buildTestArtifact(t)

	var buf bytes.Buffer
	require.NoError(t, PackArtifact(artifact, CompressionZstd, &buf))

	destDir := t.TempDir()
	manifest, err := UnpackArtifact(context.Background(), &buf, CompressionZstd, destDir)
	require.NoError(t, err)
	require.Len(t, manifest, 3)

	data, err := os.ReadFile(filepath.Join(destDir, "bin", "zlib"))
	require.NoError(t, err)
	assert.Equal(t, "binary payload", string(data))
}

func TestUnpackArtifactRejectsUnknownCompression(t *testing.T) {
	_, err := newDecompressReader(Compression("lzma"), bytes.NewReader(nil))
	assert.Error(t, err)
}
