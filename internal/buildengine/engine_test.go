package buildengine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebrew/corebrew/internal/gps"
)

// fakeBackend writes a small shell script that, given `--root <dir>`,
// drops one file into it and exits 0 — standing in for a real build
// backend's CLI contract.
func fakeBackend(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script is POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.sh")
	script := "#!/bin/sh\nwhile [ \"$1\" != \"--root\" ]; do shift; done\nshift\nmkdir -p \"$1\"\necho hi > \"$1/output.txt\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestBuildProducesManifest(t *testing.T) {
	backend := fakeBackend(t)
	d := NewDriver(backend, nil)

	rec := &gps.PackageRecord{
		Id:            gps.PackageId{Category: "dev-libs", Name: "openssl"},
		Version:       gps.MustParseVersion("1.1.1"),
		BackendTarget: "dev-libs/openssl",
	}

	root := t.TempDir()
	artifact, err := d.Build(context.Background(), rec, map[string]bool{"static": true}, Environment{}, root)
	require.NoError(t, err)
	assert.Equal(t, "openssl", artifact.PackageID.Name)

	var found bool
	for _, e := range artifact.Manifest {
		if e.Path == "output.txt" {
			found = true
			assert.NotEmpty(t, e.Digest)
		}
	}
	assert.True(t, found, "expected output.txt in manifest")
}
