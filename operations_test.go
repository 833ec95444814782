package corebrew

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

// fakeBackend mirrors buildengine's own test fixture: a tiny shell script
// standing in for a real build backend's CLI contract.
func fakeBackend(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script is POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.sh")
	script := "#!/bin/sh\nwhile [ \"$1\" != \"--root\" ]; do shift; done\nshift\nmkdir -p \"$1/bin\"\necho hi > \"$1/bin/out\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestCtx(t *testing.T) *Ctx {
	root := t.TempDir()
	c, err := NewContext(root, fakeBackend(t), nil)
	require.NoError(t, err)
	return c
}

func rec(cat, name, version string) *gps.PackageRecord {
	return &gps.PackageRecord{
		Id:            gps.PackageId{Category: cat, Name: name},
		Version:       gps.MustParseVersion(version),
		Slot:          gps.DefaultSlot,
		BackendTarget: cat + "/" + name,
		Repo:          "gentoo",
	}
}

func TestInstallPretendProducesPlanWithoutSideEffects(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })

	plan, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{Pretend: true})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, gps.StepNew, plan.Steps[0].Kind)

	world, err := c.World.List()
	require.NoError(t, err)
	assert.Empty(t, world, "pretend install must not touch the world set")
}

func TestInstallAppliesAndRecordsWorldMembership(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })

	plan, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)

	installed := c.DB.List()
	require.Len(t, installed, 1)
	assert.Equal(t, "zlib", installed[0].Id.Name)

	world, err := c.World.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-libs/zlib"}, world)
}

func TestInstallOneshotSkipsWorldMembership(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })

	_, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{Oneshot: true})
	require.NoError(t, err)

	require.Len(t, c.DB.List(), 1, "oneshot still installs the package")
	world, err := c.World.List()
	require.NoError(t, err)
	assert.Empty(t, world, "oneshot must not record world membership")
}

func TestRemoveDropsInstalledRecordAndWorldMembership(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })

	_, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{})
	require.NoError(t, err)

	_, err = c.Remove(context.Background(), []string{"dev-libs/zlib"}, Options{})
	require.NoError(t, err)

	assert.Empty(t, c.DB.List())
	world, err := c.World.List()
	require.NoError(t, err)
	assert.Empty(t, world)
}

func TestRemoveUnknownAtomFails(t *testing.T) {
	c := newTestCtx(t)
	_, err := c.Remove(context.Background(), []string{"dev-libs/ghost"}, Options{})
	require.Error(t, err)
}

func TestSearchAndInfo(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })

	found := c.Search("zli")
	require.Len(t, found, 1)

	info, err := c.Info("dev-libs/zlib")
	require.NoError(t, err)
	assert.Equal(t, "1.2.13", info.Version.String())

	_, err = c.Info("dev-libs/ghost")
	assert.Error(t, err)
}

func TestDepcleanRemovesUnreachablePackages(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })
	_, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{})
	require.NoError(t, err)

	require.NoError(t, c.World.Remove("dev-libs/zlib"))

	plan, err := c.Depclean(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, gps.StepRemove, plan.Steps[0].Kind)
	assert.Empty(t, c.DB.List())
}

func TestVerifyReportsDigestMismatch(t *testing.T) {
	c := newTestCtx(t)
	c.Catalog.Load([]*gps.PackageRecord{rec("dev-libs", "zlib", "1.2.13")}, func(string) int { return 0 })
	_, err := c.Install(context.Background(), []string{"dev-libs/zlib"}, Options{})
	require.NoError(t, err)

	installedFile := filepath.Join(c.Root, "bin", "out")
	require.NoError(t, os.WriteFile(installedFile, []byte("tampered"), 0o644))

	issues, err := c.Verify()
	require.NoError(t, err)
	require.NotEmpty(t, issues)
}
