package txn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
	"github.com/corebrew/corebrew/internal/installdb"
)

func newItem(t *testing.T, id gps.PackageId, files ...string) Item {
	stage := t.TempDir()
	var manifest []buildengine.FileManifestEntry
	for _, f := range files {
		full := filepath.Join(stage, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("data"), 0o644))
		manifest = append(manifest, buildengine.FileManifestEntry{Path: f, Type: buildengine.FileRegular, Mode: 0o644})
	}
	rec := &gps.PackageRecord{Id: id, Version: gps.MustParseVersion("1.0"), Slot: gps.DefaultSlot}
	return Item{
		Step:     gps.PlanStep{Record: rec, Kind: gps.StepNew},
		Artifact: &buildengine.BuildArtifact{PackageID: id, RootDir: stage, Manifest: manifest},
	}
}

func TestTransactionApplyAndRecord(t *testing.T) {
	root := t.TempDir()
	db, err := installdb.New(t.TempDir())
	require.NoError(t, err)

	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	item := newItem(t, id, "usr/lib/libssl.so")

	tr := New(root, db, []Item{item}, false, nil)
	require.NoError(t, tr.Execute(context.Background()))

	data, err := os.ReadFile(filepath.Join(root, "usr/lib/libssl.so"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	rec, ok := db.Get(id, gps.DefaultSlot)
	require.True(t, ok)
	assert.Len(t, rec.Manifest, 1)
}

func TestTransactionPretendMakesNoChanges(t *testing.T) {
	root := t.TempDir()
	db, err := installdb.New(t.TempDir())
	require.NoError(t, err)

	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	item := newItem(t, id, "usr/lib/libssl.so")

	tr := New(root, db, []Item{item}, true, nil)
	require.NoError(t, tr.Execute(context.Background()))

	_, err = os.Stat(filepath.Join(root, "usr/lib/libssl.so"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransactionDetectsCollisionWithInstalled(t *testing.T) {
	root := t.TempDir()
	db, err := installdb.New(t.TempDir())
	require.NoError(t, err)

	existing := gps.PackageId{Category: "dev-libs", Name: "libressl"}
	require.NoError(t, db.Put(&installdb.InstalledRecord{
		Id: existing, Version: gps.MustParseVersion("1.0"), Slot: gps.DefaultSlot,
		Manifest: []buildengine.FileManifestEntry{{Path: "usr/lib/libssl.so", Type: buildengine.FileRegular}},
	}))

	newID := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	item := newItem(t, newID, "usr/lib/libssl.so")

	tr := New(root, db, []Item{item}, false, nil)
	err = tr.Execute(context.Background())
	require.Error(t, err)
	var collErr *CollisionError
	require.ErrorAs(t, err, &collErr)
}

func TestTransactionRemoveStep(t *testing.T) {
	root := t.TempDir()
	db, err := installdb.New(t.TempDir())
	require.NoError(t, err)

	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr/lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr/lib/libssl.so"), []byte("data"), 0o644))
	require.NoError(t, db.Put(&installdb.InstalledRecord{
		Id: id, Version: gps.MustParseVersion("1.0"), Slot: gps.DefaultSlot,
		Manifest: []buildengine.FileManifestEntry{{Path: "usr/lib/libssl.so", Type: buildengine.FileRegular}},
	}))

	rec := &gps.PackageRecord{Id: id, Version: gps.MustParseVersion("1.0"), Slot: gps.DefaultSlot}
	tr := New(root, db, []Item{{Step: gps.PlanStep{Record: rec, Kind: gps.StepRemove}}}, false, nil)
	require.NoError(t, tr.Execute(context.Background()))

	_, err = os.Stat(filepath.Join(root, "usr/lib/libssl.so"))
	assert.True(t, os.IsNotExist(err))
	_, ok := db.Get(id, gps.DefaultSlot)
	assert.False(t, ok)
}

func TestTransactionPreservesLibraryOnUpgrade(t *testing.T) {
	root := t.TempDir()
	db, err := installdb.New(t.TempDir())
	require.NoError(t, err)

	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	require.NoError(t, db.Put(&installdb.InstalledRecord{
		Id: id, Version: gps.MustParseVersion("1.0"), Slot: gps.DefaultSlot,
		Manifest: []buildengine.FileManifestEntry{{Path: "usr/lib/libssl.so.1", Type: buildengine.FileRegular, Digest: "deadbeef"}},
	}))

	item := newItem(t, id, "usr/lib/libssl.so.3")
	item.Step.Kind = gps.StepUpgrade

	tr := New(root, db, []Item{item}, false, nil)
	require.NoError(t, tr.Execute(context.Background()))

	require.Len(t, tr.Preserved(), 1)
	assert.Equal(t, "usr/lib/libssl.so.1", tr.Preserved()[0].OriginalPath)
}
