package installdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
)

func TestPutGetRoundTrip(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)

	rec := &InstalledRecord{
		Id:      gps.PackageId{Category: "dev-libs", Name: "openssl"},
		Version: gps.MustParseVersion("1.1.1"),
		Slot:    gps.DefaultSlot,
		Flags:   map[string]bool{"static": true},
		Manifest: []buildengine.FileManifestEntry{
			{Path: "usr/lib/libssl.so", Type: buildengine.FileRegular, Digest: "abc123"},
		},
		Repo: "gentoo",
	}
	require.NoError(t, db.Put(rec))

	got, ok := db.Get(rec.Id, rec.Slot)
	require.True(t, ok)
	assert.Equal(t, "1.1.1", got.Version.String())
	assert.True(t, got.Flags["static"])
	require.Len(t, got.Manifest, 1)
	assert.Equal(t, "usr/lib/libssl.so", got.Manifest[0].Path)
}

func TestLookupImplementsGPSInterface(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)
	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}

	_, ok := db.Lookup(id, gps.DefaultSlot)
	assert.False(t, ok)

	require.NoError(t, db.Put(&InstalledRecord{Id: id, Version: gps.MustParseVersion("1.1.1"), Slot: gps.DefaultSlot}))
	info, ok := db.Lookup(id, gps.DefaultSlot)
	require.True(t, ok)
	assert.Equal(t, "1.1.1", info.Version.String())
}

func TestOwnerOfAndList(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)
	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	require.NoError(t, db.Put(&InstalledRecord{
		Id: id, Version: gps.MustParseVersion("1.1.1"), Slot: gps.DefaultSlot,
		Manifest: []buildengine.FileManifestEntry{{Path: "usr/lib/libssl.so"}},
	}))

	owner, ok := db.OwnerOf("usr/lib/libssl.so")
	require.True(t, ok)
	assert.Equal(t, id, owner)

	list := db.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].Id)
}

func TestRemove(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)
	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	require.NoError(t, db.Put(&InstalledRecord{Id: id, Version: gps.MustParseVersion("1.1.1"), Slot: gps.DefaultSlot}))
	require.NoError(t, db.Remove(id, gps.DefaultSlot))
	_, ok := db.Get(id, gps.DefaultSlot)
	assert.False(t, ok)
}
