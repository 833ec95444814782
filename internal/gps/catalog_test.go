package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(cat, name, version, slot, repo string) *PackageRecord {
	return &PackageRecord{
		Id:      PackageId{Category: cat, Name: name},
		Version: MustParseVersion(version),
		Slot:    Slot(slot),
		Repo:    repo,
	}
}

// TestCatalogOverlayPrecedence is P9: a higher-priority repo's record wins
// on an exact (Version, Slot) collision.
func TestCatalogOverlayPrecedence(t *testing.T) {
	c := NewCatalog()
	gentoo := rec("dev-libs", "openssl", "1.1.1", "0", "gentoo")
	overlay := rec("dev-libs", "openssl", "1.1.1", "0", "my-overlay")
	overlay.Description = "patched"

	priority := map[string]int{"gentoo": 0, "my-overlay": 10}
	c.Load([]*PackageRecord{gentoo, overlay}, func(repo string) int { return priority[repo] })

	got := c.Lookup(PackageId{Category: "dev-libs", Name: "openssl"})
	require.Len(t, got, 1)
	assert.Equal(t, "patched", got[0].Description)
}

func TestCatalogNewestFirst(t *testing.T) {
	c := NewCatalog()
	old := rec("dev-libs", "openssl", "1.0.0", "0", "gentoo")
	latest := rec("dev-libs", "openssl", "1.1.1", "0", "gentoo")
	c.Load([]*PackageRecord{old, latest}, func(string) int { return 0 })

	got := c.Lookup(PackageId{Category: "dev-libs", Name: "openssl"})
	require.Len(t, got, 2)
	assert.Equal(t, "1.1.1", got[0].Version.String())
}

func TestCatalogSearch(t *testing.T) {
	c := NewCatalog()
	c.Load([]*PackageRecord{
		rec("dev-libs", "openssl", "1.1.1", "0", "gentoo"),
		rec("net-misc", "curl", "8.0.0", "0", "gentoo"),
	}, func(string) int { return 0 })

	got := c.Search("ssl")
	require.Len(t, got, 1)
	assert.Equal(t, "openssl", got[0].Id.Name)
}
