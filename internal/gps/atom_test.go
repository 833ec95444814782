package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtomRoundTrip(t *testing.T) {
	inputs := []string{
		"dev-libs/openssl",
		">=dev-libs/openssl-1.1.1",
		"=sys-apps/busybox-1.2.3",
		"~dev-lang/go-1.21.0",
		"net-misc/curl:0",
		"net-misc/curl::gentoo",
		"dev-libs/openssl[static,-doc,ssl?]",
	}
	for _, in := range inputs {
		a, err := ParseAtom(in)
		require.NoError(t, err, in)
		again, err := ParseAtom(a.String())
		require.NoError(t, err, a.String())
		assert.Equal(t, a.String(), again.String(), "P1 round-trip: %s", in)
	}
}

func TestParseAtomHyphenatedName(t *testing.T) {
	a, err := ParseAtom(">=dev-libs/openssl-1.0.2")
	require.NoError(t, err)
	assert.Equal(t, "dev-libs", a.Id.Category)
	assert.Equal(t, "openssl", a.Id.Name)
	require.NotNil(t, a.Version)
	assert.Equal(t, "1.0.2", a.Version.String())
}

func TestParseAtomRejectsMissingVersion(t *testing.T) {
	_, err := ParseAtom(">=dev-libs/openssl")
	assert.Error(t, err)
}

func TestParseAtomRejectsEmpty(t *testing.T) {
	_, err := ParseAtom("")
	assert.Error(t, err)
}

func TestAtomMatches(t *testing.T) {
	a := MustParseAtom(">=dev-libs/openssl-1.1.0")
	assert.True(t, a.Matches(PackageId{Category: "dev-libs", Name: "openssl"}, MustParseVersion("1.1.5"), DefaultSlot, "gentoo"))
	assert.False(t, a.Matches(PackageId{Category: "dev-libs", Name: "openssl"}, MustParseVersion("1.0.0"), DefaultSlot, "gentoo"))
}

func TestAtomFlagListSortedOnPrint(t *testing.T) {
	a := MustParseAtom("dev-libs/openssl[zlib,-doc]")
	assert.Equal(t, "dev-libs/openssl[-doc,zlib]", a.String())
}
