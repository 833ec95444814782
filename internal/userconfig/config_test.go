package userconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebrew/corebrew/internal/gps"
)

func TestLoadGlobalMergesFlags(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadProfile([]byte(`
accept_keywords = "stable"

[use_flags]
ssl = false
gtk = true
`)))
	require.NoError(t, c.LoadGlobal([]byte(`
accept_keywords = "testing"
accept_licenses = ["MIT", "BSD"]

[use_flags]
ssl = true

[[package_use]]
atom = "dev-libs/openssl"
[package_use.flags]
static = true
`)))

	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	flags := c.EnabledFlags(id, map[string]bool{"ssl": false, "static": false, "gtk": false})
	assert.True(t, flags["ssl"])  // global layer overrides profile
	assert.True(t, flags["gtk"])  // profile layer still applies
	assert.True(t, flags["static"]) // per-atom layer applies only to this id

	other := gps.PackageId{Category: "net-misc", Name: "curl"}
	flags2 := c.EnabledFlags(other, map[string]bool{"static": false})
	assert.False(t, flags2["static"]) // per-atom override doesn't leak to other packages
}

func TestAcceptsKeywordPerAtomOverride(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadGlobal([]byte(`
accept_keywords = "stable"

[[package_keywords]]
atom = "dev-libs/openssl"
ring = "unstable"
`)))
	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	assert.True(t, c.AcceptsKeyword(id, gps.Unstable))

	other := gps.PackageId{Category: "net-misc", Name: "curl"}
	assert.False(t, c.AcceptsKeyword(other, gps.Unstable))
}

func TestMaskAndUnmask(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadGlobal([]byte(`
package_mask = [">=dev-libs/openssl-3.0.0"]
package_unmask = ["=dev-libs/openssl-3.0.1"]
`)))
	id := gps.PackageId{Category: "dev-libs", Name: "openssl"}
	assert.True(t, c.IsMasked(id, gps.MustParseVersion("3.0.0")))
	assert.False(t, c.IsMasked(id, gps.MustParseVersion("3.0.1")))
	assert.False(t, c.IsMasked(id, gps.MustParseVersion("2.9.9")))
}

func TestExpandVarsFallsBackToEnv(t *testing.T) {
	t.Setenv("COREBREW_TEST_VAR", "from-env")
	got := expandVars("prefix-${COREBREW_TEST_VAR}-suffix", map[string]string{})
	assert.Equal(t, "prefix-from-env-suffix", got)

	got2 := expandVars("${DEFINED}", map[string]string{"DEFINED": "yes"})
	assert.Equal(t, "yes", got2)

	got3 := expandVars("${UNKNOWN_VAR_XYZ}", map[string]string{})
	assert.Equal(t, "${UNKNOWN_VAR_XYZ}", got3)
}
