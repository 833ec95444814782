package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.3.0", "1.2.9", 1},
		{"1.0.0-rc1", "1.0.0", -1},
		{"1.0.0", "1.0.0-rc1", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
	}
	for _, c := range cases {
		va, err := ParseVersion(c.a)
		require.NoError(t, err)
		vb, err := ParseVersion(c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, signOf(va.Compare(vb)), "%s vs %s", c.a, c.b)
	}
}

func signOf(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestParseVersionRejectsMalformed(t *testing.T) {
	_, err := ParseVersion("")
	assert.Error(t, err)
	_, err = ParseVersion("abc")
	assert.Error(t, err)
}

// TestConstraintIntersectMonotone is P2: Intersect never admits a version
// that either input constraint rejects.
func TestConstraintIntersectMonotone(t *testing.T) {
	v1 := MustParseVersion("1.0.0")
	v2 := MustParseVersion("2.0.0")
	v3 := MustParseVersion("3.0.0")

	atLeast1 := AtLeast(v1)
	atMost2 := AtMost(v2)
	merged := atLeast1.Intersect(atMost2)

	assert.True(t, merged.Admits(v1))
	assert.True(t, merged.Admits(v2))
	assert.False(t, merged.Admits(v3))

	disjoint := AtLeast(v3).Intersect(AtMost(v1))
	assert.True(t, disjoint.Empty())
}

func TestExactConstraint(t *testing.T) {
	v := MustParseVersion("1.4.2")
	c := Exact(v)
	assert.True(t, c.Admits(v))
	assert.False(t, c.Admits(MustParseVersion("1.4.3")))
}
