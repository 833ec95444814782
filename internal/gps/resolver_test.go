package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	masked map[string]bool
}

func (f *fakeConfig) EnabledFlags(id PackageId, defaults map[string]bool) map[string]bool {
	out := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out
}
func (f *fakeConfig) AcceptsKeyword(id PackageId, k KeywordRing) bool { return k <= Testing }
func (f *fakeConfig) AcceptsLicense(license string) bool              { return true }
func (f *fakeConfig) IsMasked(id PackageId, v Version) bool {
	if f.masked == nil {
		return false
	}
	return f.masked[id.String()+"-"+v.String()]
}

type fakeInstalled struct{}

func (fakeInstalled) Lookup(id PackageId, slot Slot) (InstalledInfo, bool) { return InstalledInfo{}, false }

func newTestResolver(records []*PackageRecord) *Resolver {
	cat := NewCatalog()
	cat.Load(records, func(string) int { return 0 })
	return &Resolver{Catalog: cat, Config: &fakeConfig{}, Installed: fakeInstalled{}}
}

func depOn(atom string, cat DependencyCategory) Dependency {
	return Dependency{Atom: MustParseAtom(atom), Category: cat}
}

func TestResolveSimpleChain(t *testing.T) {
	leaf := rec("dev-libs", "zlib", "1.2.13", "0", "gentoo")
	mid := rec("net-misc", "curl", "8.0.0", "0", "gentoo")
	mid.Deps = []Dependency{depOn("dev-libs/zlib", DepLink)}

	r := newTestResolver([]*PackageRecord{leaf, mid})
	plan, err := r.Resolve([]*Atom{MustParseAtom("net-misc/curl")}, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	// zlib must be ordered before curl since curl link-depends on it.
	assert.Equal(t, "zlib", plan.Steps[0].Record.Id.Name)
	assert.Equal(t, "curl", plan.Steps[1].Record.Id.Name)
	for _, s := range plan.Steps {
		assert.Equal(t, StepNew, s.Kind)
	}
}

func TestResolveMissingPackage(t *testing.T) {
	r := newTestResolver(nil)
	_, err := r.Resolve([]*Atom{MustParseAtom("dev-libs/nonexistent")}, ResolveOptions{})
	require.Error(t, err)
}

// TestResolveBlockerConflict checks blocker semantics: two packages that
// mutually exclude each other cannot both be chosen.
func TestResolveBlockerConflict(t *testing.T) {
	a := rec("app-a", "foo", "1.0.0", "0", "gentoo")
	b := rec("app-b", "bar", "1.0.0", "0", "gentoo")
	a.Deps = []Dependency{{Atom: MustParseAtom("app-b/bar"), Category: DepRuntime, Inverted: true}}

	r := newTestResolver([]*PackageRecord{a, b})
	_, err := r.Resolve([]*Atom{MustParseAtom("app-a/foo"), MustParseAtom("app-b/bar")}, ResolveOptions{})
	require.Error(t, err)
	_, ok := err.(*BlockedError)
	assert.True(t, ok, "expected *BlockedError, got %T: %v", err, err)
}

func TestResolveRequiredUseGating(t *testing.T) {
	pkg := rec("app-x", "thing", "1.0.0", "0", "gentoo")
	pkg.Flags = []BuildOptionFlag{{Name: "gtk", Default: false}, {Name: "qt", Default: false}}
	expr, err := ParseFlagExpression("^^ ( gtk qt )")
	require.NoError(t, err)
	pkg.RequiredUse = expr

	r := newTestResolver([]*PackageRecord{pkg})
	plan, err := r.Resolve([]*Atom{MustParseAtom("app-x/thing")}, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.Steps[0].Flags["gtk"] || plan.Steps[0].Flags["qt"])
	assert.False(t, plan.Steps[0].Flags["gtk"] && plan.Steps[0].Flags["qt"])
}
