package gps

// KeywordRing is the stability classification controlling default
// visibility: stable candidates are eligible by default, testing and
// unstable are not. A user must opt into a broader ring than Stable for
// testing/unstable candidates to be eligible.
type KeywordRing int

const (
	Stable KeywordRing = iota
	Testing
	Unstable
)

func (r KeywordRing) String() string {
	switch r {
	case Stable:
		return "stable"
	case Testing:
		return "testing"
	case Unstable:
		return "unstable"
	default:
		return "unknown"
	}
}

// DependencyCategory is one of the three edge colors in the resolver's
// dependency graph.
type DependencyCategory int

const (
	DepBuild DependencyCategory = iota
	DepLink
	DepRuntime
)

func (c DependencyCategory) String() string {
	switch c {
	case DepBuild:
		return "build"
	case DepLink:
		return "link"
	case DepRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Dependency is one dependency clause of a PackageRecord: an atom, the
// edge color it contributes, an optional flag-gated condition, and
// whether it is a blocker (an inverted dependency).
type Dependency struct {
	Atom      *Atom
	Category  DependencyCategory
	Condition FlagExpression // nil means unconditional
	Inverted  bool
}

// Enabled reports whether this dependency clause is active under the
// given flag-vector.
func (d Dependency) Enabled(flags map[string]bool) bool {
	if d.Condition == nil {
		return true
	}
	return d.Condition.Evaluate(flags)
}

// BuildOptionFlag is a USE-flag-style boolean knob declared by a package,
// with a default polarity.
type BuildOptionFlag struct {
	Name    string
	Default bool
}

// PackageRecord is the package's immutable declaration. PackageRecords
// are shared by reference from the Catalog; the resolver holds
// references for the duration of a session, and the ResolutionPlan
// materializes owned clones only for the chosen candidates so a plan can
// outlive the resolver session that produced it.
type PackageRecord struct {
	Id          PackageId
	Version     Version
	Slot        Slot
	Description string
	License     string
	Keyword     KeywordRing
	Flags       []BuildOptionFlag
	Deps        []Dependency
	RequiredUse FlagExpression // nil means no constraint
	SourceURL   string
	SourceHash  string
	BackendTarget string
	Repo        string // originating repository name, used for precedence
	DownloadSize  uint64
	InstalledSize uint64
}

// DefaultFlags returns the map of flag name -> default polarity declared
// by the record.
func (p *PackageRecord) DefaultFlags() map[string]bool {
	out := make(map[string]bool, len(p.Flags))
	for _, f := range p.Flags {
		out[f.Name] = f.Default
	}
	return out
}

// AvailableFlagSet returns the set of flag names this record declares, as
// required by ValidateFlags' "never recommend a flag outside the
// package's available set" rule.
func (p *PackageRecord) AvailableFlagSet() map[string]bool {
	out := make(map[string]bool, len(p.Flags))
	for _, f := range p.Flags {
		out[f.Name] = true
	}
	return out
}

// Clone returns a deep-enough copy suitable for embedding in a
// ResolutionPlan step: the slices are copied so later catalog mutation
// (e.g. a resync) cannot retroactively change a materialized plan.
func (p *PackageRecord) Clone() *PackageRecord {
	c := *p
	c.Flags = append([]BuildOptionFlag(nil), p.Flags...)
	c.Deps = append([]Dependency(nil), p.Deps...)
	return &c
}
