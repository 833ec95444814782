package gps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a semantic-version triple with an optional pre-release tag.
// Two Versions are only meaningfully comparable when they name the same
// PackageId; Compare does not enforce that itself, callers are expected to
// keep Versions scoped to a single package the way the catalog does.
type Version struct {
	Major, Minor, Patch int
	Pre                 string
}

// ParseVersion parses a "major.minor.patch[-pre]" string.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, errors.New("version: empty string")
	}
	core, pre, _ := strings.Cut(s, "-")
	parts := strings.Split(core, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, errors.Errorf("version: malformed %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, errors.Errorf("version: non-numeric component %q in %q", p, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Pre: pre}, nil
}

// MustParseVersion panics on a malformed string; used for literal versions
// embedded in tests and fixtures.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	return s
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// o. A release version (empty Pre) is always newer than any pre-release of
// the same major.minor.patch triple.
func (v Version) Compare(o Version) int {
	if c := compareInt(v.Major, o.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, o.Patch); c != 0 {
		return c
	}
	switch {
	case v.Pre == "" && o.Pre == "":
		return 0
	case v.Pre == "":
		return 1
	case o.Pre == "":
		return -1
	default:
		return strings.Compare(v.Pre, o.Pre)
	}
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// VersionConstraint is a tagged variant over a small set of predicates:
// Any, Exact, >=, >, <=, <, and Range. Every constructor produces a value
// satisfying this interface; constraints are monotone, meaning
// Intersect(c1, c2) always yields a constraint (possibly one that admits
// no version at all, reported via Empty()).
type VersionConstraint interface {
	fmt.Stringer

	// Admits reports whether v satisfies the constraint.
	Admits(v Version) bool

	// Intersect computes the constraint admitting exactly the versions
	// admitted by both c and the receiver.
	Intersect(c VersionConstraint) VersionConstraint

	// Empty reports whether no version at all can satisfy the constraint.
	Empty() bool

	sealedConstraint()
}

// rangeConstraint is the single concrete representation backing every
// constructor below: Any is {nil,nil}, Exact(v) is {v,v}, >=v is {v,nil},
// <=v is {nil,v}, and so on. Representing every variant as a min/max pair
// makes Intersect a single tightening operation instead of a case split
// per pair of variants: intersecting twice never admits more versions
// than intersecting once, which is straightforward to see by inspection
// on this representation.
type rangeConstraint struct {
	min, max           *Version
	minExcl, maxExcl   bool
	empty              bool
	display            string
}

func (r *rangeConstraint) sealedConstraint() {}

func (r *rangeConstraint) Empty() bool {
	if r.empty {
		return true
	}
	if r.min != nil && r.max != nil {
		c := r.min.Compare(*r.max)
		if c > 0 {
			return true
		}
		if c == 0 && (r.minExcl || r.maxExcl) {
			return true
		}
	}
	return false
}

func (r *rangeConstraint) Admits(v Version) bool {
	if r.Empty() {
		return false
	}
	if r.min != nil {
		c := v.Compare(*r.min)
		if c < 0 || (c == 0 && r.minExcl) {
			return false
		}
	}
	if r.max != nil {
		c := v.Compare(*r.max)
		if c > 0 || (c == 0 && r.maxExcl) {
			return false
		}
	}
	return true
}

func (r *rangeConstraint) Intersect(o VersionConstraint) VersionConstraint {
	other, ok := o.(*rangeConstraint)
	if !ok {
		// Every constructor in this package returns *rangeConstraint, so a
		// foreign implementation can only arrive via misuse; treat it as
		// the empty set rather than panicking.
		return &rangeConstraint{empty: true, display: "()"}
	}
	out := &rangeConstraint{}

	out.min, out.minExcl = tighterMin(r.min, r.minExcl, other.min, other.minExcl)
	out.max, out.maxExcl = tighterMax(r.max, r.maxExcl, other.max, other.maxExcl)
	out.empty = r.Empty() || other.Empty() || out.Empty()
	out.display = fmt.Sprintf("(%s ∩ %s)", r.String(), other.String())
	return out
}

func tighterMin(a *Version, aExcl bool, b *Version, bExcl bool) (*Version, bool) {
	switch {
	case a == nil:
		return b, bExcl
	case b == nil:
		return a, aExcl
	default:
		c := a.Compare(*b)
		switch {
		case c > 0:
			return a, aExcl
		case c < 0:
			return b, bExcl
		default:
			return a, aExcl || bExcl
		}
	}
}

func tighterMax(a *Version, aExcl bool, b *Version, bExcl bool) (*Version, bool) {
	switch {
	case a == nil:
		return b, bExcl
	case b == nil:
		return a, aExcl
	default:
		c := a.Compare(*b)
		switch {
		case c < 0:
			return a, aExcl
		case c > 0:
			return b, bExcl
		default:
			return a, aExcl || bExcl
		}
	}
}

func (r *rangeConstraint) String() string {
	if r.display != "" {
		return r.display
	}
	if r.Empty() {
		return "<empty>"
	}
	switch {
	case r.min == nil && r.max == nil:
		return ""
	case r.min != nil && r.max != nil && r.min.Equal(*r.max) && !r.minExcl && !r.maxExcl:
		return "=" + r.min.String()
	case r.min != nil && r.max == nil:
		if r.minExcl {
			return ">" + r.min.String()
		}
		return ">=" + r.min.String()
	case r.min == nil && r.max != nil:
		if r.maxExcl {
			return "<" + r.max.String()
		}
		return "<=" + r.max.String()
	default:
		lo, hi := "[", "]"
		if r.minExcl {
			lo = "("
		}
		if r.maxExcl {
			hi = ")"
		}
		return fmt.Sprintf("%s%s,%s%s", lo, r.min.String(), r.max.String(), hi)
	}
}

// AnyVersion admits every version.
func AnyVersion() VersionConstraint { return &rangeConstraint{} }

// Exact admits only v.
func Exact(v Version) VersionConstraint {
	return &rangeConstraint{min: &v, max: &v}
}

// AtLeast admits v and every newer version (">=").
func AtLeast(v Version) VersionConstraint {
	return &rangeConstraint{min: &v}
}

// GreaterThan admits every version newer than v (">").
func GreaterThan(v Version) VersionConstraint {
	return &rangeConstraint{min: &v, minExcl: true}
}

// AtMost admits v and every older version ("<=").
func AtMost(v Version) VersionConstraint {
	return &rangeConstraint{max: &v}
}

// LessThan admits every version older than v ("<").
func LessThan(v Version) VersionConstraint {
	return &rangeConstraint{max: &v, maxExcl: true}
}

// VersionRange admits versions in [min, max]; either bound may be nil for
// an open end.
func VersionRange(min, max *Version) VersionConstraint {
	return &rangeConstraint{min: min, max: max}
}

// emptyConstraint returns a constraint admitting no version.
func emptyConstraint() VersionConstraint {
	return &rangeConstraint{empty: true, display: "<empty>"}
}
