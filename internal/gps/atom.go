// Package gps implements the dependency engine: atom parsing, the
// REQUIRED_USE-style flag-expression language, the package catalog, and
// the two-tier resolver.
package gps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// PackageId names "which software": a category/name pair. Categories
// namespace names the way Gentoo-derived ebuild trees do (dev-libs,
// sys-apps, ...).
type PackageId struct {
	Category string
	Name     string
}

func (p PackageId) String() string { return p.Category + "/" + p.Name }

// Less gives PackageId a total lexicographic order, used as the resolver's
// deterministic tie-break when ordering build steps.
func (p PackageId) Less(o PackageId) bool {
	if p.Category != o.Category {
		return p.Category < o.Category
	}
	return p.Name < o.Name
}

// Slot is an opaque ABI-generation label. Two installed versions of the
// same PackageId in different slots may coexist; the empty slot is the
// default slot "0".
type Slot string

const DefaultSlot Slot = "0"

// FlagRequirement is one element of an atom's build-option requirement
// list: "foo" (must be enabled), "-foo" (must be disabled), or "foo?"
// (enabled if available, no hard requirement — encoded as Optional).
type FlagRequirement struct {
	Name     string
	Positive bool
	Optional bool
}

func (f FlagRequirement) String() string {
	switch {
	case f.Optional && !f.Positive:
		return "-" + f.Name + "?"
	case f.Optional:
		return f.Name + "?"
	case !f.Positive:
		return "-" + f.Name
	default:
		return f.Name
	}
}

// Atom is a structured package specifier: identity, version constraint,
// and optional slot/repo/flag requirements.
type Atom struct {
	Op         string // "", "=", "~", ">=", ">", "<=", "<"
	Id         PackageId
	Constraint VersionConstraint
	Version    *Version // the literal version named in the atom, if any
	Slot       *Slot
	Repo       *string
	Flags      []FlagRequirement
}

var atomOps = []string{">=", "<=", "=", "~", ">", "<"}

// ParseAtom parses the canonical atom syntax:
//
//	[op] category/name [ - version ] [ : slot ] [ :: repo ] [ [ flaglist ] ]
//
// A malformed atom yields an error identifying the offending substring.
func ParseAtom(s string) (*Atom, error) {
	orig := s
	rest := strings.TrimSpace(s)
	if rest == "" {
		return nil, errors.Errorf("atom: empty string")
	}

	op := ""
	for _, candidate := range atomOps {
		if strings.HasPrefix(rest, candidate) {
			op = candidate
			rest = rest[len(candidate):]
			break
		}
	}

	// Split off the flag list first: it is always the trailing `[...]`.
	flagList := ""
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return nil, errors.Errorf("atom %q: unterminated flag list starting at %q", orig, rest[i:])
		}
		flagList = rest[i+1 : len(rest)-1]
		rest = rest[:i]
	}

	// Split off the repo pin `::repo`.
	var repo *string
	if i := strings.Index(rest, "::"); i >= 0 {
		r := rest[i+2:]
		if r == "" {
			return nil, errors.Errorf("atom %q: empty repo after '::'", orig)
		}
		repo = &r
		rest = rest[:i]
	}

	// Split off the slot `:slot`.
	var slot *Slot
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		sv := Slot(rest[i+1:])
		if sv == "" {
			return nil, errors.Errorf("atom %q: empty slot after ':'", orig)
		}
		slot = &sv
		rest = rest[:i]
	}

	// Split off the version suffix `-version`, only meaningful if an op
	// was present (a bare atom with no operator never carries a version).
	catName := rest
	var version *Version
	var constraint VersionConstraint = AnyVersion()

	if op != "" {
		idx := lastVersionSplit(rest)
		if idx < 0 {
			return nil, errors.Errorf("atom %q: operator %q requires a version (category/name-version)", orig, op)
		}
		catName = rest[:idx]
		v, err := ParseVersion(rest[idx+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "atom %q", orig)
		}
		version = &v
		switch op {
		case "=":
			constraint = Exact(v)
		case "~":
			// "~" is modeled as exact-on-the-release-triple: only the bare
			// major.minor.patch version is admitted, not a pre-release of it.
			constraint = Exact(Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch})
		case ">=":
			constraint = AtLeast(v)
		case ">":
			constraint = GreaterThan(v)
		case "<=":
			constraint = AtMost(v)
		case "<":
			constraint = LessThan(v)
		}
	}

	cat, name, ok := strings.Cut(catName, "/")
	if !ok || cat == "" || name == "" {
		return nil, errors.Errorf("atom %q: expected category/name, got %q", orig, catName)
	}
	if !isValidIdent(cat) || !isValidIdent(name) {
		return nil, errors.Errorf("atom %q: invalid category or name %q", orig, catName)
	}

	var flags []FlagRequirement
	if flagList != "" {
		for _, tok := range strings.Split(flagList, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				return nil, errors.Errorf("atom %q: empty flag token in flag list", orig)
			}
			fr := FlagRequirement{Positive: true}
			if strings.HasPrefix(tok, "-") {
				fr.Positive = false
				tok = tok[1:]
			}
			if strings.HasSuffix(tok, "?") {
				fr.Optional = true
				tok = tok[:len(tok)-1]
			}
			if tok == "" || !isValidIdent(tok) {
				return nil, errors.Errorf("atom %q: invalid flag name in %q", orig, flagList)
			}
			fr.Name = tok
			flags = append(flags, fr)
		}
	}

	return &Atom{
		Op:         op,
		Id:         PackageId{Category: cat, Name: name},
		Constraint: constraint,
		Version:    version,
		Slot:       slot,
		Repo:       repo,
		Flags:      flags,
	}, nil
}

// lastVersionSplit finds the '-' that separates "category/name" from
// "version", scanning from the right so names containing hyphens (e.g.
// "dev-libs/openssl") are handled correctly: the version suffix is
// recognized by starting with a digit.
func lastVersionSplit(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			return i
		}
	}
	return -1
}

func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '+':
		case r == '-' && i != 0:
		default:
			return false
		}
	}
	return true
}

// String prints the canonical form of the atom. parse(print(parse(s))) ==
// parse(s) for any syntactically valid s; print(parse(s)) itself is
// always the normalized canonical form, which may differ textually from
// non-canonical input (extra whitespace, out-of-order flags are sorted,
// etc).
func (a *Atom) String() string {
	var b strings.Builder
	b.WriteString(a.Op)
	b.WriteString(a.Id.String())
	if a.Version != nil {
		b.WriteByte('-')
		b.WriteString(a.Version.String())
	}
	if a.Slot != nil {
		b.WriteByte(':')
		b.WriteString(string(*a.Slot))
	}
	if a.Repo != nil {
		b.WriteString("::")
		b.WriteString(*a.Repo)
	}
	if len(a.Flags) > 0 {
		flags := make([]string, len(a.Flags))
		for i, f := range a.Flags {
			flags[i] = f.String()
		}
		sort.Strings(flags)
		b.WriteByte('[')
		b.WriteString(strings.Join(flags, ","))
		b.WriteByte(']')
	}
	return b.String()
}

// Matches reports whether a candidate (id, version, slot, repo) satisfies
// the atom's identity, version, slot, and repo constraints. Flag
// requirements are evaluated separately against a chosen flag-vector by
// the resolver (matching an atom is necessary but not sufficient for a
// candidate to be eligible).
func (a *Atom) Matches(id PackageId, v Version, slot Slot, repo string) bool {
	if a.Id != id {
		return false
	}
	if !a.Constraint.Admits(v) {
		return false
	}
	if a.Slot != nil && *a.Slot != slot {
		return false
	}
	if a.Repo != nil && *a.Repo != repo {
		return false
	}
	return true
}

// ErrInvalidAtom describes a malformed atom string. ParseAtom does not
// return it: its parse errors are plain github.com/pkg/errors values, so
// errors.As against this type does not match them.
type ErrInvalidAtom struct {
	Input string
	Cause error
}

func (e *ErrInvalidAtom) Error() string {
	return fmt.Sprintf("invalid atom %q: %v", e.Input, e.Cause)
}

func (e *ErrInvalidAtom) Unwrap() error { return e.Cause }

// MustParseAtom parses s or panics; intended for literal atoms in test
// fixtures, never for user input.
func MustParseAtom(s string) *Atom {
	a, err := ParseAtom(s)
	if err != nil {
		panic(err)
	}
	return a
}
