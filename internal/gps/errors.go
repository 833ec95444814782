package gps

import "fmt"

// The resolver reports one of these distinct kinds on failure. Each is a
// plain Go error type so callers can type-switch or use errors.As; the
// resolver itself recovers locally from per-candidate rejections (records
// the reason, moves on) and only surfaces these when no candidate set can
// satisfy the request at all.

// NotFoundError: no candidate after repo search.
type NotFoundError struct {
	Atom string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("package not found: %s", e.Atom) }

// CandidateRejection explains why one candidate version of an atom was
// filtered out, for NoEligibleVersionError's per-candidate reasons.
type CandidateRejection struct {
	Version string
	Reason  string
}

// NoEligibleVersionError: every candidate was filtered by keyword,
// license, or mask state.
type NoEligibleVersionError struct {
	Atom    string
	Reasons []CandidateRejection
}

func (e *NoEligibleVersionError) Error() string {
	return fmt.Sprintf("no eligible version for %s (%d candidates rejected)", e.Atom, len(e.Reasons))
}

// FlagConstraintUnsatError: REQUIRED_USE could not be satisfied even
// after the bounded repair pass.
type FlagConstraintUnsatError struct {
	Package     string
	Expression  string
	Explanation string
}

func (e *FlagConstraintUnsatError) Error() string {
	return fmt.Sprintf("REQUIRED_USE unsatisfiable for %s: %s", e.Package, e.Explanation)
}

// ConflictingSelectionError: the same (PackageId, slot) was demanded at
// two different versions.
type ConflictingSelectionError struct {
	PackageId string
	Slot      string
	Versions  []string
}

func (e *ConflictingSelectionError) Error() string {
	return fmt.Sprintf("conflicting selection for %s:%s: %v", e.PackageId, e.Slot, e.Versions)
}

// BlockedError: a blocker dependency was violated.
type BlockedError struct {
	PackageA, PackageB string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocks %s", e.PackageA, e.PackageB)
}

// CircularBuildDepError: a cycle was found on build/link edges, which are
// not permitted to cycle (runtime edges may).
type CircularBuildDepError struct {
	Cycle []string
}

func (e *CircularBuildDepError) Error() string {
	return fmt.Sprintf("circular build dependency: %v", e.Cycle)
}

// UnsatisfiableError: the tier-2 SAT encoding returned UNSAT; Core lists
// the goal atoms that explainUnsat found responsible by dropping one goal
// at a time. It names goals, not the hard clause that blocks them.
type UnsatisfiableError struct {
	Core []string
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("unsatisfiable: %v", e.Core)
}
