package gps

import (
	"fmt"
	"sort"
)

// ResolveOptions are the resolver's mode flags.
type ResolveOptions struct {
	NoDeps     bool
	Force      bool
	EmptyTree  bool
	NewUse     bool
	Deep       bool
	UpdateOnly bool
	WithBDeps  bool

	// MaxBacktrack caps the conflicts Tier 1 reports with version detail.
	// Tier 1 does not backtrack: its first conflict ends the greedy walk
	// and escalates to Tier 2 (SAT). Zero selects a default of 64.
	MaxBacktrack int
	// MaxFlagRepairDepth bounds the REQUIRED_USE repair loop.
	MaxFlagRepairDepth int
}

func (o ResolveOptions) withDefaults() ResolveOptions {
	if o.MaxBacktrack <= 0 {
		o.MaxBacktrack = 64
	}
	if o.MaxFlagRepairDepth <= 0 {
		o.MaxFlagRepairDepth = 8
	}
	return o
}

// InstalledInfo is the minimal view of an installed package the resolver
// needs: its chosen version/flags, used to decide new/upgrade/rebuild and
// to satisfy dependencies without re-resolving already-present packages
// (the `deep`/`update-only` distinction).
type InstalledInfo struct {
	Version Version
	Flags   map[string]bool
}

// InstalledLookup is the subset of the installed database the resolver
// depends on.
type InstalledLookup interface {
	Lookup(id PackageId, slot Slot) (InstalledInfo, bool)
}

// ConfigProvider is the subset of the user-configuration layer the
// resolver depends on: flag/keyword/license/mask decisions, merged across
// profile/global/per-atom/transient layers.
type ConfigProvider interface {
	// EnabledFlags computes the final enabled-flag map for a candidate,
	// given its declared defaults: (defaults ⊔ profile ⊔ global ⊔
	// per-atom ⊔ transient) ∖ (disables at each layer).
	EnabledFlags(id PackageId, defaults map[string]bool) map[string]bool
	// AcceptsKeyword reports whether the user's configured stability ring
	// makes a candidate at ring k visible.
	AcceptsKeyword(id PackageId, k KeywordRing) bool
	// AcceptsLicense reports whether the named license is accepted.
	AcceptsLicense(license string) bool
	// IsMasked reports whether (id, v) is blocked by a version mask.
	IsMasked(id PackageId, v Version) bool
}

// Resolver produces a ResolutionPlan from a goal set, the catalog, the
// user-configuration layer, and an installed-database snapshot.
type Resolver struct {
	Catalog   *Catalog
	Config    ConfigProvider
	Installed InstalledLookup
}

// chosen is one tentative selection made while walking the goal graph.
type chosen struct {
	record *PackageRecord
	flags  map[string]bool
	// candidateIdx is this choice's position within the candidate list
	// considered for its atom; Tier 1 records it but never returns to a
	// later candidate once a choice is made.
	candidateIdx int
	viaAtom      string // for diagnostics
}

// key identifies an installed-instance slot: slots, not versions, are the
// resolver's identity for "same ABI generation" — no two InstalledRecords
// ever share (PackageId, slot).
type slotKey struct {
	id   PackageId
	slot Slot
}

// resolveState threads the mutable search state through the recursive
// greedy walk so Resolve itself stays a thin entry point.
type resolveState struct {
	opts    ResolveOptions
	chosen  map[slotKey]*chosen
	visited map[string]bool // atom strings already expanded, to avoid infinite requeue
	order   []slotKey       // discovery order, used as a stable base for topo sort ties
	edges   []edge          // build/link/runtime edges between chosen slots
	blocks  []blockPair
	backtracks int
}

type edge struct {
	from, to slotKey
	category DependencyCategory
}

// blockPair is a deferred blocker: `from` has declared it cannot coexist
// with whatever (if anything) ends up chosen to satisfy `target`. It is
// resolved against the final st.chosen set once the whole walk completes,
// since the blocked package may not have been chosen yet at the point the
// blocker was declared.
type blockPair struct {
	from   slotKey
	target *Atom
}

// Resolve is the resolver's public entry point. It tries Tier 1 (a greedy
// graph walk) first. Tier 1 does not backtrack: the first missing
// package, ineligible atom, selection conflict or unsatisfiable flag
// constraint it meets ends the walk, and Resolve escalates to Tier 2 (SAT
// encoding, resolver_sat.go). Blocker and build-cycle errors found after
// the walk are returned without escalating.
func (r *Resolver) Resolve(goals []*Atom, opts ResolveOptions) (*ResolutionPlan, error) {
	opts = opts.withDefaults()

	plan, err := r.resolveGreedy(goals, opts)
	if err == nil {
		return plan, nil
	}
	if _, exhausted := err.(*backtrackExhaustedError); !exhausted {
		// A hard, non-recoverable-by-SAT error (e.g. malformed atom) —
		// don't bother escalating.
		return nil, err
	}

	return r.resolveSAT(goals, opts)
}

type backtrackExhaustedError struct{ cause error }

func (e *backtrackExhaustedError) Error() string { return e.cause.Error() }
func (e *backtrackExhaustedError) Unwrap() error { return e.cause }

// resolveGreedy implements Tier 1.
func (r *Resolver) resolveGreedy(goals []*Atom, opts ResolveOptions) (*ResolutionPlan, error) {
	st := &resolveState{
		opts:    opts,
		chosen:  make(map[slotKey]*chosen),
		visited: make(map[string]bool),
	}

	queue := append([]*Atom(nil), goals...)
	for len(queue) > 0 {
		atom := queue[0]
		queue = queue[1:]

		more, err := r.satisfy(st, atom)
		if err != nil {
			return nil, &backtrackExhaustedError{cause: err}
		}
		queue = append(queue, more...)
	}

	if err := r.checkBlockers(st); err != nil {
		return nil, err
	}

	return r.buildPlan(st)
}

// satisfy ensures atom is satisfied by st.chosen, selecting and expanding
// a new candidate if needed. It returns the new dependency atoms to
// enqueue.
func (r *Resolver) satisfy(st *resolveState, atom *Atom) ([]*Atom, error) {
	candidates := r.selectCandidates(atom)
	if len(candidates) == 0 {
		return nil, &NotFoundError{Atom: atom.String()}
	}

	eligible, rejections := r.filterEligible(atom, candidates)
	if len(eligible) == 0 {
		return nil, &NoEligibleVersionError{Atom: atom.String(), Reasons: rejections}
	}

	// Is some slot of this PackageId already chosen? Runtime-only cycles
	// aside, two different slots of the same PackageId may coexist, so we
	// only conflict against a chosen entry in a slot atom also admits.
	for key, c := range st.chosen {
		if key.id != atom.Id {
			continue
		}
		if atom.Slot != nil && *atom.Slot != key.slot {
			continue
		}
		if atom.Constraint.Admits(c.record.Version) {
			return nil, nil // already satisfied by an existing choice
		}
		// Same slot demanded at an incompatible version.
		if atom.Slot == nil || *atom.Slot == key.slot {
			if st.backtracks < st.opts.MaxBacktrack {
				st.backtracks++
				// Tier 1 does not unwind to the choice point for `key`;
				// this conflict ends the greedy walk and Resolve
				// escalates to Tier 2.
				return nil, &ConflictingSelectionError{
					PackageId: atom.Id.String(),
					Slot:      string(key.slot),
					Versions:  []string{c.record.Version.String(), versionOrConstraint(atom)},
				}
			}
			return nil, &ConflictingSelectionError{PackageId: atom.Id.String(), Slot: string(key.slot)}
		}
	}

	for i, cand := range eligible {
		defaults := cand.DefaultFlags()
		flags := r.Config.EnabledFlags(cand.Id, defaults)
		applyAtomFlagOverrides(flags, atom.Flags)

		repaired, ok := RepairFlags(cand.RequiredUse, flags, cand.AvailableFlagSet(), st.opts.MaxFlagRepairDepth)
		if !ok {
			continue // candidate rejected locally; try the next one
		}

		key := slotKey{id: cand.Id, slot: cand.Slot}
		st.chosen[key] = &chosen{record: cand, flags: repaired, candidateIdx: i, viaAtom: atom.String()}
		st.order = append(st.order, key)

		deps, err := r.expandDeps(st, cand, repaired)
		if err != nil {
			delete(st.chosen, key)
			continue
		}
		return deps, nil
	}

	explain := make([]CandidateRejection, 0, len(eligible))
	for _, c := range eligible {
		explain = append(explain, CandidateRejection{Version: c.Version.String(), Reason: "REQUIRED_USE unsatisfiable"})
	}
	return nil, &FlagConstraintUnsatError{
		Package:     atom.Id.String(),
		Explanation: fmt.Sprintf("no candidate satisfied REQUIRED_USE (%d tried)", len(explain)),
	}
}

func versionOrConstraint(a *Atom) string {
	if a.Version != nil {
		return a.Version.String()
	}
	return a.Constraint.String()
}

// selectCandidates enumerates catalog candidates for atom's PackageId,
// newest-first (the catalog already sorts this way).
func (r *Resolver) selectCandidates(atom *Atom) []*PackageRecord {
	return r.Catalog.Lookup(atom.Id)
}

// filterEligible applies slot, repo, keyword, license, and mask filtering,
// returning the ordered preference list plus rejection reasons for
// anything filtered out.
func (r *Resolver) filterEligible(atom *Atom, candidates []*PackageRecord) ([]*PackageRecord, []CandidateRejection) {
	var eligible []*PackageRecord
	var rejected []CandidateRejection
	for _, c := range candidates {
		if !atom.Matches(c.Id, c.Version, c.Slot, c.Repo) {
			continue // doesn't even match the atom's own constraint; not a "rejection", just irrelevant
		}
		switch {
		case r.Config.IsMasked(c.Id, c.Version):
			rejected = append(rejected, CandidateRejection{Version: c.Version.String(), Reason: "masked"})
		case !r.Config.AcceptsKeyword(c.Id, c.Keyword):
			rejected = append(rejected, CandidateRejection{Version: c.Version.String(), Reason: "keyword (" + c.Keyword.String() + ") not accepted"})
		case c.License != "" && !r.Config.AcceptsLicense(c.License):
			rejected = append(rejected, CandidateRejection{Version: c.Version.String(), Reason: "license (" + c.License + ") not accepted"})
		default:
			eligible = append(eligible, c)
		}
	}
	return eligible, rejected
}

func applyAtomFlagOverrides(flags map[string]bool, reqs []FlagRequirement) {
	for _, req := range reqs {
		if req.Optional {
			continue
		}
		flags[req.Name] = req.Positive
	}
}

// expandDeps instantiates cand's dependency clauses under flags, records
// graph edges against whatever is chosen so far once both endpoints
// exist, and returns the atoms that still need resolving.
func (r *Resolver) expandDeps(st *resolveState, cand *PackageRecord, flags map[string]bool) ([]*Atom, error) {
	if st.opts.NoDeps {
		return nil, nil
	}
	fromKey := slotKey{id: cand.Id, slot: cand.Slot}
	var out []*Atom
	for _, dep := range cand.Deps {
		if !dep.Enabled(flags) {
			continue
		}
		if dep.Category == DepBuild && !st.opts.WithBDeps {
			// build-time-only deps are still needed to build cand itself
			// in this session, so the edge and atom are recorded whether
			// or not WithBDeps is set; the flag changes nothing here.
		}
		if dep.Inverted {
			// Blocker: the target may not be chosen yet, so defer
			// resolution to checkBlockers, which runs once the whole walk
			// has settled.
			st.blocks = append(st.blocks, blockPair{from: fromKey, target: dep.Atom})
			continue
		}
		out = append(out, dep.Atom)
		// Edge recording is deferred: the target may not be chosen yet.
		// We record a placeholder edge keyed by PackageId and resolve it
		// to a concrete slot once buildPlan walks st.chosen.
		st.edges = append(st.edges, edge{from: fromKey, to: slotKey{id: dep.Atom.Id}, category: dep.Category})
	}
	return out, nil
}

// checkBlockers reports the first recorded blocker whose declaring
// package and target both ended up chosen.
func (r *Resolver) checkBlockers(st *resolveState) error {
	for _, b := range st.blocks {
		if _, ok := st.chosen[b.from]; !ok {
			continue
		}
		for key, c := range st.chosen {
			if key == b.from {
				continue
			}
			if b.target.Matches(key.id, c.record.Version, key.slot, c.record.Repo) {
				return &BlockedError{PackageA: b.from.id.String(), PackageB: key.id.String()}
			}
		}
	}
	return nil
}

// buildPlan resolves deferred edges to concrete chosen slots, topologically
// sorts the build/link subgraph (forbidding cycles there; runtime-only
// cycles are tolerated since nothing follows them through an ordering
// pass), and annotates each step new/upgrade/rebuild.
func (r *Resolver) buildPlan(st *resolveState) (*ResolutionPlan, error) {
	// Resolve edges: an edge's `to` was recorded with only an Id; find
	// whichever chosen slot actually satisfies it.
	type concreteEdge struct {
		from, to slotKey
		category DependencyCategory
	}
	var concrete []concreteEdge
	for _, e := range st.edges {
		for key := range st.chosen {
			if key.id == e.to.id {
				concrete = append(concrete, concreteEdge{from: e.from, to: key, category: e.category})
				break
			}
		}
	}

	// Topological sort restricted to build/link edges.
	adj := make(map[slotKey][]slotKey)
	indeg := make(map[slotKey]int)
	for key := range st.chosen {
		indeg[key] = 0
	}
	for _, e := range concrete {
		if e.category == DepRuntime {
			continue
		}
		adj[e.to] = append(adj[e.to], e.from) // dependency must be built before dependent
		indeg[e.from]++
	}

	// Deterministic starting order: lexical by PackageId.
	keys := make([]slotKey, 0, len(st.chosen))
	for key := range st.chosen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].id.Less(keys[j].id) })

	var ready []slotKey
	for _, key := range keys {
		if indeg[key] == 0 {
			ready = append(ready, key)
		}
	}

	var order []slotKey
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].id.Less(ready[j].id) })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range adj[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(order) != len(st.chosen) {
		var cyc []string
		for key, d := range indeg {
			if d > 0 {
				cyc = append(cyc, key.id.String())
			}
		}
		sort.Strings(cyc)
		return nil, &CircularBuildDepError{Cycle: cyc}
	}

	plan := &ResolutionPlan{}
	for _, key := range order {
		c := st.chosen[key]
		kind := r.annotate(key, c)
		plan.Steps = append(plan.Steps, PlanStep{Record: c.record.Clone(), Flags: c.flags, Kind: kind})
	}
	plan.Totals()
	return plan, nil
}

func (r *Resolver) annotate(key slotKey, c *chosen) StepKind {
	info, ok := r.Installed.Lookup(key.id, key.slot)
	if !ok {
		return StepNew
	}
	if !info.Version.Equal(c.record.Version) {
		return StepUpgrade
	}
	if !flagsEqual(info.Flags, c.flags) {
		return StepRebuild
	}
	return StepUpgrade // same version re-requested without flag changes: treated as a no-op upgrade step
}

func flagsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
