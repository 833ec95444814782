package gps

import (
	"sort"

	"github.com/crillab/gophersat/solver"
)

// resolveSAT implements Tier 2: a SAT encoding of the same selection
// problem Tier 1 walks greedily, grounded on the original resolver's
// `resolve_sat` (one boolean variable per (PackageId, Version, Slot)
// candidate; at-most-one-per-slot; at-least-one-per-goal; an implication
// clause per unconditional dependency; a negative clause per blocker),
// retargeted from the original's `varisat` crate onto the pure-Go
// `github.com/crillab/gophersat` solver.
//
// Tier 2 only reasons about version/slot selection: REQUIRED_USE and
// flag-gated ("flag? (...)") dependency clauses are a Tier 1 concern, so
// this encoding only considers a candidate's unconditional dependency
// edges. A candidate chosen here is assigned its declared default flags
// (merged through the configuration layer) rather than a repaired vector;
// callers that need REQUIRED_USE-correct flags for a SAT-selected
// candidate should re-run ValidateFlags/RepairFlags against the result.
func (r *Resolver) resolveSAT(goals []*Atom, opts ResolveOptions) (*ResolutionPlan, error) {
	universe := r.gatherUniverse(goals)

	vars := make(map[*PackageRecord]int) // 1-indexed SAT variable per candidate
	byVar := make(map[int]*PackageRecord)
	n := 0
	for _, recs := range universe {
		for _, rec := range recs {
			n++
			vars[rec] = n
			byVar[n] = rec
		}
	}
	if n == 0 {
		if len(goals) == 0 {
			return &ResolutionPlan{}, nil
		}
		return nil, &NotFoundError{Atom: goals[0].String()}
	}

	var clauses [][]int

	// At least one candidate per goal atom.
	for _, g := range goals {
		var lits []int
		for _, rec := range universe[g.Id] {
			if g.Matches(rec.Id, rec.Version, rec.Slot, rec.Repo) {
				lits = append(lits, vars[rec])
			}
		}
		if len(lits) == 0 {
			return nil, &NotFoundError{Atom: g.String()}
		}
		clauses = append(clauses, lits)
	}

	// At most one candidate per (PackageId, Slot): pairwise negative
	// clauses, grouped by slot within each PackageId's candidate list.
	for _, recs := range universe {
		bySlot := make(map[Slot][]*PackageRecord)
		for _, rec := range recs {
			bySlot[rec.Slot] = append(bySlot[rec.Slot], rec)
		}
		for _, group := range bySlot {
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					clauses = append(clauses, []int{-vars[group[i]], -vars[group[j]]})
				}
			}
		}
	}

	// Dependency implication and blocker clauses.
	for _, recs := range universe {
		for _, rec := range recs {
			v := vars[rec]
			for _, dep := range rec.Deps {
				if dep.Condition != nil {
					continue // flag-gated; Tier 1's concern
				}
				candidates := universe[dep.Atom.Id]
				var lits []int
				for _, cand := range candidates {
					if dep.Atom.Matches(cand.Id, cand.Version, cand.Slot, cand.Repo) {
						lits = append(lits, vars[cand])
					}
				}
				if dep.Inverted {
					for _, lit := range lits {
						clauses = append(clauses, []int{-v, -lit})
					}
					continue
				}
				clause := append([]int{-v}, lits...)
				clauses = append(clauses, clause)
			}
		}
	}

	pb := solver.ParseSlice(clauses)
	status := pb.Solve()
	// Any status other than Sat, Indet included, is reported as UNSAT.
	if status != solver.Sat {
		return nil, &UnsatisfiableError{Core: r.explainUnsat(goals, universe)}
	}

	model := pb.Model()
	st := &resolveState{opts: opts, chosen: make(map[slotKey]*chosen)}
	var selected []*PackageRecord
	for varIdx, rec := range byVar {
		if varIdx-1 < len(model) && model[varIdx-1] {
			selected = append(selected, rec)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Id.Less(selected[j].Id) })

	for _, rec := range selected {
		defaults := rec.DefaultFlags()
		flags := r.Config.EnabledFlags(rec.Id, defaults)
		key := slotKey{id: rec.Id, slot: rec.Slot}
		st.chosen[key] = &chosen{record: rec, flags: flags}
		st.order = append(st.order, key)
	}
	for _, rec := range selected {
		if _, err := r.expandDeps(st, rec, st.chosen[slotKey{id: rec.Id, slot: rec.Slot}].flags); err != nil {
			return nil, err
		}
	}

	if err := r.checkBlockers(st); err != nil {
		return nil, err
	}
	return r.buildPlan(st)
}

// gatherUniverse does an unconstrained BFS over the catalog, starting from
// the goal atoms' PackageIds, following every dependency clause
// (unconditional or not — the universe itself is just "what could
// possibly be relevant", filtering happens when clauses are built) so the
// SAT encoding has a concrete finite variable set.
func (r *Resolver) gatherUniverse(goals []*Atom) map[PackageId][]*PackageRecord {
	universe := make(map[PackageId][]*PackageRecord)
	seen := make(map[PackageId]bool)
	var queue []PackageId
	for _, g := range goals {
		queue = append(queue, g.Id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		recs := r.Catalog.Lookup(id)
		eligible, _ := r.filterEligible(&Atom{Id: id, Constraint: AnyVersion()}, recs)
		universe[id] = eligible

		for _, rec := range eligible {
			for _, dep := range rec.Deps {
				if !seen[dep.Atom.Id] {
					queue = append(queue, dep.Atom.Id)
				}
			}
		}
	}
	return universe
}

// explainUnsat performs a simple deletion-based search for a minimal
// unsatisfiable subset of goals: it tries solving with each goal removed
// in turn, and reports the goals whose removal restores satisfiability —
// i.e. the goals each essential to the conflict. If no single removal
// restores it, every goal is reported. This is a best-effort explanation,
// not a guarantee of true minimality.
func (r *Resolver) explainUnsat(goals []*Atom, universe map[PackageId][]*PackageRecord) []string {
	if len(goals) <= 1 {
		var core []string
		for _, g := range goals {
			core = append(core, g.String())
		}
		return core
	}
	var core []string
	for i := range goals {
		remaining := make([]*Atom, 0, len(goals)-1)
		remaining = append(remaining, goals[:i]...)
		remaining = append(remaining, goals[i+1:]...)
		if r.stillUnsat(remaining, universe) {
			continue // this goal wasn't essential to the conflict
		}
		core = append(core, goals[i].String())
	}
	if len(core) == 0 {
		for _, g := range goals {
			core = append(core, g.String())
		}
	}
	return core
}

func (r *Resolver) stillUnsat(goals []*Atom, universe map[PackageId][]*PackageRecord) bool {
	vars := make(map[*PackageRecord]int)
	n := 0
	for _, recs := range universe {
		for _, rec := range recs {
			n++
			vars[rec] = n
		}
	}
	if n == 0 {
		return true
	}
	var clauses [][]int
	for _, g := range goals {
		var lits []int
		for _, rec := range universe[g.Id] {
			if g.Matches(rec.Id, rec.Version, rec.Slot, rec.Repo) {
				lits = append(lits, vars[rec])
			}
		}
		if len(lits) == 0 {
			return true
		}
		clauses = append(clauses, lits)
	}
	for _, recs := range universe {
		bySlot := make(map[Slot][]*PackageRecord)
		for _, rec := range recs {
			bySlot[rec.Slot] = append(bySlot[rec.Slot], rec)
		}
		for _, group := range bySlot {
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					clauses = append(clauses, []int{-vars[group[i]], -vars[group[j]]})
				}
			}
		}
	}
	for _, recs := range universe {
		for _, rec := range recs {
			v := vars[rec]
			for _, dep := range rec.Deps {
				if dep.Condition != nil {
					continue
				}
				var lits []int
				for _, cand := range universe[dep.Atom.Id] {
					if dep.Atom.Matches(cand.Id, cand.Version, cand.Slot, cand.Repo) {
						lits = append(lits, vars[cand])
					}
				}
				if dep.Inverted {
					for _, lit := range lits {
						clauses = append(clauses, []int{-v, -lit})
					}
					continue
				}
				clauses = append(clauses, append([]int{-v}, lits...))
			}
		}
	}
	pb := solver.ParseSlice(clauses)
	return pb.Solve() != solver.Sat
}
