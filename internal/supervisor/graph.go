package supervisor

import (
	"sort"
)

// CircularDependencyError reports a cycle among Requires/Before edges,
// detected at load time: circular required-dependencies are rejected
// before anything is started.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	s := "supervisor: circular dependency:"
	for _, n := range e.Cycle {
		s += " " + n + " ->"
	}
	return s + " " + e.Cycle[0]
}

// graph is the dependency DAG over a set of service definitions. "must"
// edges come from Requires/Before; "want" edges come from Wants/After.
// Only must-edges participate in cycle detection and failure
// propagation; want-edges only affect ordering.
type graph struct {
	defs  map[string]*ServiceDefinition
	must  map[string]map[string]bool // name -> set of names that must start first
	want  map[string]map[string]bool
}

func buildGraph(defs []*ServiceDefinition) *graph {
	g := &graph{
		defs: make(map[string]*ServiceDefinition, len(defs)),
		must: make(map[string]map[string]bool, len(defs)),
		want: make(map[string]map[string]bool, len(defs)),
	}
	for _, d := range defs {
		g.defs[d.Name] = d
		g.must[d.Name] = make(map[string]bool)
		g.want[d.Name] = make(map[string]bool)
	}
	for _, d := range defs {
		for _, dep := range d.Requires {
			g.must[d.Name][dep] = true
		}
		for _, dep := range d.After {
			g.want[d.Name][dep] = true
		}
		// Before/Wants declare the edge from the other side.
		for _, dep := range d.Before {
			if _, ok := g.must[dep]; ok {
				g.must[dep][d.Name] = true
			}
		}
		for _, dep := range d.Wants {
			if _, ok := g.want[dep]; ok {
				g.want[dep][d.Name] = true
			}
		}
	}
	return g
}

// order returns service names in an order that satisfies every must- and
// want-edge (must-start-before services appear earlier), deterministic
// via lexical tie-break, or a *CircularDependencyError if the must-edges
// contain a cycle.
func (g *graph) order() ([]string, error) {
	names := make([]string, 0, len(g.defs))
	for n := range g.defs {
		names = append(names, n)
	}
	sort.Strings(names)

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(names))
	var out []string
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)

		deps := make([]string, 0, len(g.must[n])+len(g.want[n]))
		for d := range g.must[n] {
			deps = append(deps, d)
		}
		for d := range g.want[n] {
			if !g.must[n][d] {
				deps = append(deps, d)
			}
		}
		sort.Strings(deps)

		for _, d := range deps {
			if _, known := g.defs[d]; !known {
				continue // unknown dependency: reported separately by caller
			}
			switch color[d] {
			case white:
				if err := visit(d); err != nil {
					return err
				}
			case gray:
				if g.must[n][d] {
					start := 0
					for i, s := range stack {
						if s == d {
							start = i
						}
					}
					cycle := append([]string(nil), stack[start:]...)
					return &CircularDependencyError{Cycle: cycle}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[n] = black
		out = append(out, n)
		return nil
	}

	for _, n := range names {
		if color[n] == white {
			if err := visit(n); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// unknownDependencies returns every Requires/Wants/Before/After name that
// does not name a known service definition.
func (g *graph) unknownDependencies() map[string][]string {
	unknown := make(map[string][]string)
	for name, d := range g.defs {
		var missing []string
		check := func(deps []string) {
			for _, dep := range deps {
				if _, ok := g.defs[dep]; !ok {
					missing = append(missing, dep)
				}
			}
		}
		check(d.Requires)
		check(d.Wants)
		check(d.Before)
		check(d.After)
		if len(missing) > 0 {
			unknown[name] = missing
		}
	}
	return unknown
}
