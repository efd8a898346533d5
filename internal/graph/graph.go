// Package graph builds the dependency graph over a project's checks and
// computes the wave schedule the executor runs against (spec.md §4.2).
// The shape is grounded on the script-weaver DAG executor's ready-task/
// state-transition model, generalised here from serial execution to
// precomputed parallel waves since the engine schedules a whole wave of
// independent checks onto the worker pool at once rather than polling for
// the next single ready task.
package graph

import (
	"sort"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/model"
)

// Graph is the validated dependency graph for one project's checks.
type Graph struct {
	checks map[string]model.CheckDef
	edges  map[string][]string // check name -> names it depends on
	rdeps  map[string][]string // check name -> names that depend on it
	order  []string            // all check names, stable sorted
}

// Build validates a project's checks (duplicate names, unknown
// dependencies, dependency cycles) and constructs the Graph. It is the
// single gate a project's verify.yaml must pass before any check runs
// (spec.md §4.2).
func Build(checks []model.CheckDef) (*Graph, error) {
	byName := make(map[string]model.CheckDef, len(checks))
	order := make([]string, 0, len(checks))
	for _, c := range checks {
		if _, dup := byName[c.Name]; dup {
			return nil, verrors.NewDuplicateCheckError(c.Name)
		}
		byName[c.Name] = c
		order = append(order, c.Name)
	}
	sort.Strings(order)

	edges := make(map[string][]string, len(checks))
	rdeps := make(map[string][]string, len(checks))
	for _, c := range checks {
		deps := append([]string(nil), c.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := byName[dep]; !ok {
				return nil, verrors.NewUnknownDependencyError(c.Name, dep)
			}
			rdeps[dep] = append(rdeps[dep], c.Name)
		}
		edges[c.Name] = deps
	}

	g := &Graph{checks: byName, edges: edges, rdeps: rdeps, order: order}
	if cycle := g.findCycle(); cycle != nil {
		return nil, verrors.NewCycleError(cycle)
	}
	return g, nil
}

// findCycle performs a DFS over the dependency edges looking for a back
// edge, returning the minimal cycle (as a list of check names, first
// repeated at the end) if one is found, or nil if the graph is acyclic.
// Names are visited in sorted order so the reported cycle is deterministic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	parent := make(map[string]string, len(g.order))

	var cycle []string
	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		deps := g.edges[name]
		for _, dep := range deps {
			switch color[dep] {
			case white:
				parent[dep] = name
				if visit(dep) {
					return true
				}
			case gray:
				// Found the back edge name -> dep; reconstruct the cycle
				// by walking parents from name back up to dep.
				path := []string{dep}
				cur := name
				for cur != dep {
					path = append(path, cur)
					cur = parent[cur]
				}
				path = append(path, dep)
				// Reverse into dependency order dep -> ... -> name -> dep.
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = path
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, name := range g.order {
		if color[name] == white {
			if visit(name) {
				return cycle
			}
		}
	}
	return nil
}

// Names returns every check name in the graph, sorted.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Check returns a check's definition by name.
func (g *Graph) Check(name string) (model.CheckDef, bool) {
	c, ok := g.checks[name]
	return c, ok
}

// DependsOn returns the names a check directly depends on, sorted.
func (g *Graph) DependsOn(name string) []string {
	return append([]string(nil), g.edges[name]...)
}

// Dependents returns the names that directly depend on a check, sorted.
func (g *Graph) Dependents(name string) []string {
	deps := append([]string(nil), g.rdeps[name]...)
	sort.Strings(deps)
	return deps
}

// Waves partitions the graph into a sequence of "waves": wave i contains
// every check whose dependencies are all satisfied by waves 0..i-1. Within
// a wave, checks are independent of each other and can run concurrently.
// Names within a wave are sorted for deterministic scheduling and output.
func (g *Graph) Waves() [][]string {
	remaining := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		remaining[name] = append([]string(nil), g.edges[name]...)
	}

	var waves [][]string
	done := make(map[string]bool, len(g.order))

	for len(done) < len(g.order) {
		var wave []string
		for _, name := range g.order {
			if done[name] {
				continue
			}
			ready := true
			for _, dep := range remaining[name] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, name)
			}
		}
		// Build() guarantees acyclicity, so a non-empty graph never
		// produces an empty wave here.
		sort.Strings(wave)
		for _, name := range wave {
			done[name] = true
		}
		waves = append(waves, wave)
	}
	return waves
}

// TransitiveDependents returns every check, direct or indirect, that
// depends on name, used to mark dependents as DependencyUnverified or to
// skip them after a failure (spec.md §4.4, §4.5).
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var out []string
	var visit func(string)
	visit = func(n string) {
		for _, dep := range g.Dependents(n) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			visit(dep)
		}
	}
	visit(name)
	sort.Strings(out)
	return out
}

// Closure returns the set of checks reachable from names by following
// depends_on edges outward (each name plus everything it transitively
// requires), used by `verify run [targets…]` to scope a run to exactly
// the checks a target's verification depends on (spec.md §4.7).
func (g *Graph) Closure(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	var out []string
	var visit func(string) error
	visit = func(n string) error {
		if seen[n] {
			return nil
		}
		if _, ok := g.Check(n); !ok {
			return verrors.NewUnknownCheckError(n)
		}
		seen[n] = true
		out = append(out, n)
		for _, dep := range g.DependsOn(n) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}
