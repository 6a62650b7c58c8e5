// Package dag models the dependency graph between analysis steps: an edge
// runs from a step to every step that consumes its result. It answers the
// two questions the executor asks — which steps are affected by a change,
// and in what order a cascade must run.
package dag

import (
	"fmt"
	"sort"

	"github.com/datastep-labs/datastep/pkg/core"
)

// Graph is a dependency graph over one session's steps.
type Graph struct {
	steps      map[string]*core.Step
	dependents map[string][]string // step ID -> IDs of steps sourcing from it
}

// Build constructs the graph from a session's step list. Steps sourcing
// from "original" are roots.
func Build(steps []*core.Step) *Graph {
	g := &Graph{
		steps:      make(map[string]*core.Step, len(steps)),
		dependents: make(map[string][]string),
	}
	for _, s := range steps {
		g.steps[s.ID] = s
	}
	for _, s := range steps {
		if s.Source != core.SourceOriginal {
			g.dependents[s.Source] = append(g.dependents[s.Source], s.ID)
		}
	}
	return g
}

// Step returns a step by ID.
func (g *Graph) Step(id string) (*core.Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Dependents returns the direct dependents of a step.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Affected returns every step transitively sourcing from the given step,
// excluding the step itself, ordered by ascending position so a cascade
// executes parents before children.
func (g *Graph) Affected(id string) []*core.Step {
	seen := make(map[string]bool)

	var mark func(stepID string)
	mark = func(stepID string) {
		for _, dep := range g.dependents[stepID] {
			if !seen[dep] {
				seen[dep] = true
				mark(dep)
			}
		}
	}
	mark(id)

	affected := make([]*core.Step, 0, len(seen))
	for stepID := range seen {
		affected = append(affected, g.steps[stepID])
	}
	sort.Slice(affected, func(i, j int) bool {
		return affected[i].Position < affected[j].Position
	})
	return affected
}

// Validate checks the forward-reference invariant for every step: the
// source is either "original" or an existing step at a strictly smaller
// position. The invariant makes cycles unrepresentable, so there is no
// separate cycle walk.
func (g *Graph) Validate() error {
	for _, s := range g.steps {
		if s.Source == core.SourceOriginal {
			continue
		}
		src, ok := g.steps[s.Source]
		if !ok {
			return fmt.Errorf("step %s references unknown source %s", s.ID, s.Source)
		}
		if src.Position >= s.Position {
			return fmt.Errorf("step %s at position %d references source %s at position %d: sources must come earlier",
				s.ID, s.Position, src.ID, src.Position)
		}
	}
	return nil
}
