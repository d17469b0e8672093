package engine

import (
	"fmt"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// Graph is the in-memory dependency graph of a workflow definition. Built
// once per execution and used to drive dependency-ordered dispatch.
type Graph struct {
	Steps   map[string]*schema.WorkflowStep // step ID → definition
	Order   []string                        // step IDs in declaration order
	Edges   map[string][]string             // step ID → dependencies
	Reverse map[string][]string             // step ID → dependents
	Sorted  []string                        // topological order (cycle-free proof)
	Roots   []string                        // steps with no dependencies, declaration order
}

// BuildGraph validates a WorkflowDefinition's structure and returns its
// dependency graph. It checks step-id uniqueness, that every dependency
// resolves, and that the graph is acyclic (Kahn's algorithm).
func BuildGraph(def *schema.WorkflowDefinition) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDefinition, "workflow definition is nil")
	}
	if len(def.Steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidDefinition, "workflow has no steps")
	}

	g := &Graph{
		Steps:   make(map[string]*schema.WorkflowStep, len(def.Steps)),
		Order:   make([]string, 0, len(def.Steps)),
		Edges:   make(map[string][]string, len(def.Steps)),
		Reverse: make(map[string][]string, len(def.Steps)),
	}

	// First pass: register all steps and check for duplicates.
	for i := range def.Steps {
		step := &def.Steps[i]

		if step.ID == "" {
			return nil, schema.NewError(schema.ErrCodeInvalidDefinition,
				fmt.Sprintf("step at index %d has empty ID", i))
		}
		if _, exists := g.Steps[step.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition, "duplicate step ID: %s", step.ID)
		}
		if step.Type == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition, "step %s has no step_type", step.ID)
		}

		g.Steps[step.ID] = step
		g.Order = append(g.Order, step.ID)
	}

	// Second pass: build adjacency lists and validate dependencies.
	for _, id := range g.Order {
		step := g.Steps[id]
		seen := make(map[string]bool, len(step.Dependencies))
		deps := make([]string, 0, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			if _, exists := g.Steps[dep]; !exists {
				return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition,
					"step %s depends on non-existent step: %s", id, dep)
			}
			if dep == id {
				return nil, schema.NewErrorf(schema.ErrCodeCycleDetected, "step %s depends on itself", id)
			}
			if seen[dep] {
				return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition,
					"step %s has duplicate dependency: %s", id, dep)
			}
			seen[dep] = true
			deps = append(deps, dep)
			g.Reverse[dep] = append(g.Reverse[dep], id)
		}
		g.Edges[id] = deps
	}

	// Kahn's algorithm: topological sort + cycle detection. Ready steps are
	// taken in declaration order so the sort is deterministic.
	inDegree := make(map[string]int, len(g.Steps))
	for id := range g.Steps {
		inDegree[id] = len(g.Edges[id])
	}

	queue := make([]string, 0)
	for _, id := range g.Order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	g.Roots = make([]string, len(queue))
	copy(g.Roots, queue)

	sorted := make([]string, 0, len(g.Steps))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dep := range g.Reverse[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(g.Steps) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "workflow contains a cycle")
	}
	g.Sorted = sorted

	return g, nil
}

// depSatisfied reports whether a recorded result fulfills a dependency.
// Completed and skipped both count: a step conditionally skipped (decision
// routing, false guard) must not deadlock its dependents.
func depSatisfied(sr schema.StepResult, ok bool) bool {
	if !ok {
		return false
	}
	return sr.Status == schema.StepResultCompleted || sr.Status == schema.StepResultSkipped
}

// NextReady returns the first step in declaration order that has no recorded
// result and whose dependencies are all satisfied in results. Returns false
// when no step is ready.
func (g *Graph) NextReady(results map[string]schema.StepResult) (string, bool) {
	for _, id := range g.Order {
		if _, done := results[id]; done {
			continue
		}
		ready := true
		for _, dep := range g.Edges[id] {
			sr, ok := results[dep]
			if !depSatisfied(sr, ok) {
				ready = false
				break
			}
		}
		if ready {
			return id, true
		}
	}
	return "", false
}
