package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Planner orders a changeset per the dependency graph: deletes first in
// descending topological order (dependents before dependencies), then
// creates and updates in ascending order. Replacements are split into their
// delete and create halves, interleaved per the resource type's strategy.
type Planner struct{}

// NewPlanner creates a new planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan produces the ordered execution plan for a changeset. NoOp entries
// are dropped from the plan but counted in the summary. Fails with a
// permanent ORDER_ERROR when a create or update entry references a resource
// absent from the graph, which indicates an internal consistency bug.
func (p *Planner) Plan(cs *ChangeSet, graph *Graph) (*Plan, error) {
	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Summary:   cs.Summary,
	}

	var deletes []ChangeEntry
	var forward []ChangeEntry
	for _, entry := range cs.Entries {
		switch entry.Op {
		case OperationNoop:
			continue
		case OperationDelete:
			deletes = append(deletes, entry)
		case OperationCreate, OperationUpdate, OperationReplace:
			if _, ok := graph.Nodes[entry.Name]; !ok {
				return nil, NewPermanentError(
					fmt.Sprintf("changeset entry %s not present in graph", entry.Name), nil).
					WithCode(ErrCodeOrder).WithResource(entry.Name)
			}
			forward = append(forward, entry)
		default:
			return nil, NewPermanentError(
				fmt.Sprintf("changeset entry %s has invalid operation %q", entry.Name, entry.Op), nil).
				WithCode(ErrCodeOrder).WithResource(entry.Name)
		}
	}

	// entryIDByName tracks the plan entry that commits each resource's
	// final state, for wiring executor dependency edges.
	entryIDByName := make(map[string]string)

	appendEntry := func(entry ChangeEntry, deps []string) {
		pe := PlanEntry{
			ChangeEntry: entry,
			DependsOn:   deps,
			Position:    len(plan.Entries),
		}
		if entry.Op == OperationCreate || entry.Op == OperationUpdate {
			if _, ok := graph.Nodes[entry.Name]; ok {
				pe.ResourceDeps = graph.Dependencies(entry.Name)
			}
		}
		plan.Entries = append(plan.Entries, pe)
	}

	// Deletes go first, dependents before dependencies, ordered by the
	// dependency information recorded in state.
	orderedDeletes := orderDeletes(deletes)
	deleteIDByName := make(map[string]string, len(orderedDeletes))
	for _, entry := range orderedDeletes {
		deleteIDByName[entry.Name] = entry.ID
	}
	for _, entry := range orderedDeletes {
		// A delete must wait for the deletes of everything that depended
		// on the resource.
		var deps []string
		for _, other := range orderedDeletes {
			if other.Name == entry.Name || other.Record == nil {
				continue
			}
			for _, dep := range other.Record.Dependencies {
				if dep == entry.Name {
					deps = append(deps, other.ID)
				}
			}
		}
		sort.Strings(deps)
		appendEntry(entry, deps)
	}

	// Creates, updates and replacements follow ascending topological order.
	position := make(map[string]int, len(graph.Nodes))
	for i, name := range graph.TopoOrder() {
		position[name] = i
	}
	sort.SliceStable(forward, func(i, j int) bool {
		return position[forward[i].Name] < position[forward[j].Name]
	})

	for _, entry := range forward {
		// Wait for the entries of every graph dependency that is itself
		// being changed in this plan.
		var deps []string
		for _, dep := range graph.Dependencies(entry.Name) {
			if id, ok := entryIDByName[dep]; ok {
				deps = append(deps, id)
			}
		}
		sort.Strings(deps)

		if entry.Op != OperationReplace {
			appendEntry(entry, deps)
			entryIDByName[entry.Name] = entry.ID
			continue
		}

		deleteHalf, createHalf := splitReplace(entry)
		switch entry.Strategy {
		case ReplaceCreateThenDelete:
			appendEntry(createHalf, deps)
			appendEntry(deleteHalf, []string{createHalf.ID})
		default:
			appendEntry(deleteHalf, deps)
			appendEntry(createHalf, append([]string{deleteHalf.ID}, deps...))
		}
		entryIDByName[entry.Name] = createHalf.ID
	}

	return plan, nil
}

// splitReplace expands a replace into its delete and create halves.
func splitReplace(entry ChangeEntry) (deleteHalf, createHalf ChangeEntry) {
	deleteHalf = ChangeEntry{
		ID:      uuid.New().String(),
		Name:    entry.Name,
		Type:    entry.Record.Type,
		Op:      OperationDelete,
		Record:  entry.Record,
		Deposed: entry.Strategy == ReplaceCreateThenDelete,
	}
	createHalf = ChangeEntry{
		ID:          uuid.New().String(),
		Name:        entry.Name,
		Type:        entry.Type,
		Op:          OperationCreate,
		Declaration: entry.Declaration,
		Diffs:       entry.Diffs,
	}
	return deleteHalf, createHalf
}

// orderDeletes sorts delete entries so that dependents are deleted before
// their dependencies, using the dependency lists recorded in state. Ties
// break on name for reproducibility.
func orderDeletes(deletes []ChangeEntry) []ChangeEntry {
	byName := make(map[string]ChangeEntry, len(deletes))
	dependents := make(map[string][]string)
	remaining := make(map[string]int, len(deletes))

	for _, entry := range deletes {
		byName[entry.Name] = entry
		remaining[entry.Name] = 0
	}
	for _, entry := range deletes {
		if entry.Record == nil {
			continue
		}
		for _, dep := range entry.Record.Dependencies {
			if _, deleting := byName[dep]; !deleting {
				continue
			}
			// dep cannot go until entry is gone.
			dependents[entry.Name] = append(dependents[entry.Name], dep)
			remaining[dep]++
		}
	}

	var ready []string
	for name, count := range remaining {
		if count == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]ChangeEntry, 0, len(deletes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])

		var unlocked []string
		for _, dep := range dependents[name] {
			remaining[dep]--
			if remaining[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	// Recorded dependencies forming a cycle would leave entries behind;
	// append them in name order rather than dropping them.
	if len(ordered) < len(deletes) {
		var leftover []string
		for name, count := range remaining {
			if count > 0 {
				leftover = append(leftover, name)
			}
		}
		sort.Strings(leftover)
		for _, name := range leftover {
			ordered = append(ordered, byName[name])
		}
	}

	return ordered
}
