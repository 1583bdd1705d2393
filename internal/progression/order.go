package progression

import (
	"sort"

	"github.com/p-n-ai/pai-learn/internal/course"
)

// orderedModule is a module with its nodes sorted by order.
type orderedModule struct {
	module course.Module
	nodes  []course.Node
}

// flatten sorts modules and nodes by their order fields. It returns the global index of
// the first node affected by a duplicate order (len of the flattened sequence when the
// ordering is unambiguous) and the first ordering error found in traversal order.
func flatten(c *course.Course) ([]orderedModule, int, error) {
	modules := make([]course.Module, len(c.Modules))
	copy(modules, c.Modules)
	sort.SliceStable(modules, func(i, j int) bool { return modules[i].Order < modules[j].Order })

	out := make([]orderedModule, len(modules))
	total := 0
	for i, m := range modules {
		nodes := make([]course.Node, len(m.Nodes))
		copy(nodes, m.Nodes)
		sort.SliceStable(nodes, func(a, b int) bool { return nodes[a].Order < nodes[b].Order })
		out[i] = orderedModule{module: m, nodes: nodes}
		total += len(nodes)
	}

	ambiguity := total
	var firstErr error
	offset := 0
	for i, om := range out {
		if i > 0 && out[i-1].module.Order == om.module.Order && offset-len(out[i-1].nodes) < ambiguity {
			// The tie starts at the previous module.
			start := offset - len(out[i-1].nodes)
			ambiguity = start
			firstErr = &OrderingError{
				Scope:    "module",
				ParentID: c.ID,
				Order:    om.module.Order,
				IDs:      []string{out[i-1].module.ID, om.module.ID},
			}
		}
		for j := 1; j < len(om.nodes); j++ {
			if om.nodes[j-1].Order == om.nodes[j].Order && offset+j-1 < ambiguity {
				ambiguity = offset + j - 1
				firstErr = &OrderingError{
					Scope:    "node",
					ParentID: om.module.ID,
					Order:    om.nodes[j].Order,
					IDs:      []string{om.nodes[j-1].ID, om.nodes[j].ID},
				}
			}
		}
		offset += len(om.nodes)
	}

	return out, ambiguity, firstErr
}
