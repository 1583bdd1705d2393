// Package progression derives lock, completion and progress state for a learner moving
// through a course, and resolves Back/Next navigation over the global node order.
//
// Everything here is a pure function of a course definition and a learner's event log.
// Derived flags are never stored; callers recompute them from the full log on every read.
package progression

import (
	"time"

	"github.com/p-n-ai/pai-learn/internal/course"
)

// Status is the badge state of a node.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// StatusOf maps completion and lock flags to a status.
func StatusOf(completed, locked bool) Status {
	switch {
	case completed:
		return StatusCompleted
	case locked:
		return StatusLocked
	default:
		return StatusInProgress
	}
}

// EventKind distinguishes entries of a learner's event log.
type EventKind string

const (
	// EventCompleted marks a node completed (clip watched to the end, quiz passed or exhausted).
	EventCompleted EventKind = "completed"
	// EventProgress records time spent on a node without completing it.
	EventProgress EventKind = "progress"
	// EventAttempt records one submitted quiz attempt.
	EventAttempt EventKind = "attempt"
)

// Event is one entry of a learner's event log for a course.
type Event struct {
	Kind       EventKind `json:"kind"`
	NodeID     string    `json:"node_id"`
	OccurredAt time.Time `json:"occurred_at"`
	TimeSpent  int       `json:"time_spent"` // seconds
}

// NodeState is the derived state of one node.
type NodeState struct {
	ID          string          `json:"id"`
	ModuleID    string          `json:"module_id"`
	Title       string          `json:"title"`
	Type        course.NodeType `json:"type"`
	IsRequired  bool            `json:"is_required"`
	IsCompleted bool            `json:"is_completed"`
	IsLocked    bool            `json:"is_locked"`
	Status      Status          `json:"status"`
	TimeSpent   int             `json:"time_spent"` // seconds
	Attempts    int             `json:"attempts"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	GlobalIndex int `json:"global_index"`
	ModuleIndex int `json:"module_index"`
	NodeIndex   int `json:"node_index"`
}

// ModuleState is the derived state of one module.
type ModuleState struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Index       int      `json:"index"`
	IsRequired  bool     `json:"is_required"`
	IsCompleted bool     `json:"is_completed"`
	IsLocked    bool     `json:"is_locked"`
	Progress    float64  `json:"progress"`
	NodeIDs     []string `json:"node_ids"`
}

// State is the derived view of a learner's position in a course.
type State struct {
	CourseID  string                 `json:"course_id"`
	Nodes     map[string]NodeState   `json:"nodes"`
	Modules   map[string]ModuleState `json:"modules"`
	Order     []string               `json:"order"`        // node IDs in global order
	ModuleIDs []string               `json:"module_order"` // module IDs in order
	Completed bool                   `json:"completed"`
	Progress  float64                `json:"progress"`
	// Warnings lists non-fatal problems such as events for unknown nodes.
	Warnings []error `json:"-"`
}

// DeriveState computes node and module state from a course and the learner's events.
//
// On duplicate order values it returns an *OrderingError together with a fail-closed
// state: every node from the first ambiguous position onward is locked unless completed.
func DeriveState(c *course.Course, events []Event) (State, error) {
	modules, ambiguity, orderErr := flatten(c)

	type tally struct {
		completed   bool
		completedAt time.Time
		timeSpent   int
		attempts    int
	}
	known := make(map[string]bool)
	for _, om := range modules {
		for _, n := range om.nodes {
			known[n.ID] = true
		}
	}

	st := State{
		CourseID: c.ID,
		Nodes:    make(map[string]NodeState),
		Modules:  make(map[string]ModuleState, len(modules)),
	}

	tallies := make(map[string]*tally)
	reported := make(map[string]bool)
	for _, ev := range events {
		if !known[ev.NodeID] {
			if !reported[ev.NodeID] {
				reported[ev.NodeID] = true
				st.Warnings = append(st.Warnings, &MissingDataError{NodeID: ev.NodeID})
			}
			continue
		}
		t, ok := tallies[ev.NodeID]
		if !ok {
			t = &tally{}
			tallies[ev.NodeID] = t
		}
		if ev.TimeSpent > 0 {
			t.timeSpent += ev.TimeSpent
		}
		switch ev.Kind {
		case EventCompleted:
			if !t.completed || ev.OccurredAt.Before(t.completedAt) {
				t.completedAt = ev.OccurredAt
			}
			t.completed = true
		case EventAttempt:
			t.attempts++
		}
	}

	var (
		index             int
		prevRequired      bool
		prevCompleted     bool
		requiredTotal     int
		requiredCompleted int
	)
	for mi, om := range modules {
		ms := ModuleState{
			ID:         om.module.ID,
			Title:      om.module.Title,
			Index:      mi,
			IsRequired: om.module.IsRequired,
			NodeIDs:    make([]string, 0, len(om.nodes)),
		}

		modRequired, modCompleted := 0, 0
		for ni, n := range om.nodes {
			ns := NodeState{
				ID:          n.ID,
				ModuleID:    om.module.ID,
				Title:       n.Title,
				Type:        n.Type,
				IsRequired:  n.IsRequired,
				GlobalIndex: index,
				ModuleIndex: mi,
				NodeIndex:   ni,
			}
			if t, ok := tallies[n.ID]; ok {
				ns.IsCompleted = t.completed
				ns.TimeSpent = t.timeSpent
				ns.Attempts = t.attempts
				if t.completed {
					at := t.completedAt
					ns.CompletedAt = &at
				}
			}

			// One step back: only the immediate predecessor gates this node.
			locked := index > 0 && prevRequired && !prevCompleted
			if index >= ambiguity {
				locked = true
			}
			ns.IsLocked = locked && !ns.IsCompleted
			ns.Status = StatusOf(ns.IsCompleted, ns.IsLocked)

			if ni == 0 {
				ms.IsLocked = ns.IsLocked
			}
			if n.IsRequired {
				modRequired++
				if ns.IsCompleted {
					modCompleted++
				}
			}

			st.Nodes[n.ID] = ns
			st.Order = append(st.Order, n.ID)
			ms.NodeIDs = append(ms.NodeIDs, n.ID)
			prevRequired, prevCompleted = n.IsRequired, ns.IsCompleted
			index++
		}

		ms.IsCompleted = modCompleted == modRequired
		ms.Progress = percent(modCompleted, modRequired)
		requiredTotal += modRequired
		requiredCompleted += modCompleted

		st.Modules[ms.ID] = ms
		st.ModuleIDs = append(st.ModuleIDs, ms.ID)
	}

	st.Progress = percent(requiredCompleted, requiredTotal)
	st.Completed = courseCompleted(st)

	return st, orderErr
}

// courseCompleted reports whether every required module is complete. Courses that
// flag no module as required need all modules complete.
func courseCompleted(st State) bool {
	anyRequired := false
	for _, m := range st.Modules {
		if m.IsRequired {
			anyRequired = true
			break
		}
	}
	for _, m := range st.Modules {
		if (m.IsRequired || !anyRequired) && !m.IsCompleted {
			return false
		}
	}
	return true
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(done) / float64(total)
}

// Node returns the state of a node by ID.
func (s State) Node(id string) (NodeState, bool) {
	n, ok := s.Nodes[id]
	return n, ok
}

// ModuleSnapshot is the per-module progress captured in a progress snapshot.
type ModuleSnapshot struct {
	ModuleID    string  `json:"module_id"`
	IsCompleted bool    `json:"is_completed"`
	IsLocked    bool    `json:"is_locked"`
	Progress    float64 `json:"progress"`
}

// Snapshot returns the module progress of the state in module order.
func (s State) Snapshot() []ModuleSnapshot {
	out := make([]ModuleSnapshot, 0, len(s.ModuleIDs))
	for _, id := range s.ModuleIDs {
		m := s.Modules[id]
		out = append(out, ModuleSnapshot{
			ModuleID:    m.ID,
			IsCompleted: m.IsCompleted,
			IsLocked:    m.IsLocked,
			Progress:    m.Progress,
		})
	}
	return out
}

// PrerequisitesMet reports whether every prerequisite course of c is in completed,
// returning the IDs that are missing. Unknown courses count as not completed.
func PrerequisitesMet(c *course.Course, completed map[string]bool) (bool, []string) {
	var missing []string
	for _, id := range c.Settings.Prerequisites {
		if !completed[id] {
			missing = append(missing, id)
		}
	}
	return len(missing) == 0, missing
}
