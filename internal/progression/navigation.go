package progression

import "fmt"

// NextButton is the state of the player's Next control.
type NextButton int

const (
	NextEnabled NextButton = iota
	NextLocked
	NextCompleteCurrentFirst
	NextCourseComplete
)

func (b NextButton) String() string {
	switch b {
	case NextEnabled:
		return "enabled"
	case NextLocked:
		return "locked"
	case NextCompleteCurrentFirst:
		return "complete_current_first"
	case NextCourseComplete:
		return "course_complete"
	default:
		return "unknown"
	}
}

// MarshalText encodes the button state by name.
func (b NextButton) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Position is the navigation view around the current node.
type Position struct {
	Previous        *NodeState `json:"previous,omitempty"`
	Current         NodeState  `json:"current"`
	Next            *NodeState `json:"next,omitempty"`
	NextButton      NextButton `json:"next_button"`
	NextEnabled     bool       `json:"next_enabled"`
	PreviousEnabled bool       `json:"previous_enabled"`
	// CanRetry is filled in by the caller from quiz retake options.
	CanRetry bool `json:"can_retry"`
}

// Resolve returns the previous, current and next nodes for the given module and node
// index (both in sorted order) together with the Back/Next control states.
func Resolve(st State, moduleIndex, nodeIndex int) (Position, error) {
	if moduleIndex < 0 || moduleIndex >= len(st.ModuleIDs) {
		return Position{}, fmt.Errorf("%w: module index %d", ErrPositionOutOfRange, moduleIndex)
	}
	m := st.Modules[st.ModuleIDs[moduleIndex]]
	if nodeIndex < 0 || nodeIndex >= len(m.NodeIDs) {
		return Position{}, fmt.Errorf("%w: node index %d in module %q", ErrPositionOutOfRange, nodeIndex, m.ID)
	}
	return resolveAt(st, st.Nodes[m.NodeIDs[nodeIndex]].GlobalIndex), nil
}

// ResolveNode is Resolve addressed by node ID.
func ResolveNode(st State, nodeID string) (Position, error) {
	n, ok := st.Nodes[nodeID]
	if !ok {
		return Position{}, fmt.Errorf("%w: unknown node %q", ErrPositionOutOfRange, nodeID)
	}
	return resolveAt(st, n.GlobalIndex), nil
}

// Resume returns the position a learner should continue from: the first unlocked node
// that is not completed, or the last node when everything is done.
func Resume(st State) (Position, bool) {
	if len(st.Order) == 0 {
		return Position{}, false
	}
	for i, id := range st.Order {
		n := st.Nodes[id]
		if !n.IsCompleted && !n.IsLocked {
			return resolveAt(st, i), true
		}
	}
	return resolveAt(st, len(st.Order)-1), true
}

func resolveAt(st State, i int) Position {
	pos := Position{Current: st.Nodes[st.Order[i]]}
	if i > 0 {
		prev := st.Nodes[st.Order[i-1]]
		pos.Previous = &prev
	}
	if i+1 < len(st.Order) {
		next := st.Nodes[st.Order[i+1]]
		pos.Next = &next
	}

	// Back is only unavailable at the start of the global sequence.
	pos.PreviousEnabled = pos.Previous != nil

	switch {
	case pos.Next == nil:
		pos.NextButton = NextCourseComplete
	case pos.Next.IsLocked:
		pos.NextButton = NextLocked
	case pos.Current.IsRequired && !pos.Current.IsCompleted:
		pos.NextButton = NextCompleteCurrentFirst
	default:
		pos.NextButton = NextEnabled
	}
	pos.NextEnabled = pos.NextButton == NextEnabled
	return pos
}
