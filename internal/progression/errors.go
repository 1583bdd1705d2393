package progression

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrdering reports duplicate order values within a course or module.
	ErrInvalidOrdering = errors.New("invalid ordering")
	// ErrMissingPrerequisiteData reports event records that do not match the course.
	ErrMissingPrerequisiteData = errors.New("missing prerequisite data")
	// ErrPositionOutOfRange reports a navigation position outside the course.
	ErrPositionOutOfRange = errors.New("position out of range")
)

// OrderingError describes where an ambiguous order was found.
type OrderingError struct {
	Scope    string // "module" or "node"
	ParentID string // course ID for modules, module ID for nodes
	Order    int
	IDs      []string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s order %d is shared by %v in %q", e.Scope, e.Order, e.IDs, e.ParentID)
}

func (e *OrderingError) Unwrap() error { return ErrInvalidOrdering }

// MissingDataError names an event that references a node the course does not contain.
type MissingDataError struct {
	NodeID string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("event references unknown node %q", e.NodeID)
}

func (e *MissingDataError) Unwrap() error { return ErrMissingPrerequisiteData }
