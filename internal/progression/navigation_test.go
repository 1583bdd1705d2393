package progression_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/course"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

func TestResolve_NextButton(t *testing.T) {
	c := scenarioCourse()

	tests := []struct {
		name       string
		events     []progression.Event
		module     int
		node       int
		wantButton progression.NextButton
		wantPrev   bool
		wantNextID string
	}{
		{
			name:       "start of course, next locked",
			module:     0,
			node:       0,
			wantButton: progression.NextLocked,
			wantPrev:   false,
			wantNextID: "m1-quiz",
		},
		{
			name:       "start of course after completion",
			events:     []progression.Event{completed("m1-clip")},
			module:     0,
			node:       0,
			wantButton: progression.NextEnabled,
			wantNextID: "m1-quiz",
		},
		{
			name:       "required quiz not yet passed",
			events:     []progression.Event{completed("m1-clip")},
			module:     0,
			node:       1,
			wantButton: progression.NextLocked,
			wantPrev:   true,
			wantNextID: "m2-clip",
		},
		{
			name:       "last node",
			events:     []progression.Event{completed("m1-clip"), completed("m1-quiz")},
			module:     1,
			node:       0,
			wantButton: progression.NextCourseComplete,
			wantPrev:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := derive(t, c, tt.events...)
			pos, err := progression.Resolve(st, tt.module, tt.node)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if pos.NextButton != tt.wantButton {
				t.Errorf("NextButton = %v, want %v", pos.NextButton, tt.wantButton)
			}
			if pos.NextEnabled != (tt.wantButton == progression.NextEnabled) {
				t.Errorf("NextEnabled = %v inconsistent with %v", pos.NextEnabled, pos.NextButton)
			}
			if pos.PreviousEnabled != tt.wantPrev {
				t.Errorf("PreviousEnabled = %v, want %v", pos.PreviousEnabled, tt.wantPrev)
			}
			gotNext := ""
			if pos.Next != nil {
				gotNext = pos.Next.ID
			}
			if gotNext != tt.wantNextID {
				t.Errorf("Next = %q, want %q", gotNext, tt.wantNextID)
			}
		})
	}
}

func TestResolve_CompleteCurrentFirst(t *testing.T) {
	// The successor was completed earlier and stays open, but the current
	// required node still has to be finished.
	c := &course.Course{
		ID: "c",
		Modules: []course.Module{{
			ID: "m", Order: 1,
			Nodes: []course.Node{
				{ID: "a", Order: 1, IsRequired: false},
				{ID: "b", Order: 2, IsRequired: true},
				{ID: "c", Order: 3, IsRequired: true},
			},
		}},
	}
	st := derive(t, c, completed("c"))

	pos, err := progression.Resolve(st, 0, 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if pos.NextButton != progression.NextCompleteCurrentFirst {
		t.Errorf("NextButton = %v, want complete_current_first", pos.NextButton)
	}
}

func TestResolve_PreviousEnabledEvenWhenLocked(t *testing.T) {
	c := scenarioCourse()
	st := derive(t, c)

	// Learners may look at the locked second module; Back still works.
	pos, err := progression.Resolve(st, 1, 0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !pos.PreviousEnabled {
		t.Error("Previous should be enabled away from the course start")
	}
	if pos.Previous == nil || pos.Previous.ID != "m1-quiz" {
		t.Errorf("Previous = %+v, want m1-quiz", pos.Previous)
	}
}

func TestResolve_SkipsEmptyModules(t *testing.T) {
	c := &course.Course{
		ID: "c",
		Modules: []course.Module{
			{ID: "m1", Order: 1, Nodes: []course.Node{{ID: "a", Order: 1}}},
			{ID: "gap", Order: 2},
			{ID: "m3", Order: 3, Nodes: []course.Node{{ID: "b", Order: 1}}},
		},
	}
	st := derive(t, c)

	pos, err := progression.Resolve(st, 0, 0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if pos.Next == nil || pos.Next.ID != "b" {
		t.Errorf("Next = %+v, want b across the empty module", pos.Next)
	}

	if _, err := progression.Resolve(st, 1, 0); !errors.Is(err, progression.ErrPositionOutOfRange) {
		t.Errorf("Resolve(empty module) error = %v, want ErrPositionOutOfRange", err)
	}
}

func TestResolve_OutOfRange(t *testing.T) {
	st := derive(t, scenarioCourse())

	for _, idx := range [][2]int{{-1, 0}, {2, 0}, {0, 2}, {0, -1}} {
		if _, err := progression.Resolve(st, idx[0], idx[1]); !errors.Is(err, progression.ErrPositionOutOfRange) {
			t.Errorf("Resolve(%d, %d) error = %v, want ErrPositionOutOfRange", idx[0], idx[1], err)
		}
	}
	if _, err := progression.ResolveNode(st, "ghost"); !errors.Is(err, progression.ErrPositionOutOfRange) {
		t.Errorf("ResolveNode(ghost) error = %v, want ErrPositionOutOfRange", err)
	}
}

func TestResume(t *testing.T) {
	c := scenarioCourse()

	pos, ok := progression.Resume(derive(t, c, completed("m1-clip")))
	if !ok || pos.Current.ID != "m1-quiz" {
		t.Errorf("Resume() = %q, want m1-quiz", pos.Current.ID)
	}

	pos, ok = progression.Resume(derive(t, c, completed("m1-clip"), completed("m1-quiz"), completed("m2-clip")))
	if !ok || pos.Current.ID != "m2-clip" {
		t.Errorf("Resume() on finished course = %q, want last node", pos.Current.ID)
	}

	if _, ok := progression.Resume(derive(t, &course.Course{ID: "empty"})); ok {
		t.Error("Resume() on a course without nodes should report false")
	}
}

func TestNextButton_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		B progression.NextButton `json:"b"`
	}{progression.NextCompleteCurrentFirst})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"complete_current_first"`) {
		t.Errorf("Marshal() = %s, want button name", data)
	}
}
