package player

import (
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Update is a derived state pushed to subscribers after it changes.
type Update struct {
	LearnerID string            `json:"learner_id"`
	State     progression.State `json:"state"`
}

// Hub fans derived state updates out to subscribers of a learner and course.
type Hub struct {
	subs map[string]map[chan Update]struct{}
	mu   sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Update]struct{})}
}

// Subscribe registers a buffered receiver. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(learnerID, courseID string) (<-chan Update, func()) {
	ch := make(chan Update, 4)
	key := learnerID + ":" + courseID

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan Update]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], ch)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(ch)
		})
	}
}

// Publish sends st to every subscriber of the learner and course. Slow subscribers
// miss updates instead of blocking the publisher.
func (h *Hub) Publish(learnerID string, st progression.State) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[learnerID+":"+st.CourseID] {
		select {
		case ch <- Update{LearnerID: learnerID, State: st}:
		default:
			slog.Warn("dropping state update for slow subscriber",
				"learner_id", learnerID,
				"course_id", st.CourseID,
			)
		}
	}
}

// Subscribers returns the number of receivers for a learner and course.
func (h *Hub) Subscribers(learnerID, courseID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[learnerID+":"+courseID])
}
