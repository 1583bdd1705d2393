package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Guard allows at most one in-flight submission per (learner, course, quiz).
type Guard interface {
	// Acquire returns ErrAttemptInFlight when the quiz is already held for the learner.
	Acquire(ctx context.Context, learnerID, courseID, quizID string) (release func(), err error)
}

// MemoryGuard serializes submissions within one process.
type MemoryGuard struct {
	held map[string]bool
	mu   sync.Mutex
}

// NewMemoryGuard creates a process-local guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]bool)}
}

func (g *MemoryGuard) Acquire(_ context.Context, learnerID, courseID, quizID string) (func(), error) {
	key := attemptKey(learnerID, courseID, quizID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, ErrAttemptInFlight
	}
	g.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// Locker takes expiring named locks shared between service instances.
// *cache.Cache satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// LockGuard serializes submissions across service instances through a Locker.
type LockGuard struct {
	locker Locker
	prefix string
	ttl    time.Duration
}

// NewLockGuard creates a guard whose locks expire after ttl if never released.
func NewLockGuard(locker Locker, prefix string, ttl time.Duration) *LockGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockGuard{locker: locker, prefix: prefix, ttl: ttl}
}

func (g *LockGuard) Acquire(ctx context.Context, learnerID, courseID, quizID string) (func(), error) {
	unlock, ok, err := g.locker.TryLock(ctx, g.prefix+attemptKey(learnerID, courseID, quizID), g.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquiring attempt lock: %w", err)
	}
	if !ok {
		return nil, ErrAttemptInFlight
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}
