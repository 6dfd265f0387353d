package relocate

import (
	"context"
	"sync"
)

// slotLimiter caps how many relocation calls are outstanding at once. Unlike
// a buffered channel its capacity can be changed while slots are held, which
// lets a config reload take effect without restarting the bot. Lowering the
// limit never revokes held slots; new acquirers simply wait until enough are
// released.
type slotLimiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	acquired int
}

// newSlotLimiter creates a limiter with the given capacity, clamped to at
// least 1.
func newSlotLimiter(limit int) *slotLimiter {
	s := &slotLimiter{limit: max(limit, 1)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is free or ctx is done.
func (s *slotLimiter) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Wake waiters when ctx ends so they can observe the cancellation.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	for s.acquired >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.acquired++
	return nil
}

// Release frees a slot.
func (s *slotLimiter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired > 0 {
		s.acquired--
	}
	s.cond.Signal()
}

// SetLimit changes the capacity, clamped to at least 1.
func (s *slotLimiter) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = max(n, 1)
	s.cond.Broadcast()
}

// Limit returns the current capacity.
func (s *slotLimiter) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Acquired returns the number of held slots.
func (s *slotLimiter) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}
