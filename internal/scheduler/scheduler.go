package scheduler

import (
	"sync"
	"time"
)

// Scheduler tracks one pending callback per key.  Scheduling a key that
// already has a pending callback replaces it.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	pending map[string]entry
}

type entry struct {
	gen   uint64
	at    time.Time
	timer Timer
}

// New returns a Scheduler driven by clock.
func New(clock Clock) *Scheduler {
	return &Scheduler{clock: clock, pending: make(map[string]entry)}
}

// Clock returns the clock the scheduler runs on.
func (s *Scheduler) Clock() Clock { return s.clock }

// Schedule arranges for fn to run at the given instant.  An instant in the
// past fires as soon as possible.
func (s *Scheduler) Schedule(key string, at time.Time, fn func()) {
	s.mu.Lock()
	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
		delete(s.pending, key)
	}
	s.gen++
	gen := s.gen
	// Register before arming: a ManualClock fires past-due timers inline.
	e := entry{gen: gen, at: at}
	s.pending[key] = e
	s.mu.Unlock()

	timer := s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		if !s.release(key, gen) {
			return
		}
		fn()
	})

	s.mu.Lock()
	if cur, ok := s.pending[key]; ok && cur.gen == gen {
		cur.timer = timer
		s.pending[key] = cur
	}
	s.mu.Unlock()
}

// Cancel stops the pending callback for key.  It reports whether one was
// pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	e, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if ok && e.timer != nil {
		e.timer.Stop()
	}
	return ok
}

// Scheduled reports the fire time for key, if any.
func (s *Scheduler) Scheduled(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	return e.at, ok
}

// Len returns the number of pending callbacks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending callback.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]entry)
	s.mu.Unlock()
	for _, e := range pending {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

// release removes key if it still belongs to generation gen.
func (s *Scheduler) release(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.pending, key)
	return true
}
