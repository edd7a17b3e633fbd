package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// stateTTL bounds how long an issued OAuth state stays redeemable.
const stateTTL = 10 * time.Minute

// stateStore tracks outstanding OAuth state values. Each state is
// single use: Consume removes it whether or not it was still valid.
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

func newStateStore() *stateStore {
	return &stateStore{
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue creates and registers a fresh state value.
func (s *stateStore) Issue() string {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop anything stale while we hold the lock.
	cutoff := s.now().Add(-stateTTL)
	for k, issued := range s.states {
		if issued.Before(cutoff) {
			delete(s.states, k)
		}
	}

	s.states[state] = s.now()
	return state
}

// Consume redeems a state value. It reports whether the state was
// issued by this server and has not expired.
func (s *stateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Sub(issued) <= stateTTL
}
