package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateIssueAndConsume(t *testing.T) {
	s := newStateStore()

	state := s.Issue()
	assert.NotEmpty(t, state)
	assert.True(t, s.Consume(state))
}

func TestStateIsSingleUse(t *testing.T) {
	s := newStateStore()

	state := s.Issue()
	assert.True(t, s.Consume(state))
	assert.False(t, s.Consume(state))
}

func TestConsumeUnknownState(t *testing.T) {
	s := newStateStore()

	assert.False(t, s.Consume("never-issued"))
	assert.False(t, s.Consume(""))
}

func TestConsumeExpiredState(t *testing.T) {
	s := newStateStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	state := s.Issue()
	current = current.Add(stateTTL + time.Minute)

	assert.False(t, s.Consume(state))
}

func TestIssueDropsStaleStates(t *testing.T) {
	s := newStateStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	stale := s.Issue()
	current = current.Add(stateTTL + time.Minute)

	s.Issue()

	s.mu.Lock()
	_, present := s.states[stale]
	s.mu.Unlock()
	assert.False(t, present)
}

func TestStatesAreUnique(t *testing.T) {
	s := newStateStore()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state := s.Issue()
		assert.False(t, seen[state])
		seen[state] = true
	}
}
