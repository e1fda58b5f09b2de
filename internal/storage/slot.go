package storage

import (
	"sync"

	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// VerdictSlot holds the one current verdict. Store replaces it wholesale and
// readers only ever see complete values.
type VerdictSlot struct {
	mu      sync.RWMutex
	current *verdict.Verdict
}

// NewVerdictSlot returns an empty slot.
func NewVerdictSlot() *VerdictSlot {
	return &VerdictSlot{}
}

// Store makes v the current verdict, discarding the previous one.
func (s *VerdictSlot) Store(v verdict.Verdict) {
	snapshot := v.Clone()
	s.mu.Lock()
	s.current = &snapshot
	s.mu.Unlock()
}

// Current returns a snapshot of the current verdict. The copy shares no
// memory with the slot, so later Stores cannot change it.
func (s *VerdictSlot) Current() (verdict.Verdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return verdict.Verdict{}, false
	}
	return s.current.Clone(), true
}
