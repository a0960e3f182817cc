package match

import "sync"

// ExclusionSet is the per-run bookkeeping that prevents one target record
// from being claimed by more than one source record under a 1:1 strategy.
// It is the only mutable structure shared between matching workers, so it is
// mutex-guarded; the indexes are read-only once built.
type ExclusionSet struct {
	mu      sync.Mutex
	claimed map[string]string
}

// NewExclusionSet returns an empty exclusion set.
func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{claimed: make(map[string]string)}
}

// Claim atomically claims targetID for claimantID. It returns false when the
// target was already claimed by a different claimant in this run; re-claiming
// by the same claimant succeeds.
func (s *ExclusionSet) Claim(targetID, claimantID string) bool {
	if targetID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.claimed[targetID]; ok {
		return owner == claimantID
	}
	s.claimed[targetID] = claimantID
	return true
}

// Claimed reports whether targetID has been claimed this run.
func (s *ExclusionSet) Claimed(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[targetID]
	return ok
}

// Release undoes a claim. Used when a later check invalidates a tentative
// match within the same strategy.
func (s *ExclusionSet) Release(targetID, claimantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.claimed[targetID]; ok && owner == claimantID {
		delete(s.claimed, targetID)
	}
}

// Len returns the number of claimed targets.
func (s *ExclusionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claimed)
}
