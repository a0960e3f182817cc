package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

// annotationState holds the run's view of every record's annotation: what
// the store said at fetch time, overlaid with what this run has staged so
// far. Later phases read through the overlay, so the fallback sees cascade
// results and a second cascade pass sees fallback results, without a single
// write hitting the store before the merge phase. On dry runs the overlay is
// simply never flushed.
type annotationState struct {
	mu      sync.RWMutex
	current map[string]*model.MatchAnnotation
	staged  map[string]*model.MatchAnnotation
}

// loadAnnotations primes the state with the store's annotations for every
// fetched record. A read failure for one record degrades to the zero
// annotation; the fallback will catch that record anyway.
func loadAnnotations(ctx context.Context, store service.RecordStore, domains map[model.SourceDomain]*domainData) *annotationState {
	st := &annotationState{
		current: make(map[string]*model.MatchAnnotation),
		staged:  make(map[string]*model.MatchAnnotation),
	}
	for _, data := range domains {
		for i := range data.transactions {
			id := data.transactions[i].ID
			ann, err := store.GetAnnotation(ctx, id)
			if err != nil {
				slog.Warn("failed to read annotation, treating as empty", "record_id", id, "error", err)
				ann = nil
			}
			if ann == nil {
				ann = &model.MatchAnnotation{}
			}
			st.current[id] = ann
		}
	}
	return st
}

// get returns the effective annotation for a record: store state plus
// staged overlay. Never nil for a fetched record; nil for unknown ids.
func (s *annotationState) get(id string) *model.MatchAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ann, ok := s.current[id]
	if !ok {
		return nil
	}
	copied := *ann
	return &copied
}

// stage folds a partial annotation into the overlay under the model's merge
// rules. The effective annotation updates immediately; the store does not.
func (s *annotationState) stage(id string, partial *model.MatchAnnotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.current[id]
	if !ok {
		current = &model.MatchAnnotation{}
	}
	merged := current.Merge(partial)
	s.current[id] = &merged

	if prior, ok := s.staged[id]; ok {
		combined := prior.Merge(partial)
		s.staged[id] = &combined
	} else {
		copied := *partial
		s.staged[id] = &copied
	}
}

// pending returns everything staged this run, for the merge phase.
func (s *annotationState) pending() map[string]*model.MatchAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.MatchAnnotation, len(s.staged))
	for id, ann := range s.staged {
		copied := *ann
		out[id] = &copied
	}
	return out
}

// clearPending drops the staged set after a successful flush so a second
// pass only writes its own deltas.
func (s *annotationState) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = make(map[string]*model.MatchAnnotation)
}
