package store

import (
	"context"
	"sync"
	"time"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// MemoryStore is an in-process counter store. It backs tests and the
// simulate command and doubles as the reference implementation of the
// dedup semantics: one participant per identity, repeat conversions
// bump Conversions but not Converted, first assignment wins.
type MemoryStore struct {
	mu          sync.Mutex
	experiments map[string]*memExperiment
}

type memExperiment struct {
	participants map[int]map[string]struct{}
	converted    map[int]map[string]struct{}
	conversions  map[int]int
	assignments  map[string]int

	enabled    bool
	enabledSet bool

	createdAt    time.Time
	createdSet   bool
	completedAt  time.Time
	completedSet bool

	outcome    int
	outcomeSet bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{experiments: make(map[string]*memExperiment)}
}

func (s *MemoryStore) get(experimentID string) *memExperiment {
	e, ok := s.experiments[experimentID]
	if !ok {
		e = &memExperiment{
			participants: make(map[int]map[string]struct{}),
			converted:    make(map[int]map[string]struct{}),
			conversions:  make(map[int]int),
			assignments:  make(map[string]int),
		}
		s.experiments[experimentID] = e
	}
	return e
}

func (s *MemoryStore) Counts(ctx context.Context, experimentID string, alternative int) (experiment.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	return experiment.Counts{
		Participants: len(e.participants[alternative]),
		Converted:    len(e.converted[alternative]),
		Conversions:  e.conversions[alternative],
	}, nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, experimentID string, alternative int, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	if e.participants[alternative] == nil {
		e.participants[alternative] = make(map[string]struct{})
	}
	e.participants[alternative][identity] = struct{}{}
	return nil
}

func (s *MemoryStore) AddConversion(ctx context.Context, experimentID string, alternative int, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	if e.converted[alternative] == nil {
		e.converted[alternative] = make(map[string]struct{})
	}
	e.converted[alternative][identity] = struct{}{}
	e.conversions[alternative]++
	return nil
}

func (s *MemoryStore) Assignment(ctx context.Context, experimentID, identity string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.get(experimentID).assignments[identity]
	return index, ok, nil
}

func (s *MemoryStore) SetAssignment(ctx context.Context, experimentID, identity string, alternative int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	// First writer wins, matching the SETNX/INSERT OR IGNORE adapters.
	if _, ok := e.assignments[identity]; !ok {
		e.assignments[identity] = alternative
	}
	return nil
}

func (s *MemoryStore) Enabled(ctx context.Context, experimentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	if !e.enabledSet {
		return true, nil
	}
	return e.enabled, nil
}

func (s *MemoryStore) SetEnabled(ctx context.Context, experimentID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	e.enabled = enabled
	e.enabledSet = true
	return nil
}

func (s *MemoryStore) CreatedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	return e.createdAt, e.createdSet, nil
}

func (s *MemoryStore) SetCreatedAt(ctx context.Context, experimentID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	e.createdAt = t
	e.createdSet = true
	return nil
}

func (s *MemoryStore) CompletedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	return e.completedAt, e.completedSet, nil
}

func (s *MemoryStore) SetCompletedAt(ctx context.Context, experimentID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	e.completedAt = t
	e.completedSet = true
	return nil
}

func (s *MemoryStore) Outcome(ctx context.Context, experimentID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	return e.outcome, e.outcomeSet, nil
}

func (s *MemoryStore) SetOutcome(ctx context.Context, experimentID string, alternative int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(experimentID)
	e.outcome = alternative
	e.outcomeSet = true
	return nil
}

func (s *MemoryStore) Destroy(ctx context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.experiments, experimentID)
	return nil
}
