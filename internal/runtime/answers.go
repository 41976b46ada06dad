package runtime

import "sync"

// AnswerStore is the in-memory map of question ID to selected option set.
// Set semantics throughout: insertion order is kept for stable output but
// carries no meaning, and single-choice selections have cardinality <=1.
type AnswerStore struct {
	// gate reports whether mutation is currently permitted (session Active).
	gate func() bool
	// onMutate fires after every accepted mutation; the persistence
	// scheduler hangs its debounce off it, so no change is silently dropped.
	onMutate func()

	mu         sync.Mutex
	selections map[uint][]uint
}

func NewAnswerStore(gate func() bool, onMutate func()) *AnswerStore {
	return &AnswerStore{
		gate:       gate,
		onMutate:   onMutate,
		selections: make(map[uint][]uint),
	}
}

// Set applies one selection change. For single choice the whole selection is
// replaced with {optionID}; for multiple choice optionID's membership is
// toggled. Returns false with no state change while the session is not Active.
func (s *AnswerStore) Set(questionID, optionID uint, multiple bool) bool {
	if s.gate != nil && !s.gate() {
		return false
	}

	s.mu.Lock()
	if !multiple {
		s.selections[questionID] = []uint{optionID}
	} else {
		current := s.selections[questionID]
		toggled := make([]uint, 0, len(current)+1)
		removed := false
		for _, id := range current {
			if id == optionID {
				removed = true
				continue
			}
			toggled = append(toggled, id)
		}
		if !removed {
			toggled = append(toggled, optionID)
		}
		// The key stays even when the set empties out; answers are
		// overwritten during a session, never deleted.
		s.selections[questionID] = toggled
	}
	s.mu.Unlock()

	if s.onMutate != nil {
		s.onMutate()
	}
	return true
}

// Selected returns a copy of the current selection for one question.
func (s *AnswerStore) Selected(questionID uint) []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.selections[questionID]
	out := make([]uint, len(current))
	copy(out, current)
	return out
}

// Snapshot returns a deep copy of all selections, for persistence payloads.
func (s *AnswerStore) Snapshot() map[uint][]uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint][]uint, len(s.selections))
	for q, ids := range s.selections {
		cp := make([]uint, len(ids))
		copy(cp, ids)
		out[q] = cp
	}
	return out
}

// Seed loads persisted selections, bypassing the gate. Used on resume.
func (s *AnswerStore) Seed(selections map[uint][]uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = make(map[uint][]uint, len(selections))
	for q, ids := range selections {
		cp := make([]uint, len(ids))
		copy(cp, ids)
		s.selections[q] = cp
	}
}

// Reset drops every selection. Used when the candidate restarts fresh.
func (s *AnswerStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = make(map[uint][]uint)
}

// AnsweredCount counts questions with a non-empty selection.
func (s *AnswerStore) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ids := range s.selections {
		if len(ids) > 0 {
			n++
		}
	}
	return n
}

// Answered reports whether one question has a non-empty selection.
func (s *AnswerStore) Answered(questionID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selections[questionID]) > 0
}
