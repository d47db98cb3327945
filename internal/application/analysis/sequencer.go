package analysis

import "sync"

// Ticket identifies one analyze call within a view.
type Ticket struct {
	view string
	seq  uint64
}

// Sequencer orders analyze calls per UI view. Only the most recently issued
// ticket of a view is current; an earlier call finishing late is stale and
// must not overwrite what the view already shows.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Begin issues the next ticket for view. An empty view is never sequenced.
func (s *Sequencer) Begin(view string) Ticket {
	if s == nil || view == "" {
		return Ticket{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[view]++
	return Ticket{view: view, seq: s.latest[view]}
}

// Current reports whether t is still the latest ticket of its view.
func (s *Sequencer) Current(t Ticket) bool {
	if s == nil || t.view == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[t.view] == t.seq
}
