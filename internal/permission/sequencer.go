package permission

import "sync"

// Sequencer hands out increasing tickets per key so that a slow response can
// be recognised as superseded by a newer request. Tickets are drawn from one
// counter, so a key whose entry was dropped never sees an old ticket again.
type Sequencer struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Next issues a new ticket for key.
func (s *Sequencer) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.latest[key] = s.next
	return s.next
}

// IsLatest reports whether ticket is the most recent one issued for key.
func (s *Sequencer) IsLatest(key string, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[key] == ticket
}

// Release drops the entry for key once ticket has been handled, unless a newer
// ticket was issued meanwhile. Only keys with a pending request keep an entry.
func (s *Sequencer) Release(key string, ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[key] == ticket {
		delete(s.latest, key)
	}
}

// Forget drops the ticket held for key. Outstanding tickets for key stop
// being latest.
func (s *Sequencer) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, key)
}

// Len returns the number of keys holding a ticket.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}
