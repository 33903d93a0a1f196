package firewatch

import (
	"encoding/json"
	"sync"
)

// documentStore holds the synced document. The stream loop is the only
// writer; every write publishes a fresh Snapshot value. Readers on other
// goroutines go through current.
type documentStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

func newDocumentStore() *documentStore {
	return &documentStore{}
}

func (s *documentStore) current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// replaceAreas swaps in a new areas document.
func (s *documentStore) replaceAreas(doc json.RawMessage, kind UpdateKind) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Areas:    doc,
		Wind:     s.snap.Wind,
		Revision: s.snap.Revision + 1,
		Kind:     kind,
	}
	return s.snap
}

func (s *documentStore) replaceWind(w Wind) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Areas:    s.snap.Areas,
		Wind:     w,
		Revision: s.snap.Revision + 1,
		Kind:     UpdateWind,
	}
	return s.snap
}
