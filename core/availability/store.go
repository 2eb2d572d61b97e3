package availability

import (
	"sort"
	"sync"
	"time"
)

// Status captures the presence of a single farmer.
type Status struct {
	FarmerID   string    `json:"farmerId"`
	Online     bool      `json:"online"`
	Available  bool      `json:"available"` // the farmer's manual "Go" toggle
	SessionID  string    `json:"sessionId,omitempty"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Store tracks farmer presence. It is mutated by login, logout, browser-close
// and manual-toggle events; the ranking module and the scheduler only read it.
type Store interface {
	SetAvailable(farmerID string, available bool)
	SetOnline(farmerID string, online bool)
	// Touch records an activity signal, marks the farmer online and binds the
	// session when one is provided.
	Touch(farmerID, sessionID string)
	// Logout clears the online flag. When sessionID is non-empty it must match
	// the bound session; a stale beacon from a closed tab is ignored.
	Logout(farmerID, sessionID string) bool
	Get(farmerID string) (Status, bool)
	List() []Status
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}, now: time.Now}
}

func (s *MemoryStore) SetAvailable(farmerID string, available bool) {
	s.mu.Lock()
	st := s.get(farmerID)
	st.Available = available
	st.LastSeenAt = s.now()
	s.data[farmerID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) SetOnline(farmerID string, online bool) {
	s.mu.Lock()
	st := s.get(farmerID)
	st.Online = online
	st.LastSeenAt = s.now()
	s.data[farmerID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) Touch(farmerID, sessionID string) {
	s.mu.Lock()
	st := s.get(farmerID)
	st.Online = true
	if sessionID != "" {
		st.SessionID = sessionID
	}
	st.LastSeenAt = s.now()
	s.data[farmerID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) Logout(farmerID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[farmerID]
	if !ok {
		return false
	}
	if sessionID != "" && st.SessionID != "" && st.SessionID != sessionID {
		return false
	}
	st.Online = false
	st.SessionID = ""
	st.LastSeenAt = s.now()
	s.data[farmerID] = st
	return true
}

func (s *MemoryStore) Get(farmerID string) (Status, bool) {
	s.mu.RLock()
	st, ok := s.data[farmerID]
	s.mu.RUnlock()
	return st, ok
}

func (s *MemoryStore) List() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].FarmerID < res[j].FarmerID })
	return res
}

// get returns the stored status or a zero record keyed to the farmer.
// Callers must hold the write lock.
func (s *MemoryStore) get(farmerID string) Status {
	st, ok := s.data[farmerID]
	if !ok {
		st = Status{FarmerID: farmerID}
	}
	return st
}
