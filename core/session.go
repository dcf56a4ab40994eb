package core

import (
	"sync"
	"time"
)

// Session is the persisted record of one group chat run: the workflow it
// belongs to, the latest context snapshot and the ordered transcript. It is
// safe for concurrent access.
type Session struct {
	ID       string         `json:"id"`
	Workflow string         `json:"workflow"`
	State    map[string]any `json:"state"`
	Events   []Event        `json:"events"`
	Created  time.Time      `json:"created"`
	Updated  time.Time      `json:"updated"`
	mu       sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id, workflow string) *Session {
	now := time.Now()
	return &Session{ID: id, Workflow: workflow, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// ApplyStateDelta merges the provided key/value pairs into State.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.State[k] = deepCopy(v)
	}
	s.Updated = time.Now()
}

// AddEvent appends an event to the history.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:       s.ID,
		Workflow: s.Workflow,
		State:    make(map[string]any, len(s.State)),
		Events:   make([]Event, len(s.Events)),
		Created:  s.Created,
		Updated:  s.Updated,
	}
	for k, v := range s.State {
		clone.State[k] = deepCopy(v)
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
type SessionStore interface {
	Create(id, workflow string) (*Session, error)
	Get(id string) (*Session, error)
	AppendEvent(sessionID string, event Event) error
	ApplyDelta(sessionID string, delta map[string]any) error
	Delete(id string)
	List() []string
}
