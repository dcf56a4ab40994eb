package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/groupchat/core"
)

// InMemoryStore is an in-process ReportStore useful for tests and single
// process deployments. Reports are stored JSON encoded so callers never share
// the maps held in a report's context snapshot.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte // sessionID -> encoded report
}

// NewInMemoryStore returns an empty in-memory report store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string][]byte)}
}

// Save stores (or overwrites) the report of its session.
func (a *InMemoryStore) Save(r core.Report) error {
	if r.SessionID == "" {
		return fmt.Errorf("report without session id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[r.SessionID] = data
	return nil
}

// Get returns the report of a session or ErrNotFound.
func (a *InMemoryStore) Get(sessionID string) (core.Report, error) {
	a.mu.RLock()
	data, ok := a.reports[sessionID]
	a.mu.RUnlock()
	if !ok {
		return core.Report{}, ErrNotFound
	}
	var r core.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return core.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// List returns the stored session ids in sorted order.
func (a *InMemoryStore) List() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.reports))
	for id := range a.reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the report if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.reports[sessionID]; !ok {
		return ErrNotFound
	}
	delete(a.reports, sessionID)
	return nil
}
