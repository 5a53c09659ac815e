// Package display tracks the alerts currently shown to the operator. The
// table is shared by the poll loop and the action bridge.
package display

import (
	"slices"
	"sync"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// Entry is a problem bound to a presentation.
type Entry struct {
	Problem     problem.Problem
	DisplayedAt time.Time
	Pending     bool // an acknowledgement call is in flight
}

type Table struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// dismissed remembers what a dismissed alert looked like so the same
	// unchanged problem is not surfaced again on the next cycle.
	dismissed map[string]problem.Fingerprint
}

func NewTable() *Table {
	return &Table{
		entries:   make(map[string]*Entry),
		dismissed: make(map[string]problem.Fingerprint),
	}
}

// IsUnchanged reports whether p is already displayed, or was dismissed,
// with the same severity, description and acknowledged flag.
func (t *Table) IsUnchanged(p problem.Problem) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[p.EventID]; ok {
		return e.Problem.Fingerprint() == p.Fingerprint()
	}
	fp, ok := t.dismissed[p.EventID]
	return ok && fp == p.Fingerprint()
}

// Add records p as displayed at the given time, replacing any earlier
// presentation of the same event. A pending flag survives replacement.
func (t *Table) Add(p problem.Problem, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry{Problem: p, DisplayedAt: at}
	if old, ok := t.entries[p.EventID]; ok {
		e.Pending = old.Pending
	}
	t.entries[p.EventID] = e
	delete(t.dismissed, p.EventID)
}

func (t *Table) Get(eventID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[eventID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Table) Contains(eventID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[eventID]
	return ok
}

// Remove drops the entry and reports whether it existed.
func (t *Table) Remove(eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[eventID]; !ok {
		return false
	}
	delete(t.entries, eventID)
	return true
}

// Dismiss removes the entry and suppresses it until the problem changes
// or leaves the backend's active list.
func (t *Table) Dismiss(eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[eventID]
	if !ok {
		return false
	}
	delete(t.entries, eventID)
	t.dismissed[eventID] = e.Problem.Fingerprint()
	return true
}

// SetAcknowledged updates the acknowledged flag of a displayed problem.
func (t *Table) SetAcknowledged(eventID string, acked bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[eventID]
	if !ok {
		return false
	}
	e.Problem.Acknowledged = acked
	return true
}

// BeginAction marks the entry pending. It fails if the event is not
// displayed or already has an action in flight.
func (t *Table) BeginAction(eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[eventID]
	if !ok || e.Pending {
		return false
	}
	e.Pending = true
	return true
}

func (t *Table) EndAction(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[eventID]; ok {
		e.Pending = false
	}
}

// Retain removes every entry whose event id is not in active, except
// entries with an action in flight, and returns the removed ids. Dismissal
// records for inactive events are forgotten too.
func (t *Table) Retain(active map[string]struct{}) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for id, e := range t.entries {
		if _, ok := active[id]; ok || e.Pending {
			continue
		}
		delete(t.entries, id)
		removed = append(removed, id)
	}
	for id := range t.dismissed {
		if _, ok := active[id]; !ok {
			delete(t.dismissed, id)
		}
	}
	slices.SortFunc(removed, problem.CompareEventID)
	return removed
}

// List returns a copy of all entries, highest severity first, then by
// event id.
func (t *Table) List() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if a.Problem.Severity != b.Problem.Severity {
			if a.Problem.Severity > b.Problem.Severity {
				return -1
			}
			return 1
		}
		return problem.CompareEventID(a.Problem.EventID, b.Problem.EventID)
	})
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
