package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Activity is the last known state of one running session.
type Activity struct {
	SessionID string
	Query     string
	Status    string
	Steps     int
	Started   time.Time
	Updated   time.Time
}

// Tracker records which sessions are in flight. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*Activity
	done   int
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*Activity), now: time.Now}
}

// Update records the latest status of a session, adding it on first sight.
func (t *Tracker) Update(sessionID, query, status string, steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	a, ok := t.active[sessionID]
	if !ok {
		a = &Activity{SessionID: sessionID, Query: query, Started: now}
		t.active[sessionID] = a
	}
	a.Status = status
	a.Steps = steps
	a.Updated = now
}

// Finish removes a session from the active set.
func (t *Tracker) Finish(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[sessionID]; ok {
		delete(t.active, sessionID)
		t.done++
	}
}

// Snapshot returns copies of the active sessions, oldest first, and the finished count.
func (t *Tracker) Snapshot() ([]Activity, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Activity, 0, len(t.active))
	for _, a := range t.active {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out, t.done
}

// Line renders a one-line progress summary.
func (t *Tracker) Line() string {
	active, done := t.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "[ %d running | %d done ]", len(active), done)
	for _, a := range active {
		id, _, _ := strings.Cut(a.SessionID, "-")
		fmt.Fprintf(&sb, " %s:%s(%d)", id, a.Status, a.Steps)
	}
	return sb.String()
}
