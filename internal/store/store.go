// Package store persists session snapshots and searches finished sessions for reuse.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"github.com/rahul/stepwise/pkg/config"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCorrupt  = errors.New("session snapshot is corrupt")
)

// Summary is one row of a session listing.
type Summary struct {
	ID        string         `json:"session_id"`
	Query     string         `json:"original_query"`
	Status    session.Status `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
	Summary   string         `json:"solution_summary"`
}

// Store is a session sink that can also read sessions back.
type Store interface {
	agent.Sink
	agent.MemorySearcher
	Load(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}

// candidate is a finished session considered for recall.
type candidate struct {
	query   string
	answer  string
	summary string
	updated time.Time
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "who": true, "how": true,
	"are": true, "was": true, "with": true, "from": true, "that": true, "this": true,
	"is": true, "of": true, "in": true, "to": true, "a": true, "an": true,
}

func keywords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// rank orders candidates by keyword overlap with query, newest first on ties, and drops
// candidates that share no keyword.
func rank(query string, candidates []candidate, limit int) []agent.MemoryEntry {
	want := keywords(query)
	if len(want) == 0 || limit <= 0 {
		return nil
	}

	type scored struct {
		candidate
		score int
	}
	var hits []scored
	for _, c := range candidates {
		score := 0
		for w := range keywords(c.query) {
			if want[w] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{c, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].updated.After(hits[j].updated)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	entries := make([]agent.MemoryEntry, len(hits))
	for i, h := range hits {
		entries[i] = agent.MemoryEntry{
			Query:             h.query,
			ResultRequirement: h.answer,
			SolutionSummary:   h.summary,
		}
	}
	return entries
}

func finalAnswer(s *session.Session) string {
	if s.FinalState == nil {
		return ""
	}
	return s.FinalState.FinalAnswer
}

// Open builds the store named by cfg.Type.
func Open(cfg config.MemoryConfig, logger *observability.Logger) (Store, error) {
	switch cfg.Type {
	case config.MemorySQLite, "":
		return NewSQLite(cfg.Path, logger)
	case config.MemoryFile:
		return NewFileStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown memory type %q", cfg.Type)
	}
}

// checkID rejects anything but a canonical session id, so ids typed on the command line never
// reach a glob or a query as patterns.
func checkID(id string) error {
	if u, err := uuid.Parse(id); err != nil || u.String() != id {
		return fmt.Errorf("%w: invalid session id %q", ErrNotFound, id)
	}
	return nil
}
