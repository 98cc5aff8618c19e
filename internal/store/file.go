package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
)

// FileStore writes one JSON file per session under Root/YYYY/MM/DD/<id>.json, dated by the
// session's creation day.
type FileStore struct {
	Root   string
	Logger *observability.Logger

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string, logger *observability.Logger) (*FileStore, error) {
	if logger == nil {
		logger = observability.NewNop()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create session directory %q: %w", root, err)
	}
	return &FileStore{Root: root, Logger: logger}, nil
}

func (f *FileStore) Close() error { return nil }

// Path returns where the snapshot of sess lives.
func (f *FileStore) Path(sess *session.Session) string {
	day := sess.CreatedAt.UTC()
	return filepath.Join(f.Root, day.Format("2006"), day.Format("01"), day.Format("02"), sess.ID+".json")
}

func (f *FileStore) Upsert(ctx context.Context, sess *session.Session) error {
	data, err := sess.Snapshot()
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	path := f.Path(sess)

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, err := os.ReadFile(path); err == nil && !json.Valid(existing) {
		f.Logger.LogSession(sess.ID, "overwriting corrupt snapshot", map[string]any{"path": path})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for session %s: %w", sess.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return nil
}

func (f *FileStore) find(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(f.Root, "*", "*", "*", id+".json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return matches[0], nil
}

func (f *FileStore) Load(ctx context.Context, id string) (*session.Session, error) {
	path, err := f.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sess, err := session.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return sess, nil
}

// all decodes every readable snapshot, skipping corrupt ones.
func (f *FileStore) all(ctx context.Context) ([]*session.Session, error) {
	var out []*session.Session
	err := filepath.WalkDir(f.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sess, err := session.Load(data)
		if err != nil {
			f.Logger.LogPersistence("", fmt.Errorf("%w: %s", ErrCorrupt, path))
			return nil
		}
		out = append(out, sess)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, err
}

func (f *FileStore) List(ctx context.Context, limit int) ([]Summary, error) {
	sessions, err := f.all(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	out := make([]Summary, len(sessions))
	for i, s := range sessions {
		out[i] = Summary{
			ID:        s.ID,
			Query:     s.OriginalQuery,
			Status:    s.Status,
			UpdatedAt: s.UpdatedAt,
			Summary:   s.SolutionSummary(),
		}
	}
	return out, nil
}

func (f *FileStore) Search(ctx context.Context, query string, limit int) ([]agent.MemoryEntry, error) {
	sessions, err := f.all(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []candidate
	for _, s := range sessions {
		if s.Status != session.StatusFinished {
			continue
		}
		candidates = append(candidates, candidate{
			query:   s.OriginalQuery,
			answer:  finalAnswer(s),
			summary: s.SolutionSummary(),
			updated: s.UpdatedAt,
		})
	}
	return rank(query, candidates, limit), nil
}
