package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/antonkrylov/logwise/internal/agent"
)

// ErrNotFound marks a missing history entry.
var ErrNotFound = errors.New("history entry not found")

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Store keeps the most recent executions in memory and optionally persists
// them to SQLite and mirrors them to JetStream.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int

	logger *slog.Logger
	db     *sqliteBackend
	js     *jetStreamMirror
}

var _ agent.Recorder = (*Store)(nil)

// New creates a Store. Existing history is loaded from SQLite when
// configured, otherwise replayed from JetStream.
func New(ctx context.Context, opts *Options) (*Store, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.setDefaults()
	logger := discardLogger
	if o.Logger != nil {
		logger = o.Logger
	}
	st := &Store{limit: o.Limit, logger: logger}

	if o.SQLite != nil {
		db, err := openSQLite(o.SQLite)
		if err != nil {
			return nil, err
		}
		recent, err := db.recent(ctx, st.limit)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		st.entries = recent
		st.db = db
	}
	if o.JetStream != nil {
		js, err := newJetStreamMirror(ctx, o.JetStream, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		if st.db == nil {
			if err := js.hydrate(ctx, st); err != nil {
				js.Close()
				st.Close()
				return nil, err
			}
		}
		st.js = js
	}
	return st, nil
}

// MustNew creates an in-memory Store and panics if initialization fails.
func MustNew() *Store {
	st, err := New(context.Background(), nil)
	if err != nil {
		panic(err)
	}
	return st
}

func (s *Store) Close() {
	if s.js != nil {
		s.js.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("close history db", "err", err)
		}
	}
}

// Record implements agent.Recorder. Backend failures are logged; the
// in-memory copy is always updated.
func (s *Store) Record(ctx context.Context, exec *agent.Execution) error {
	if exec == nil {
		return nil
	}
	entry := FromExecution(exec)
	s.add(entry)

	var errs []error
	if s.db != nil {
		if err := s.db.insert(ctx, entry); err != nil {
			s.logger.Error("sqlite insert", "id", entry.ID, "err", err)
			errs = append(errs, err)
		}
	}
	if s.js != nil {
		if err := s.js.publish(entry); err != nil {
			s.logger.Error("jetstream publish execution", "id", entry.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns up to limit entries, oldest first. A limit <= 0 returns all.
func (s *Store) List(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.entries) > limit {
		start = len(s.entries) - limit
	}
	return append([]Entry(nil), s.entries[start:]...)
}

func (s *Store) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ID == id {
			return s.entries[i], nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		copy(s.entries, s.entries[over:])
		s.entries = s.entries[:s.limit]
	}
}

func (s *Store) applyReplayed(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.ID == e.ID {
			return
		}
	}
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		copy(s.entries, s.entries[over:])
		s.entries = s.entries[:s.limit]
	}
}
