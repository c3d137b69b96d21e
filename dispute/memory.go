package dispute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"scorevera/letter"
	"scorevera/tradeline"
)

var errTxDone = errors.New("dispute: transaction already closed")

// MemoryStore keeps disputes in process with the same per-user
// serialization and uniqueness rules as the Postgres store. Used by tests
// and the --memory dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	locks    map[string]chan struct{}
	disputes map[string]Record
	letters  map[string]letter.Letter
	events   []Event
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    make(map[string]chan struct{}),
		disputes: make(map[string]Record),
		letters:  make(map[string]letter.Letter),
	}
}

func (m *MemoryStore) userLock(userID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		m.locks[userID] = lock
	}
	return lock
}

func (m *MemoryStore) acquire(ctx context.Context, userID string) (chan struct{}, error) {
	lock := m.userLock(userID)
	select {
	case lock <- struct{}{}:
		return lock, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("dispute: lock user: %w", ctx.Err())
	}
}

func (m *MemoryStore) Begin(ctx context.Context, userID string) (Tx, error) {
	lock, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &memTx{
		store:    m,
		userID:   userID,
		lock:     lock,
		disputes: make(map[string]Record),
		letters:  make(map[string]letter.Letter),
	}, nil
}

func (m *MemoryStore) Get(_ context.Context, userID, disputeID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.disputes[disputeID]
	if !ok || rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, 8)
	for _, rec := range m.disputes {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Events(_ context.Context, userID, disputeID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.disputes[disputeID]; !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	out := make([]Event, 0, 8)
	for _, ev := range m.events {
		if ev.DisputeID == disputeID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetLetter(_ context.Context, userID, letterID string) (letter.Letter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.letters[letterID]
	if !ok || l.UserID != userID {
		return letter.Letter{}, letter.ErrNotFound
	}
	return l, nil
}

func (m *MemoryStore) ListLetters(_ context.Context, userID string) ([]letter.Letter, error) {
	m.mu.RLock()
	out := make([]letter.Letter, 0, 8)
	for _, l := range m.letters {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PurgeUser drops every dispute, letter and event the user owns.
func (m *MemoryStore) PurgeUser(ctx context.Context, userID string) error {
	lock, err := m.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer func() { <-lock }()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.disputes {
		if rec.UserID == userID {
			delete(m.disputes, id)
		}
	}
	for id, l := range m.letters {
		if l.UserID == userID {
			delete(m.letters, id)
		}
	}
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.UserID != userID {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	return nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

type memTx struct {
	store    *MemoryStore
	userID   string
	lock     chan struct{}
	done     bool
	disputes map[string]Record
	letters  map[string]letter.Letter
	events   []Event
}

func (t *memTx) lookup(disputeID string) (Record, bool) {
	if rec, ok := t.disputes[disputeID]; ok {
		return rec, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rec, ok := t.store.disputes[disputeID]
	return rec, ok
}

func (t *memTx) GetForUpdate(_ context.Context, disputeID string) (Record, error) {
	if t.done {
		return Record{}, errTxDone
	}
	rec, ok := t.lookup(disputeID)
	if !ok || rec.UserID != t.userID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (t *memTx) ListPair(_ context.Context, tradelineID string, bureau tradeline.Bureau) ([]Record, error) {
	if t.done {
		return nil, errTxDone
	}
	merged := make(map[string]Record)
	t.store.mu.RLock()
	for id, rec := range t.store.disputes {
		if rec.UserID == t.userID && rec.TradelineID == tradelineID && rec.Bureau == bureau {
			merged[id] = rec
		}
	}
	t.store.mu.RUnlock()
	for id, rec := range t.disputes {
		if rec.TradelineID == tradelineID && rec.Bureau == bureau {
			merged[id] = rec
		}
	}
	out := make([]Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (t *memTx) Insert(ctx context.Context, rec Record) error {
	if t.done {
		return errTxDone
	}
	if rec.UserID != t.userID {
		return fmt.Errorf("dispute: insert: record belongs to another user")
	}
	if _, exists := t.lookup(rec.ID); exists {
		return fmt.Errorf("dispute: insert: duplicate id %s", rec.ID)
	}
	pair, err := t.ListPair(ctx, rec.TradelineID, rec.Bureau)
	if err != nil {
		return err
	}
	for _, other := range pair {
		if other.Round == rec.Round {
			return fmt.Errorf("dispute: insert: round %d already exists", rec.Round)
		}
		if other.Status.Open() && rec.Status.Open() {
			return fmt.Errorf("dispute: insert: pair already has open dispute %s", other.ID)
		}
	}
	t.disputes[rec.ID] = rec
	return nil
}

func (t *memTx) Update(_ context.Context, rec Record) error {
	if t.done {
		return errTxDone
	}
	current, ok := t.lookup(rec.ID)
	if !ok || current.UserID != t.userID {
		return ErrNotFound
	}
	t.disputes[rec.ID] = rec
	return nil
}

func (t *memTx) GetLetter(_ context.Context, letterID string) (letter.Letter, error) {
	if t.done {
		return letter.Letter{}, errTxDone
	}
	if l, ok := t.letters[letterID]; ok {
		return l, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	l, ok := t.store.letters[letterID]
	if !ok || l.UserID != t.userID {
		return letter.Letter{}, letter.ErrNotFound
	}
	return l, nil
}

func (t *memTx) InsertLetter(_ context.Context, l letter.Letter) error {
	if t.done {
		return errTxDone
	}
	t.store.mu.RLock()
	_, exists := t.store.letters[l.ID]
	for _, other := range t.store.letters {
		if other.DisputeID == l.DisputeID {
			exists = true
		}
	}
	t.store.mu.RUnlock()
	for _, other := range t.letters {
		if other.DisputeID == l.DisputeID {
			exists = true
		}
	}
	if exists {
		return fmt.Errorf("dispute: insert letter: dispute %s already has a letter", l.DisputeID)
	}
	t.letters[l.ID] = l
	return nil
}

func (t *memTx) Append(_ context.Context, events ...Event) error {
	if t.done {
		return errTxDone
	}
	t.events = append(t.events, events...)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer func() { <-t.lock }()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range t.disputes {
		s.disputes[id] = rec
	}
	for id, l := range t.letters {
		s.letters[id] = l
	}
	for _, ev := range t.events {
		s.seq++
		ev.ID = strconv.FormatInt(s.seq, 10)
		s.events = append(s.events, ev)
	}
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.lock
	return nil
}
