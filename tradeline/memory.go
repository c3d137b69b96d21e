package tradeline

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps tradelines in process. Used by tests and the
// --memory dev mode.
type MemoryRepository struct {
	mu     sync.RWMutex
	byUser map[string][]Tradeline
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUser: make(map[string][]Tradeline)}
}

type naturalKey struct {
	bureau     Bureau
	creditor   string
	itemType   ItemType
	reportedOn string
}

func keyOf(t Tradeline) naturalKey {
	return naturalKey{t.Bureau, t.Creditor, t.ItemType, t.ReportedOn.Format("2006-01-02")}
}

func (m *MemoryRepository) InsertBatch(_ context.Context, items []Tradeline) ([]Tradeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Tradeline, 0, len(items))
	for _, item := range items {
		existing := m.byUser[item.UserID]
		found := false
		for _, e := range existing {
			if keyOf(e) == keyOf(item) {
				out = append(out, e)
				found = true
				break
			}
		}
		if found {
			continue
		}
		m.byUser[item.UserID] = append(existing, item)
		out = append(out, item)
	}
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, userID, id string) (Tradeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.byUser[userID] {
		if t.ID == id {
			return t, nil
		}
	}
	return Tradeline{}, ErrNotFound
}

func (m *MemoryRepository) List(_ context.Context, userID string) ([]Tradeline, error) {
	m.mu.RLock()
	out := append([]Tradeline(nil), m.byUser[userID]...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReportedOn.Equal(out[j].ReportedOn) {
			return out[i].ReportedOn.After(out[j].ReportedOn)
		}
		if out[i].Creditor != out[j].Creditor {
			return out[i].Creditor < out[j].Creditor
		}
		return out[i].Bureau < out[j].Bureau
	})
	return out, nil
}

func (m *MemoryRepository) Purge(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.byUser[userID]))
	delete(m.byUser, userID)
	return n, nil
}
