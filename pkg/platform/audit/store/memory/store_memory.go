package memory

import (
	"context"
	"sort"
	"sync/atomic"

	"unionregistry/internal/storage/memory"
	audit "unionregistry/pkg/platform/audit"
)

type row struct {
	seq   int64
	entry audit.Entry
}

// InMemoryStore keeps audit entries in a memory.DB table so they roll back
// together with the mutation they describe.
type InMemoryStore struct {
	db   *memory.DB
	rows *memory.Map[int64, row]
	seq  atomic.Int64
}

func NewInMemoryStore(db *memory.DB) *InMemoryStore {
	return &InMemoryStore{db: db, rows: memory.NewMap[int64, row](db)}
}

func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	seq := s.seq.Add(1)
	s.db.Update(ctx, func() {
		s.rows.Put(seq, row{seq: seq, entry: entry})
	})
	return nil
}

// List returns matching entries, newest first. Entries with equal timestamps
// keep reverse insertion order.
func (s *InMemoryStore) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var matched []row
	s.db.View(ctx, func() {
		s.rows.Each(func(_ int64, r row) bool {
			if filter.Matches(r.entry) {
				matched = append(matched, r)
			}
			return true
		})
	})

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].entry.CreatedAt.Equal(matched[j].entry.CreatedAt) {
			return matched[i].entry.CreatedAt.After(matched[j].entry.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]audit.Entry, len(matched))
	for i, r := range matched {
		out[i] = r.entry
	}
	return out, nil
}
