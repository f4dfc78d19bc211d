// Package store persists dealers.
package store

import (
	"context"
	"slices"
	"strings"

	"unionregistry/internal/dealer/models"
	"unionregistry/internal/storage/memory"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
)

// InMemory keeps dealers in a memory.DB table so writes roll back with the
// surrounding transaction.
type InMemory struct {
	db      *memory.DB
	dealers *memory.Map[id.DealerID, models.Dealer]
}

// NewInMemory registers the dealers table with db.
func NewInMemory(db *memory.DB) *InMemory {
	return &InMemory{db: db, dealers: memory.NewMap[id.DealerID, models.Dealer](db)}
}

func (s *InMemory) Create(ctx context.Context, dealer *models.Dealer) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.dealers.Get(dealer.ID); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.dealers.Put(dealer.ID, *dealer)
	})
	return err
}

func (s *InMemory) FindByID(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error) {
	var (
		dealer models.Dealer
		ok     bool
	)
	s.db.View(ctx, func() {
		dealer, ok = s.dealers.Get(dealerID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &dealer, nil
}

// List returns every dealer ordered by outlet name.
func (s *InMemory) List(ctx context.Context) ([]*models.Dealer, error) {
	var out []*models.Dealer
	s.db.View(ctx, func() {
		s.dealers.Each(func(_ id.DealerID, d models.Dealer) bool {
			out = append(out, &d)
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Dealer) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, dealer *models.Dealer) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.dealers.Get(dealer.ID); !ok {
			err = sentinel.ErrNotFound
			return
		}
		s.dealers.Put(dealer.ID, *dealer)
	})
	return err
}

func (s *InMemory) Count(ctx context.Context) (int, error) {
	var n int
	s.db.View(ctx, func() {
		n = s.dealers.Len()
	})
	return n, nil
}
