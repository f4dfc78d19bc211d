// Package store persists transfer requests.
package store

import (
	"context"
	"slices"
	"strings"

	"unionregistry/internal/storage/memory"
	"unionregistry/internal/transfer/models"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
)

// InMemory keeps transfer requests in a memory.DB table.
type InMemory struct {
	db        *memory.DB
	transfers *memory.Map[id.TransferID, models.TransferRequest]
}

// NewInMemory registers the transfer table with db.
func NewInMemory(db *memory.DB) *InMemory {
	return &InMemory{
		db:        db,
		transfers: memory.NewMap[id.TransferID, models.TransferRequest](db),
	}
}

func (s *InMemory) Create(ctx context.Context, t *models.TransferRequest) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.transfers.Get(t.ID); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.transfers.Put(t.ID, *t)
	})
	return err
}

func (s *InMemory) FindByID(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	var (
		t  models.TransferRequest
		ok bool
	)
	s.db.View(ctx, func() {
		t, ok = s.transfers.Get(transferID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

// FindForUpdate reads the request inside the caller's transaction. memory.DB
// serialises transactions, so no row lock is needed.
func (s *InMemory) FindForUpdate(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	return s.FindByID(ctx, transferID)
}

func (s *InMemory) Update(ctx context.Context, t *models.TransferRequest) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.transfers.Get(t.ID); !ok {
			err = sentinel.ErrNotFound
			return
		}
		s.transfers.Put(t.ID, *t)
	})
	return err
}

// List returns matching requests, newest first.
func (s *InMemory) List(ctx context.Context, filter models.Filter) ([]*models.TransferRequest, error) {
	var out []*models.TransferRequest
	s.db.View(ctx, func() {
		s.transfers.Each(func(_ id.TransferID, t models.TransferRequest) bool {
			if filter.Matches(&t) {
				out = append(out, &t)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.TransferRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return out, nil
}
