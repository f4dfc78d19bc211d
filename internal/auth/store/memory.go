// Package store persists admin and dealer login accounts.
package store

import (
	"context"
	"slices"
	"strings"

	"unionregistry/internal/auth/models"
	"unionregistry/internal/storage/memory"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
)

// InMemory keeps accounts in a memory.DB table. Username and dealer
// uniqueness are checked under the table lock.
type InMemory struct {
	db       *memory.DB
	accounts *memory.Map[id.ProfileID, models.Account]
}

func NewInMemory(db *memory.DB) *InMemory {
	return &InMemory{db: db, accounts: memory.NewMap[id.ProfileID, models.Account](db)}
}

func (s *InMemory) Create(ctx context.Context, account *models.Account) error {
	var err error
	s.db.Update(ctx, func() {
		s.accounts.Each(func(_ id.ProfileID, a models.Account) bool {
			if a.ID == account.ID || a.Username == account.Username ||
				(account.IsDealer() && a.IsDealer() && a.DealerID == account.DealerID) {
				err = sentinel.ErrAlreadyUsed
				return false
			}
			return true
		})
		if err == nil {
			s.accounts.Put(account.ID, *account)
		}
	})
	return err
}

func (s *InMemory) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.findFirst(ctx, func(a models.Account) bool { return a.Username == username })
}

func (s *InMemory) FindByDealerID(ctx context.Context, dealerID id.DealerID) (*models.Account, error) {
	return s.findFirst(ctx, func(a models.Account) bool { return a.IsDealer() && a.DealerID == dealerID })
}

func (s *InMemory) findFirst(ctx context.Context, match func(models.Account) bool) (*models.Account, error) {
	var (
		found models.Account
		ok    bool
	)
	s.db.View(ctx, func() {
		s.accounts.Each(func(_ id.ProfileID, a models.Account) bool {
			if match(a) {
				found, ok = a, true
				return false
			}
			return true
		})
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &found, nil
}

func (s *InMemory) Update(ctx context.Context, account *models.Account) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.accounts.Get(account.ID); !ok {
			err = sentinel.ErrNotFound
			return
		}
		s.accounts.Put(account.ID, *account)
	})
	return err
}

// ListDealerProfiles returns dealer accounts ordered by username.
func (s *InMemory) ListDealerProfiles(ctx context.Context) ([]*models.Account, error) {
	var out []*models.Account
	s.db.View(ctx, func() {
		s.accounts.Each(func(_ id.ProfileID, a models.Account) bool {
			if a.IsDealer() {
				out = append(out, &a)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Account) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}
