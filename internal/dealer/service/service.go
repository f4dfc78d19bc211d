// Package service manages the dealer directory that employments, client links
// and transfers refer to.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"unionregistry/internal/dealer/metrics"
	"unionregistry/internal/dealer/models"
	"unionregistry/internal/storage"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/requestcontext"
)

// Store persists dealers.
type Store interface {
	Create(ctx context.Context, dealer *models.Dealer) error
	FindByID(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error)
	List(ctx context.Context) ([]*models.Dealer, error)
	Update(ctx context.Context, dealer *models.Dealer) error
	Count(ctx context.Context) (int, error)
}

// invalidator is implemented by caching stores.
type invalidator interface {
	Invalidate(ctx context.Context, dealerID id.DealerID)
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, actor string, action audit.Action, entityType audit.EntityType, entityID string, meta map[string]any) error
}

// Service owns dealer lifecycle.
type Service struct {
	tx      storage.Tx
	dealers Store
	audit   AuditRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(tx storage.Tx, dealers Store, recorder AuditRecorder, opts ...Option) *Service {
	s := &Service{tx: tx, dealers: dealers, audit: recorder, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDealer registers a new ACTIVE dealer and audits CREATE DEALER.
func (s *Service) CreateDealer(ctx context.Context, actor string, req *models.CreateDealerRequest) (*models.Dealer, error) {
	dealer, err := models.NewDealer(id.DealerID(uuid.New()), req.LegalName, req.OutletName, req.Location, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.dealers.Create(ctx, dealer); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "dealer already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create dealer")
		}
		return s.audit.Record(ctx, actor, audit.ActionCreate, audit.EntityDealer, dealer.ID.String(), map[string]any{
			"dealerName": dealer.LegalName,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dealer created",
		"dealer_id", dealer.ID.String(),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDealerCreated()
	}
	return dealer, nil
}

// GetDealer returns a dealer by id.
func (s *Service) GetDealer(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error) {
	dealer, err := s.dealers.FindByID(ctx, dealerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dealer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dealer")
	}
	return dealer, nil
}

// ListDealers returns every dealer ordered by display name.
func (s *Service) ListDealers(ctx context.Context) ([]*models.Dealer, error) {
	dealers, err := s.dealers.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dealers")
	}
	return dealers, nil
}

// CountDealers returns the number of registered dealers.
func (s *Service) CountDealers(ctx context.Context) (int, error) {
	n, err := s.dealers.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count dealers")
	}
	return n, nil
}

// SetStatus activates or deactivates a dealer and audits UPDATE DEALER.
func (s *Service) SetStatus(ctx context.Context, actor string, dealerID id.DealerID, status models.Status) (*models.Dealer, error) {
	var updated *models.Dealer
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		dealer, err := s.GetDealer(ctx, dealerID)
		if err != nil {
			return err
		}
		if err := dealer.CanTransitionTo(status); err != nil {
			return err
		}
		previous := dealer.Status
		dealer.ApplyStatus(status, requestcontext.Now(ctx))
		if err := s.dealers.Update(ctx, dealer); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update dealer")
		}
		if err := s.audit.Record(ctx, actor, audit.ActionUpdate, audit.EntityDealer, dealer.ID.String(), map[string]any{
			"from": string(previous),
			"to":   string(status),
		}); err != nil {
			return err
		}
		updated = dealer
		return nil
	})
	if err != nil {
		return nil, err
	}

	if inv, ok := s.dealers.(invalidator); ok {
		inv.Invalidate(ctx, dealerID)
	}
	s.logger.InfoContext(ctx, "dealer status changed",
		"dealer_id", dealerID.String(),
		"status", string(status),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(string(status))
	}
	return updated, nil
}

// DisplayName resolves the name shown in conflict payloads.
func (s *Service) DisplayName(ctx context.Context, dealerID id.DealerID) (string, error) {
	dealer, err := s.GetDealer(ctx, dealerID)
	if err != nil {
		return "", err
	}
	return dealer.DisplayName(), nil
}

// RequireActive returns the dealer if it exists and is ACTIVE.
func (s *Service) RequireActive(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error) {
	if dealerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "dealer id is required")
	}
	dealer, err := s.GetDealer(ctx, dealerID)
	if err != nil {
		return nil, err
	}
	if !dealer.IsActive() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "dealer is inactive")
	}
	return dealer, nil
}
