// Package service implements the transfer workflow that moves a client's
// ACTIVE dealer link from one dealer to another.
//
// A request starts PENDING and is decided exactly once: APPROVED, REJECTED or
// CANCELED. Approval closes the old link and opens the new one through the
// registry's link primitives, in the same transaction as the status change
// and its audit entry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	dealermodels "unionregistry/internal/dealer/models"
	"unionregistry/internal/platform/tracing"
	regmodels "unionregistry/internal/registry/models"
	registry "unionregistry/internal/registry/service"
	"unionregistry/internal/storage"
	"unionregistry/internal/transfer/metrics"
	"unionregistry/internal/transfer/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/middleware/auth"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/requestcontext"
)

var tracer = otel.Tracer("unionregistry/internal/transfer")

// Store persists transfer requests.
type Store interface {
	Create(ctx context.Context, t *models.TransferRequest) error
	FindByID(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error)
	// FindForUpdate reads the request and holds it until the enclosing
	// transaction ends.
	FindForUpdate(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error)
	Update(ctx context.Context, t *models.TransferRequest) error
	List(ctx context.Context, filter models.Filter) ([]*models.TransferRequest, error)
}

// Registry is the subset of the affiliation registry that transfers drive.
type Registry interface {
	GetClient(ctx context.Context, clientID id.ClientID) (*regmodels.Client, error)
	ActiveLink(ctx context.Context, clientID id.ClientID) (*regmodels.Link, error)
	DeactivateActiveLink(ctx context.Context, clientID id.ClientID, expectedDealerID id.DealerID, reason string, at time.Time) (*regmodels.Link, error)
	ActivateLink(ctx context.Context, clientID id.ClientID, dealerID id.DealerID, at time.Time) (*regmodels.Link, error)
}

// DealerDirectory checks that a destination dealer can take on clients.
type DealerDirectory interface {
	RequireActive(ctx context.Context, dealerID id.DealerID) (*dealermodels.Dealer, error)
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, actor string, action audit.Action, entityType audit.EntityType, entityID string, meta map[string]any) error
}

// Service runs the transfer state machine.
type Service struct {
	tx        storage.Tx
	transfers Store
	registry  Registry
	dealers   DealerDirectory
	audit     AuditRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

func New(tx storage.Tx, transfers Store, registry Registry, dealers DealerDirectory, recorder AuditRecorder, opts ...Option) *Service {
	s := &Service{
		tx:        tx,
		transfers: transfers,
		registry:  registry,
		dealers:   dealers,
		audit:     recorder,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return dErrors.New(dErrors.CodeMissingActor, "actor is required")
	}
	return nil
}

// RequestTransfer creates a PENDING request and audits CREATE TRANSFER.
//
// The client must exist, the destination dealer must be ACTIVE, and
// FromDealerID must hold the client's current ACTIVE link. A dealer session
// may only request transfers into its own dealership.
func (s *Service) RequestTransfer(ctx context.Context, actor string, cmd models.RequestTransfer) (result *models.TransferRequest, err error) {
	ctx, span := tracer.Start(ctx, "transfer.RequestTransfer")
	defer func() { tracing.End(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	transfer, err := models.NewTransferRequest(id.TransferID(uuid.New()), cmd, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := auth.CanActFor(ctx, cmd.ToDealerID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("transfer.client_id", cmd.ClientID.String()))

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.registry.GetClient(ctx, cmd.ClientID); err != nil {
			return err
		}
		if _, err := s.dealers.RequireActive(ctx, cmd.ToDealerID); err != nil {
			return err
		}
		link, err := s.registry.ActiveLink(ctx, cmd.ClientID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.New(dErrors.CodeValidation, "client has no active dealer to transfer from")
			}
			return err
		}
		if link.DealerID != cmd.FromDealerID {
			return dErrors.New(dErrors.CodeValidation, "client is not active at the source dealer")
		}

		if err := s.transfers.Create(ctx, transfer); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "transfer request already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create transfer request")
		}
		return s.audit.Record(ctx, actor, audit.ActionCreate, audit.EntityTransfer, transfer.ID.String(), map[string]any{
			"clientId":     cmd.ClientID.String(),
			"fromDealerId": cmd.FromDealerID.String(),
			"toDealerId":   cmd.ToDealerID.String(),
			"reason":       transfer.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "transfer requested",
		"transfer_id", transfer.ID.String(),
		"client_id", cmd.ClientID.String(),
		"from_dealer_id", cmd.FromDealerID.String(),
		"to_dealer_id", cmd.ToDealerID.String(),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementRequested()
	}
	return transfer, nil
}

// ApproveTransfer moves the client's ACTIVE link to the destination dealer
// and audits APPROVE TRANSFER. If the source dealer no longer holds the link
// the call fails with CodeInvalidState and nothing changes.
func (s *Service) ApproveTransfer(ctx context.Context, actor string, transferID id.TransferID) (result *models.TransferRequest, err error) {
	ctx, span := tracer.Start(ctx, "transfer.ApproveTransfer")
	defer func() { tracing.End(span, err) }()

	return s.decide(ctx, actor, transferID, models.StatusApproved, func(ctx context.Context, t *models.TransferRequest) (map[string]any, error) {
		now := requestcontext.Now(ctx)
		closed, err := s.registry.DeactivateActiveLink(ctx, t.ClientID, t.FromDealerID, registry.OffboardReasonTransferred, now)
		if err != nil {
			return nil, err
		}
		opened, err := s.registry.ActivateLink(ctx, t.ClientID, t.ToDealerID, now)
		if err != nil {
			return nil, err
		}
		t.ApplyApproval(actor, now)
		return map[string]any{
			"clientId":     t.ClientID.String(),
			"fromDealerId": t.FromDealerID.String(),
			"toDealerId":   t.ToDealerID.String(),
			"closedLinkId": closed.ID.String(),
			"openedLinkId": opened.ID.String(),
		}, nil
	})
}

// RejectTransfer closes the request without touching any link and audits
// REJECT TRANSFER.
func (s *Service) RejectTransfer(ctx context.Context, actor string, transferID id.TransferID) (result *models.TransferRequest, err error) {
	ctx, span := tracer.Start(ctx, "transfer.RejectTransfer")
	defer func() { tracing.End(span, err) }()

	return s.decide(ctx, actor, transferID, models.StatusRejected, func(ctx context.Context, t *models.TransferRequest) (map[string]any, error) {
		t.ApplyRejection(actor, requestcontext.Now(ctx))
		return map[string]any{"clientId": t.ClientID.String()}, nil
	})
}

// CancelTransfer withdraws a PENDING request and audits CANCEL TRANSFER.
func (s *Service) CancelTransfer(ctx context.Context, actor string, transferID id.TransferID) (result *models.TransferRequest, err error) {
	ctx, span := tracer.Start(ctx, "transfer.CancelTransfer")
	defer func() { tracing.End(span, err) }()

	return s.decide(ctx, actor, transferID, models.StatusCanceled, func(ctx context.Context, t *models.TransferRequest) (map[string]any, error) {
		t.ApplyCancellation(actor, requestcontext.Now(ctx))
		return map[string]any{"clientId": t.ClientID.String()}, nil
	})
}

// decide runs one PENDING -> terminal transition. The request is read with
// FindForUpdate so concurrent decisions on it are serialised and all but the
// first see a terminal status.
func (s *Service) decide(
	ctx context.Context,
	actor string,
	transferID id.TransferID,
	outcome models.Status,
	apply func(ctx context.Context, t *models.TransferRequest) (map[string]any, error),
) (*models.TransferRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var result *models.TransferRequest
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		transfer, err := s.transfers.FindForUpdate(ctx, transferID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "transfer request not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transfer request")
		}
		if err := s.authorize(ctx, transfer, outcome); err != nil {
			return err
		}
		if err := transfer.CanDecide(); err != nil {
			return err
		}
		meta, err := apply(ctx, transfer)
		if err != nil {
			return err
		}
		if err := s.transfers.Update(ctx, transfer); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update transfer request")
		}
		if err := s.audit.Record(ctx, actor, decisionAction(outcome), audit.EntityTransfer, transfer.ID.String(), meta); err != nil {
			return err
		}
		result = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "transfer decided",
		"transfer_id", transferID.String(),
		"outcome", string(outcome),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDecision(strings.ToLower(string(outcome)))
	}
	return result, nil
}

// authorize limits dealer sessions: the source dealer approves or rejects,
// the destination dealer cancels its own request. Admin and operator
// callers are not limited.
func (s *Service) authorize(ctx context.Context, t *models.TransferRequest, outcome models.Status) error {
	if outcome == models.StatusCanceled {
		return auth.CanActFor(ctx, t.ToDealerID)
	}
	return auth.CanActFor(ctx, t.FromDealerID)
}

func decisionAction(outcome models.Status) audit.Action {
	switch outcome {
	case models.StatusApproved:
		return audit.ActionApprove
	case models.StatusRejected:
		return audit.ActionReject
	default:
		return audit.ActionCancel
	}
}

// GetTransfer returns one request.
func (s *Service) GetTransfer(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	t, err := s.transfers.FindByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transfer request")
	}
	return t, nil
}

// ListTransfers returns matching requests, newest first.
func (s *Service) ListTransfers(ctx context.Context, filter models.Filter) ([]*models.TransferRequest, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of PENDING, APPROVED, REJECTED, CANCELED")
	}
	transfers, err := s.transfers.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transfer requests")
	}
	return transfers, nil
}
