// Package service implements the affiliation registry: at most one ACTIVE
// employment per person and at most one ACTIVE dealer link per client.
//
// Every check-then-act sequence runs inside storage.Tx.RunInTx after taking a
// subject lock, and writes its audit entry in the same transaction, so either
// the mutation and its audit entry both persist or neither does.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	dealermodels "unionregistry/internal/dealer/models"
	"unionregistry/internal/registry/metrics"
	"unionregistry/internal/registry/models"
	"unionregistry/internal/storage"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/sentinel"
)

var tracer = otel.Tracer("unionregistry/internal/registry")

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	unknownDealerName  = "Unknown"
)

// PersonStore persists persons.
type PersonStore interface {
	CreatePerson(ctx context.Context, person *models.Person) error
	FindPersonByID(ctx context.Context, personID id.PersonID) (*models.Person, error)
	FindPersonByNationalID(ctx context.Context, nationalID string) (*models.Person, error)
	SearchPersons(ctx context.Context, criteria models.PersonCriteria, limit int) ([]*models.Person, error)
}

// EmploymentStore persists employments and their separation events.
type EmploymentStore interface {
	CreateEmployment(ctx context.Context, e *models.Employment) error
	FindEmploymentByID(ctx context.Context, employmentID id.EmploymentID) (*models.Employment, error)
	FindActiveEmploymentByPerson(ctx context.Context, personID id.PersonID) (*models.Employment, error)
	UpdateEmployment(ctx context.Context, e *models.Employment) error
	ListEmploymentsByPerson(ctx context.Context, personID id.PersonID) ([]*models.Employment, error)
	ListActiveEmployments(ctx context.Context, dealerID id.DealerID) ([]*models.Employment, error)
	CountActiveEmployments(ctx context.Context) (int, error)
	CreateSeparation(ctx context.Context, ev *models.SeparationEvent) error
	FindSeparation(ctx context.Context, employmentID id.EmploymentID) (*models.SeparationEvent, error)
}

// ClientStore persists clients and their vehicles.
type ClientStore interface {
	CreateClient(ctx context.Context, c *models.Client) error
	FindClientByID(ctx context.Context, clientID id.ClientID) (*models.Client, error)
	FindClientByIdentity(ctx context.Context, t models.ClientType, key string) (*models.Client, error)
	SearchClients(ctx context.Context, criteria models.ClientCriteria, limit int) ([]*models.Client, error)
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	FindVehicleByRegistration(ctx context.Context, registration string) (*models.Vehicle, error)
	ListVehiclesByClient(ctx context.Context, clientID id.ClientID) ([]*models.Vehicle, error)
	CountVehicles(ctx context.Context) (int, error)
}

// LinkStore persists client-dealer links.
type LinkStore interface {
	CreateLink(ctx context.Context, l *models.Link) error
	FindActiveLinkByClient(ctx context.Context, clientID id.ClientID) (*models.Link, error)
	UpdateLink(ctx context.Context, l *models.Link) error
	ListLinksByClient(ctx context.Context, clientID id.ClientID) ([]*models.Link, error)
	ListActiveLinks(ctx context.Context, dealerID id.DealerID) ([]*models.Link, error)
	CountActiveLinks(ctx context.Context) (int, error)
}

// Store is everything the registry persists.
type Store interface {
	PersonStore
	EmploymentStore
	ClientStore
	LinkStore
}

// DealerDirectory resolves dealers referenced by employments and links.
type DealerDirectory interface {
	RequireActive(ctx context.Context, dealerID id.DealerID) (*dealermodels.Dealer, error)
	DisplayName(ctx context.Context, dealerID id.DealerID) (string, error)
	CountDealers(ctx context.Context) (int, error)
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, actor string, action audit.Action, entityType audit.EntityType, entityID string, meta map[string]any) error
}

// Service is the affiliation registry.
type Service struct {
	tx      storage.Tx
	store   Store
	dealers DealerDirectory
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
func New(tx storage.Tx, store Store, dealers DealerDirectory, recorder AuditRecorder, opts ...Option) *Service {
	s := &Service{
		tx:      tx,
		store:   store,
		dealers: dealers,
		audit:   recorder,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func personLockKey(nationalID string) string { return "person:" + nationalID }
func clientKeyLockKey(key string) string     { return "client-key:" + key }
func clientLockKey(clientID id.ClientID) string {
	return "client:" + clientID.String()
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return dErrors.New(dErrors.CodeMissingActor, "actor is required")
	}
	return nil
}

// dealerName resolves a display name for conflict payloads and views. A
// dealer that no longer resolves is shown as "Unknown" rather than failing.
func (s *Service) dealerName(ctx context.Context, dealerID id.DealerID) (string, error) {
	name, err := s.dealers.DisplayName(ctx, dealerID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return unknownDealerName, nil
		}
		return "", err
	}
	return name, nil
}

// translate maps store sentinels to domain errors. Domain errors pass through.
func translate(err error, notFoundMsg, internalMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultSearchLimit
	case limit > maxSearchLimit:
		return maxSearchLimit
	}
	return limit
}
