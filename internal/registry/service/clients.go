package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"unionregistry/internal/platform/tracing"
	"unionregistry/internal/registry/identity"
	"unionregistry/internal/registry/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/middleware/auth"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/requestcontext"
)

// OffboardReasonTransferred is recorded on a link closed by an approved transfer.
const OffboardReasonTransferred = "transferred"

type clientIdentity struct {
	key     string
	taxID   string
	govKey  string
	display string
}

func resolveClientIdentity(cmd models.RegisterClient) (clientIdentity, error) {
	switch cmd.Type {
	case models.ClientPrivate:
		taxID, err := identity.NormalizeTaxID(cmd.TaxID)
		if err != nil {
			return clientIdentity{}, err
		}
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return clientIdentity{}, dErrors.New(dErrors.CodeValidation, "client name is required")
		}
		return clientIdentity{key: taxID, taxID: taxID, display: name}, nil
	case models.ClientGovernment:
		key, err := identity.DeriveGovClientKey(cmd.OrgName, cmd.OfficeCode, cmd.Reference)
		if err != nil {
			return clientIdentity{}, err
		}
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			name = strings.TrimSpace(cmd.OrgName)
		}
		return clientIdentity{key: key, govKey: key, display: name}, nil
	default:
		return clientIdentity{}, dErrors.New(dErrors.CodeValidation, "client type must be PRIVATE or GOVERNMENT")
	}
}

// normalizeVehicles normalises registrations and drops repeats within one request.
func normalizeVehicles(in []models.VehicleInput) ([]models.VehicleInput, error) {
	out := make([]models.VehicleInput, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		reg, err := identity.NormalizeRegistration(v.Registration)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[reg]; dup {
			continue
		}
		seen[reg] = struct{}{}
		out = append(out, models.VehicleInput{
			Registration: reg,
			FuelType:     strings.ToUpper(strings.TrimSpace(v.FuelType)),
			Notes:        strings.TrimSpace(v.Notes),
		})
	}
	return out, nil
}

// RegisterClient onboards a client at cmd.DealerID, creating the client on
// first sight of its identity key and attaching any supplied vehicles.
//
// A client ACTIVE at another dealer yields a Conflict result and no writes.
// A client already ACTIVE at this dealer keeps its link (LinkReused).
// A vehicle registered to a different client fails the whole call with
// CodeDuplicateVehicle.
func (s *Service) RegisterClient(ctx context.Context, actor string, cmd models.RegisterClient) (result *models.ClientRegistration, err error) {
	ctx, span := tracer.Start(ctx, "registry.RegisterClient")
	defer func() { tracing.End(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ident, err := resolveClientIdentity(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.DealerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "dealer id is required")
	}
	vehicles, err := normalizeVehicles(cmd.Vehicles)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	onboardedOn := models.Day(now)
	if !cmd.OnboardedOn.IsZero() {
		onboardedOn = models.Day(cmd.OnboardedOn)
	}
	if onboardedOn.After(models.Day(now)) {
		return nil, dErrors.New(dErrors.CodeValidation, "onboarding date cannot be in the future")
	}
	span.SetAttributes(
		attribute.String("dealer_id", cmd.DealerID.String()),
		attribute.String("client_type", string(cmd.Type)),
	)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.dealers.RequireActive(ctx, cmd.DealerID); err != nil {
			return err
		}
		if err := s.tx.LockSubject(ctx, clientKeyLockKey(ident.key)); err != nil {
			return err
		}

		reg := &models.ClientRegistration{}
		client, err := s.store.FindClientByIdentity(ctx, cmd.Type, ident.key)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			client = newClient(cmd, ident, now)
			if err := s.store.CreateClient(ctx, client); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return dErrors.New(dErrors.CodeConflict, "client already exists")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create client")
			}
			reg.NewClient = true
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up client")
		}
		if err := s.tx.LockSubject(ctx, clientLockKey(client.ID)); err != nil {
			return err
		}

		if !reg.NewClient {
			active, err := s.store.FindActiveLinkByClient(ctx, client.ID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
			}
			if active != nil && active.DealerID != cmd.DealerID {
				conflict, err := s.clientConflict(ctx, active)
				if err != nil {
					return err
				}
				result = &models.ClientRegistration{Conflict: conflict}
				return nil
			}
			if active != nil {
				reg.Link = active
				reg.LinkReused = true
			}
		}
		if reg.Link == nil {
			link, err := s.createLink(ctx, client.ID, cmd.DealerID, onboardedOn, now)
			if err != nil {
				return err
			}
			reg.Link = link
		}

		attached, err := s.attachVehicles(ctx, client.ID, vehicles, now)
		if err != nil {
			return err
		}
		reg.Client = client
		reg.Vehicles = attached

		if err := s.audit.Record(ctx, actor, audit.ActionCreate, audit.EntityClient, client.ID.String(), map[string]any{
			"dealerId":    cmd.DealerID.String(),
			"clientType":  string(client.Type),
			"identityKey": ident.key,
			"newClient":   reg.NewClient,
			"linkReused":  reg.LinkReused,
			"vehicles":    len(attached),
		}); err != nil {
			return err
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Conflict != nil {
		s.logger.InfoContext(ctx, "client registration conflict",
			"dealer_id", cmd.DealerID.String(),
			"active_dealer_id", result.Conflict.DealerID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementConflict("client")
		}
		return result, nil
	}
	s.logger.InfoContext(ctx, "client registered",
		"client_id", result.Client.ID.String(),
		"dealer_id", cmd.DealerID.String(),
		"new_client", result.NewClient,
		"link_reused", result.LinkReused,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementClientRegistered()
	}
	return result, nil
}

func newClient(cmd models.RegisterClient, ident clientIdentity, now time.Time) *models.Client {
	c := &models.Client{
		ID:            id.ClientID(uuid.New()),
		Type:          cmd.Type,
		TaxID:         ident.taxID,
		GovClientKey:  ident.govKey,
		Name:          ident.display,
		ContactPerson: strings.TrimSpace(cmd.Contact.ContactPerson),
		Mobile:        strings.TrimSpace(cmd.Contact.Mobile),
		Email:         strings.TrimSpace(cmd.Contact.Email),
		Address:       strings.TrimSpace(cmd.Contact.Address),
		GSTIN:         strings.ToUpper(strings.TrimSpace(cmd.Contact.GSTIN)),
		CreatedAt:     now,
	}
	if cmd.Type == models.ClientGovernment {
		c.OrgName = strings.TrimSpace(cmd.OrgName)
		c.OfficeCode = strings.TrimSpace(cmd.OfficeCode)
		c.Reference = strings.TrimSpace(cmd.Reference)
	}
	return c
}

func (s *Service) clientConflict(ctx context.Context, active *models.Link) (*models.Conflict, error) {
	name, err := s.dealerName(ctx, active.DealerID)
	if err != nil {
		return nil, err
	}
	return &models.Conflict{
		Code:       models.ConflictClientActiveElsewhere,
		Message:    "Client is already active with " + name,
		DealerID:   active.DealerID,
		DealerName: name,
		Since:      active.OnboardedOn,
	}, nil
}

func (s *Service) createLink(ctx context.Context, clientID id.ClientID, dealerID id.DealerID, on, now time.Time) (*models.Link, error) {
	link := &models.Link{
		ID:          id.LinkID(uuid.New()),
		ClientID:    clientID,
		DealerID:    dealerID,
		Status:      models.StatusActive,
		OnboardedOn: models.Day(on),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "client already has an active dealer link")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create client link")
	}
	return link, nil
}

// attachVehicles creates the vehicles a client does not already own. A
// registration owned by another client fails with CodeDuplicateVehicle.
func (s *Service) attachVehicles(ctx context.Context, clientID id.ClientID, in []models.VehicleInput, now time.Time) ([]*models.Vehicle, error) {
	out := make([]*models.Vehicle, 0, len(in))
	for _, v := range in {
		existing, err := s.store.FindVehicleByRegistration(ctx, v.Registration)
		switch {
		case err == nil && existing.ClientID == clientID:
			out = append(out, existing)
			continue
		case err == nil:
			return nil, duplicateVehicle(v.Registration)
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up vehicle")
		}
		vehicle := &models.Vehicle{
			ID:           id.VehicleID(uuid.New()),
			ClientID:     clientID,
			Registration: v.Registration,
			FuelType:     v.FuelType,
			Notes:        v.Notes,
			CreatedAt:    now,
		}
		if err := s.store.CreateVehicle(ctx, vehicle); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, duplicateVehicle(v.Registration)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create vehicle")
		}
		out = append(out, vehicle)
	}
	return out, nil
}

func duplicateVehicle(registration string) error {
	return dErrors.New(dErrors.CodeDuplicateVehicle, "vehicle "+registration+" is registered to another client")
}

// AddVehicle attaches one vehicle to an existing client. The client must be
// ACTIVE at a dealer the caller may act for.
func (s *Service) AddVehicle(ctx context.Context, actor string, clientID id.ClientID, input models.VehicleInput) (*models.Vehicle, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	normalized, err := normalizeVehicles([]models.VehicleInput{input})
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var vehicle *models.Vehicle
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockSubject(ctx, clientLockKey(clientID)); err != nil {
			return err
		}
		if _, err := s.store.FindClientByID(ctx, clientID); err != nil {
			return translate(err, "client not found", "failed to load client")
		}
		link, err := s.store.FindActiveLinkByClient(ctx, clientID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInvalidState, "client is not active at any dealer")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
		}
		if err := auth.CanActFor(ctx, link.DealerID); err != nil {
			return err
		}
		existing, err := s.store.FindVehicleByRegistration(ctx, normalized[0].Registration)
		if err == nil {
			if existing.ClientID == clientID {
				return dErrors.New(dErrors.CodeConflict, "vehicle is already registered to this client")
			}
			return duplicateVehicle(existing.Registration)
		}
		attached, err := s.attachVehicles(ctx, clientID, normalized, now)
		if err != nil {
			return err
		}
		vehicle = attached[0]
		return s.audit.Record(ctx, actor, audit.ActionAddVehicle, audit.EntityClient, clientID.String(), map[string]any{
			"registration": vehicle.Registration,
			"vehicleId":    vehicle.ID.String(),
			"dealerId":     link.DealerID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "vehicle added",
		"client_id", clientID.String(),
		"registration", vehicle.Registration,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	return vehicle, nil
}

// OffboardClient closes the client's ACTIVE dealer link.
func (s *Service) OffboardClient(ctx context.Context, actor string, cmd models.OffboardClient) (*models.Link, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "offboarding reason is required")
	}
	on := cmd.Date
	if on.IsZero() {
		on = requestcontext.Now(ctx)
	}

	var link *models.Link
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.FindClientByID(ctx, cmd.ClientID); err != nil {
			return translate(err, "client not found", "failed to load client")
		}
		if err := s.tx.LockSubject(ctx, clientLockKey(cmd.ClientID)); err != nil {
			return err
		}
		active, err := s.store.FindActiveLinkByClient(ctx, cmd.ClientID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInvalidState, "client has no active dealer link")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
		}
		if err := auth.CanActFor(ctx, active.DealerID); err != nil {
			return err
		}
		link, err = s.DeactivateActiveLink(ctx, cmd.ClientID, active.DealerID, reason, on)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, audit.ActionOffboard, audit.EntityClient, cmd.ClientID.String(), map[string]any{
			"dealerId":      link.DealerID.String(),
			"linkId":        link.ID.String(),
			"offboardingOn": models.Day(on).Format(time.DateOnly),
			"reason":        reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "client offboarded",
		"client_id", cmd.ClientID.String(),
		"dealer_id", link.DealerID.String(),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	return link, nil
}

// DeactivateActiveLink closes the client's ACTIVE link. When expectedDealerID
// is set the link must belong to that dealer, otherwise CodeInvalidState.
// It must run inside the caller's transaction and writes no audit entry.
func (s *Service) DeactivateActiveLink(ctx context.Context, clientID id.ClientID, expectedDealerID id.DealerID, reason string, at time.Time) (*models.Link, error) {
	if err := s.tx.LockSubject(ctx, clientLockKey(clientID)); err != nil {
		return nil, err
	}
	link, err := s.store.FindActiveLinkByClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "client has no active dealer link")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
	}
	if !expectedDealerID.IsNil() && link.DealerID != expectedDealerID {
		return nil, dErrors.New(dErrors.CodeInvalidState, "client is no longer active at the source dealer")
	}
	if err := link.CanDeactivate(at); err != nil {
		return nil, err
	}
	link.ApplyDeactivation(at, reason, requestcontext.Now(ctx))
	if err := s.store.UpdateLink(ctx, link); err != nil {
		return nil, translate(err, "client link not found", "failed to deactivate client link")
	}
	return link, nil
}

// ActivateLink opens a new ACTIVE link for a client that has none. It must run
// inside the caller's transaction and writes no audit entry.
func (s *Service) ActivateLink(ctx context.Context, clientID id.ClientID, dealerID id.DealerID, at time.Time) (*models.Link, error) {
	if err := s.tx.LockSubject(ctx, clientLockKey(clientID)); err != nil {
		return nil, err
	}
	if _, err := s.dealers.RequireActive(ctx, dealerID); err != nil {
		return nil, err
	}
	if active, err := s.store.FindActiveLinkByClient(ctx, clientID); err == nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "client is already active at dealer "+active.DealerID.String())
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
	}
	return s.createLink(ctx, clientID, dealerID, at, requestcontext.Now(ctx))
}

// ActiveLink returns the client's ACTIVE link, or CodeNotFound.
func (s *Service) ActiveLink(ctx context.Context, clientID id.ClientID) (*models.Link, error) {
	link, err := s.store.FindActiveLinkByClient(ctx, clientID)
	if err != nil {
		return nil, translate(err, "client has no active dealer link", "failed to look up active link")
	}
	return link, nil
}

// GetClient returns a client, or CodeNotFound.
func (s *Service) GetClient(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	client, err := s.store.FindClientByID(ctx, clientID)
	if err != nil {
		return nil, translate(err, "client not found", "failed to load client")
	}
	return client, nil
}

// ClientDetails returns a client with its vehicles and current dealer.
func (s *Service) ClientDetails(ctx context.Context, clientID id.ClientID) (*models.ClientRecord, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.clientRecord(ctx, client)
}

func (s *Service) clientRecord(ctx context.Context, client *models.Client) (*models.ClientRecord, error) {
	vehicles, err := s.store.ListVehiclesByClient(ctx, client.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vehicles")
	}
	record := &models.ClientRecord{Client: client, Vehicles: vehicles}
	link, err := s.store.FindActiveLinkByClient(ctx, client.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return record, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active link")
	}
	name, err := s.dealerName(ctx, link.DealerID)
	if err != nil {
		return nil, err
	}
	record.ActiveLink = &models.LinkView{Link: link, DealerName: name}
	return record, nil
}

// ListClients returns the ACTIVE clients of a dealer, or of every dealer
// when dealerID is nil.
func (s *Service) ListClients(ctx context.Context, dealerID id.DealerID) ([]*models.ClientListing, error) {
	links, err := s.store.ListActiveLinks(ctx, dealerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list client links")
	}
	out := make([]*models.ClientListing, 0, len(links))
	for _, l := range links {
		client, err := s.store.FindClientByID(ctx, l.ClientID)
		if err != nil {
			return nil, translate(err, "client not found", "failed to load client")
		}
		vehicles, err := s.store.ListVehiclesByClient(ctx, l.ClientID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vehicles")
		}
		out = append(out, &models.ClientListing{Client: client, Link: l, Vehicles: vehicles})
	}
	return out, nil
}
