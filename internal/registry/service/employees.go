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

// RegisterEmployee employs the person identified by cmd.NationalID at
// cmd.DealerID, creating the person on first sight.
//
// If the person is ACTIVE at another dealer the result carries a Conflict and
// nothing is written. If the person is already ACTIVE at the same dealer the
// existing employment is returned with AlreadyActive set, also without writes.
func (s *Service) RegisterEmployee(ctx context.Context, actor string, cmd models.RegisterEmployee) (result *models.EmployeeRegistration, err error) {
	ctx, span := tracer.Start(ctx, "registry.RegisterEmployee")
	defer func() { tracing.End(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	nationalID, err := identity.NormalizeNationalID(cmd.NationalID)
	if err != nil {
		return nil, err
	}
	if cmd.DealerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "dealer id is required")
	}
	now := requestcontext.Now(ctx)
	joinDate := models.Day(now)
	if !cmd.JoinDate.IsZero() {
		joinDate = models.Day(cmd.JoinDate)
	}
	span.SetAttributes(attribute.String("dealer_id", cmd.DealerID.String()))

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.dealers.RequireActive(ctx, cmd.DealerID); err != nil {
			return err
		}
		if err := s.tx.LockSubject(ctx, personLockKey(nationalID)); err != nil {
			return err
		}

		person, err := s.store.FindPersonByNationalID(ctx, nationalID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			person, err = s.createPerson(ctx, nationalID, cmd.Person, now)
			if err != nil {
				return err
			}
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up person")
		default:
			active, err := s.store.FindActiveEmploymentByPerson(ctx, person.ID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up active employment")
			}
			if active != nil {
				if active.DealerID == cmd.DealerID {
					result = &models.EmployeeRegistration{Person: person, Employment: active, AlreadyActive: true}
					return nil
				}
				conflict, err := s.employeeConflict(ctx, active)
				if err != nil {
					return err
				}
				result = &models.EmployeeRegistration{Conflict: conflict}
				return nil
			}
		}

		employment := &models.Employment{
			ID:        id.EmploymentID(uuid.New()),
			PersonID:  person.ID,
			DealerID:  cmd.DealerID,
			JoinedOn:  joinDate,
			Status:    models.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateEmployment(ctx, employment); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "person already has an active employment")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create employment")
		}
		if err := s.audit.Record(ctx, actor, audit.ActionCreate, audit.EntityEmployment, employment.ID.String(), map[string]any{
			"personId": person.ID.String(),
			"dealerId": cmd.DealerID.String(),
			"joinDate": joinDate.Format("2006-01-02"),
		}); err != nil {
			return err
		}
		result = &models.EmployeeRegistration{Person: person, Employment: employment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.Conflict != nil:
		s.logger.InfoContext(ctx, "employee registration conflict",
			"dealer_id", cmd.DealerID.String(),
			"active_dealer_id", result.Conflict.DealerID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementConflict("employee")
		}
	case result.AlreadyActive:
		s.logger.InfoContext(ctx, "employee already active at dealer",
			"employment_id", result.Employment.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	default:
		s.logger.InfoContext(ctx, "employee registered",
			"employment_id", result.Employment.ID.String(),
			"person_id", result.Person.ID.String(),
			"dealer_id", cmd.DealerID.String(),
			"actor", actor,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementEmployeeRegistered()
		}
	}
	return result, nil
}

func (s *Service) createPerson(ctx context.Context, nationalID string, details models.PersonDetails, now time.Time) (*models.Person, error) {
	name := strings.TrimSpace(details.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required for a new person")
	}
	person := &models.Person{
		ID:         id.PersonID(uuid.New()),
		NationalID: nationalID,
		Name:       name,
		Mobile:     strings.TrimSpace(details.Mobile),
		Email:      strings.TrimSpace(details.Email),
		Address:    strings.TrimSpace(details.Address),
		CreatedAt:  now,
	}
	if details.DateOfBirth != nil {
		dob := models.Day(*details.DateOfBirth)
		person.DateOfBirth = &dob
	}
	if err := s.store.CreatePerson(ctx, person); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "person already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create person")
	}
	return person, nil
}

func (s *Service) employeeConflict(ctx context.Context, active *models.Employment) (*models.Conflict, error) {
	name, err := s.dealerName(ctx, active.DealerID)
	if err != nil {
		return nil, err
	}
	return &models.Conflict{
		Code:       models.ConflictEmployeeActiveElsewhere,
		Message:    "Employee is already active with " + name,
		DealerID:   active.DealerID,
		DealerName: name,
		Since:      active.JoinedOn,
	}, nil
}

// EndEmployment moves an ACTIVE employment to INACTIVE and records its single
// SeparationEvent. Ending an already INACTIVE employment fails with
// CodeInvalidState and writes nothing.
func (s *Service) EndEmployment(ctx context.Context, actor string, cmd models.EndEmployment) (result *models.EndedEmployment, err error) {
	ctx, span := tracer.Start(ctx, "registry.EndEmployment")
	defer func() { tracing.End(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !cmd.SeparationType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "separation type must be one of RESIGNED, PERFORMANCE, CONDUCT, REDUNDANCY, OTHER")
	}
	if cmd.SeparationDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "separation date is required")
	}
	now := requestcontext.Now(ctx)
	separatedOn := models.Day(cmd.SeparationDate)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		employment, err := s.store.FindEmploymentByID(ctx, cmd.EmploymentID)
		if err != nil {
			return translate(err, "employment not found", "failed to load employment")
		}
		if err := auth.CanActFor(ctx, employment.DealerID); err != nil {
			return err
		}
		person, err := s.store.FindPersonByID(ctx, employment.PersonID)
		if err != nil {
			return translate(err, "person not found", "failed to load person")
		}
		if err := s.tx.LockSubject(ctx, personLockKey(person.NationalID)); err != nil {
			return err
		}
		// Re-read under the lock; a concurrent EndEmployment may have won.
		employment, err = s.store.FindEmploymentByID(ctx, cmd.EmploymentID)
		if err != nil {
			return translate(err, "employment not found", "failed to load employment")
		}
		if err := employment.CanEnd(separatedOn); err != nil {
			return err
		}
		employment.ApplyEnd(separatedOn, now)
		if err := s.store.UpdateEmployment(ctx, employment); err != nil {
			return translate(err, "employment not found", "failed to end employment")
		}

		separation := &models.SeparationEvent{
			ID:           id.SeparationID(uuid.New()),
			EmploymentID: employment.ID,
			SeparatedOn:  separatedOn,
			Type:         cmd.SeparationType,
			Remarks:      strings.TrimSpace(cmd.Remarks),
			RecordedBy:   actor,
			CreatedAt:    now,
		}
		if err := s.store.CreateSeparation(ctx, separation); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeInvalidState, "employment has already ended")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record separation")
		}
		if err := s.audit.Record(ctx, actor, audit.ActionEndEmployment, audit.EntityEmployment, employment.ID.String(), map[string]any{
			"separationDate": separatedOn.Format("2006-01-02"),
			"separationType": string(cmd.SeparationType),
			"dealerId":       employment.DealerID.String(),
		}); err != nil {
			return err
		}
		result = &models.EndedEmployment{Employment: employment, Separation: separation}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "employment ended",
		"employment_id", cmd.EmploymentID.String(),
		"separation_type", string(cmd.SeparationType),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementEmploymentEnded()
	}
	return result, nil
}

// PersonHistory returns a person with every employment, newest first.
func (s *Service) PersonHistory(ctx context.Context, personID id.PersonID) (*models.PersonRecord, error) {
	person, err := s.store.FindPersonByID(ctx, personID)
	if err != nil {
		return nil, translate(err, "person not found", "failed to load person")
	}
	return s.personRecord(ctx, person)
}

func (s *Service) personRecord(ctx context.Context, person *models.Person) (*models.PersonRecord, error) {
	employments, err := s.store.ListEmploymentsByPerson(ctx, person.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load employments")
	}
	record := &models.PersonRecord{Person: person, Employments: make([]models.EmploymentView, 0, len(employments))}
	for _, e := range employments {
		name, err := s.dealerName(ctx, e.DealerID)
		if err != nil {
			return nil, err
		}
		view := models.EmploymentView{Employment: e, DealerName: name}
		if !e.IsActive() {
			separation, err := s.store.FindSeparation(ctx, e.ID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load separation")
			}
			view.Separation = separation
		}
		record.Employments = append(record.Employments, view)
	}
	return record, nil
}

// ListEmployees returns the ACTIVE employees of a dealer, or of every dealer
// when dealerID is nil.
func (s *Service) ListEmployees(ctx context.Context, dealerID id.DealerID) ([]*models.EmployeeListing, error) {
	employments, err := s.store.ListActiveEmployments(ctx, dealerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list employments")
	}
	out := make([]*models.EmployeeListing, 0, len(employments))
	for _, e := range employments {
		person, err := s.store.FindPersonByID(ctx, e.PersonID)
		if err != nil {
			return nil, translate(err, "person not found", "failed to load person")
		}
		out = append(out, &models.EmployeeListing{Person: person, Employment: e})
	}
	return out, nil
}
