package models

import (
	"strings"
	"time"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
)

const maxNameLength = 200

// Status is the lifecycle state of a dealer outlet.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// CanTransitionTo reports whether s may move to target. Only active ↔ inactive is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	return s.IsValid() && target.IsValid() && s != target
}

// Dealer is a member outlet of the association.
//
// Invariants:
//   - LegalName and OutletName are non-empty
//   - Status is ACTIVE or INACTIVE
//   - CreatedAt is immutable after construction
//
// Inactive dealers keep their history but cannot take on new employees,
// clients or incoming transfers.
type Dealer struct {
	ID         id.DealerID `json:"id"`
	LegalName  string      `json:"legal_name"`
	OutletName string      `json:"outlet_name"`
	Location   string      `json:"location"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewDealer validates and builds an ACTIVE dealer.
func NewDealer(dealerID id.DealerID, legalName, outletName, location string, now time.Time) (*Dealer, error) {
	legalName = strings.TrimSpace(legalName)
	outletName = strings.TrimSpace(outletName)
	if legalName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "legal name is required")
	}
	if outletName == "" {
		outletName = legalName
	}
	if len(legalName) > maxNameLength || len(outletName) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "dealer names must be 200 characters or less")
	}
	return &Dealer{
		ID:         dealerID,
		LegalName:  legalName,
		OutletName: outletName,
		Location:   strings.TrimSpace(location),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// DisplayName is the name shown in conflict messages and dashboards.
func (d *Dealer) DisplayName() string {
	if d.OutletName != "" {
		return d.OutletName
	}
	return d.LegalName
}

func (d *Dealer) IsActive() bool {
	return d.Status == StatusActive
}

// CanTransitionTo returns an error if the dealer cannot move to target.
func (d *Dealer) CanTransitionTo(target Status) error {
	if !target.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be ACTIVE or INACTIVE")
	}
	if !d.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidState, "dealer is already "+strings.ToLower(string(target)))
	}
	return nil
}

// ApplyStatus sets the status. Call CanTransitionTo first.
func (d *Dealer) ApplyStatus(target Status, now time.Time) {
	d.Status = target
	d.UpdatedAt = now
}

// CreateDealerRequest is the admin payload for a new dealer.
type CreateDealerRequest struct {
	LegalName  string `json:"legal_name"`
	OutletName string `json:"outlet_name"`
	Location   string `json:"location"`
}

// Validate implements httputil.Validatable.
func (r *CreateDealerRequest) Validate() error {
	if strings.TrimSpace(r.LegalName) == "" {
		return dErrors.New(dErrors.CodeValidation, "legal_name is required")
	}
	return nil
}

// UpdateDealerRequest changes a dealer's status.
type UpdateDealerRequest struct {
	Status Status `json:"status"`
}

func (r *UpdateDealerRequest) Validate() error {
	r.Status = Status(strings.ToUpper(strings.TrimSpace(string(r.Status))))
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be ACTIVE or INACTIVE")
	}
	return nil
}
