package models

import (
	"time"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
)

// ClientType distinguishes how a client is identified.
type ClientType string

const (
	// ClientPrivate is keyed by its tax ID (PAN).
	ClientPrivate ClientType = "PRIVATE"
	// ClientGovernment is keyed by a key derived from organisation, office and reference.
	ClientGovernment ClientType = "GOVERNMENT"
)

func (t ClientType) IsValid() bool {
	return t == ClientPrivate || t == ClientGovernment
}

// Client is a fleet customer of one dealer at a time. Exactly one of TaxID and
// GovClientKey is set, matching Type.
type Client struct {
	ID            id.ClientID `json:"id"`
	Type          ClientType  `json:"client_type"`
	TaxID         string      `json:"tax_id,omitempty"`
	GovClientKey  string      `json:"gov_client_key,omitempty"`
	Name          string      `json:"name"`
	OrgName       string      `json:"org_name,omitempty"`
	OfficeCode    string      `json:"office_code,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	ContactPerson string      `json:"contact_person,omitempty"`
	Mobile        string      `json:"mobile,omitempty"`
	Email         string      `json:"email,omitempty"`
	Address       string      `json:"address,omitempty"`
	GSTIN         string      `json:"gstin,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// IdentityKey returns the unique key the client is looked up by.
func (c *Client) IdentityKey() string {
	if c.Type == ClientGovernment {
		return c.GovClientKey
	}
	return c.TaxID
}

// Vehicle belongs to exactly one client. Registration is unique system-wide.
type Vehicle struct {
	ID           id.VehicleID `json:"id"`
	ClientID     id.ClientID  `json:"client_id"`
	Registration string       `json:"registration"`
	FuelType     string       `json:"fuel_type,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Link ties a client to a dealer for a span of time.
//
// Invariants:
//   - at most one ACTIVE link per client (enforced by the store)
//   - OffboardedOn is set iff Status is INACTIVE
type Link struct {
	ID                id.LinkID   `json:"id"`
	ClientID          id.ClientID `json:"client_id"`
	DealerID          id.DealerID `json:"dealer_id"`
	Status            Status      `json:"status"`
	OnboardedOn       time.Time   `json:"onboarded_on"`
	OffboardedOn      *time.Time  `json:"offboarded_on,omitempty"`
	OffboardingReason string      `json:"offboarding_reason,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (l *Link) IsActive() bool {
	return l.Status == StatusActive
}

// CanDeactivate checks that the link may be closed on the given date.
func (l *Link) CanDeactivate(on time.Time) error {
	if !l.IsActive() {
		return dErrors.New(dErrors.CodeInvalidState, "client link is already inactive")
	}
	if Day(on).Before(Day(l.OnboardedOn)) {
		return dErrors.New(dErrors.CodeValidation, "offboarding date is before the onboarding date")
	}
	return nil
}

// ApplyDeactivation closes the link. Call CanDeactivate first.
func (l *Link) ApplyDeactivation(on time.Time, reason string, now time.Time) {
	off := Day(on)
	l.OffboardedOn = &off
	l.OffboardingReason = reason
	l.Status = StatusInactive
	l.UpdatedAt = now
}
