// Package domain holds typed identifiers shared across bounded contexts.
//
// Each ID is a distinct named type over uuid.UUID so a DealerID cannot be passed
// where a ClientID is expected. Parse functions are the trust boundary for IDs
// arriving from requests.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "unionregistry/pkg/domain-errors"
)

type (
	PersonID     uuid.UUID
	DealerID     uuid.UUID
	EmploymentID uuid.UUID
	SeparationID uuid.UUID
	ClientID     uuid.UUID
	LinkID       uuid.UUID
	VehicleID    uuid.UUID
	TransferID   uuid.UUID
	AuditEntryID uuid.UUID
	ProfileID    uuid.UUID
)

func (id PersonID) String() string     { return uuid.UUID(id).String() }
func (id DealerID) String() string     { return uuid.UUID(id).String() }
func (id EmploymentID) String() string { return uuid.UUID(id).String() }
func (id SeparationID) String() string { return uuid.UUID(id).String() }
func (id ClientID) String() string     { return uuid.UUID(id).String() }
func (id LinkID) String() string       { return uuid.UUID(id).String() }
func (id VehicleID) String() string    { return uuid.UUID(id).String() }
func (id TransferID) String() string   { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }
func (id ProfileID) String() string    { return uuid.UUID(id).String() }

func (id PersonID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DealerID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TransferID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s, "person id")
	return PersonID(u), err
}

func ParseDealerID(s string) (DealerID, error) {
	u, err := parseUUID(s, "dealer id")
	return DealerID(u), err
}

func ParseEmploymentID(s string) (EmploymentID, error) {
	u, err := parseUUID(s, "employment id")
	return EmploymentID(u), err
}

func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s, "client id")
	return ClientID(u), err
}

func ParseLinkID(s string) (LinkID, error) {
	u, err := parseUUID(s, "link id")
	return LinkID(u), err
}

func ParseTransferID(s string) (TransferID, error) {
	u, err := parseUUID(s, "transfer id")
	return TransferID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile id")
	return ProfileID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
