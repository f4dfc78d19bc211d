package models

import (
	"time"

	id "unionregistry/pkg/domain"
)

// ConflictCode identifies which exclusivity rule a registration ran into.
type ConflictCode string

const (
	ConflictEmployeeActiveElsewhere ConflictCode = "EMPLOYEE_ACTIVE_ELSEWHERE"
	ConflictClientActiveElsewhere   ConflictCode = "CLIENT_ACTIVE_ELSEWHERE"
)

// Conflict is a normal registration outcome, not a failure: the subject is
// already actively affiliated with another dealer.
type Conflict struct {
	Code       ConflictCode
	Message    string
	DealerID   id.DealerID
	DealerName string
	Since      time.Time
}

// SinceDate renders Since as an ISO date.
func (c *Conflict) SinceDate() string {
	return c.Since.Format(time.DateOnly)
}

// PersonDetails are the fields used when a national ID is seen for the first time.
type PersonDetails struct {
	Name        string
	Mobile      string
	Email       string
	Address     string
	DateOfBirth *time.Time
}

// RegisterEmployee is the input of Service.RegisterEmployee.
type RegisterEmployee struct {
	NationalID string
	DealerID   id.DealerID
	Person     PersonDetails
	// JoinDate defaults to the request date when zero.
	JoinDate time.Time
}

// EmployeeRegistration is the outcome of RegisterEmployee. When Conflict is
// set nothing was written and Person/Employment are nil.
type EmployeeRegistration struct {
	Person     *Person
	Employment *Employment
	Conflict   *Conflict
	// AlreadyActive reports a re-registration at the dealer the person
	// already works for; the existing employment is returned unchanged.
	AlreadyActive bool
}

// EndEmployment is the input of Service.EndEmployment.
type EndEmployment struct {
	EmploymentID   id.EmploymentID
	SeparationDate time.Time
	SeparationType SeparationType
	Remarks        string
}

// EndedEmployment is the outcome of EndEmployment.
type EndedEmployment struct {
	Employment *Employment
	Separation *SeparationEvent
}

// ClientContact holds the mutable contact fields of a client.
type ClientContact struct {
	ContactPerson string
	Mobile        string
	Email         string
	Address       string
	GSTIN         string
}

// VehicleInput describes a vehicle to attach to a client.
type VehicleInput struct {
	Registration string
	FuelType     string
	Notes        string
}

// RegisterClient is the input of Service.RegisterClient. PRIVATE clients
// need TaxID; GOVERNMENT clients need OrgName, OfficeCode and Reference
// (an official letter number or email).
type RegisterClient struct {
	Type       ClientType
	TaxID      string
	OrgName    string
	OfficeCode string
	Reference  string
	Name       string
	DealerID   id.DealerID
	Contact    ClientContact
	Vehicles   []VehicleInput
	// OnboardedOn defaults to the request date when zero.
	OnboardedOn time.Time
}

// ClientRegistration is the outcome of RegisterClient. When Conflict is set
// nothing was written.
type ClientRegistration struct {
	Client   *Client
	Link     *Link
	Vehicles []*Vehicle
	Conflict *Conflict
	// NewClient reports that no client with this identity existed before.
	NewClient bool
	// LinkReused reports that the client was already active at this dealer.
	LinkReused bool
}

// OffboardClient is the input of Service.OffboardClient.
type OffboardClient struct {
	ClientID id.ClientID
	Date     time.Time
	Reason   string
}
