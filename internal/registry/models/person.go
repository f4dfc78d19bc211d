package models

import (
	"time"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
)

// Status is the state of an affiliation: an employment or a client-dealer link.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// SeparationType classifies why an employment ended.
type SeparationType string

const (
	SeparationResigned    SeparationType = "RESIGNED"
	SeparationPerformance SeparationType = "PERFORMANCE"
	SeparationConduct     SeparationType = "CONDUCT"
	SeparationRedundancy  SeparationType = "REDUNDANCY"
	SeparationOther       SeparationType = "OTHER"
)

func (t SeparationType) IsValid() bool {
	switch t {
	case SeparationResigned, SeparationPerformance, SeparationConduct, SeparationRedundancy, SeparationOther:
		return true
	}
	return false
}

// Person is identified by a normalised national ID. Identity fields never
// change after creation and persons are never deleted.
type Person struct {
	ID          id.PersonID `json:"id"`
	NationalID  string      `json:"national_id"`
	Name        string      `json:"name"`
	Mobile      string      `json:"mobile,omitempty"`
	Email       string      `json:"email,omitempty"`
	Address     string      `json:"address,omitempty"`
	DateOfBirth *time.Time  `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Employment links a person to a dealer for a span of time.
//
// Invariants:
//   - at most one ACTIVE employment per person (enforced by the store)
//   - EndedOn is set iff Status is INACTIVE
//   - EndedOn is never before JoinedOn
type Employment struct {
	ID        id.EmploymentID `json:"id"`
	PersonID  id.PersonID     `json:"person_id"`
	DealerID  id.DealerID     `json:"dealer_id"`
	JoinedOn  time.Time       `json:"joined_on"`
	EndedOn   *time.Time      `json:"ended_on,omitempty"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (e *Employment) IsActive() bool {
	return e.Status == StatusActive
}

// CanEnd checks that the employment may be ended on the given date.
func (e *Employment) CanEnd(on time.Time) error {
	if !e.IsActive() {
		return dErrors.New(dErrors.CodeInvalidState, "employment has already ended")
	}
	if Day(on).Before(Day(e.JoinedOn)) {
		return dErrors.New(dErrors.CodeValidation, "separation date is before the joining date")
	}
	return nil
}

// ApplyEnd marks the employment INACTIVE. Call CanEnd first.
func (e *Employment) ApplyEnd(on, now time.Time) {
	ended := Day(on)
	e.EndedOn = &ended
	e.Status = StatusInactive
	e.UpdatedAt = now
}

// SeparationEvent is written exactly once, when an employment ends.
type SeparationEvent struct {
	ID           id.SeparationID `json:"id"`
	EmploymentID id.EmploymentID `json:"employment_id"`
	SeparatedOn  time.Time       `json:"separated_on"`
	Type         SeparationType  `json:"separation_type"`
	Remarks      string          `json:"remarks,omitempty"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Day truncates t to midnight UTC. Affiliation dates carry no time of day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO date (YYYY-MM-DD). An empty string yields the zero time.
func ParseDay(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, field+" must be a date in YYYY-MM-DD format")
	}
	return t, nil
}
