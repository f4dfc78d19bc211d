package domain

import "github.com/google/uuid"

// Text marshalling keeps IDs as canonical UUID strings in JSON bodies and
// map keys rather than 16-element byte arrays.

func (id PersonID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PersonID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id DealerID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DealerID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id EmploymentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EmploymentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id SeparationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *SeparationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id ClientID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ClientID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id LinkID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *LinkID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id VehicleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *VehicleID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id TransferID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TransferID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AuditEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id ProfileID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ProfileID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
