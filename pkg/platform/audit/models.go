// Package audit defines the append-only audit trail written by every
// state-changing registry operation.
package audit

import (
	"context"
	"time"

	id "unionregistry/pkg/domain"
)

// Action is the verb recorded for an audited change.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionUpdate        Action = "UPDATE"
	ActionEndEmployment Action = "END_EMPLOYMENT"
	ActionApprove       Action = "APPROVE"
	ActionReject        Action = "REJECT"
	ActionCancel        Action = "CANCEL"
	ActionAddVehicle    Action = "ADD_VEHICLE"
	ActionOffboard      Action = "OFFBOARD"
	ActionResetPassword Action = "RESET_PASSWORD"
)

// EntityType names the kind of entity an entry refers to.
type EntityType string

const (
	EntityEmployment    EntityType = "EMPLOYMENT"
	EntityClient        EntityType = "CLIENT"
	EntityTransfer      EntityType = "TRANSFER"
	EntityDealer        EntityType = "DEALER"
	EntityDealerProfile EntityType = "DEALER_PROFILE"
	EntityAccount       EntityType = "ACCOUNT"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         id.AuditEntryID
	Actor      string
	Action     Action
	EntityType EntityType
	EntityID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	EntityType EntityType
	EntityID   string
	Actor      string
	Limit      int
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e Entry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}

// Store persists entries. Append must join the transaction carried by ctx so
// an entry commits or rolls back with the mutation it describes.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// List returns matching entries, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}
