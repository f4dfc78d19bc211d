package models

import (
	"strings"
	"time"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
)

const maxReasonLength = 500

// Status is the lifecycle state of a transfer request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusCanceled Status = "CANCELED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCanceled
}

// TransferRequest proposes moving a client's active link from one dealer to another.
//
// Invariants:
//   - FromDealerID != ToDealerID
//   - DecidedAt and DecidedBy are set iff Status is terminal
//   - a terminal status never changes
type TransferRequest struct {
	ID           id.TransferID `json:"id"`
	ClientID     id.ClientID   `json:"client_id"`
	FromDealerID id.DealerID   `json:"from_dealer_id"`
	ToDealerID   id.DealerID   `json:"to_dealer_id"`
	Status       Status        `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	RequestedBy  string        `json:"requested_by"`
	DecidedBy    string        `json:"decided_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
}

// NewTransferRequest validates the input and builds a PENDING request.
func NewTransferRequest(transferID id.TransferID, cmd RequestTransfer, actor string, now time.Time) (*TransferRequest, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &TransferRequest{
		ID:           transferID,
		ClientID:     cmd.ClientID,
		FromDealerID: cmd.FromDealerID,
		ToDealerID:   cmd.ToDealerID,
		Status:       StatusPending,
		Reason:       strings.TrimSpace(cmd.Reason),
		RequestedBy:  actor,
		CreatedAt:    now,
	}, nil
}

func (t *TransferRequest) IsPending() bool {
	return t.Status == StatusPending
}

// CanDecide checks that the request is still PENDING.
func (t *TransferRequest) CanDecide() error {
	if !t.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "transfer request is already "+strings.ToLower(string(t.Status)))
	}
	return nil
}

// ApplyApproval marks the request APPROVED. Call CanDecide first.
func (t *TransferRequest) ApplyApproval(actor string, now time.Time) {
	t.decide(StatusApproved, actor, now)
}

// ApplyRejection marks the request REJECTED. Call CanDecide first.
func (t *TransferRequest) ApplyRejection(actor string, now time.Time) {
	t.decide(StatusRejected, actor, now)
}

// ApplyCancellation marks the request CANCELED. Call CanDecide first.
func (t *TransferRequest) ApplyCancellation(actor string, now time.Time) {
	t.decide(StatusCanceled, actor, now)
}

func (t *TransferRequest) decide(status Status, actor string, now time.Time) {
	t.Status = status
	t.DecidedBy = actor
	t.DecidedAt = &now
}

// RequestTransfer is the input of Service.RequestTransfer.
type RequestTransfer struct {
	ClientID     id.ClientID
	FromDealerID id.DealerID
	ToDealerID   id.DealerID
	Reason       string
}

func (c RequestTransfer) Validate() error {
	if c.ClientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if c.FromDealerID.IsNil() || c.ToDealerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "from and to dealer ids are required")
	}
	if c.FromDealerID == c.ToDealerID {
		return dErrors.New(dErrors.CodeValidation, "from and to dealers must differ")
	}
	if len(c.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be 500 characters or less")
	}
	return nil
}

// Filter narrows ListTransfers. Zero fields match everything; DealerID
// matches either side of the transfer.
type Filter struct {
	Status   Status
	DealerID id.DealerID
	ClientID id.ClientID
}

// Matches reports whether t satisfies every set field of f.
func (f Filter) Matches(t *TransferRequest) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.DealerID.IsNil() && t.FromDealerID != f.DealerID && t.ToDealerID != f.DealerID {
		return false
	}
	if !f.ClientID.IsNil() && t.ClientID != f.ClientID {
		return false
	}
	return true
}
