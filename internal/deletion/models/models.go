// Package models defines user-initiated deletion requests and their status
// machine.
package models

import (
	"context"
	"time"

	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
)

type RequestType string

const (
	RequestTypeAccount RequestType = "account"
	RequestTypeData    RequestType = "data"
)

func ParseRequestType(s string) (RequestType, error) {
	switch RequestType(s) {
	case RequestTypeAccount, RequestTypeData:
		return RequestType(s), nil
	case "":
		return "", dErrors.New(dErrors.CodeValidation, "request_type is required")
	default:
		return "", dErrors.New(dErrors.CodeValidation, "request_type must be 'account' or 'data'")
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseDecision accepts the statuses an administrator may choose at review.
func ParseDecision(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusRejected:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "decision must be 'approved' or 'rejected'")
	}
}

// Request is a user's request to erase their account or their data.
//
// Invariants:
//   - a user has at most one pending request
//   - ReviewedAt and ReviewedBy are set once the request leaves pending
//   - CompletedAt is set only on completed requests
type Request struct {
	ID          id.DeletionRequestID `json:"id"`
	UserID      id.UserID            `json:"user_id"`
	RequestType RequestType          `json:"request_type"`
	Reason      *string              `json:"reason,omitempty"`
	Status      Status               `json:"status"`
	AdminNotes  *string              `json:"admin_notes,omitempty"`
	RequestedAt time.Time            `json:"requested_at"`
	ReviewedAt  *time.Time           `json:"reviewed_at,omitempty"`
	ReviewedBy  *id.UserID           `json:"reviewed_by,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

func NewRequest(requestID id.DeletionRequestID, userID id.UserID, requestType RequestType, reason *string, now time.Time) (*Request, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if requestType != RequestTypeAccount && requestType != RequestTypeData {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown request type")
	}
	return &Request{
		ID:          requestID,
		UserID:      userID,
		RequestType: requestType,
		Reason:      reason,
		Status:      StatusPending,
		RequestedAt: now,
	}, nil
}

func (r *Request) IsPending() bool {
	return r.Status == StatusPending
}

func (r *Request) CanReview() error {
	if !r.IsPending() {
		return dErrors.New(dErrors.CodeInvariantViolation, "deletion request is already "+string(r.Status))
	}
	return nil
}

func (r *Request) ApplyReview(decision Status, admin id.UserID, notes *string, now time.Time) {
	r.Status = decision
	r.AdminNotes = notes
	r.ReviewedAt = &now
	r.ReviewedBy = &admin
}

func (r *Request) CanComplete() error {
	if !r.Status.CanTransitionTo(StatusCompleted) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only approved requests can be completed")
	}
	return nil
}

func (r *Request) ApplyCompletion(now time.Time) {
	r.Status = StatusCompleted
	r.CompletedAt = &now
}

// ApprovalHook runs after an account deletion request is approved. It is
// where an actual account purge would be plugged in; none ships by default.
type ApprovalHook interface {
	AccountDeletionApproved(ctx context.Context, req *Request) error
}
