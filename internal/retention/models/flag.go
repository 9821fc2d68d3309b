package models

import (
	"time"

	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
)

// FlagAction is the disposition of a retention flag.
type FlagAction string

const (
	FlagActionPending  FlagAction = "pending"
	FlagActionDeleted  FlagAction = "deleted"
	FlagActionRetained FlagAction = "retained"
)

func (a FlagAction) IsValid() bool {
	return a == FlagActionPending || a == FlagActionDeleted || a == FlagActionRetained
}

// ParseDecision accepts the two values a reviewer may choose.
func ParseDecision(s string) (FlagAction, error) {
	switch FlagAction(s) {
	case FlagActionDeleted, FlagActionRetained:
		return FlagAction(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "decision must be 'deleted' or 'retained'")
	}
}

// Flag marks one record that outlived its retention window.
//
// Invariants:
//   - at most one pending flag exists per (DataType, RecordID)
//   - ReviewedAt and ReviewedBy are set if and only if ActionTaken is not pending
//   - a flag is reviewed once and never deleted
type Flag struct {
	ID          id.FlagID  `json:"id"`
	DataType    DataType   `json:"data_type"`
	RecordID    string     `json:"record_id"`
	UserID      id.UserID  `json:"user_id"`
	FlaggedAt   time.Time  `json:"flagged_at"`
	ActionTaken FlagAction `json:"action_taken"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy  *id.UserID `json:"reviewed_by,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

func NewPendingFlag(flagID id.FlagID, dataType DataType, recordID string, owner id.UserID, now time.Time) (*Flag, error) {
	if recordID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record id is required")
	}
	return &Flag{
		ID:          flagID,
		DataType:    dataType,
		RecordID:    recordID,
		UserID:      owner,
		FlaggedAt:   now,
		ActionTaken: FlagActionPending,
	}, nil
}

func (f *Flag) IsPending() bool {
	return f.ActionTaken == FlagActionPending
}

// CanReview checks the flag is still awaiting a decision.
func (f *Flag) CanReview() error {
	if !f.IsPending() {
		return dErrors.New(dErrors.CodeInvariantViolation, "flag has already been reviewed")
	}
	return nil
}

// ApplyReview records the decision. Call CanReview first.
func (f *Flag) ApplyReview(decision FlagAction, reviewer id.UserID, notes *string, now time.Time) {
	f.ActionTaken = decision
	f.ReviewedAt = &now
	f.ReviewedBy = &reviewer
	f.Notes = notes
}

// ReviewOutcome is a reviewed flag plus what happened to the flagged record.
type ReviewOutcome struct {
	*Flag
	RecordPurged bool `json:"record_purged"`
	// RecordKept explains why a "deleted" decision left the record in place.
	RecordKept string `json:"record_kept,omitempty"`
}
