// Package domain holds identifier and value types shared across bounded contexts.
package domain

import (
	"github.com/google/uuid"

	dErrors "vitalis/pkg/domain-errors"
)

// Typed identifiers keep a flag id from being passed where a user id is expected.
type (
	UserID            uuid.UUID
	PolicyID          uuid.UUID
	FlagID            uuid.UUID
	DeletionRequestID uuid.UUID
	AuditEntryID      uuid.UUID
)

func (id UserID) String() string            { return uuid.UUID(id).String() }
func (id PolicyID) String() string          { return uuid.UUID(id).String() }
func (id FlagID) String() string            { return uuid.UUID(id).String() }
func (id DeletionRequestID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id FlagID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id DeletionRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps ids as canonical UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)            { return uuid.UUID(id).MarshalText() }
func (id PolicyID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id FlagID) MarshalText() ([]byte, error)            { return uuid.UUID(id).MarshalText() }
func (id DeletionRequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error            { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PolicyID) UnmarshalText(b []byte) error          { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *FlagID) UnmarshalText(b []byte) error            { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeletionRequestID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseUserID parses external input into a UserID. Empty, malformed and nil
// UUIDs are rejected with CodeInvalidInput.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseUUID(s, "policy ID")
	return PolicyID(u), err
}

func ParseFlagID(s string) (FlagID, error) {
	u, err := parseUUID(s, "flag ID")
	return FlagID(u), err
}

func ParseDeletionRequestID(s string) (DeletionRequestID, error) {
	u, err := parseUUID(s, "deletion request ID")
	return DeletionRequestID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
