package audit

import (
	"time"

	id "vitalis/pkg/domain"
)

// Action is a tag from the fixed audit vocabulary.
type Action string

const (
	ActionRunRetentionCheck       Action = "RUN_RETENTION_CHECK"
	ActionReviewRetentionFlag     Action = "REVIEW_RETENTION_FLAG"
	ActionUpdateRetentionPolicy   Action = "UPDATE_RETENTION_POLICY"
	ActionPurgeRetainedRecord     Action = "PURGE_RETAINED_RECORD"
	ActionRequestAccountDeletion  Action = "REQUEST_ACCOUNT_DELETION"
	ActionRequestDataDeletion     Action = "REQUEST_DATA_DELETION"
	ActionReviewDeletionRequest   Action = "REVIEW_DELETION_REQUEST"
	ActionCompleteDeletionRequest Action = "COMPLETE_DELETION_REQUEST"
	ActionExportUserData          Action = "EXPORT_USER_DATA"
)

var knownActions = map[Action]bool{
	ActionRunRetentionCheck:       true,
	ActionReviewRetentionFlag:     true,
	ActionUpdateRetentionPolicy:   true,
	ActionPurgeRetainedRecord:     true,
	ActionRequestAccountDeletion:  true,
	ActionRequestDataDeletion:     true,
	ActionReviewDeletionRequest:   true,
	ActionCompleteDeletionRequest: true,
	ActionExportUserData:          true,
}

// IsKnown reports whether a is part of the audit vocabulary.
func (a Action) IsKnown() bool {
	return knownActions[a]
}

// Target entity names used in audit entries.
const (
	EntitySystem          = "system"
	EntityRetentionPolicy = "data_retention_policy"
	EntityRetentionFlag   = "data_retention_flag"
	EntityDeletionRequest = "deletion_request"
	EntityDataExport      = "data_export"
)

// Entry is one append-only audit record. ActorID is nil for system actors,
// TargetID is empty when the action has no single target.
type Entry struct {
	ID           id.AuditEntryID
	ActorID      id.UserID
	ActorRole    id.Role
	Action       Action
	TargetEntity string
	TargetID     string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// ListFilter narrows audit trail queries. Zero values match everything.
type ListFilter struct {
	ActorID      id.UserID
	Action       Action
	TargetEntity string
	TargetID     string
	Limit        int
}

// Matches reports whether e satisfies the filter (limit excluded).
func (f ListFilter) Matches(e Entry) bool {
	if !f.ActorID.IsNil() && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.TargetEntity != "" && e.TargetEntity != f.TargetEntity {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	return true
}
