package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/requestcontext"
)

// ReviewService lets administrators dispose of pending flags.
type ReviewService struct {
	deps
	flags    FlagStore
	adapters AdapterRegistry
}

func NewReviewService(flags FlagStore, adapters AdapterRegistry, opts ...Option) (*ReviewService, error) {
	if flags == nil {
		return nil, errors.New("flag store is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter registry is required")
	}
	return &ReviewService{deps: newDeps(opts), flags: flags, adapters: adapters}, nil
}

// ListPending returns flags awaiting review, newest first.
func (s *ReviewService) ListPending(ctx context.Context) ([]*models.Flag, error) {
	flags, err := s.flags.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending flags")
	}
	return flags, nil
}

// Review records the decision for a pending flag.
//
// With cascade delete enabled, a "deleted" decision erases the record while
// the flag row is locked and before the flag is updated. Record deletion is
// idempotent, so a review that fails after the erase converges on retry.
// Types that are not purgeable (audit logs) are only marked.
func (s *ReviewService) Review(ctx context.Context, flagID id.FlagID, decision string, notes *string, reviewer id.UserID) (*models.ReviewOutcome, error) {
	ctx, span := tracer.Start(ctx, "retention.Review")
	defer span.End()

	if flagID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "flag id is required")
	}
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	action, err := models.ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	notes = normalizeNotes(notes)
	span.SetAttributes(attribute.String("retention.decision", string(action)))

	now := requestcontext.Now(ctx)
	var purged bool
	flag, err := s.flags.Execute(ctx, flagID,
		func(f *models.Flag) error {
			if err := f.CanReview(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "retention flag has already been reviewed")
			}
			if action == models.FlagActionDeleted && s.cascadeDelete && f.DataType.Purgeable() {
				if err := s.purge(ctx, f); err != nil {
					return err
				}
				purged = true
			}
			return nil
		},
		func(f *models.Flag) {
			f.ApplyReview(action, reviewer, notes, now)
		},
	)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err, "retention flag not found", "failed to review retention flag")
	}

	outcome := &models.ReviewOutcome{Flag: flag, RecordPurged: purged}
	if action == models.FlagActionDeleted && s.cascadeDelete && !flag.DataType.Purgeable() {
		outcome.RecordKept = string(flag.DataType) + " records are append-only and are never purged"
	}

	s.metrics.IncrementFlagReview(string(action))
	if purged {
		s.metrics.IncrementRecordsPurged(string(flag.DataType))
		s.record(ctx, audit.ActionPurgeRetainedRecord, string(flag.DataType), flag.RecordID, map[string]any{
			"flag_id": flag.ID.String(),
			"owner":   ownerString(flag.UserID),
		})
	}

	s.logger.InfoContext(ctx, "retention flag reviewed",
		"flag_id", flag.ID,
		"data_type", flag.DataType,
		"action", action,
		"purged", purged,
	)
	var notesValue any
	if notes != nil {
		notesValue = *notes
	}
	s.record(ctx, audit.ActionReviewRetentionFlag, audit.EntityRetentionFlag, flag.ID.String(), map[string]any{
		"action": string(action),
		"notes":  notesValue,
	})
	s.notify(ctx, changefeed.TopicRetentionFlags, "reviewed", flag.ID.String())
	return outcome, nil
}

func (s *ReviewService) purge(ctx context.Context, f *models.Flag) error {
	adapter, ok := s.adapters.Lookup(f.DataType)
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "records of type "+string(f.DataType)+" cannot be deleted")
	}
	if err := adapter.DeleteRecord(ctx, f.RecordID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete retained record")
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func ownerString(u id.UserID) string {
	if u.IsNil() {
		return ""
	}
	return u.String()
}
