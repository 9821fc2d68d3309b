package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vitalis/internal/retention/domains"
	"vitalis/internal/retention/models"
	flagstore "vitalis/internal/retention/store/flag"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	auditmemory "vitalis/pkg/platform/audit/store/memory"
	"vitalis/pkg/platform/audit/publisher"
	"vitalis/pkg/requestcontext"
)

type ReviewServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	reviewer id.UserID
	flags    *flagstore.InMemory
	registry *domains.Registry
	tables   map[models.DataType]*domains.MemoryTable
	auditLog *auditmemory.InMemoryStore
}

func TestReviewServiceSuite(t *testing.T) {
	suite.Run(t, new(ReviewServiceSuite))
}

func (s *ReviewServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 2, 8, 30, 0, 0, time.UTC)
	s.reviewer = id.UserID(uuid.New())
	s.ctx = requestcontext.WithTime(
		requestcontext.WithRole(requestcontext.WithUserID(context.Background(), s.reviewer), id.RoleAdmin),
		s.now,
	)
	s.flags = flagstore.NewInMemory()
	s.registry, s.tables = domains.NewMemoryRegistry()
	s.auditLog = auditmemory.NewInMemoryStore()
}

func (s *ReviewServiceSuite) service(cascade bool) *ReviewService {
	svc, err := NewReviewService(s.flags, s.registry,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(publisher.NewPublisher(s.auditLog)),
		WithCascadeDelete(cascade),
	)
	s.Require().NoError(err)
	return svc
}

// pendingFlag stores a record and its pending flag.
func (s *ReviewServiceSuite) pendingFlag(dataType models.DataType, recordID string) *models.Flag {
	owner := id.UserID(uuid.New())
	if t, ok := s.tables[dataType]; ok {
		t.Put(recordID, owner, s.now.AddDate(-3, 0, 0))
	}
	f, err := models.NewPendingFlag(id.FlagID(uuid.New()), dataType, recordID, owner, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	_, err = s.flags.CreatePending(s.ctx, f)
	s.Require().NoError(err)
	return f
}

func (s *ReviewServiceSuite) audits(action audit.Action) []audit.Entry {
	entries, err := s.auditLog.List(s.ctx, audit.ListFilter{Action: action})
	s.Require().NoError(err)
	return entries
}

func strPtr(v string) *string { return &v }

func (s *ReviewServiceSuite) TestInputValidation() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeMealLogs, "m1")

	s.Run("unknown decision", func() {
		_, err := svc.Review(s.ctx, f.ID, "archived", nil, s.reviewer)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("pending is not a decision", func() {
		_, err := svc.Review(s.ctx, f.ID, "pending", nil, s.reviewer)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("missing reviewer", func() {
		_, err := svc.Review(s.ctx, f.ID, "retained", nil, id.UserID{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("unknown flag", func() {
		_, err := svc.Review(s.ctx, id.FlagID(uuid.New()), "retained", nil, s.reviewer)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReviewServiceSuite) TestRetain() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeMealLogs, "m1")

	reviewed, err := svc.Review(s.ctx, f.ID, "retained", strPtr("  clinical hold  "), s.reviewer)
	s.Require().NoError(err)
	s.Equal(models.FlagActionRetained, reviewed.ActionTaken)
	s.Require().NotNil(reviewed.ReviewedAt)
	s.Equal(s.now, *reviewed.ReviewedAt)
	s.Equal(s.reviewer, *reviewed.ReviewedBy)
	s.Equal("clinical hold", *reviewed.Notes)
	s.True(s.tables[models.DataTypeMealLogs].Has("m1"), "retained records stay")

	entries := s.audits(audit.ActionReviewRetentionFlag)
	s.Require().Len(entries, 1)
	s.Equal(f.ID.String(), entries[0].TargetID)
	s.Equal(map[string]any{"action": "retained", "notes": "clinical hold"}, entries[0].Metadata)

	pending, err := svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *ReviewServiceSuite) TestSecondReviewConflicts() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeMealLogs, "m1")
	_, err := svc.Review(s.ctx, f.ID, "retained", nil, s.reviewer)
	s.Require().NoError(err)

	_, err = svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.True(s.tables[models.DataTypeMealLogs].Has("m1"), "conflicting review must not erase")
	s.Len(s.audits(audit.ActionReviewRetentionFlag), 1)
}

func (s *ReviewServiceSuite) TestDeleteCascades() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeExerciseLogs, "e1")

	reviewed, err := svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.Require().NoError(err)
	s.Equal(models.FlagActionDeleted, reviewed.ActionTaken)
	s.True(reviewed.RecordPurged)
	s.Empty(reviewed.RecordKept)
	s.False(s.tables[models.DataTypeExerciseLogs].Has("e1"))

	purges := s.audits(audit.ActionPurgeRetainedRecord)
	s.Require().Len(purges, 1)
	s.Equal("exercise_logs", purges[0].TargetEntity)
	s.Equal("e1", purges[0].TargetID)
}

func (s *ReviewServiceSuite) TestDeleteWithoutCascadeOnlyMarks() {
	svc := s.service(false)
	f := s.pendingFlag(models.DataTypeExerciseLogs, "e1")

	_, err := svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.Require().NoError(err)
	s.True(s.tables[models.DataTypeExerciseLogs].Has("e1"))
	s.Empty(s.audits(audit.ActionPurgeRetainedRecord))
}

func (s *ReviewServiceSuite) TestDeleteAuditLogFlagOnlyMarks() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeAuditLogs, "log-1")

	outcome, err := svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.Require().NoError(err)
	s.Equal(models.FlagActionDeleted, outcome.ActionTaken)
	s.False(outcome.RecordPurged)
	s.Contains(outcome.RecordKept, "append-only")

	s.True(s.tables[models.DataTypeAuditLogs].Has("log-1"))
	s.Empty(s.audits(audit.ActionPurgeRetainedRecord))
	s.Len(s.audits(audit.ActionReviewRetentionFlag), 1)
}

// TestFailedEraseLeavesFlagPending verifies delete-then-flag ordering.
func (s *ReviewServiceSuite) TestFailedEraseLeavesFlagPending() {
	s.registry.Register(brokenAdapter{dataType: models.DataTypeAppointments})
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeAppointments, "a1")

	_, err := svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.flags.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.True(stored.IsPending())
	s.Empty(s.audits(audit.ActionReviewRetentionFlag))
}

func (s *ReviewServiceSuite) TestDeleteWithoutAdapterConflicts() {
	s.registry = domains.NewRegistry()
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypePrescriptions, "p1")

	_, err := svc.Review(s.ctx, f.ID, "deleted", nil, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// Retaining needs no adapter.
	_, err = svc.Review(s.ctx, f.ID, "retained", nil, s.reviewer)
	s.Require().NoError(err)
}

// TestReviewMovesStats checks the retain scenario end to end through the
// aggregator.
func (s *ReviewServiceSuite) TestReviewMovesStats() {
	svc := s.service(true)
	f := s.pendingFlag(models.DataTypeGlucoseReadings, "g1")
	s.pendingFlag(models.DataTypeGlucoseReadings, "g2")
	agg, err := NewStatsAggregator(s.flags)
	s.Require().NoError(err)

	before, err := agg.ComputeStats(s.ctx)
	s.Require().NoError(err)
	_, err = svc.Review(s.ctx, f.ID, "retained", nil, s.reviewer)
	s.Require().NoError(err)
	after, err := agg.ComputeStats(s.ctx)
	s.Require().NoError(err)

	s.Equal(before.TotalRetained+1, after.TotalRetained)
	s.Equal(before.TotalPending-1, after.TotalPending)
	s.Equal(before.TotalFlagged, after.TotalFlagged)
}
