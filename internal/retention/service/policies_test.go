package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vitalis/internal/retention/models"
	"vitalis/internal/retention/service/mocks"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/sentinel"
	"vitalis/pkg/requestcontext"
)

type PolicyServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	policies *mocks.MockPolicyStore
	audit    *mocks.MockAuditPublisher
	service  *PolicyService
	ctx      context.Context
	adminID  id.UserID
	now      time.Time
}

func TestPolicyServiceSuite(t *testing.T) {
	suite.Run(t, new(PolicyServiceSuite))
}

func (s *PolicyServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.policies = mocks.NewMockPolicyStore(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	var err error
	s.service, err = NewPolicyService(s.policies,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.audit),
	)
	s.Require().NoError(err)

	s.adminID = id.UserID(uuid.New())
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(
		requestcontext.WithRole(requestcontext.WithUserID(context.Background(), s.adminID), id.RoleAdmin),
		s.now,
	)
}

func (s *PolicyServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PolicyServiceSuite) TestNew() {
	_, err := NewPolicyService(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "policy store is required")
}

func (s *PolicyServiceSuite) TestList() {
	s.Run("store failure is internal", func() {
		s.policies.EXPECT().List(gomock.Any()).Return(nil, errors.New("connection reset"))
		_, err := s.service.List(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// TestUpdateValidation verifies bad input never reaches the store.
func (s *PolicyServiceSuite) TestUpdateValidation() {
	policyID := id.PolicyID(uuid.New())
	cases := []struct {
		name  string
		field string
		value any
	}{
		{"unknown field", "data_type", "meal_logs"},
		{"zero days", "retention_days", float64(0)},
		{"negative days", "retention_days", -5},
		{"fractional days", "retention_days", 1.5},
		{"non-boolean active flag", "is_active", "yes"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Update(s.ctx, policyID, tc.field, tc.value)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err)
		})
	}
}

func (s *PolicyServiceSuite) TestUpdate() {
	policyID := id.PolicyID(uuid.New())

	s.Run("applies change and audits field and value", func() {
		stored := &models.Policy{ID: policyID, DataType: models.DataTypeMealLogs, RetentionDays: 365, IsActive: true}
		s.policies.EXPECT().Execute(gomock.Any(), policyID, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
				if err := validate(stored); err != nil {
					return nil, err
				}
				mutate(stored)
				return stored, nil
			})
		s.audit.EXPECT().Record(gomock.Any(), s.adminID, id.RoleAdmin, audit.ActionUpdateRetentionPolicy,
			audit.EntityRetentionPolicy, policyID.String(), map[string]any{"field": "retention_days", "value": 90})

		updated, err := s.service.Update(s.ctx, policyID, "retention_days", float64(90))
		s.Require().NoError(err)
		s.Equal(90, updated.RetentionDays)
		s.Equal(s.now, updated.UpdatedAt)
	})

	s.Run("unknown policy is not found", func() {
		s.policies.EXPECT().Execute(gomock.Any(), policyID, gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Update(s.ctx, policyID, "is_active", false)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure is internal and keeps the cause", func() {
		cause := errors.New("deadlock detected")
		s.policies.EXPECT().Execute(gomock.Any(), policyID, gomock.Any(), gomock.Any()).
			Return(nil, cause)
		_, err := s.service.Update(s.ctx, policyID, "is_active", false)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.ErrorIs(err, cause)
	})
}
