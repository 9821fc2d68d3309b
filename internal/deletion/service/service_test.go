package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vitalis/internal/deletion/models"
	"vitalis/internal/deletion/service/mocks"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/sentinel"
	"vitalis/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	audit   *mocks.MockAuditPublisher
	service *Service
	userID  id.UserID
	adminID id.UserID
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	var err error
	s.service, err = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.audit),
	)
	s.Require().NoError(err)
	s.userID = id.UserID(uuid.New())
	s.adminID = id.UserID(uuid.New())
	s.now = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) patientCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.userID)
	ctx = requestcontext.WithRole(ctx, id.RolePatient)
	ctx = requestcontext.WithClient(ctx, "Firefox 128.0 on Linux")
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) adminCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.adminID)
	ctx = requestcontext.WithRole(ctx, id.RoleAdmin)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) pending(rt models.RequestType) *models.Request {
	req, err := models.NewRequest(id.DeletionRequestID(uuid.New()), s.userID, rt, nil, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	return req
}

// passThroughExecute runs validate and mutate against req the way a store would.
func passThroughExecute(req *models.Request) func(context.Context, id.DeletionRequestID, func(*models.Request) error, func(*models.Request)) (*models.Request, error) {
	return func(_ context.Context, _ id.DeletionRequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
		if err := validate(req); err != nil {
			return nil, err
		}
		mutate(req)
		return req, nil
	}
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("unauthenticated", func() {
		_, err := s.service.Submit(context.Background(), id.UserID{}, "account", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown request type", func() {
		_, err := s.service.Submit(s.patientCtx(), s.userID, "everything", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("oversized reason", func() {
		reason := strings.Repeat("x", maxTextLength+1)
		_, err := s.service.Submit(s.patientCtx(), s.userID, "data", &reason)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("account request is audited with client", func() {
		reason := "  switching providers "
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req *models.Request) error {
			s.Equal(s.userID, req.UserID)
			s.Equal(models.StatusPending, req.Status)
			s.Equal(s.now, req.RequestedAt)
			s.Require().NotNil(req.Reason)
			s.Equal("switching providers", *req.Reason)
			return nil
		})
		s.audit.EXPECT().Record(gomock.Any(), s.userID, id.RolePatient, audit.ActionRequestAccountDeletion,
			audit.EntityDeletionRequest, gomock.Any(), map[string]any{
				"request_type": "account",
				"reason":       "switching providers",
				"client":       "Firefox 128.0 on Linux",
			})

		req, err := s.service.Submit(s.patientCtx(), s.userID, "account", &reason)
		s.Require().NoError(err)
		s.Equal(models.RequestTypeAccount, req.RequestType)
	})

	s.Run("data request uses data action", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.audit.EXPECT().Record(gomock.Any(), s.userID, id.RolePatient, audit.ActionRequestDataDeletion,
			audit.EntityDeletionRequest, gomock.Any(), gomock.Any())

		_, err := s.service.Submit(s.patientCtx(), s.userID, "data", nil)
		s.Require().NoError(err)
	})

	s.Run("pending request conflicts", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
		_, err := s.service.Submit(s.patientCtx(), s.userID, "data", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		_, err := s.service.Submit(s.patientCtx(), s.userID, "data", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestReview() {
	s.Run("patients are forbidden", func() {
		_, err := s.service.Review(s.patientCtx(), id.DeletionRequestID(uuid.New()), "approved", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid decision", func() {
		_, err := s.service.Review(s.adminCtx(), id.DeletionRequestID(uuid.New()), "completed", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("approve", func() {
		req := s.pending(models.RequestTypeData)
		notes := "verified identity"
		s.store.EXPECT().Execute(gomock.Any(), req.ID, gomock.Any(), gomock.Any()).DoAndReturn(passThroughExecute(req))
		s.audit.EXPECT().Record(gomock.Any(), s.adminID, id.RoleAdmin, audit.ActionReviewDeletionRequest,
			audit.EntityDeletionRequest, req.ID.String(), map[string]any{
				"decision":     "approved",
				"request_type": "data",
				"admin_notes":  "verified identity",
			})

		got, err := s.service.Review(s.adminCtx(), req.ID, "approved", &notes)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
		s.Require().NotNil(got.ReviewedBy)
		s.Equal(s.adminID, *got.ReviewedBy)
		s.Equal(s.now, *got.ReviewedAt)
	})

	s.Run("already reviewed conflicts", func() {
		req := s.pending(models.RequestTypeData)
		req.Status = models.StatusRejected
		s.store.EXPECT().Execute(gomock.Any(), req.ID, gomock.Any(), gomock.Any()).DoAndReturn(passThroughExecute(req))

		_, err := s.service.Review(s.adminCtx(), req.ID, "approved", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing request", func() {
		s.store.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Review(s.adminCtx(), id.DeletionRequestID(uuid.New()), "rejected", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestComplete() {
	s.Run("pending cannot be completed", func() {
		req := s.pending(models.RequestTypeAccount)
		s.store.EXPECT().Execute(gomock.Any(), req.ID, gomock.Any(), gomock.Any()).DoAndReturn(passThroughExecute(req))

		_, err := s.service.Complete(s.adminCtx(), req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(models.StatusPending, req.Status)
	})

	s.Run("approved completes", func() {
		req := s.pending(models.RequestTypeAccount)
		req.ApplyReview(models.StatusApproved, s.adminID, nil, s.now)
		s.store.EXPECT().Execute(gomock.Any(), req.ID, gomock.Any(), gomock.Any()).DoAndReturn(passThroughExecute(req))
		s.audit.EXPECT().Record(gomock.Any(), s.adminID, id.RoleAdmin, audit.ActionCompleteDeletionRequest,
			audit.EntityDeletionRequest, req.ID.String(), gomock.Any())

		got, err := s.service.Complete(s.adminCtx(), req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, got.Status)
		s.Equal(s.now, *got.CompletedAt)
	})
}

func (s *ServiceSuite) TestListPendingRequiresAdmin() {
	_, err := s.service.ListPending(s.patientCtx())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.store.EXPECT().ListPending(gomock.Any()).Return([]*models.Request{s.pending(models.RequestTypeData)}, nil)
	reqs, err := s.service.ListPending(s.adminCtx())
	s.Require().NoError(err)
	s.Len(reqs, 1)
}
