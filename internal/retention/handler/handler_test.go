package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"vitalis/internal/retention/domains"
	"vitalis/internal/retention/models"
	"vitalis/internal/retention/service"
	flagstore "vitalis/internal/retention/store/flag"
	policystore "vitalis/internal/retention/store/policy"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	adminID  string
	policies *policystore.InMemory
	flags    *flagstore.InMemory
	tables   map[models.DataType]*domains.MemoryTable
	broker   *changefeed.Broker
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.adminID = uuid.NewString()
	s.policies = policystore.NewInMemory()
	s.flags = flagstore.NewInMemory()
	s.broker = changefeed.NewBroker()
	var registry *domains.Registry
	registry, s.tables = domains.NewMemoryRegistry()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithNotifier(s.broker),
		service.WithCascadeDelete(true),
	}
	policySvc, err := service.NewPolicyService(s.policies, opts...)
	s.Require().NoError(err)
	scanner, err := service.NewScanner(s.policies, s.flags, registry, opts...)
	s.Require().NoError(err)
	reviews, err := service.NewReviewService(s.flags, registry, opts...)
	s.Require().NoError(err)
	stats, err := service.NewStatsAggregator(s.flags, opts...)
	s.Require().NoError(err)

	h := New(policySvc, scanner, reviews, stats, s.broker, logger)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, testutil.WithAdmin(req, s.adminID))
		})
	})
	h.Register(r)
	s.router = r

	_, err = s.policies.Seed(context.Background(), models.DefaultPolicies(func() id.PolicyID { return id.PolicyID(uuid.New()) }, time.Now()))
	s.Require().NoError(err)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) policyID(dataType models.DataType) string {
	policies, err := s.policies.List(context.Background())
	s.Require().NoError(err)
	for _, p := range policies {
		if p.DataType == dataType {
			return p.ID.String()
		}
	}
	s.FailNow("policy not seeded", dataType)
	return ""
}

func (s *HandlerSuite) TestListPolicies() {
	rec := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/retention/policies"))
	testutil.AssertStatusOK(s.T(), rec)

	resp := testutil.UnmarshalResponse[struct {
		Policies []models.Policy `json:"policies"`
	}](s.T(), rec)
	s.Len(resp.Policies, len(models.KnownDataTypes))
	s.Equal(models.DataTypeAppointments, resp.Policies[0].DataType)
}

func (s *HandlerSuite) TestUpdatePolicy() {
	path := "/admin/retention/policies/" + s.policyID(models.DataTypeMealLogs)

	s.Run("updates retention days", func() {
		rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]any{"field": "retention_days", "value": 90}))
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[models.Policy](s.T(), rec)
		s.Equal(90, resp.RetentionDays)
	})

	s.Run("rejects non-positive days", func() {
		rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]any{"field": "retention_days", "value": 0}))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
	})

	s.Run("rejects unknown body fields", func() {
		rec := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPatch, path, `{"field":"is_active","value":true,"extra":1}`))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown policy", func() {
		rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/retention/policies/"+uuid.NewString(), map[string]any{"field": "is_active", "value": false}))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id", func() {
		rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/retention/policies/not-a-uuid", map[string]any{"field": "is_active", "value": false}))
		testutil.AssertStatus(s.T(), rec, http.StatusBadRequest)
	})
}

// TestScanReviewAndStats walks the dashboard flow: scan, list, review, stats.
func (s *HandlerSuite) TestScanReviewAndStats() {
	owner := id.UserID(uuid.New())
	s.tables[models.DataTypeMealLogs].Put("meal-1", owner, time.Now().AddDate(-2, 0, 0))
	s.tables[models.DataTypeMealLogs].Put("meal-2", owner, time.Now().AddDate(-2, 0, 0))

	rec := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/retention/scan"))
	testutil.AssertStatusOK(s.T(), rec)
	scan := testutil.UnmarshalResponse[ScanResponse](s.T(), rec)
	s.True(scan.Success)
	s.Equal(2, scan.TotalFlagged)
	s.Equal("Successfully flagged 2 records for review", scan.Message)

	rec = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/retention/flags"))
	testutil.AssertStatusOK(s.T(), rec)
	pending := testutil.UnmarshalResponse[struct {
		Flags []models.Flag `json:"flags"`
	}](s.T(), rec)
	s.Require().Len(pending.Flags, 2)

	target := pending.Flags[0]
	reviewPath := "/admin/retention/flags/" + target.ID.String() + "/review"
	rec = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, reviewPath, map[string]any{"decision": "deleted", "notes": "past retention"}))
	testutil.AssertStatusOK(s.T(), rec)
	reviewed := testutil.UnmarshalResponse[models.Flag](s.T(), rec)
	s.Equal(models.FlagActionDeleted, reviewed.ActionTaken)
	s.Equal(s.adminID, reviewed.ReviewedBy.String())
	s.False(s.tables[models.DataTypeMealLogs].Has(target.RecordID))

	rec = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, reviewPath, map[string]any{"decision": "retained"}))
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "conflict")

	rec = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/retention/stats"))
	testutil.AssertStatusOK(s.T(), rec)
	stats := testutil.UnmarshalResponse[models.Stats](s.T(), rec)
	s.Equal(2, stats.TotalFlagged)
	s.Equal(1, stats.TotalDeleted)
	s.Equal(1, stats.TotalPending)
	s.Equal(5, stats.EstimatedStorageSaved)
	s.Len(stats.Timeline, service.TimelineDays)
}

func (s *HandlerSuite) TestReviewValidation() {
	path := "/admin/retention/flags/" + uuid.NewString() + "/review"

	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "archived"}))
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")

	rec = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "retained"}))
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
}

// TestEventStream verifies changes reach a connected client and the
// subscription is released when it disconnects.
func (s *HandlerSuite) TestEventStream() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/retention/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)

	s.Eventually(func() bool { return s.broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	s.broker.Notify(context.Background(), changefeed.Change{Topic: changefeed.TopicRetentionFlags, Kind: "scanned"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var change changefeed.Change
	s.Require().NoError(conn.ReadJSON(&change))
	s.Equal(changefeed.TopicRetentionFlags, change.Topic)

	s.Require().NoError(conn.Close())
	s.Eventually(func() bool { return s.broker.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
