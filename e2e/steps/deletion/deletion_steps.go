package deletion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	AuthenticateAs(role string) error
	GET(path string) error
	POST(path string, body any) error
	LastBody() []byte
	ResponseField(field string) (any, error)
	Save(name, value string)
	Saved(name string) (string, error)
}

// RegisterSteps registers the deletion request lifecycle steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &deletionSteps{tc: tc}

	ctx.Step(`^I submit an? "([^"]*)" deletion request with reason "([^"]*)"$`, steps.submit)
	ctx.Step(`^I submit an? "([^"]*)" deletion request$`, steps.submitWithoutReason)
	ctx.Step(`^I save the deletion request id$`, steps.saveID)
	ctx.Step(`^I list my deletion requests$`, steps.listMine)
	ctx.Step(`^I list pending deletion requests$`, steps.listPending)
	ctx.Step(`^I (approve|reject) the saved deletion request with notes "([^"]*)"$`, steps.review)
	ctx.Step(`^I complete the saved deletion request$`, steps.complete)

	ctx.Step(`^the request list should contain (\d+) requests?$`, steps.listShouldContain)
	ctx.Step(`^the request list should include the saved deletion request$`, steps.listShouldIncludeSaved)
}

type deletionSteps struct {
	tc TestContext
}

func (s *deletionSteps) submit(_ context.Context, requestType, reason string) error {
	return s.tc.POST("/me/deletion-requests", map[string]any{"request_type": requestType, "reason": reason})
}

func (s *deletionSteps) submitWithoutReason(_ context.Context, requestType string) error {
	return s.tc.POST("/me/deletion-requests", map[string]any{"request_type": requestType})
}

func (s *deletionSteps) saveID(context.Context) error {
	v, err := s.tc.ResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save("deletion_request", fmt.Sprint(v))
	return nil
}

func (s *deletionSteps) listMine(context.Context) error {
	return s.tc.GET("/me/deletion-requests")
}

func (s *deletionSteps) listPending(context.Context) error {
	return s.tc.GET("/admin/deletion-requests")
}

func (s *deletionSteps) review(_ context.Context, verb, notes string) error {
	requestID, err := s.tc.Saved("deletion_request")
	if err != nil {
		return err
	}
	decision := "approved"
	if verb == "reject" {
		decision = "rejected"
	}
	return s.tc.POST("/admin/deletion-requests/"+requestID+"/review", map[string]any{
		"decision":    decision,
		"admin_notes": notes,
	})
}

func (s *deletionSteps) complete(context.Context) error {
	requestID, err := s.tc.Saved("deletion_request")
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/deletion-requests/"+requestID+"/complete", nil)
}

type requestList struct {
	Requests []struct {
		ID string `json:"id"`
	} `json:"requests"`
}

func (s *deletionSteps) decodeList() (requestList, error) {
	var list requestList
	if err := json.Unmarshal(s.tc.LastBody(), &list); err != nil {
		return list, fmt.Errorf("decode request list: %w", err)
	}
	return list, nil
}

func (s *deletionSteps) listShouldContain(_ context.Context, n int) error {
	list, err := s.decodeList()
	if err != nil {
		return err
	}
	if len(list.Requests) != n {
		return fmt.Errorf("expected %d requests, got %d", n, len(list.Requests))
	}
	return nil
}

func (s *deletionSteps) listShouldIncludeSaved(context.Context) error {
	requestID, err := s.tc.Saved("deletion_request")
	if err != nil {
		return err
	}
	list, err := s.decodeList()
	if err != nil {
		return err
	}
	for _, r := range list.Requests {
		if r.ID == requestID {
			return nil
		}
	}
	return fmt.Errorf("request %s not in list", requestID)
}
