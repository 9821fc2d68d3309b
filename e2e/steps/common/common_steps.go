package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario state these steps need.
type TestContext interface {
	AuthenticateAs(role string) error
	ClearAuthentication()
	GET(path string) error
	POST(path string, body any) error
	LastStatus() int
	LastBody() []byte
	LastHeader(key string) string
	ResponseField(field string) (any, error)
}

// RegisterSteps registers authentication, raw request and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am authenticated as an? "([^"]*)"$`, steps.authenticatedAs)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response header "([^"]*)" should start with "([^"]*)"$`, steps.headerShouldStartWith)
	ctx.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, steps.headerShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) authenticatedAs(_ context.Context, role string) error {
	return s.tc.AuthenticateAs(role)
}

func (s *commonSteps) notAuthenticated(context.Context) error {
	s.tc.ClearAuthentication()
	return nil
}

func (s *commonSteps) get(_ context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) statusShouldBe(_ context.Context, expected int) error {
	if got := s.tc.LastStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(_ context.Context, field, expected string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) headerShouldStartWith(_ context.Context, key, prefix string) error {
	if got := s.tc.LastHeader(key); !strings.HasPrefix(got, prefix) {
		return fmt.Errorf("expected header %s to start with %q, got %q", key, prefix, got)
	}
	return nil
}

func (s *commonSteps) headerShouldBe(_ context.Context, key, expected string) error {
	if got := s.tc.LastHeader(key); got != expected {
		return fmt.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
	return nil
}
