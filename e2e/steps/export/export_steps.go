package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	GET(path string) error
	LastBody() []byte
	UserID() string
}

// RegisterSteps registers the personal data export steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &exportSteps{tc: tc}

	ctx.Step(`^I export my records as "([^"]*)"$`, steps.exportAs)
	ctx.Step(`^I export my records$`, steps.exportDefault)
	ctx.Step(`^the export should belong to me$`, steps.exportShouldBelongToMe)
	ctx.Step(`^the export should list "([^"]*)" as an empty list$`, steps.domainShouldBeEmptyList)
	ctx.Step(`^the export should be a PDF document$`, steps.exportShouldBePDF)
}

type exportSteps struct {
	tc TestContext
}

func (s *exportSteps) exportAs(_ context.Context, format string) error {
	return s.tc.GET("/me/export?format=" + format)
}

func (s *exportSteps) exportDefault(context.Context) error {
	return s.tc.GET("/me/export")
}

func (s *exportSteps) decode() (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(s.tc.LastBody(), &doc); err != nil {
		return nil, fmt.Errorf("export is not JSON: %w", err)
	}
	return doc, nil
}

func (s *exportSteps) exportShouldBelongToMe(context.Context) error {
	doc, err := s.decode()
	if err != nil {
		return err
	}
	var owner string
	if err := json.Unmarshal(doc["userId"], &owner); err != nil {
		return fmt.Errorf("userId: %w", err)
	}
	if owner != s.tc.UserID() {
		return fmt.Errorf("export belongs to %q, expected %q", owner, s.tc.UserID())
	}
	return nil
}

func (s *exportSteps) domainShouldBeEmptyList(_ context.Context, key string) error {
	doc, err := s.decode()
	if err != nil {
		return err
	}
	raw, ok := doc[key]
	if !ok {
		return fmt.Errorf("export has no %q", key)
	}
	if string(bytes.TrimSpace(raw)) != "[]" {
		return fmt.Errorf("expected %s to be [], got %s", key, raw)
	}
	return nil
}

func (s *exportSteps) exportShouldBePDF(context.Context) error {
	if !bytes.HasPrefix(s.tc.LastBody(), []byte("%PDF-")) {
		return fmt.Errorf("body does not start with a PDF header")
	}
	return nil
}
