package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

type TestContext interface {
	GET(path string) error
	LastStatus() int
	LastBody() []byte
	LastHeader(key string) string
}

// RegisterSteps registers per-user throttling steps. They assume the server
// runs with its default export limit.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I export my records until I am throttled$`, steps.exportUntilThrottled)
	ctx.Step(`^the response should tell me when to retry$`, steps.shouldTellRetry)
}

type ratelimitSteps struct {
	tc TestContext
}

const maxAttempts = 100

func (s *ratelimitSteps) exportUntilThrottled(context.Context) error {
	for range maxAttempts {
		if err := s.tc.GET("/me/export"); err != nil {
			return err
		}
		if s.tc.LastStatus() == http.StatusTooManyRequests {
			return nil
		}
		if s.tc.LastStatus() != http.StatusOK {
			return fmt.Errorf("unexpected status %d before throttling", s.tc.LastStatus())
		}
	}
	return fmt.Errorf("not throttled after %d exports", maxAttempts)
}

func (s *ratelimitSteps) shouldTellRetry(context.Context) error {
	retry, err := strconv.Atoi(s.tc.LastHeader("Retry-After"))
	if err != nil || retry < 1 {
		return fmt.Errorf("invalid Retry-After %q", s.tc.LastHeader("Retry-After"))
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(s.tc.LastBody(), &body); err != nil {
		return err
	}
	if body.Error != "rate_limit_exceeded" {
		return fmt.Errorf("unexpected error %q", body.Error)
	}
	return nil
}
