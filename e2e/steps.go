//go:build e2e

package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"vitalis/e2e/steps/common"
	"vitalis/e2e/steps/deletion"
	"vitalis/e2e/steps/export"
	"vitalis/e2e/steps/ratelimit"
)

// RegisterSteps wires every step package onto the scenario.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	common.RegisterSteps(ctx, tc)
	deletion.RegisterSteps(ctx, tc)
	export.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
