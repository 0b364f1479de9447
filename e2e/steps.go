package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"optin/e2e/steps/consent"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.Reset()
	})

	// Common response assertions
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)

	// Banner flows and stored preferences
	consent.RegisterSteps(ctx, tc)
}
