package e2e

import (
	"github.com/cucumber/godog"

	"pidgate/e2e/steps/address"
	"pidgate/e2e/steps/common"
	"pidgate/e2e/steps/proof"
	"pidgate/e2e/steps/session"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background, generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Provider registration and revocation
	address.RegisterSteps(ctx, tc)

	// Proof generation and verification
	proof.RegisterSteps(ctx, tc)

	// Wallet login sessions
	session.RegisterSteps(ctx, tc)
}
