package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the scenarios against E2E_BASE_URL. Start the server
// with ADMIN_API_TOKEN set and mint the owner token with
// `ezweb token --user <owner>`.
func TestFeatures(t *testing.T) {
	cfg := Config{
		BaseURL:    os.Getenv("E2E_BASE_URL"),
		OwnerToken: os.Getenv("E2E_OWNER_TOKEN"),
		AdminToken: os.Getenv("E2E_ADMIN_TOKEN"),
		SiteID:     os.Getenv("E2E_SITE_ID"),
	}
	if cfg.BaseURL == "" {
		t.Skip("E2E_BASE_URL not set")
	}
	if cfg.SiteID == "" {
		cfg.SiteID = "1"
	}

	suite := godog.TestSuite{
		Name: "ezweb",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			tc := NewTestContext(cfg)
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("e2e scenarios failed")
	}
}
