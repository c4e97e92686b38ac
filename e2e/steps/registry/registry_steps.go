package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AsAdmin(method, path string, body any) error
	Request(method, path string, body any, headers map[string]string) error
	ExpectStatus(want int) error
	ResponseID() (int64, error)
	ResponseList() ([]map[string]any, error)
	Unique(name string) string
	Remember(alias string, id int64)
	Lookup(alias string) (int64, error)
}

// RegisterSteps registers component registry steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^the admin registers a component "([^"]*)" in category "([^"]*)"$`, steps.registerComponent)
	ctx.Step(`^the admin deactivates "([^"]*)"$`, steps.deactivate)
	ctx.Step(`^the admin reactivates "([^"]*)"$`, steps.reactivate)
	ctx.Step(`^the admin deletes "([^"]*)"$`, steps.deleteComponent)
	ctx.Step(`^I register a component "([^"]*)" without the admin token$`, steps.registerWithoutToken)
	ctx.Step(`^the public catalogue should include "([^"]*)"$`, steps.catalogueShouldInclude)
	ctx.Step(`^the public catalogue should not include "([^"]*)"$`, steps.catalogueShouldNotInclude)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) definitionBody(name, category string) map[string]any {
	return map[string]any{
		"name":            s.tc.Unique(name),
		"schema_document": `{"type":"object"}`,
		"asset_reference": "components/" + name + ".js",
		"category":        category,
	}
}

func (s *registrySteps) registerComponent(ctx context.Context, name, category string) error {
	if err := s.tc.AsAdmin(http.MethodPost, "/admin/components", s.definitionBody(name, category)); err != nil {
		return err
	}
	if err := s.tc.ExpectStatus(http.StatusCreated); err != nil {
		return err
	}
	defID, err := s.tc.ResponseID()
	if err != nil {
		return err
	}
	s.tc.Remember(name, defID)
	return nil
}

func (s *registrySteps) transition(alias, action string) error {
	defID, err := s.tc.Lookup(alias)
	if err != nil {
		return err
	}
	return s.tc.AsAdmin(http.MethodPatch, fmt.Sprintf("/admin/components/%d/%s", defID, action), nil)
}

func (s *registrySteps) deactivate(ctx context.Context, alias string) error {
	return s.transition(alias, "deactivate")
}

func (s *registrySteps) reactivate(ctx context.Context, alias string) error {
	return s.transition(alias, "reactivate")
}

func (s *registrySteps) deleteComponent(ctx context.Context, alias string) error {
	defID, err := s.tc.Lookup(alias)
	if err != nil {
		return err
	}
	return s.tc.AsAdmin(http.MethodDelete, fmt.Sprintf("/admin/components/%d", defID), nil)
}

func (s *registrySteps) registerWithoutToken(ctx context.Context, name string) error {
	return s.tc.Request(http.MethodPost, "/admin/components", s.definitionBody(name, "misc"), nil)
}

func (s *registrySteps) catalogueContains(alias string) (bool, error) {
	defID, err := s.tc.Lookup(alias)
	if err != nil {
		return false, err
	}
	if err := s.tc.Request(http.MethodGet, "/components", nil, nil); err != nil {
		return false, err
	}
	if err := s.tc.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	list, err := s.tc.ResponseList()
	if err != nil {
		return false, err
	}
	for _, d := range list {
		if v, ok := d["id"].(float64); ok && int64(v) == defID {
			return true, nil
		}
	}
	return false, nil
}

func (s *registrySteps) catalogueShouldInclude(ctx context.Context, alias string) error {
	ok, err := s.catalogueContains(alias)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("catalogue does not list %q", alias)
	}
	return nil
}

func (s *registrySteps) catalogueShouldNotInclude(ctx context.Context, alias string) error {
	ok, err := s.catalogueContains(alias)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("catalogue still lists %q", alias)
	}
	return nil
}
