package composition

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AsOwner(method, path string, body any) error
	Request(method, path string, body any, headers map[string]string) error
	ExpectStatus(want int) error
	ResponseID() (int64, error)
	ResponseList() ([]map[string]any, error)
	SiteID() string
	Remember(alias string, id int64)
	Lookup(alias string) (int64, error)
}

// RegisterSteps registers site composition steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &compositionSteps{tc: tc}

	ctx.Step(`^my site starts empty$`, steps.clearSite)
	ctx.Step(`^I add "([^"]*)" to my site as "([^"]*)"$`, steps.appendBinding)
	ctx.Step(`^I add "([^"]*)" to my site at position (\d+) as "([^"]*)"$`, steps.insertBinding)
	ctx.Step(`^I try to add "([^"]*)" to my site$`, steps.tryAdd)
	ctx.Step(`^I add "([^"]*)" to my site without authentication$`, steps.addWithoutAuth)
	ctx.Step(`^I move "([^"]*)" to position (\d+)$`, steps.move)
	ctx.Step(`^I hide "([^"]*)"$`, steps.hide)
	ctx.Step(`^I remove "([^"]*)"$`, steps.remove)
	ctx.Step(`^I reorder my site as "([^"]*)"$`, steps.reorder)
	ctx.Step(`^my site should list "([^"]*)"$`, steps.siteShouldList)
	ctx.Step(`^the published page should list "([^"]*)"$`, steps.publishedShouldList)
}

type compositionSteps struct {
	tc TestContext
}

func (s *compositionSteps) bindingsPath() string {
	return "/websites/" + s.tc.SiteID() + "/components"
}

func (s *compositionSteps) bindingPath(alias string) (string, error) {
	bindingID, err := s.tc.Lookup(alias)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", s.bindingsPath(), bindingID), nil
}

// clearSite deletes whatever earlier scenarios left on the shared site.
func (s *compositionSteps) clearSite(ctx context.Context) error {
	if err := s.tc.AsOwner(http.MethodGet, s.bindingsPath(), nil); err != nil {
		return err
	}
	if err := s.tc.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	list, err := s.tc.ResponseList()
	if err != nil {
		return err
	}
	for _, b := range list {
		if err := s.tc.AsOwner(http.MethodDelete, fmt.Sprintf("%s/%v", s.bindingsPath(), b["id"]), nil); err != nil {
			return err
		}
		if err := s.tc.ExpectStatus(http.StatusNoContent); err != nil {
			return err
		}
	}
	return nil
}

func (s *compositionSteps) add(component string, position *int) error {
	defID, err := s.tc.Lookup(component)
	if err != nil {
		return err
	}
	body := map[string]any{
		"definition_id": defID,
		"custom_data":   map[string]any{"title": component},
	}
	if position != nil {
		body["position"] = *position
	}
	return s.tc.AsOwner(http.MethodPost, s.bindingsPath(), body)
}

func (s *compositionSteps) rememberCreated(alias string) error {
	if err := s.tc.ExpectStatus(http.StatusCreated); err != nil {
		return err
	}
	bindingID, err := s.tc.ResponseID()
	if err != nil {
		return err
	}
	s.tc.Remember(alias, bindingID)
	return nil
}

func (s *compositionSteps) appendBinding(ctx context.Context, component, alias string) error {
	if err := s.add(component, nil); err != nil {
		return err
	}
	return s.rememberCreated(alias)
}

func (s *compositionSteps) insertBinding(ctx context.Context, component string, position int, alias string) error {
	if err := s.add(component, &position); err != nil {
		return err
	}
	return s.rememberCreated(alias)
}

func (s *compositionSteps) tryAdd(ctx context.Context, component string) error {
	return s.add(component, nil)
}

func (s *compositionSteps) addWithoutAuth(ctx context.Context, component string) error {
	defID, err := s.tc.Lookup(component)
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, s.bindingsPath(), map[string]any{"definition_id": defID}, nil)
}

func (s *compositionSteps) update(alias string, body map[string]any) error {
	path, err := s.bindingPath(alias)
	if err != nil {
		return err
	}
	if err := s.tc.AsOwner(http.MethodPut, path, body); err != nil {
		return err
	}
	return s.tc.ExpectStatus(http.StatusOK)
}

func (s *compositionSteps) move(ctx context.Context, alias string, position int) error {
	return s.update(alias, map[string]any{"position": position})
}

func (s *compositionSteps) hide(ctx context.Context, alias string) error {
	return s.update(alias, map[string]any{"visible": false})
}

func (s *compositionSteps) remove(ctx context.Context, alias string) error {
	path, err := s.bindingPath(alias)
	if err != nil {
		return err
	}
	if err := s.tc.AsOwner(http.MethodDelete, path, nil); err != nil {
		return err
	}
	return s.tc.ExpectStatus(http.StatusNoContent)
}

func (s *compositionSteps) reorder(ctx context.Context, aliases string) error {
	ids := []int64{}
	for _, alias := range splitAliases(aliases) {
		bindingID, err := s.tc.Lookup(alias)
		if err != nil {
			return err
		}
		ids = append(ids, bindingID)
	}
	return s.tc.AsOwner(http.MethodPut, s.bindingsPath()+"/reorder", ids)
}

func (s *compositionSteps) siteShouldList(ctx context.Context, aliases string) error {
	if err := s.tc.AsOwner(http.MethodGet, s.bindingsPath(), nil); err != nil {
		return err
	}
	return s.expectOrder(aliases)
}

func (s *compositionSteps) publishedShouldList(ctx context.Context, aliases string) error {
	if err := s.tc.Request(http.MethodGet, s.bindingsPath()+"/visible", nil, nil); err != nil {
		return err
	}
	return s.expectOrder(aliases)
}

// expectOrder compares the listed bindings with the aliases in order and
// checks each binding reports its own index as position, except on the
// published page, where hidden bindings leave gaps.
func (s *compositionSteps) expectOrder(aliases string) error {
	if err := s.tc.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	list, err := s.tc.ResponseList()
	if err != nil {
		return err
	}
	want := splitAliases(aliases)
	if len(list) != len(want) {
		return fmt.Errorf("expected %d bindings, got %d", len(want), len(list))
	}
	for i, alias := range want {
		bindingID, err := s.tc.Lookup(alias)
		if err != nil {
			return err
		}
		got, _ := list[i]["id"].(float64)
		if int64(got) != bindingID {
			return fmt.Errorf("position %d: expected %q (%d), got %v", i, alias, bindingID, list[i]["id"])
		}
	}
	return nil
}

func splitAliases(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
