package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POSTForm(path string, form url.Values) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
}

var dataView = regexp.MustCompile(`id="cookie-banner"[^>]*data-view="([a-z]*)"`)

// actions maps banner button labels to their endpoints.
var actions = map[string]string{
	"accept all": "/consent/accept-all",
	"reject all": "/consent/reject-all",
	"customize":  "/consent/customize",
	"cancel":     "/consent/cancel",
}

// RegisterSteps registers consent-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		steps.view = ""
		return ctx, nil
	})

	// Navigation and banner interaction
	ctx.Step(`^I open "([^"]*)"$`, steps.open)
	ctx.Step(`^I click "(accept all|reject all|customize|cancel)"$`, steps.click)
	ctx.Step(`^I save with analytics (on|off)$`, steps.save)
	ctx.Step(`^I click the cookie preferences link$`, steps.managePreferences)

	// Banner and preference assertions
	ctx.Step(`^the banner should show the "(choice|detail)" view$`, steps.bannerShouldShow)
	ctx.Step(`^the banner should be hidden$`, steps.bannerShouldBeHidden)
	ctx.Step(`^the page should have no banner mount point$`, steps.noMountPoint)
	ctx.Step(`^analytics should be (granted|denied) in the applied event$`, steps.appliedEventShouldBe)
	ctx.Step(`^no preferences should have been applied$`, steps.noAppliedEvent)
	ctx.Step(`^my stored preferences should be (undecided|analytics granted|analytics denied)$`, steps.storedPreferencesShouldBe)
}

type consentSteps struct {
	tc   TestContext
	view string
}

func (s *consentSteps) open(ctx context.Context, path string) error {
	if err := s.tc.GET(path); err != nil {
		return err
	}
	s.view = ""
	if m := dataView.FindSubmatch(s.tc.GetLastResponseBody()); m != nil {
		s.view = string(m[1])
	}
	return nil
}

func (s *consentSteps) post(path string, form url.Values) error {
	form.Set("view", s.view)
	form.Set("return_to", "/")
	if err := s.tc.POSTForm(path, form); err != nil {
		return err
	}
	if v := s.tc.GetLastResponseHeader("X-Consent-View"); v != "" {
		s.view = v
	}
	return nil
}

func (s *consentSteps) click(ctx context.Context, label string) error {
	return s.post(actions[label], url.Values{})
}

func (s *consentSteps) save(ctx context.Context, analytics string) error {
	form := url.Values{}
	if analytics == "on" {
		form.Set("analytics", "on")
	}
	return s.post("/consent/save", form)
}

func (s *consentSteps) managePreferences(ctx context.Context) error {
	return s.post("/consent/delegate", url.Values{"marker": {"cookie-preferences"}})
}

func (s *consentSteps) bannerShouldShow(ctx context.Context, view string) error {
	if s.view != view {
		return fmt.Errorf("expected banner view %q, got %q", view, s.view)
	}
	body := string(s.tc.GetLastResponseBody())
	if !strings.Contains(body, `name="view" value="`+view+`"`) {
		return fmt.Errorf("response does not render the %s view", view)
	}
	return nil
}

func (s *consentSteps) bannerShouldBeHidden(ctx context.Context) error {
	if s.view != "hidden" {
		return fmt.Errorf("expected hidden banner, got %q", s.view)
	}
	return nil
}

func (s *consentSteps) noMountPoint(ctx context.Context) error {
	if strings.Contains(string(s.tc.GetLastResponseBody()), `id="cookie-banner"`) {
		return fmt.Errorf("page unexpectedly mounts the consent banner")
	}
	return nil
}

func (s *consentSteps) appliedEventShouldBe(ctx context.Context, state string) error {
	raw := s.tc.GetLastResponseHeader("HX-Trigger")
	if raw == "" {
		return fmt.Errorf("no HX-Trigger header on response")
	}
	var events map[string]struct {
		Necessary bool `json:"necessary"`
		Analytics bool `json:"analytics"`
	}
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return fmt.Errorf("decode HX-Trigger: %w", err)
	}
	ev, ok := events["consent:applied"]
	if !ok {
		return fmt.Errorf("consent:applied not triggered: %s", raw)
	}
	if want := state == "granted"; ev.Analytics != want {
		return fmt.Errorf("expected analytics=%v, got %v", want, ev.Analytics)
	}
	return nil
}

func (s *consentSteps) noAppliedEvent(ctx context.Context) error {
	if raw := s.tc.GetLastResponseHeader("HX-Trigger"); strings.Contains(raw, "consent:applied") {
		return fmt.Errorf("preferences unexpectedly applied: %s", raw)
	}
	return nil
}

func (s *consentSteps) storedPreferencesShouldBe(ctx context.Context, expected string) error {
	if err := s.tc.GET("/consent/preferences"); err != nil {
		return err
	}
	var prefs struct {
		Decided   bool `json:"decided"`
		Analytics bool `json:"analytics"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &prefs); err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}
	switch expected {
	case "undecided":
		if prefs.Decided {
			return fmt.Errorf("expected no decision, got %+v", prefs)
		}
	case "analytics granted", "analytics denied":
		want := expected == "analytics granted"
		if !prefs.Decided || prefs.Analytics != want {
			return fmt.Errorf("expected decided with analytics=%v, got %+v", want, prefs)
		}
	}
	return nil
}
