package site

import (
	"context"
	"fmt"
	"log/slog"

	"optin/internal/consent/controller"
	"optin/internal/consent/models"
	"optin/internal/platform/metrics"
	"optin/pkg/requestcontext"
)

// Initializer is one page feature started on load.
type Initializer struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// Bootstrap runs initializers in order. A failing or panicking initializer is
// logged and counted; the rest still run.
type Bootstrap struct {
	initializers []Initializer
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func NewBootstrap(logger *slog.Logger, m *metrics.Metrics, initializers ...Initializer) *Bootstrap {
	return &Bootstrap{initializers: initializers, logger: logger, metrics: m}
}

func (b *Bootstrap) Run(ctx context.Context, s *Session) {
	for _, in := range b.initializers {
		if err := b.runIsolated(ctx, in, s); err != nil {
			b.logger.ErrorContext(ctx, "page initializer failed",
				"request_id", requestcontext.RequestID(ctx),
				"initializer", in.Name,
				"error", err,
			)
			b.metrics.IncrementInitializerFailures(in.Name)
		}
	}
}

func (b *Bootstrap) runIsolated(ctx context.Context, in Initializer, s *Session) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return in.Run(ctx, s)
}

// DefaultInitializers are the features every page starts.
func DefaultInitializers() []Initializer {
	return []Initializer{
		{Name: "navigation", Run: initNavigation},
		{Name: "consent", Run: initConsent},
	}
}

var navigation = []NavItem{
	{Label: "Home", Href: "/"},
	{Label: "Privacy", Href: "/privacy"},
}

func initNavigation(_ context.Context, s *Session) error {
	nav := make([]NavItem, len(navigation))
	for i, item := range navigation {
		item.Active = item.Href == s.Path
		nav[i] = item
	}
	s.Nav = nav
	return nil
}

// ReturnToChoice as the value of the manage-preferences query replays a
// cancel after opening the detail view, so a script-less visitor who
// cancelled lands back on the choice view.
const ReturnToChoice = "choice"

// initConsent starts the banner. A "?cookie-preferences" query stands in for
// a click on a manage-preferences link when scripts are off.
func initConsent(ctx context.Context, s *Session) error {
	if err := s.Controller.Init(ctx); err != nil {
		return err
	}
	if !s.Query.Has(controller.MarkerManagePreferences) {
		return nil
	}
	if _, err := s.Page.Dispatch(ctx, controller.MarkerManagePreferences); err != nil {
		return err
	}
	if s.Query.Get(controller.MarkerManagePreferences) == ReturnToChoice &&
		s.Controller.State() == models.ViewDetailPrompt {
		return s.Controller.Cancel(ctx)
	}
	return nil
}
