// Package controller runs the consent banner state machine for one page
// session:
//
//	Hidden --init, undecided--> ChoicePrompt
//	ChoicePrompt --accept all | reject all--> Hidden (save, dismiss, apply)
//	ChoicePrompt --customize--> DetailPrompt
//	DetailPrompt --save--> Hidden (save, dismiss, apply)
//	DetailPrompt --cancel--> ChoicePrompt
//	any --manage preferences--> DetailPrompt
//
// A Controller is not safe for concurrent use; each event runs to completion
// before the next one is delivered.
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"optin/internal/consent/models"
	"optin/internal/platform/metrics"
	dErrors "optin/pkg/domain-errors"
	"optin/pkg/platform/sentinel"
	"optin/pkg/requestcontext"
)

// Terminal action names, as recorded in metrics.
const (
	ActionAcceptAll = "accept_all"
	ActionRejectAll = "reject_all"
	ActionSave      = "save"
)

type Controller struct {
	store   PreferenceStore
	page    Page
	applier Applier
	logger  *slog.Logger
	metrics *metrics.Metrics

	state       models.ViewState
	region      Region
	initialized bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func New(store PreferenceStore, page Page, applier Applier, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		page:    page,
		applier: applier,
		logger:  slog.Default(),
		state:   models.ViewHidden,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State returns the current banner state.
func (c *Controller) State() models.ViewState {
	return c.state
}

// Init runs once per page load. A stored decision is applied and the banner
// stays hidden; otherwise the choice prompt is rendered. Later calls are no-ops.
func (c *Controller) Init(ctx context.Context) error {
	if !c.attach(ctx) {
		return nil
	}

	if c.store.HasConsent(ctx) {
		c.state = models.ViewHidden
		c.applier.ApplyPreferences(ctx, c.store.GetPreferences(ctx).Categories)
		return nil
	}
	if c.region == nil {
		c.logger.DebugContext(ctx, "consent banner has no mount point; prompt skipped",
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	c.state = models.ViewChoicePrompt
	return c.render(ctx)
}

// Resume reattaches a page session whose banner is already showing state,
// without rendering or applying anything. Hosts that deliver each event in a
// fresh process use it in place of Init.
func (c *Controller) Resume(ctx context.Context, state models.ViewState) {
	if !c.attach(ctx) {
		return
	}
	if c.region == nil {
		return
	}
	c.state = state
}

// attach subscribes the delegated trigger and binds the mount point. It
// reports false when the session was already attached.
func (c *Controller) attach(ctx context.Context) bool {
	if c.initialized {
		return false
	}
	c.initialized = true
	c.page.Delegate(MarkerManagePreferences, c.ManagePreferences)
	if region, ok := c.page.BannerRegion(ctx); ok {
		c.region = region
	}
	return true
}

func (c *Controller) AcceptAll(ctx context.Context) error {
	return c.decide(ctx, ActionAcceptAll, models.ViewChoicePrompt, models.Choice{Analytics: true})
}

func (c *Controller) RejectAll(ctx context.Context) error {
	return c.decide(ctx, ActionRejectAll, models.ViewChoicePrompt, models.Choice{Analytics: false})
}

// Customize swaps the choice prompt for the detail view.
func (c *Controller) Customize(ctx context.Context) error {
	if err := c.require("customize", models.ViewChoicePrompt); err != nil {
		return err
	}
	c.state = models.ViewDetailPrompt
	return c.render(ctx)
}

// Save commits the detail view's analytics toggle.
func (c *Controller) Save(ctx context.Context, analytics bool) error {
	return c.decide(ctx, ActionSave, models.ViewDetailPrompt, models.Choice{Analytics: analytics})
}

// Cancel discards the detail view's edits and returns to the choice prompt.
// Nothing is saved or applied.
func (c *Controller) Cancel(ctx context.Context) error {
	if err := c.require("cancel", models.ViewDetailPrompt); err != nil {
		return err
	}
	c.state = models.ViewChoicePrompt
	return c.render(ctx)
}

// ManagePreferences opens the detail view whether or not a decision exists.
// Without a mount point it does nothing.
func (c *Controller) ManagePreferences(ctx context.Context) error {
	if c.region == nil {
		return nil
	}
	c.state = models.ViewDetailPrompt
	return c.render(ctx)
}

// decide saves choice, dismisses the banner and applies the result. The
// banner leaves the page only after the save was attempted.
func (c *Controller) decide(ctx context.Context, action string, from models.ViewState, choice models.Choice) error {
	if err := c.require(action, from); err != nil {
		return err
	}
	record := c.store.SavePreferences(ctx, choice)

	c.state = models.ViewHidden
	if err := c.region.Remove(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to dismiss consent banner",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	c.metrics.IncrementTerminalActions(action)
	c.applier.ApplyPreferences(ctx, record.Categories)
	return nil
}

func (c *Controller) require(event string, want models.ViewState) error {
	if c.state == want && c.region != nil {
		return nil
	}
	return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
		fmt.Sprintf("%s is not allowed while the banner is %s", event, c.state))
}

func (c *Controller) render(ctx context.Context) error {
	view := View{State: c.state}
	if c.state == models.ViewDetailPrompt {
		record := c.store.GetPreferences(ctx)
		view.Preferences = record.Categories
		view.Decided = record.HasDecided
	}
	if err := c.region.Replace(ctx, view); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to render consent banner")
	}
	c.metrics.IncrementBannerRenders(c.state.String())
	return nil
}
