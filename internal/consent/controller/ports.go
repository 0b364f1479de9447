package controller

import (
	"context"

	"optin/internal/consent/models"
)

// MarkerManagePreferences is the marker carried by any page element that
// reopens the preference view ("data-cookie-preferences" in markup).
const MarkerManagePreferences = "cookie-preferences"

// PreferenceStore is the persistence the controller drives.
type PreferenceStore interface {
	HasConsent(ctx context.Context) bool
	GetPreferences(ctx context.Context) models.ConsentRecord
	SavePreferences(ctx context.Context, choice models.Choice) models.ConsentRecord
}

// Region is the single banner container supplied by the host page. Replace
// swaps its whole content; Remove takes it out of the page.
type Region interface {
	Replace(ctx context.Context, view View) error
	Remove(ctx context.Context) error
}

// Page is the host page the controller mounts into.
type Page interface {
	// BannerRegion returns the mount point, or false when the page has none.
	BannerRegion(ctx context.Context) (Region, bool)
	// Delegate subscribes handler to clicks on any element carrying marker,
	// including elements added after the subscription.
	Delegate(marker string, handler func(ctx context.Context) error)
}

// Applier receives every preference set that becomes active.
type Applier interface {
	ApplyPreferences(ctx context.Context, prefs models.Preferences)
}

// ApplyFunc adapts a function to Applier.
type ApplyFunc func(ctx context.Context, prefs models.Preferences)

func (f ApplyFunc) ApplyPreferences(ctx context.Context, prefs models.Preferences) {
	f(ctx, prefs)
}

// View is what the region renders for a prompt state.
type View struct {
	State models.ViewState
	// Preferences prefills the detail view.
	Preferences models.Preferences
	// Decided is true when the visitor already has a stored decision.
	Decided bool
}
