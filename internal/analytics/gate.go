// Package analytics turns applied consent preferences into the page's
// decision to load audience measurement.
package analytics

import (
	"context"
	"log/slog"

	"optin/internal/consent/models"
	"optin/pkg/requestcontext"
)

// Gate receives the preferences applied during one page session. The page
// emits the measurement snippet only when Enabled reports true.
type Gate struct {
	measurementID string
	logger        *slog.Logger

	applied bool
	prefs   models.Preferences
}

func NewGate(measurementID string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{measurementID: measurementID, logger: logger}
}

// ApplyPreferences records prefs as the active set.
func (g *Gate) ApplyPreferences(ctx context.Context, prefs models.Preferences) {
	g.applied = true
	g.prefs = prefs
	g.logger.DebugContext(ctx, "consent preferences applied",
		"request_id", requestcontext.RequestID(ctx),
		"analytics", prefs.Granted(models.CategoryAnalytics),
	)
}

// Applied returns the active preference set, if any was applied.
func (g *Gate) Applied() (models.Preferences, bool) {
	return g.prefs, g.applied
}

// Enabled reports whether measurement may load. Without an applied decision
// the answer is no.
func (g *Gate) Enabled() bool {
	return g.applied && g.measurementID != "" && g.prefs.Granted(models.CategoryAnalytics)
}

// MeasurementID is the tag the snippet loads when Enabled.
func (g *Gate) MeasurementID() string {
	return g.measurementID
}
