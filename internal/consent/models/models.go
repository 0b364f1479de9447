package models

import "time"

// CategoryID names a class of behavior gated by consent.
type CategoryID string

const (
	// CategoryNecessary is always granted and is not user-controllable.
	CategoryNecessary CategoryID = "necessary"
	// CategoryAnalytics gates optional audience measurement.
	CategoryAnalytics CategoryID = "analytics"
)

// Preferences is the fully resolved category map handed to the
// ApplyPreferences hook. Necessary is always true.
type Preferences struct {
	Necessary bool `json:"necessary"`
	Analytics bool `json:"analytics"`
}

// NewPreferences resolves a preference map for the given analytics grant.
func NewPreferences(analytics bool) Preferences {
	return Preferences{Necessary: true, Analytics: analytics}
}

// Granted reports whether category is granted. Unknown categories are denied.
func (p Preferences) Granted(category CategoryID) bool {
	switch category {
	case CategoryNecessary:
		return true
	case CategoryAnalytics:
		return p.Analytics
	default:
		return false
	}
}

// Map returns the preferences as a category map.
func (p Preferences) Map() map[CategoryID]bool {
	return map[CategoryID]bool{
		CategoryNecessary: true,
		CategoryAnalytics: p.Analytics,
	}
}

// Choice is the user-controllable part of a terminal action.
type Choice struct {
	Analytics bool
}

// ConsentRecord is the persisted decision.
type ConsentRecord struct {
	HasDecided bool
	Categories Preferences
	// DecidedAt is advisory; nothing expires on it.
	DecidedAt time.Time
}

// DefaultRecord is what readers get when no valid decision is stored.
func DefaultRecord() ConsentRecord {
	return ConsentRecord{
		HasDecided: false,
		Categories: NewPreferences(false),
	}
}

// NewRecord builds the record written by a terminal action.
func NewRecord(choice Choice, decidedAt time.Time) ConsentRecord {
	return ConsentRecord{
		HasDecided: true,
		Categories: NewPreferences(choice.Analytics),
		DecidedAt:  decidedAt,
	}
}

// ViewState is the transient banner state of one page session.
type ViewState string

const (
	ViewHidden       ViewState = "hidden"
	ViewChoicePrompt ViewState = "choice"
	ViewDetailPrompt ViewState = "detail"
)

// ParseViewState maps a wire value onto a ViewState.
func ParseViewState(s string) (ViewState, bool) {
	switch ViewState(s) {
	case ViewHidden, ViewChoicePrompt, ViewDetailPrompt:
		return ViewState(s), true
	default:
		return "", false
	}
}

func (v ViewState) String() string { return string(v) }
