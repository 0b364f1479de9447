package site

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mssola/useragent"

	"optin/internal/analytics"
	"optin/internal/consent/controller"
	"optin/internal/consent/store"
	"optin/internal/platform/metrics"
	"optin/internal/storage"
	"optin/pkg/requestcontext"
)

// Session is everything one page load or banner action works with.
type Session struct {
	Page       *Page
	Store      *store.Store
	Controller *controller.Controller
	Gate       *analytics.Gate
	Path       string
	Query      url.Values
	Nav        []NavItem
}

// Sessions builds a Session per request.
type Sessions struct {
	substrates    storage.Factory
	renderer      *Renderer
	measurementID string
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

func NewSessions(substrates storage.Factory, renderer *Renderer, measurementID string, logger *slog.Logger, m *metrics.Metrics) *Sessions {
	return &Sessions{
		substrates:    substrates,
		renderer:      renderer,
		measurementID: measurementID,
		logger:        logger,
		metrics:       m,
	}
}

// New wires store, controller and analytics gate for r. Crawlers get a page
// without a banner mount point.
func (f *Sessions) New(w http.ResponseWriter, r *http.Request) *Session {
	var region *Region
	if !isCrawler(r) {
		region = NewRegion(f.renderer)
	}
	page := NewPage(region)

	st := store.New(f.substrates.Substrate(w, r),
		store.WithLogger(f.logger),
		store.WithMetrics(f.metrics),
	)
	gate := analytics.NewGate(f.measurementID, f.logger)
	ctrl := controller.New(st, page, gate,
		controller.WithLogger(f.logger),
		controller.WithMetrics(f.metrics),
	)
	return &Session{
		Page:       page,
		Store:      st,
		Controller: ctrl,
		Gate:       gate,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
	}
}

func isCrawler(r *http.Request) bool {
	ua := requestcontext.UserAgent(r.Context())
	if ua == "" {
		ua = r.UserAgent()
	}
	if ua == "" {
		return false
	}
	return useragent.New(ua).Bot()
}
