package site

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "optin/pkg/domain-errors"
	"optin/pkg/platform/httputil"
	"optin/pkg/requestcontext"
)

// Handler serves the site's pages.
type Handler struct {
	sessions  *Sessions
	bootstrap *Bootstrap
	renderer  *Renderer
	logger    *slog.Logger
}

func NewHandler(sessions *Sessions, bootstrap *Bootstrap, renderer *Renderer, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		bootstrap: bootstrap,
		renderer:  renderer,
		logger:    logger,
	}
}

// Register registers the page routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.page(PageHome, "Home"))
	r.Get("/privacy", h.page(PagePrivacy, "Privacy policy"))
}

func (h *Handler) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s := h.sessions.New(w, r)
		h.bootstrap.Run(ctx, s)

		region := s.Page.Region()
		data := PageData{
			Title:         title,
			Path:          s.Path,
			Nav:           s.Nav,
			Banner:        region.HTML(),
			BannerView:    region.State().String(),
			MountBanner:   region != nil,
			Analytics:     s.Gate.Enabled(),
			MeasurementID: s.Gate.MeasurementID(),
		}

		var buf bytes.Buffer
		if err := h.renderer.Page(&buf, name, data); err != nil {
			h.logger.ErrorContext(ctx, "failed to render page",
				"request_id", requestcontext.RequestID(ctx),
				"page", name,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render page"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}
