package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"optin/internal/consent/controller"
	"optin/internal/consent/models"
	"optin/internal/platform/metrics"
	"optin/internal/site"
	dErrors "optin/pkg/domain-errors"
	"optin/pkg/platform/httputil"
	"optin/pkg/requestcontext"
)

// Response headers describing the banner after an action.
const (
	HeaderView      = "X-Consent-View"
	HeaderHXTrigger = "HX-Trigger"
	HeaderHXRequest = "HX-Request"

	// EventApplied is the client event fired when preferences became active.
	EventApplied = "consent:applied"
)

// SessionFactory builds the per-request page session.
type SessionFactory interface {
	New(w http.ResponseWriter, r *http.Request) *site.Session
}

// Limiter guards the mutating routes.
type Limiter interface {
	Middleware(next http.Handler) http.Handler
}

// Handler handles banner actions posted by the page.
type Handler struct {
	logger   *slog.Logger
	sessions SessionFactory
	metrics  *metrics.Metrics
	limiter  Limiter
}

// New creates a new consent Handler. A nil limiter disables rate limiting.
func New(sessions SessionFactory, logger *slog.Logger, m *metrics.Metrics, limiter Limiter) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
		metrics:  m,
		limiter:  limiter,
	}
}

type actionForm struct {
	View      string
	Analytics string
	Marker    string
	ReturnTo  string
}

type event func(ctx context.Context, s *site.Session, form actionForm) error

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/consent", func(r chi.Router) {
		r.Get("/preferences", h.handleGetPreferences)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/accept-all", h.action("accept_all", func(ctx context.Context, s *site.Session, _ actionForm) error {
				return s.Controller.AcceptAll(ctx)
			}))
			r.Post("/reject-all", h.action("reject_all", func(ctx context.Context, s *site.Session, _ actionForm) error {
				return s.Controller.RejectAll(ctx)
			}))
			r.Post("/customize", h.action("customize", func(ctx context.Context, s *site.Session, _ actionForm) error {
				return s.Controller.Customize(ctx)
			}))
			r.Post("/save", h.action("save", func(ctx context.Context, s *site.Session, form actionForm) error {
				return s.Controller.Save(ctx, parseCheckbox(form.Analytics))
			}))
			r.Post("/cancel", h.action("cancel", func(ctx context.Context, s *site.Session, _ actionForm) error {
				return s.Controller.Cancel(ctx)
			}))
			r.Post("/delegate", h.action("delegate", h.delegate))
		})
	})
}

func (h *Handler) action(name string, run event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		form, err := parseForm(r)
		if err != nil {
			h.logger.WarnContext(ctx, "invalid consent action request",
				"request_id", requestID,
				"action", name,
				"error", err.Error(),
			)
			httputil.WriteError(w, err)
			return
		}

		view := models.ViewHidden
		if form.View != "" {
			parsed, ok := models.ParseViewState(form.View)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown banner view"))
				return
			}
			view = parsed
		}

		s := h.sessions.New(w, r)
		s.Controller.Resume(ctx, view)
		if err := run(ctx, s, form); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInternal) {
				h.logger.ErrorContext(ctx, "consent action failed",
					"request_id", requestID,
					"action", name,
					"error", err.Error(),
				)
			} else {
				h.logger.WarnContext(ctx, "consent action rejected",
					"request_id", requestID,
					"action", name,
					"error", err.Error(),
				)
			}
			httputil.WriteError(w, err)
			return
		}
		h.respond(w, r, s, form)
	}
}

func (h *Handler) delegate(ctx context.Context, s *site.Session, form actionForm) error {
	if form.Marker == "" {
		return dErrors.New(dErrors.CodeBadRequest, "marker is required")
	}
	handled, err := s.Page.Dispatch(ctx, form.Marker)
	if err != nil {
		return err
	}
	if !handled {
		return dErrors.New(dErrors.CodeNotFound, "nothing listens for marker "+form.Marker)
	}
	return nil
}

// respond writes the new banner fragment for HTMX requests and redirects
// plain form posts back to the page they came from.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, s *site.Session, form actionForm) {
	ctx := r.Context()
	state := s.Controller.State()

	w.Header().Set(HeaderView, state.String())
	w.Header().Set("Cache-Control", "no-store")
	if prefs, ok := s.Gate.Applied(); ok {
		trigger, err := json.Marshal(map[string]preferencesEvent{EventApplied: newPreferencesEvent(prefs)})
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to encode applied event",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		} else {
			w.Header().Set(HeaderHXTrigger, string(trigger))
		}
	}

	if r.Header.Get(HeaderHXRequest) != "true" {
		target := safeReturnPath(form.ReturnTo, r)
		switch state {
		case models.ViewDetailPrompt:
			target += "?" + controller.MarkerManagePreferences
		case models.ViewChoicePrompt:
			target += "?" + controller.MarkerManagePreferences + "=" + site.ReturnToChoice
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.Page.Region().HTML()))
}

type preferencesEvent struct {
	Necessary bool `json:"necessary"`
	Analytics bool `json:"analytics"`
}

func newPreferencesEvent(p models.Preferences) preferencesEvent {
	return preferencesEvent{Necessary: p.Necessary, Analytics: p.Analytics}
}

type preferencesResponse struct {
	Decided   bool       `json:"decided"`
	Necessary bool       `json:"necessary"`
	Analytics bool       `json:"analytics"`
	Date      *time.Time `json:"date,omitempty"`
}

// handleGetPreferences exposes the stored decision to page scripts.
func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.New(w, r)
	record := s.Store.GetPreferences(r.Context())

	resp := preferencesResponse{
		Decided:   record.HasDecided,
		Necessary: record.Categories.Necessary,
		Analytics: record.HasDecided && record.Categories.Analytics,
	}
	if !record.DecidedAt.IsZero() {
		resp.Date = &record.DecidedAt
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseForm(r *http.Request) (actionForm, error) {
	if err := r.ParseForm(); err != nil {
		return actionForm{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
	}
	form := actionForm{
		View:      r.PostForm.Get("view"),
		Analytics: r.PostForm.Get("analytics"),
		Marker:    r.PostForm.Get("marker"),
		ReturnTo:  r.PostForm.Get("return_to"),
	}
	sanitize(&form)
	return form, nil
}

func parseCheckbox(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}

// safeReturnPath keeps redirects on this site. It prefers the posted
// return_to, then the Referer path.
func safeReturnPath(returnTo string, r *http.Request) string {
	if isLocalPath(returnTo) {
		return returnTo
	}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && isLocalPath(ref.Path) {
		return ref.Path
	}
	return "/"
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsAny(p, "?#\\")
}
