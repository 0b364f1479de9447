package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"optin/internal/consent/models"
	"optin/internal/consent/store"
	"optin/internal/platform/metrics"
	"optin/internal/platform/middleware"
	"optin/internal/site"
	"optin/internal/storage"
	"optin/internal/storage/memory"
	"optin/pkg/testutil"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"

type ConsentHandlerSuite struct {
	suite.Suite
	backend *memory.Backend
	router  chi.Router
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) SetupTest() {
	s.backend = memory.New()
	s.router = s.newRouter(nil)
}

func (s *ConsentHandlerSuite) newRouter(limiter Limiter) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	renderer, err := site.NewRenderer()
	s.Require().NoError(err)

	sessions := site.NewSessions(storage.BackendFactory{Backend: s.backend}, renderer, "", logger, m)
	r := chi.NewRouter()
	New(sessions, logger, m, limiter).Register(r)
	return r
}

func (s *ConsentHandlerSuite) post(path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	req := testutil.NewFormRequest(s.T(), http.MethodPost, path, form)
	req.Header.Set("Referer", "http://example.com/privacy")
	if htmx {
		req.Header.Set(HeaderHXRequest, "true")
	}
	req = testutil.WithClient(testutil.WithVisitor(req, "visitor-1"), "192.0.2.1", browserUA)
	return testutil.DoRequest(s.router, req)
}

func (s *ConsentHandlerSuite) stored() (bool, models.ConsentRecord) {
	st := store.New(storage.Scope(s.backend, "visitor-1"))
	ctx := context.Background()
	return st.HasConsent(ctx), st.GetPreferences(ctx)
}

func (s *ConsentHandlerSuite) appliedEvent(rec *httptest.ResponseRecorder) preferencesEvent {
	var payload map[string]preferencesEvent
	s.Require().NoError(json.Unmarshal([]byte(rec.Header().Get(HeaderHXTrigger)), &payload))
	ev, ok := payload[EventApplied]
	s.Require().True(ok)
	return ev
}

func (s *ConsentHandlerSuite) TestAcceptAll() {
	rec := s.post("/consent/accept-all", url.Values{"view": {"choice"}}, true)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hidden", rec.Header().Get(HeaderView))
	s.Empty(rec.Body.String(), "banner dismissed")
	s.Equal(preferencesEvent{Necessary: true, Analytics: true}, s.appliedEvent(rec))

	decided, record := s.stored()
	s.True(decided)
	s.True(record.Categories.Analytics)
}

func (s *ConsentHandlerSuite) TestRejectAll() {
	rec := s.post("/consent/reject-all", url.Values{"view": {"choice"}}, true)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(preferencesEvent{Necessary: true, Analytics: false}, s.appliedEvent(rec))
	decided, record := s.stored()
	s.True(decided)
	s.False(record.Categories.Analytics)
}

func (s *ConsentHandlerSuite) TestCustomizeThenSave() {
	rec := s.post("/consent/customize", url.Values{"view": {"choice"}}, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("detail", rec.Header().Get(HeaderView))
	s.Contains(rec.Body.String(), `hx-post="/consent/save"`)
	s.Empty(rec.Header().Get(HeaderHXTrigger), "nothing applied yet")

	rec = s.post("/consent/save", url.Values{"view": {"detail"}, "analytics": {"on"}}, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hidden", rec.Header().Get(HeaderView))
	s.True(s.appliedEvent(rec).Analytics)

	_, record := s.stored()
	s.True(record.Categories.Analytics)
}

func (s *ConsentHandlerSuite) TestSaveUncheckedMeansNoAnalytics() {
	rec := s.post("/consent/save", url.Values{"view": {"detail"}}, true)
	s.Equal(http.StatusOK, rec.Code)
	s.False(s.appliedEvent(rec).Analytics)
}

func (s *ConsentHandlerSuite) TestCancelWritesNothing() {
	rec := s.post("/consent/cancel", url.Values{"view": {"detail"}, "analytics": {"on"}}, true)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("choice", rec.Header().Get(HeaderView))
	s.Contains(rec.Body.String(), `hx-post="/consent/accept-all"`)
	s.Empty(rec.Header().Get(HeaderHXTrigger))

	decided, _ := s.stored()
	s.False(decided)
}

func (s *ConsentHandlerSuite) TestDelegatedManagePreferences() {
	store.New(storage.Scope(s.backend, "visitor-1")).SavePreferences(context.Background(), models.Choice{Analytics: true})

	rec := s.post("/consent/delegate", url.Values{"marker": {"cookie-preferences"}}, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("detail", rec.Header().Get(HeaderView))
	s.Contains(rec.Body.String(), `value="on" checked`)
}

func (s *ConsentHandlerSuite) TestRejectedRequests() {
	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
		code   string
	}{
		{name: "accept while hidden", path: "/consent/accept-all", form: url.Values{"view": {"hidden"}}, status: http.StatusConflict, code: "conflict"},
		{name: "save from choice", path: "/consent/save", form: url.Values{"view": {"choice"}}, status: http.StatusConflict, code: "conflict"},
		{name: "unknown view", path: "/consent/accept-all", form: url.Values{"view": {"modal"}}, status: http.StatusBadRequest, code: "bad_request"},
		{name: "delegate without marker", path: "/consent/delegate", form: url.Values{}, status: http.StatusBadRequest, code: "bad_request"},
		{name: "delegate unknown marker", path: "/consent/delegate", form: url.Values{"marker": {"newsletter"}}, status: http.StatusNotFound, code: "not_found"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.post(tt.path, tt.form, true)
			testutil.AssertStatus(s.T(), rec, tt.status)
			testutil.AssertErrorCode(s.T(), rec, tt.code)
		})
	}
	decided, _ := s.stored()
	s.False(decided)
}

func (s *ConsentHandlerSuite) TestPlainFormPostRedirects() {
	rec := s.post("/consent/accept-all", url.Values{"view": {"choice"}}, false)
	s.Equal(http.StatusSeeOther, rec.Code)
	s.Equal("/privacy", rec.Header().Get("Location"))

	rec = s.post("/consent/customize", url.Values{"view": {"choice"}, "return_to": {"/"}}, false)
	s.Equal(http.StatusSeeOther, rec.Code)
	s.Equal("/?cookie-preferences", rec.Header().Get("Location"))

	rec = s.post("/consent/cancel", url.Values{"view": {"detail"}, "return_to": {"/privacy"}}, false)
	s.Equal(http.StatusSeeOther, rec.Code)
	s.Equal("/privacy?cookie-preferences=choice", rec.Header().Get("Location"))
	s.Empty(rec.Header().Get(HeaderHXTrigger), "cancel applies nothing")
}

func (s *ConsentHandlerSuite) TestGetPreferences() {
	req := testutil.WithVisitor(testutil.NewRequest(s.T(), http.MethodGet, "/consent/preferences"), "visitor-1")

	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	s.JSONEq(`{"decided":false,"necessary":true,"analytics":false}`, rec.Body.String())

	store.New(storage.Scope(s.backend, "visitor-1")).SavePreferences(context.Background(), models.Choice{Analytics: true})
	rec = testutil.DoRequest(s.router, req)

	resp := testutil.UnmarshalResponse[preferencesResponse](s.T(), rec)
	s.True(resp.Decided)
	s.True(resp.Analytics)
	s.NotNil(resp.Date)
}

func (s *ConsentHandlerSuite) TestRateLimited() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = s.newRouter(middleware.NewRateLimiter(0.001, 1, logger))

	s.Equal(http.StatusOK, s.post("/consent/customize", url.Values{"view": {"choice"}}, true).Code)
	s.Equal(http.StatusTooManyRequests, s.post("/consent/customize", url.Values{"view": {"choice"}}, true).Code)
}

func TestSafeReturnPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/consent/save", nil)
	assert.Equal(t, "/privacy", safeReturnPath("/privacy", req))
	assert.Equal(t, "/", safeReturnPath("//evil.example", req))
	assert.Equal(t, "/", safeReturnPath("https://evil.example/", req))

	req.Header.Set("Referer", "http://evil.example/phish")
	assert.Equal(t, "/", safeReturnPath("", req))
	req.Header.Set("Referer", "http://example.com/privacy")
	assert.Equal(t, "/privacy", safeReturnPath("", req))
}

func TestParseCheckbox(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "YES"} {
		assert.True(t, parseCheckbox(v), v)
	}
	for _, v := range []string{"", "off", "false", "0"} {
		assert.False(t, parseCheckbox(v), v)
	}
}

func TestSanitize(t *testing.T) {
	form := actionForm{View: " choice ", Marker: "\tcookie-preferences\n"}
	sanitize(&form)
	assert.Equal(t, "choice", form.View)
	assert.Equal(t, "cookie-preferences", form.Marker)
}
