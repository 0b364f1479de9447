package visitor

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"optin/pkg/requestcontext"
)

// CookieName holds the signed visitor token.
const CookieName = "optin_vid"

// Middleware resolves the visitor id from the cookie, issuing a fresh one
// when the cookie is missing or fails verification.
type Middleware struct {
	tokens *TokenService
	secure bool
	logger *slog.Logger
}

func NewMiddleware(tokens *TokenService, secure bool, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, secure: secure, logger: logger}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if c, err := r.Cookie(CookieName); err == nil {
			if id, err := m.tokens.Verify(c.Value); err == nil {
				ctx = requestcontext.WithVisitorID(ctx, id.String())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			m.logger.DebugContext(ctx, "visitor token rejected; reissuing",
				"request_id", requestcontext.RequestID(ctx),
			)
		}

		id := uuid.New()
		token, err := m.tokens.Issue(id)
		if err != nil {
			// Without an id the substrate reports itself unavailable and
			// the store degrades to "no decision".
			m.logger.ErrorContext(ctx, "failed to issue visitor token",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(m.tokens.ttl.Seconds()),
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
		ctx = requestcontext.WithVisitorID(ctx, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
