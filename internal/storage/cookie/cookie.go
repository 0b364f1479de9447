// Package cookie keeps consent entries in the visitor's own browser cookies,
// the closest server-side analog of page-local storage. Nothing is stored on
// the server.
package cookie

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
)

// DefaultMaxAge keeps decisions for roughly a year.
const DefaultMaxAge = 365 * 24 * time.Hour

// Factory builds a cookie-backed substrate bound to one request/response.
type Factory struct {
	MaxAge time.Duration
	Secure bool
}

func (f Factory) Substrate(w http.ResponseWriter, r *http.Request) storage.Substrate {
	maxAge := f.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Jar{w: w, r: r, maxAge: maxAge, secure: f.Secure, written: map[string]string{}}
}

// Jar reads entries from request cookies and writes them as Set-Cookie
// headers. Writes are visible to later reads on the same Jar.
type Jar struct {
	w       http.ResponseWriter
	r       *http.Request
	maxAge  time.Duration
	secure  bool
	written map[string]string
}

func (j *Jar) GetItem(_ context.Context, key string) (string, error) {
	if value, ok := j.written[key]; ok {
		return value, nil
	}
	c, err := j.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", fmt.Errorf("cookie %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("cookie %q: %w", key, err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return "", fmt.Errorf("decode cookie %q: %w", key, err)
	}
	return string(raw), nil
}

// SetItems emits every cookie on the same response, so the browser stores
// them together or not at all.
func (j *Jar) SetItems(_ context.Context, items ...storage.Item) error {
	for _, item := range items {
		http.SetCookie(j.w, &http.Cookie{
			Name:     item.Key,
			Value:    base64.RawURLEncoding.EncodeToString([]byte(item.Value)),
			Path:     "/",
			MaxAge:   int(j.maxAge.Seconds()),
			HttpOnly: true,
			Secure:   j.secure,
			SameSite: http.SameSiteLaxMode,
		})
		j.written[item.Key] = item.Value
	}
	return nil
}
