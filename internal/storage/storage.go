// Package storage defines the visitor-scoped key/value substrate consent
// state lives in. Backends are interface-driven so the controller never knows
// whether entries sit in memory, Redis, SQL or the visitor's own cookies.
package storage

import (
	"context"
	"fmt"
	"net/http"

	"optin/pkg/platform/sentinel"
	"optin/pkg/requestcontext"
)

// Item is one named entry.
type Item struct {
	Key   string
	Value string
}

// Backend stores entries for many visitors. SetMany commits all items or none.
type Backend interface {
	Get(ctx context.Context, visitorID, key string) (string, error)
	SetMany(ctx context.Context, visitorID string, items []Item) error
}

// Substrate is a Backend bound to one visitor.
type Substrate interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItems(ctx context.Context, items ...Item) error
}

// Factory builds the substrate for one request.
type Factory interface {
	Substrate(w http.ResponseWriter, r *http.Request) Substrate
}

// Scope binds backend to visitorID.
func Scope(backend Backend, visitorID string) Substrate {
	return &scoped{backend: backend, visitorID: visitorID}
}

type scoped struct {
	backend   Backend
	visitorID string
}

func (s *scoped) GetItem(ctx context.Context, key string) (string, error) {
	if s.visitorID == "" {
		return "", fmt.Errorf("get %q without visitor: %w", key, sentinel.ErrUnavailable)
	}
	return s.backend.Get(ctx, s.visitorID, key)
}

func (s *scoped) SetItems(ctx context.Context, items ...Item) error {
	if s.visitorID == "" {
		return fmt.Errorf("set without visitor: %w", sentinel.ErrUnavailable)
	}
	if len(items) == 0 {
		return nil
	}
	return s.backend.SetMany(ctx, s.visitorID, items)
}

// BackendFactory scopes a shared backend by the visitor id the visitor
// middleware put on the request context.
type BackendFactory struct {
	Backend Backend
}

func (f BackendFactory) Substrate(_ http.ResponseWriter, r *http.Request) Substrate {
	return Scope(f.Backend, requestcontext.VisitorID(r.Context()))
}

// HealthChecker is implemented by backends that can report connectivity.
type HealthChecker interface {
	Health(ctx context.Context) error
}
