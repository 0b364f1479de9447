package site

import (
	"bytes"
	"context"
	"html/template"

	"optin/internal/consent/controller"
	"optin/internal/consent/models"
)

// Page is one rendered page: an optional banner mount point plus a
// delegation table standing in for a document-level click listener.
type Page struct {
	region    *Region
	delegates map[string][]func(context.Context) error
}

// NewPage builds a page. A nil region means the page has no mount point.
func NewPage(region *Region) *Page {
	return &Page{region: region, delegates: make(map[string][]func(context.Context) error)}
}

func (p *Page) BannerRegion(context.Context) (controller.Region, bool) {
	if p.region == nil {
		return nil, false
	}
	return p.region, true
}

func (p *Page) Delegate(marker string, handler func(context.Context) error) {
	p.delegates[marker] = append(p.delegates[marker], handler)
}

// Dispatch routes a click on an element carrying marker. It reports false
// when nothing subscribed to marker.
func (p *Page) Dispatch(ctx context.Context, marker string) (bool, error) {
	handlers, ok := p.delegates[marker]
	if !ok {
		return false, nil
	}
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Region returns the mount point, or nil.
func (p *Page) Region() *Region {
	return p.region
}

// Region is the #cookie-banner container. It keeps the rendered fragment
// until the page is written out.
type Region struct {
	renderer *Renderer
	html     template.HTML
	state    models.ViewState
}

func NewRegion(renderer *Renderer) *Region {
	return &Region{renderer: renderer, state: models.ViewHidden}
}

func (r *Region) Replace(_ context.Context, view controller.View) error {
	var buf bytes.Buffer
	if err := r.renderer.Banner(&buf, view); err != nil {
		return err
	}
	r.html = template.HTML(buf.String()) //nolint:gosec // produced by html/template
	r.state = view.State
	return nil
}

func (r *Region) Remove(context.Context) error {
	r.html = ""
	r.state = models.ViewHidden
	return nil
}

// HTML is the current fragment; empty while hidden.
func (r *Region) HTML() template.HTML {
	if r == nil {
		return ""
	}
	return r.html
}

// State is the view currently mounted.
func (r *Region) State() models.ViewState {
	if r == nil {
		return models.ViewHidden
	}
	return r.state
}
