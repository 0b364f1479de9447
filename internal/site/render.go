package site

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"optin/internal/consent/controller"
	"optin/internal/consent/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Page names.
const (
	PageHome    = "home"
	PagePrivacy = "privacy"
)

// NavItem is one entry of the top navigation.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// PageData feeds the layout.
type PageData struct {
	Title         string
	Path          string
	Nav           []NavItem
	Banner        template.HTML
	BannerView    string
	MountBanner   bool
	Analytics     bool
	MeasurementID string
	Year          int
}

// Renderer executes the embedded templates.
type Renderer struct {
	pages  map[string]*template.Template
	banner *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"view": func(v models.ViewState) string { return v.String() },
	}
	base, err := template.New("_root").Funcs(funcs).ParseFS(templateFS, "templates/layout.tmpl", "templates/banner.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template), banner: base}
	for _, name := range []string{PageHome, PagePrivacy} {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone templates: %w", err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name+".tmpl"); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		r.pages[name] = clone
	}
	return r, nil
}

// Banner renders the fragment for view into w.
func (r *Renderer) Banner(w io.Writer, view controller.View) error {
	if err := r.banner.ExecuteTemplate(w, "banner", view); err != nil {
		return fmt.Errorf("render banner: %w", err)
	}
	return nil
}

// Page renders a full page.
func (r *Renderer) Page(w io.Writer, name string, data PageData) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("render page %s: %w", name, err)
	}
	return nil
}
