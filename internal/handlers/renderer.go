package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"log"

	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are rendered inside base.html.
var pages = []string{
	"home.html",
	"category.html",
	"subcategory.html",
	"cart.html",
	"checkout.html",
	"order_confirmation.html",
	"admin_login.html",
	"admin.html",
	"admin_products.html",
	"admin_categories.html",
	"admin_carousel.html",
}

// HTMLRenderer keeps a separate template set per page so each page can
// define its own "content" block.
type HTMLRenderer struct {
	Templates map[string]*template.Template
}

// LoadTemplates parses every page with the base layout.
func LoadTemplates() (*HTMLRenderer, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(TemplateFuncs).ParseFS(templateFS, "templates/"+name, "templates/base.html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return &HTMLRenderer{Templates: templates}, nil
}

// Instance implements render.HTMLRender.
func (r *HTMLRenderer) Instance(name string, data interface{}) render.Render {
	tmpl, ok := r.Templates[name]
	if !ok {
		log.Printf("HTMLRenderer.Instance - Unknown template %s", name)
		return render.String{Format: "template %s not found", Data: []interface{}{name}}
	}
	return render.HTML{
		Template: tmpl,
		Name:     name,
		Data:     data,
	}
}
