package handlers

import (
	"fmt"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"spacomments/internal/apperr"
)

const errorTemplate = "error.html"

// Pages renders the registered templates.
type Pages struct {
	templates multitemplate.Render
}

func NewPages(templates multitemplate.Render) *Pages {
	return &Pages{templates: templates}
}

// Render injects the variables every page uses.
func (p *Pages) Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	obj["CurrentPath"] = c.Request.URL.Path

	c.HTML(code, name, obj)
}

// RenderError renders the page for kind, falling back to a minimal inline
// page when error.html is not registered.
func (p *Pages) RenderError(c *gin.Context, kind apperr.Kind) {
	page := kind.Page()
	if _, ok := p.templates[errorTemplate]; ok {
		p.Render(c, page.Code, errorTemplate, gin.H{"Error": page})
		return
	}
	c.Data(page.Code, "text/html; charset=utf-8", []byte(fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%d | %s</title></head><body><h1>%s</h1><h4>%s</h4></body></html>",
		page.Code, page.Name, page.Name, page.Description,
	)))
}

// NotFound is the handler for unknown routes.
func NotFound(c *gin.Context) {
	_ = c.Error(fmt.Errorf("no route for %s %s: %w", c.Request.Method, c.Request.URL.Path, apperr.ErrNotFound))
	c.Abort()
}
