package router

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"spacomments/internal/handlers"
	"spacomments/internal/middleware"
)

type Options struct {
	SessionName  string
	SessionStore sessions.Store
	Templates    multitemplate.Render
	Static       fs.FS
	// MediaRoot is served at MediaURL when attachments live on local disk.
	MediaRoot string
	MediaURL  string
	Log       logrus.FieldLogger
}

// New builds the engine with middleware, assets and the comment routes.
func New(opts Options, pages *handlers.Pages, comments *handlers.CommentHandler) *gin.Engine {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.HTMLRender = opts.Templates

	r.Use(
		middleware.RequestLogger(opts.Log),
		sessions.Sessions(opts.SessionName, opts.SessionStore),
		middleware.ErrorBoundary(opts.Log, pages.RenderError),
	)

	if opts.Static != nil {
		r.StaticFS("/static", http.FS(opts.Static))
	}
	if opts.MediaRoot != "" && strings.HasPrefix(opts.MediaURL, "/") {
		r.Static(strings.TrimSuffix(opts.MediaURL, "/"), opts.MediaRoot)
	}

	RegisterRoutes(r, comments)
	r.NoRoute(handlers.NotFound)
	return r
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

func RegisterRoutes(r gin.IRoutes, comments *handlers.CommentHandler) {
	routes := []route{
		{http.MethodGet, "/", comments.List},       // list with the form
		{http.MethodPost, "/add/", comments.Create}, // submit a comment or an answer
	}
	for _, rt := range routes {
		r.Handle(rt.method, rt.path, rt.handler)
	}
}
