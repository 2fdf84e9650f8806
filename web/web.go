// Package web holds the embedded templates and static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/multitemplate"
)

//go:embed templates static
var files embed.FS

// Templates is the embedded templates tree.
func Templates() fs.FS {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Static is the embedded static assets tree.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// LoadTemplates registers every file under views/ by its path relative to
// views/, each parsed together with the layouts and includes. funcs extend
// and override the default helpers.
func LoadTemplates(fsys fs.FS, funcs template.FuncMap) (multitemplate.Render, error) {
	layouts, err := fs.Glob(fsys, "layouts/*.html")
	if err != nil {
		return nil, err
	}
	includes, err := fs.Glob(fsys, "includes/*.html")
	if err != nil {
		return nil, err
	}

	funcMap := defaultFuncs()
	for name, fn := range funcs {
		funcMap[name] = fn
	}

	r := multitemplate.New()
	err = fs.WalkDir(fsys, "views", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".html" {
			return err
		}
		patterns := make([]string, 0, len(layouts)+len(includes)+1)
		patterns = append(patterns, layouts...)
		patterns = append(patterns, includes...)
		patterns = append(patterns, p)

		tmpl, err := template.New(path.Base(patterns[0])).Funcs(funcMap).ParseFS(fsys, patterns...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		r.Add(strings.TrimPrefix(p, "views/"), tmpl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"add": func(a, b int) int {
			return a + b
		},
		"formatTime": func(t time.Time) string {
			return t.Format("02.01.2006 15:04")
		},
		// listURL builds a link to the list keeping the other parameters.
		"listURL": func(orderBy, orderDir string, page int) string {
			q := url.Values{}
			q.Set("orderby", orderBy)
			q.Set("orderdir", orderDir)
			q.Set("page", strconv.Itoa(page))
			return "/?" + q.Encode()
		},
		"isImage": func(name string) bool {
			switch strings.ToLower(path.Ext(name)) {
			case ".jpg", ".jpeg", ".gif", ".png":
				return true
			}
			return false
		},
		"mediaURL": func(name string) string {
			return "/media/" + name
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
}
