package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"spacomments/internal/apperr"
)

// ErrorRenderer writes the page for an error kind.
type ErrorRenderer func(c *gin.Context, kind apperr.Kind)

// ErrorBoundary turns errors attached with c.Error into error pages. Known
// kinds keep their status; anything else, including panics, is logged and
// rendered as a server error. Responses already written are left alone.
func ErrorBoundary(logger logrus.FieldLogger, render ErrorRenderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			logger.WithField("path", c.Request.URL.Path).
				Errorf("[boundary] panic %T('%v') during working with %s URL", rec, rec, c.Request.URL.Path)
			c.Abort()
			if !c.Writer.Written() {
				render(c, apperr.ServerError)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		kind, ok := apperr.KindOf(err)
		if !ok {
			logger.WithField("path", c.Request.URL.Path).
				Errorf("[boundary] %T('%v') during working with %s URL", err, err, c.Request.URL.Path)
			kind = apperr.ServerError
		} else {
			logger.WithField("path", c.Request.URL.Path).Debugf("[boundary] %s: %v", kind, err)
		}
		render(c, kind)
	}
}
