// Package apperr classifies request failures into the kinds rendered as error pages.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// Kind is a user-facing error class with a fixed page.
type Kind int

const (
	BadRequest Kind = iota + 1
	NotFound
	ServerError
)

// Page is what gets rendered for a Kind.
type Page struct {
	Code        int
	Name        string
	Description string
}

var pages = map[Kind]Page{
	BadRequest: {
		Code:        http.StatusBadRequest,
		Name:        "Bad Request",
		Description: "The server cannot or will not process the request.",
	},
	NotFound: {
		Code:        http.StatusNotFound,
		Name:        "Not Found",
		Description: "The server cannot find the requested resource. URL is not recognized.",
	},
	ServerError: {
		Code:        http.StatusInternalServerError,
		Name:        "Internal Server Error",
		Description: "Sorry, an error occurred in the server. Try again.",
	},
}

func (k Kind) Page() Page {
	if p, ok := pages[k]; ok {
		return p
	}
	return pages[ServerError]
}

func (k Kind) String() string {
	return k.Page().Name
}

// KindOf reports the kind of an already classified error. ok is false for
// anything that is not a known request failure.
func KindOf(err error) (kind Kind, ok bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ErrNotFound):
		return NotFound, true
	case errors.Is(err, ErrBadRequest):
		return BadRequest, true
	}
	return ServerError, false
}
