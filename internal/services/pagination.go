package services

import (
	"fmt"
	"strconv"

	"spacomments/internal/apperr"
)

var ErrInvalidPage = fmt.Errorf("invalid page: %w", apperr.ErrNotFound)

// Pagination describes one page of a result set.
type Pagination struct {
	Number   int
	NumPages int
	PerPage  int
	Total    int64
}

// Paginate validates the raw page parameter against total. An empty value
// means the first page and "last" the final one. The first page always exists,
// even when there is nothing to show.
func Paginate(raw string, total int64, perPage int) (Pagination, error) {
	numPages := 1
	if total > 0 {
		numPages = int((total + int64(perPage) - 1) / int64(perPage))
	}

	number := 1
	switch raw {
	case "":
	case "last":
		number = numPages
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Pagination{}, fmt.Errorf("page %q is not an integer: %w", raw, ErrInvalidPage)
		}
		number = n
	}

	if number < 1 || number > numPages {
		return Pagination{}, fmt.Errorf("page %d out of range: %w", number, ErrInvalidPage)
	}
	return Pagination{Number: number, NumPages: numPages, PerPage: perPage, Total: total}, nil
}

func (p Pagination) Offset() int {
	return (p.Number - 1) * p.PerPage
}

func (p Pagination) HasPrev() bool { return p.Number > 1 }
func (p Pagination) HasNext() bool { return p.Number < p.NumPages }
func (p Pagination) PrevNumber() int {
	return p.Number - 1
}
func (p Pagination) NextNumber() int {
	return p.Number + 1
}
