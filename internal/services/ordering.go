package services

import (
	"fmt"

	"spacomments/internal/apperr"
	"spacomments/internal/models"
)

var ErrInvalidOrdering = fmt.Errorf("invalid ordering: %w", apperr.ErrNotFound)

// Codes used when the query leaves them out.
const (
	DefaultOrderBy  = "c"
	DefaultOrderDir = "desc"
)

var orderFields = map[string]models.SortField{
	"u": models.SortByUsername,
	"e": models.SortByEmail,
	"c": models.SortByCreated,
}

// ResolveOrdering translates the orderby and orderdir query codes into a sort
// key. Both codes must be valid; there is no partial fallback.
func ResolveOrdering(orderBy, orderDir string) (models.SortKey, error) {
	field, ok := orderFields[orderBy]
	if !ok {
		return models.SortKey{}, ErrInvalidOrdering
	}

	switch orderDir {
	case "asc":
		return models.SortKey{Field: field}, nil
	case "desc":
		return models.SortKey{Field: field, Desc: true}, nil
	}
	return models.SortKey{}, ErrInvalidOrdering
}

// OrderCodes is the inverse of ResolveOrdering.
func OrderCodes(key models.SortKey) (orderBy, orderDir string) {
	for code, field := range orderFields {
		if field == key.Field {
			orderBy = code
		}
	}
	orderDir = "asc"
	if key.Desc {
		orderDir = "desc"
	}
	return orderBy, orderDir
}
