package models

// SortField selects the column a comment listing is ordered by.
type SortField string

const (
	SortByUsername SortField = "author__username"
	SortByEmail    SortField = "author__email"
	SortByCreated  SortField = "created"
)

// SortKey combines a field with a direction.
type SortKey struct {
	Field SortField
	Desc  bool
}

// DefaultSortKey is newest first.
var DefaultSortKey = SortKey{Field: SortByCreated, Desc: true}

// String renders the key with a leading "-" when descending.
func (k SortKey) String() string {
	if k.Desc {
		return "-" + string(k.Field)
	}
	return string(k.Field)
}
