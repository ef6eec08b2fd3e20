package util

// ListFilter carries the parsed query, ordering, and pagination options a
// list endpoint hands down to its repository. A zero value means no
// filtering, default ordering, and no pagination.
type ListFilter struct {
	Filters []QueryFilter
	Order   []OrderClause
	Page    int
	PerPage int
}
