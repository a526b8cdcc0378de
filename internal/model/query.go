package model

import (
	"fmt"
	"math"
	"strings"
)

// SortField names the single field a directory query is ordered by
type SortField string

const (
	SortRank     SortField = "rank"
	SortUsername SortField = "username"
	SortClass    SortField = "class"
	SortScore    SortField = "score"
	SortID       SortField = "id"
)

// Valid reports whether f is one of the enumerated sort fields
func (f SortField) Valid() bool {
	switch f {
	case SortRank, SortUsername, SortClass, SortScore, SortID:
		return true
	}
	return false
}

// Order is the sort direction
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Valid reports whether o is asc or desc
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// Query defaults used when a request leaves a field empty
const (
	DefaultPage  = 1
	DefaultLimit = 10
	DefaultSort  = SortRank
	DefaultOrder = OrderAsc
)

// QueryRequest describes one page of a filtered, sorted view of the directory
type QueryRequest struct {
	Page     int
	Limit    int
	Search   string
	Class    Class
	MinScore *int64
	MaxScore *int64
	Sort     SortField
	Order    Order
}

// WithDefaults fills in the sort and order when unset
func (q QueryRequest) WithDefaults() QueryRequest {
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.Order == "" {
		q.Order = DefaultOrder
	}
	return q
}

// Validate checks the request against the query contract.
// All failures wrap ErrInvalidRequest.
func (q QueryRequest) Validate(maxLimit int) error {
	switch {
	case q.Page < 1:
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidRequest)
	case q.Limit < 1:
		return fmt.Errorf("%w: limit must be at least 1", ErrInvalidRequest)
	case maxLimit > 0 && q.Limit > maxLimit:
		return fmt.Errorf("%w: limit must be at most %d", ErrInvalidRequest, maxLimit)
	case !q.Sort.Valid():
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidRequest, q.Sort)
	case !q.Order.Valid():
		return fmt.Errorf("%w: unknown order %q", ErrInvalidRequest, q.Order)
	case q.MinScore != nil && q.MaxScore != nil && *q.MinScore > *q.MaxScore:
		return fmt.Errorf("%w: minScore exceeds maxScore", ErrInvalidRequest)
	}
	return nil
}

// Offset is the number of matching rows skipped before this page. It
// saturates at math.MaxInt so a huge page lands past the end of any result.
func (q QueryRequest) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// CacheKey is a stable textual form of the request
func (q QueryRequest) CacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "p=%d;l=%d;s=%s;c=%s", q.Page, q.Limit, strings.ToLower(q.Search), q.Class)
	if q.MinScore != nil {
		fmt.Fprintf(&b, ";min=%d", *q.MinScore)
	}
	if q.MaxScore != nil {
		fmt.Fprintf(&b, ";max=%d", *q.MaxScore)
	}
	fmt.Fprintf(&b, ";sort=%s;order=%s", q.Sort, q.Order)
	return b.String()
}

// QueryResult is one page of matching accounts plus totals over the whole filtered set
type QueryResult struct {
	Data            []Account
	Total           int
	TotalPages      int
	Page            int
	Limit           int
	HasNextPage     bool
	HasPreviousPage bool
}

// NewQueryResult assembles a result and derives the paging fields
func NewQueryResult(data []Account, total int, q QueryRequest) QueryResult {
	if data == nil {
		data = []Account{}
	}
	totalPages := 0
	if q.Limit > 0 {
		totalPages = (total + q.Limit - 1) / q.Limit
	}
	return QueryResult{
		Data:            data,
		Total:           total,
		TotalPages:      totalPages,
		Page:            q.Page,
		Limit:           q.Limit,
		HasNextPage:     q.Page < totalPages,
		HasPreviousPage: q.Page > 1,
	}
}
