package request

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcoot/rankdir/internal/model"
)

// ParseQuery reads a directory query from URL parameters. Absent page and
// limit take their defaults; sort and order defaults are applied by the
// directory service.
func ParseQuery(values url.Values) (model.QueryRequest, error) {
	q := model.QueryRequest{
		Page:   model.DefaultPage,
		Limit:  model.DefaultLimit,
		Search: values.Get("search"),
		Class:  model.Class(values.Get("class")),
		Sort:   model.SortField(values.Get("sort")),
		Order:  model.Order(values.Get("order")),
	}

	var err error
	if q.Page, err = intParam(values, "page", q.Page); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(values, "limit", q.Limit); err != nil {
		return q, err
	}
	if q.MinScore, err = scoreParam(values, "minScore"); err != nil {
		return q, err
	}
	if q.MaxScore, err = scoreParam(values, "maxScore"); err != nil {
		return q, err
	}
	return q, nil
}

// Values encodes a query as URL parameters, omitting empty fields
func Values(q model.QueryRequest) url.Values {
	v := url.Values{}
	if q.Page != 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Class != "" {
		v.Set("class", string(q.Class))
	}
	if q.MinScore != nil {
		v.Set("minScore", strconv.FormatInt(*q.MinScore, 10))
	}
	if q.MaxScore != nil {
		v.Set("maxScore", strconv.FormatInt(*q.MaxScore, 10))
	}
	if q.Sort != "" {
		v.Set("sort", string(q.Sort))
	}
	if q.Order != "" {
		v.Set("order", string(q.Order))
	}
	return v
}

func intParam(values url.Values, name string, def int) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidRequest, name)
	}
	return n, nil
}

func scoreParam(values url.Values, name string) (*int64, error) {
	raw := values.Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidRequest, name)
	}
	return &n, nil
}
