// Package ranking evaluates directory queries over an in-memory account set.
// It is shared by every storage backend that cannot push the query down.
package ranking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mcoot/rankdir/internal/model"
)

// AssignRanks sets competition ranks by score descending: equal scores share
// a rank and the following rank skips (1, 2, 2, 4). The slice is not reordered.
func AssignRanks(accounts []model.Account) {
	order := make([]int, len(accounts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(accounts[b].Score, accounts[a].Score)
	})

	for pos, idx := range order {
		if pos > 0 && accounts[order[pos-1]].Score == accounts[idx].Score {
			accounts[idx].Rank = accounts[order[pos-1]].Rank
			continue
		}
		accounts[idx].Rank = pos + 1
	}
}

// Matches reports whether an account satisfies every filter in the request
func Matches(a model.Account, q model.QueryRequest) bool {
	if q.Search != "" && !strings.Contains(strings.ToLower(a.Username), strings.ToLower(q.Search)) {
		return false
	}
	if q.Class != "" && a.Class != q.Class {
		return false
	}
	if q.MinScore != nil && a.Score < *q.MinScore {
		return false
	}
	if q.MaxScore != nil && a.Score > *q.MaxScore {
		return false
	}
	return true
}

// Compare orders two accounts by the requested field and direction.
// Ties always fall back to id ascending.
func Compare(a, b model.Account, field model.SortField, order model.Order) int {
	var c int
	switch field {
	case model.SortRank:
		c = cmp.Compare(a.Rank, b.Rank)
	case model.SortUsername:
		c = strings.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username))
	case model.SortClass:
		c = strings.Compare(string(a.Class), string(b.Class))
	case model.SortScore:
		c = cmp.Compare(a.Score, b.Score)
	case model.SortID:
		c = cmp.Compare(a.ID, b.ID)
	}
	if order == model.OrderDesc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Apply filters, sorts and paginates accounts. It returns the requested page
// and the size of the filtered set. Ranks must already be assigned.
func Apply(accounts []model.Account, q model.QueryRequest) ([]model.Account, int) {
	matched := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		if Matches(a, q) {
			matched = append(matched, a)
		}
	}

	slices.SortFunc(matched, func(a, b model.Account) int {
		return Compare(a, b, q.Sort, q.Order)
	})

	total := len(matched)
	start := q.Offset()
	if start >= total || start < 0 {
		return []model.Account{}, total
	}
	end := min(start+q.Limit, total)
	return matched[start:end], total
}
