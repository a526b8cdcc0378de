package response

import (
	"time"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/services/auth"
)

// Account represents a directory entry in API responses
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Rank     int    `json:"rank"`
	Class    string `json:"class"`
	Score    int64  `json:"score"`
}

// AccountFromModel converts a model.Account to a response Account
func AccountFromModel(a model.Account) Account {
	return Account{
		ID:       int64(a.ID),
		Username: a.Username,
		Rank:     a.Rank,
		Class:    string(a.Class),
		Score:    a.Score,
	}
}

// ToModel converts back to a model.Account
func (a Account) ToModel() model.Account {
	return model.Account{
		ID:       model.AccountID(a.ID),
		Username: a.Username,
		Rank:     a.Rank,
		Class:    model.Class(a.Class),
		Score:    a.Score,
	}
}

// AccountsResponse is one page of the directory
type AccountsResponse struct {
	Data            []Account `json:"data"`
	Total           int       `json:"total"`
	TotalPages      int       `json:"total_pages"`
	Page            int       `json:"page"`
	Limit           int       `json:"limit"`
	HasNextPage     bool      `json:"has_next_page"`
	HasPreviousPage bool      `json:"has_previous_page"`
}

// AccountsFromResult converts a model.QueryResult
func AccountsFromResult(r *model.QueryResult) AccountsResponse {
	data := make([]Account, len(r.Data))
	for i, a := range r.Data {
		data[i] = AccountFromModel(a)
	}
	return AccountsResponse{
		Data:            data,
		Total:           r.Total,
		TotalPages:      r.TotalPages,
		Page:            r.Page,
		Limit:           r.Limit,
		HasNextPage:     r.HasNextPage,
		HasPreviousPage: r.HasPreviousPage,
	}
}

// ToModel converts back to a model.QueryResult
func (r AccountsResponse) ToModel() *model.QueryResult {
	data := make([]model.Account, len(r.Data))
	for i, a := range r.Data {
		data[i] = a.ToModel()
	}
	return &model.QueryResult{
		Data:            data,
		Total:           r.Total,
		TotalPages:      r.TotalPages,
		Page:            r.Page,
		Limit:           r.Limit,
		HasNextPage:     r.HasNextPage,
		HasPreviousPage: r.HasPreviousPage,
	}
}

// FlowStatus is the response for every authentication flow endpoint
type FlowStatus struct {
	Handle            string    `json:"handle"`
	State             string    `json:"state"`
	PendingGates      []string  `json:"pending_gates,omitempty"`
	RemainingAttempts int       `json:"remaining_attempts,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
	Credential        string    `json:"credential,omitempty"`
}

// FlowStatusFromService converts an auth.Status
func FlowStatusFromService(s *auth.Status) FlowStatus {
	gates := make([]string, len(s.PendingGates))
	for i, g := range s.PendingGates {
		gates[i] = string(g)
	}
	return FlowStatus{
		Handle:            s.Handle,
		State:             string(s.State),
		PendingGates:      gates,
		RemainingAttempts: s.RemainingAttempts,
		ExpiresAt:         s.ExpiresAt,
		Credential:        s.Credential,
	}
}

// RegisterResponse is the response for account registration
type RegisterResponse struct {
	AccountID       int64  `json:"account_id"`
	Username        string `json:"username"`
	ProvisioningURI string `json:"provisioning_uri,omitempty"`
}

// RegisterFromService converts an auth.Registration
func RegisterFromService(r *auth.Registration) RegisterResponse {
	return RegisterResponse{
		AccountID:       int64(r.AccountID),
		Username:        r.Username,
		ProvisioningURI: r.ProvisioningURI,
	}
}

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
}
