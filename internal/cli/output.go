package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/client"
	"github.com/mcoot/rankdir/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	out    io.Writer
	errOut io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, out, errOut io.Writer) *Output {
	return &Output{format: format, out: out, errOut: errOut}
}

func newOutput(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		if r, ok := data.(*model.QueryResult); ok {
			data = response.AccountsFromResult(r)
		}
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// errorBody is the JSON shape of a failed command
type errorBody struct {
	Message           string `json:"message"`
	State             string `json:"state,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// PrintError outputs an error. Flow errors include the resulting state.
func (o *Output) PrintError(err error) {
	body := errorBody{Message: err.Error()}
	var flowErr *model.FlowError
	if errors.As(err, &flowErr) {
		body.State = string(flowErr.State)
		if flowErr.State == model.StateAwaitingSecondFactor || errors.Is(err, model.ErrInvalidCode) {
			remaining := flowErr.RemainingAttempts
			body.RemainingAttempts = &remaining
		}
	}

	if o.format == "json" {
		data, _ := json.Marshal(map[string]errorBody{"error": body})
		_, _ = fmt.Fprintln(o.errOut, string(data))
		return
	}

	_, _ = fmt.Fprintf(o.errOut, "Error: %s\n", body.Message)
	if body.State != "" {
		_, _ = fmt.Fprintf(o.errOut, "State: %s\n", body.State)
	}
	if body.RemainingAttempts != nil {
		_, _ = fmt.Fprintf(o.errOut, "Remaining attempts: %d\n", *body.RemainingAttempts)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.out, string(data))
	} else {
		_, _ = fmt.Fprintln(o.out, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case client.Snapshot:
		o.printSnapshot(v)
	case *model.QueryResult:
		o.printQueryResult(v)
	case response.RegisterResponse:
		o.printRegistration(v)
	case response.Health:
		_, _ = fmt.Fprintf(o.out, "Status: %s\n", v.Status)
	case TOTPCode:
		_, _ = fmt.Fprintln(o.out, v.Code)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printSnapshot(s client.Snapshot) {
	_, _ = fmt.Fprintf(o.out, "State: %s\n", s.State)
	if s.Username != "" {
		_, _ = fmt.Fprintf(o.out, "User: %s\n", s.Username)
	}
	if len(s.PendingGates) > 0 {
		gates := make([]string, len(s.PendingGates))
		for i, g := range s.PendingGates {
			gates[i] = string(g)
		}
		_, _ = fmt.Fprintf(o.out, "Pending: %s\n", strings.Join(gates, ", "))
	}
	if s.State == model.StateAwaitingSecondFactor {
		_, _ = fmt.Fprintf(o.out, "Remaining attempts: %d\n", s.RemainingAttempts)
	}
	if !s.ExpiresAt.IsZero() && !s.State.Terminal() && s.State != model.StateAnonymous {
		_, _ = fmt.Fprintf(o.out, "Expires: %s\n", s.ExpiresAt.Format(time.RFC3339))
	}
}

func (o *Output) printRegistration(r response.RegisterResponse) {
	_, _ = fmt.Fprintf(o.out, "Registered: %s (%d)\n", r.Username, r.AccountID)
	if r.ProvisioningURI != "" {
		_, _ = fmt.Fprintf(o.out, "Authenticator URI: %s\n", r.ProvisioningURI)
	}
}

func (o *Output) printQueryResult(r *model.QueryResult) {
	w := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tUSERNAME\tCLASS\tSCORE\tID")
	for _, a := range r.Data {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", a.Rank, a.Username, a.Class, a.Score, a.ID)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(o.out, "\nPage %d of %d (%d accounts)\n", r.Page, r.TotalPages, r.Total)
}
