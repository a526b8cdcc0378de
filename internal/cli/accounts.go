package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/rankdir/internal/model"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Directory commands",
	}

	cmd.AddCommand(newAccountsListCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var (
		q                  model.QueryRequest
		class, sort, order string
		minScore, maxScore int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of the account directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Class = model.Class(class)
			q.Sort = model.SortField(sort)
			q.Order = model.Order(order)
			if cmd.Flags().Changed("min-score") {
				q.MinScore = &minScore
			}
			if cmd.Flags().Changed("max-score") {
				q.MaxScore = &maxScore
			}

			result, err := ctrl.QueryAccounts(cmd.Context(), q)
			if saveErr := cfg.SaveState(ctrl.Snapshot()); saveErr != nil && err == nil {
				err = saveErr
			}
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&q.Page, "page", model.DefaultPage, "Page number")
	cmd.Flags().IntVar(&q.Limit, "limit", model.DefaultLimit, "Accounts per page")
	cmd.Flags().StringVar(&q.Search, "search", "", "Case-insensitive username substring")
	cmd.Flags().StringVar(&class, "class", "", "Only accounts of this class")
	cmd.Flags().Int64Var(&minScore, "min-score", 0, "Minimum score (inclusive)")
	cmd.Flags().Int64Var(&maxScore, "max-score", 0, "Maximum score (inclusive)")
	cmd.Flags().StringVar(&sort, "sort", "", "Sort field: rank, username, class, score")
	cmd.Flags().StringVar(&order, "order", "", "Sort order: asc, desc")

	return cmd
}
