package cli

import (
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := api.Health(cmd.Context())
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			out.Print(*result)
			return nil
		},
	}
}
