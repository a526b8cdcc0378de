package cli

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/spf13/cobra"

	"github.com/mcoot/rankdir/internal/services/auth"
)

// TOTPCode is a generated second factor code
type TOTPCode struct {
	Code      string    `json:"code"`
	ValidFrom time.Time `json:"valid_from"`
}

func newTOTPCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "totp [PROVISIONING_URI]",
		Short: "Print the current second factor code for an authenticator URI or secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				key, err := otp.NewKeyFromURL(args[0])
				if err != nil {
					return fmt.Errorf("invalid provisioning URI: %w", err)
				}
				secret = key.Secret()
			}
			if secret == "" {
				return fmt.Errorf("a provisioning URI or --secret is required")
			}

			now := time.Now().UTC()
			code, err := auth.GenerateCode(secret, now)
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			out.Print(TOTPCode{Code: code, ValidFrom: now.Truncate(30 * time.Second)})
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Base32 TOTP secret")

	return cmd
}
