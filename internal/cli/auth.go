package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/client"
)

// runFlow runs a flow step, saves the resulting state whatever the outcome,
// then prints it
func runFlow(cmd *cobra.Command, step func(ctx context.Context) (client.Snapshot, error)) error {
	snap, err := step(cmd.Context())
	if saveErr := cfg.SaveState(ctrl.Snapshot()); saveErr != nil {
		return fmt.Errorf("failed to save state: %w", saveErr)
	}
	if err != nil {
		return err
	}

	out := newOutput(cmd)
	out.Print(snap)
	return nil
}

func newRegisterCmd() *cobra.Command {
	var req request.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("RANKDIR_PASSWORD")
			}

			result, err := ctrl.Register(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			out.Print(*result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "user", "", "Username (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&req.Password, "pass", "", "Password (env: RANKDIR_PASSWORD)")
	cmd.Flags().StringVar(&req.Class, "class", "", "Character class (default warrior)")
	cmd.Flags().BoolVar(&req.EnableTwoFactor, "two-factor", false, "Enroll an authenticator for second factor codes")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var user, pass string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and start the authentication flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass == "" {
				pass = os.Getenv("RANKDIR_PASSWORD")
			}
			if pass == "" {
				return fmt.Errorf("--pass or RANKDIR_PASSWORD is required")
			}

			return runFlow(cmd, func(ctx context.Context) (client.Snapshot, error) {
				return ctrl.Login(ctx, user, pass)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (env: RANKDIR_PASSWORD)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newSecondFactorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "2fa CODE",
		Short: "Submit a second factor code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, func(ctx context.Context) (client.Snapshot, error) {
				return ctrl.SubmitSecondFactor(ctx, args[0])
			})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Submit the emailed verification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, func(ctx context.Context) (client.Snapshot, error) {
				return ctrl.VerifyEmail(ctx, args[0])
			})
		},
	}
}

func newResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend",
		Short: "Request a new verification email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, ctrl.ResendVerification)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the authentication flow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				out := newOutput(cmd)
				out.Print(ctrl.Snapshot())
				return nil
			}
			return runFlow(cmd, ctrl.Refresh)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Show the saved state without asking the server")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			logoutErr := ctrl.Logout(cmd.Context())
			if err := cfg.SaveState(ctrl.Snapshot()); err != nil {
				return fmt.Errorf("failed to save state: %w", err)
			}

			out := newOutput(cmd)
			if logoutErr != nil {
				out.PrintMessage(fmt.Sprintf("Logged out locally (server: %v)", logoutErr))
				return nil
			}
			out.PrintMessage("Logged out")
			return nil
		},
	}
}
