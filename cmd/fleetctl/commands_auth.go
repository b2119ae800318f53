package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-fleet-client/auth"
	"github.com/jrsteele09/go-fleet-client/internal/utils"
	"github.com/jrsteele09/go-fleet-client/session"
)

// storedSession is what whoami --offline prints.
type storedSession struct {
	User           *session.User `json:"user"`
	TokenExpiresAt *time.Time    `json:"access_token_expires_at,omitempty"`
	TokenExpired   bool          `json:"access_token_expired"`
}

func newLoginCmd(current func() *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := utils.FirstNonEmpty(password, os.Getenv("FLEET_PASSWORD"))
			user, err := current().auth.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (defaults to FLEET_PASSWORD)")
	return cmd
}

func newLogoutCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current().auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(current func() *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			if offline {
				snap := a.state.Snapshot()
				if !snap.Authenticated || snap.User == nil {
					return auth.ErrNotAuthenticated
				}
				out := storedSession{User: snap.User, TokenExpired: snap.TokenExpired(time.Now())}
				if !snap.TokenExpiry.IsZero() {
					out.TokenExpiresAt = &snap.TokenExpiry
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			user, err := a.auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Print the stored user and token expiry without calling the API")
	return cmd
}

func newRegisterCmd(current func() *app) *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := current().auth.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "User name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password")
	cmd.Flags().StringVar(&req.Role, "role", "", "superuser, fleet_owner, sales or service")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
