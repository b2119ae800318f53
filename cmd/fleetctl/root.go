package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-fleet-client/internal/config"
)

// newRootCmd builds the command tree. Every subcommand gets a fresh app in
// PersistentPreRunE and closes it afterwards.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		baseURL string
		debug   bool
		a       *app
	)

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Command line client for the fleet dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, appOptions{baseURL: baseURL, debug: debug, stderr: stderr})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (overrides FLEET_API_BASE_URL)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Dump HTTP requests and responses to stderr")

	current := func() *app { return a }
	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(current),
		newLogoutCmd(current),
		newWhoamiCmd(current),
		newRegisterCmd(current),
		newGetCmd(current),
		newDashboardCmd(current),
		newVehiclesCmd(current),
		newAnalysisCmd(current),
		newTrailsCmd(current),
		newReportsCmd(current),
		newUsersCmd(current),
		newHealthCmd(current),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// newVersionCmd needs no session, so it skips the root hooks.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the banner and version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, figure.NewFigure(cfg.GetAppName(), "cybermedium", true).String())
			fmt.Fprintf(out, "fleetctl %s\n", version)
			return nil
		},
	}
}
