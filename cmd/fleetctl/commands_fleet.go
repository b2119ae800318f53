package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-fleet-client/fleet"
)

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(fleet.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// newGetCmd issues an authenticated GET for any API path and prints the raw body.
func newGetCmd(current func() *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "GET an API path on the base URL, e.g. /dashboard-stats/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, want key=value", p)
				}
				query.Add(k, v)
			}
			resp, err := current().client.Get(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimRight(string(resp.Body), "\n"))
			if resp.StatusCode >= http.StatusBadRequest {
				return resp.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "q", nil, "Query parameter key=value (repeatable)")
	return cmd
}

func newDashboardCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show fleet and performance stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := current().fleet.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newVehiclesCmd(current func() *app) *cobra.Command {
	var fleetType string
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Show the vehicle summary of a fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := current().fleet.VehicleSelection(cmd.Context(), fleetType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&fleetType, "fleet-type", "", "Fleet type, e.g. \"Eka 7\" (defaults to the first fleet)")
	return cmd
}

func newAnalysisCmd(current func() *app) *cobra.Command {
	var (
		registrationID int
		date           string
	)
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "List analysis filters, or show charts for a registration and date",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := current().fleet
			if registrationID == 0 {
				filters, err := svc.VehicleAnalysisFilters(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), filters)
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			if day.IsZero() {
				return fmt.Errorf("--date is required with --registration-id")
			}
			charts, err := svc.VehicleAnalysisCharts(cmd.Context(), registrationID, day)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), charts)
		},
	}
	cmd.Flags().IntVar(&registrationID, "registration-id", 0, "Registration id")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD)")
	return cmd
}

func newTrailsCmd(current func() *app) *cobra.Command {
	var (
		vehicleID int
		date      string
	)
	cmd := &cobra.Command{
		Use:   "trails",
		Short: "List trail vehicles, or show a vehicle's trail for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := current().fleet
			if vehicleID == 0 {
				vehicles, err := svc.TrailFilters(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vehicles)
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			if day.IsZero() {
				return fmt.Errorf("--date is required with --vehicle-id")
			}
			trail, err := svc.Trail(cmd.Context(), vehicleID, day)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), trail)
		},
	}
	cmd.Flags().IntVar(&vehicleID, "vehicle-id", 0, "Vehicle id")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD)")
	return cmd
}

func newReportsCmd(current func() *app) *cobra.Command {
	var (
		q           fleet.ReportQuery
		from, to    string
		listFilters bool
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := current().fleet
			if listFilters {
				filters, err := svc.ReportFilters(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), filters)
			}
			var err error
			if q.StartDate, err = parseDate(from); err != nil {
				return err
			}
			if q.EndDate, err = parseDate(to); err != nil {
				return err
			}
			page, err := svc.Reports(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().BoolVar(&listFilters, "filters", false, "List the available filter values instead")
	cmd.Flags().IntVar(&q.Page, "page", 0, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 0, "Results per page")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD), used with --to")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD), used with --from")
	cmd.Flags().StringVar(&q.ReportType, "type", "", "Report type")
	cmd.Flags().StringVar(&q.VehicleType, "vehicle-type", "", "Vehicle type")
	cmd.Flags().StringVar(&q.RegistrationNo, "registration", "", "Registration number")
	return cmd
}

func newUsersCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List accounts (superusers only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := current().fleet.Users(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
}

func newHealthCmd(current func() *app) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the backend health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := current().fleet
			if wait {
				ctx := cmd.Context()
				if timeout > 0 {
					var cancel func()
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				if err := svc.WaitHealthy(ctx); err != nil {
					return err
				}
			}
			h, err := svc.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Retry with backoff until the backend is healthy")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this long")
	return cmd
}
