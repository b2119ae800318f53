// Package fleet is a typed client for the fleet dashboard endpoints.
package fleet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-fleet-client/apiclient"
	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
)

const (
	healthPath           = "/health/"
	dashboardStatsPath   = "/dashboard-stats/"
	vehicleSelectionPath = "/vehicle-selection/"
	vehicleAnalysisPath  = "/vehicle-analysis/"
	trailsPath           = "/trails/"
	reportsPath          = "/reports/"
	usersPath            = "/users/list/"
)

var (
	// ErrNotFound wraps every 404 from the backend.
	ErrNotFound = apperrors.ErrNotFound

	// ErrUnhealthy is returned by Health when the backend answers with a
	// status other than "ok".
	ErrUnhealthy = apperrors.ErrUnhealthy
)

type Service struct {
	client *apiclient.Client
	logger zerolog.Logger

	healthInitialInterval time.Duration
	healthMaxInterval     time.Duration
	healthMaxElapsed      time.Duration
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHealthBackoff tunes WaitHealthy. maxElapsed of zero waits until the
// context is done.
func WithHealthBackoff(initial, max, maxElapsed time.Duration) Option {
	return func(s *Service) {
		s.healthInitialInterval = initial
		s.healthMaxInterval = max
		s.healthMaxElapsed = maxElapsed
	}
}

func NewService(client *apiclient.Client, opts ...Option) *Service {
	if client == nil {
		panic("[fleet.NewService] client is required")
	}
	s := &Service{
		client:                client,
		logger:                log.Logger,
		healthInitialInterval: 500 * time.Millisecond,
		healthMaxInterval:     5 * time.Second,
		healthMaxElapsed:      time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) get(ctx context.Context, path string, query url.Values, out any) error {
	err := s.client.GetJSON(ctx, path, query, out)
	if apiclient.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func fetchFilters() url.Values {
	return url.Values{"fetch_filters": []string{"true"}}
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	if err := s.get(ctx, dashboardStatsPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VehicleSelection returns the summary for fleetType, or the first fleet when
// fleetType is empty.
func (s *Service) VehicleSelection(ctx context.Context, fleetType string) (*VehicleSummary, error) {
	var query url.Values
	if fleetType != "" {
		query = url.Values{"fleet_type": []string{fleetType}}
	}
	var out VehicleSummary
	if err := s.get(ctx, vehicleSelectionPath, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VehicleAnalysisFilters lists vehicle types with their registrations and the
// dates that have chart data.
func (s *Service) VehicleAnalysisFilters(ctx context.Context) ([]VehicleType, error) {
	var out struct {
		Filters []VehicleType `json:"filters"`
	}
	if err := s.get(ctx, vehicleAnalysisPath, fetchFilters(), &out); err != nil {
		return nil, err
	}
	return out.Filters, nil
}

func (s *Service) VehicleAnalysisCharts(ctx context.Context, registrationID int, date time.Time) (*VehicleCharts, error) {
	query := url.Values{
		"registration_id": []string{strconv.Itoa(registrationID)},
		"date":            []string{date.Format(DateLayout)},
	}
	var out struct {
		Charts VehicleCharts `json:"charts"`
	}
	if err := s.get(ctx, vehicleAnalysisPath, query, &out); err != nil {
		return nil, err
	}
	return &out.Charts, nil
}

func (s *Service) TrailFilters(ctx context.Context) ([]TrailVehicle, error) {
	var out struct {
		Filters []TrailVehicle `json:"filters"`
	}
	if err := s.get(ctx, trailsPath, fetchFilters(), &out); err != nil {
		return nil, err
	}
	return out.Filters, nil
}

func (s *Service) Trail(ctx context.Context, vehicleID int, date time.Time) (*Trail, error) {
	query := url.Values{
		"vehicle_id": []string{strconv.Itoa(vehicleID)},
		"date":       []string{date.Format(DateLayout)},
	}
	var out Trail
	if err := s.get(ctx, trailsPath, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ReportFilters(ctx context.Context) (*ReportFilters, error) {
	var out ReportFilters
	if err := s.get(ctx, reportsPath, fetchFilters(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Reports(ctx context.Context, q ReportQuery) (*ReportPage, error) {
	var out ReportPage
	if err := s.get(ctx, reportsPath, q.Values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users lists every account. Only superusers may call it; others get a 403
// *apiclient.HTTPError.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := s.get(ctx, usersPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := s.get(ctx, healthPath, nil, &out); err != nil {
		return nil, err
	}
	if out.Status != "ok" {
		return &out, fmt.Errorf("%w: status %q", ErrUnhealthy, out.Status)
	}
	return &out, nil
}

// WaitHealthy polls the health endpoint with exponential backoff until it
// reports "ok", the context ends or the backoff gives up.
func (s *Service) WaitHealthy(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.healthInitialInterval
	exp.MaxInterval = s.healthMaxInterval
	exp.MaxElapsedTime = s.healthMaxElapsed
	exp.Reset()

	attempt := 0
	op := func() error {
		attempt++
		_, err := s.Health(ctx)
		if apperrors.Is(err, apiclient.ErrSessionExpired) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("backend not healthy yet")
	}
	return backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
}
