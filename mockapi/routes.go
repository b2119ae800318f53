package mockapi

import "net/http"

const (
	RouteLogin            = "/auth/login/"
	RouteLogout           = "/auth/logout/"
	RouteRegister         = "/auth/register/"
	RouteRefresh          = "/auth/token/refresh/"
	RouteMe               = "/auth/me/"
	RouteUsers            = "/users/list/"
	RouteHealth           = "/health/"
	RouteDashboardStats   = "/dashboard-stats/"
	RouteVehicleSelection = "/vehicle-selection/"
	RouteVehicleAnalysis  = "/vehicle-analysis/"
	RouteTrails           = "/trails/"
	RouteReports          = "/reports/"
)

func (s *Server) initRoutes() {
	public := s.APIMiddleware()
	protected := s.APIMiddleware(s.RequireAuth)
	admin := s.APIMiddleware(s.RequireAuth, s.RequireAdmin)

	s.route(http.MethodPost, RouteLogin, s.LoginHandler(), public)
	s.route(http.MethodPost, RouteRegister, s.RegisterHandler(), public)
	s.route(http.MethodPost, RouteRefresh, s.RefreshHandler(), public)
	s.route(http.MethodGet, RouteHealth, s.HealthHandler(), public)

	s.route(http.MethodPost, RouteLogout, s.LogoutHandler(), protected)
	s.route(http.MethodGet, RouteMe, s.MeHandler(), protected)
	s.route(http.MethodGet, RouteDashboardStats, s.DashboardStatsHandler(), protected)
	s.route(http.MethodGet, RouteVehicleSelection, s.VehicleSelectionHandler(), protected)
	s.route(http.MethodGet, RouteVehicleAnalysis, s.VehicleAnalysisHandler(), protected)
	s.route(http.MethodGet, RouteTrails, s.TrailsHandler(), protected)
	s.route(http.MethodGet, RouteReports, s.ReportsHandler(), protected)

	s.route(http.MethodGet, RouteUsers, s.UsersHandler(), admin)
}

func (s *Server) route(method, path string, h http.HandlerFunc, mw []func(http.HandlerFunc) http.HandlerFunc) {
	s.RegisterRouteFunc(method+" "+s.prefix+path, ChainMiddleware(h, mw...))
}
