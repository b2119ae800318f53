package mockapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-fleet-client/fleet"
	"github.com/jrsteele09/go-fleet-client/internal/utils"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, detail("Not found."))
}

func (s *Server) DashboardStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dataset()
		writeJSON(w, http.StatusOK, fleet.DashboardStats{
			FleetStats:       d.FleetStats,
			PerformanceStats: d.PerformanceStats,
		})
	}
}

// VehicleSelectionHandler returns the summary for ?fleet_type, or the first
// fleet when none is given.
func (s *Server) VehicleSelectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dataset()
		fleetType := r.URL.Query().Get("fleet_type")

		if fleetType != "" {
			for _, rec := range d.Summaries {
				if rec.FleetType == fleetType {
					writeJSON(w, http.StatusOK, rec.summary())
					return
				}
			}
			notFound(w)
			return
		}
		if len(d.Summaries) == 0 {
			writeJSON(w, http.StatusNotFound, errorBody("No vehicle summary data found."))
			return
		}
		writeJSON(w, http.StatusOK, d.Summaries[0].summary())
	}
}

func (s *Server) VehicleAnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dataset()
		q := r.URL.Query()

		if q.Has("fetch_filters") || len(q) == 0 {
			filters := make([]fleet.VehicleType, 0, len(d.VehicleTypes))
			for _, vt := range d.VehicleTypes {
				regs := make([]fleet.Registration, 0, len(vt.Registrations))
				for _, reg := range vt.Registrations {
					regs = append(regs, fleet.Registration{ID: reg.ID, RegistrationNumber: reg.Number, Dates: reg.dates()})
				}
				filters = append(filters, fleet.VehicleType{ID: vt.ID, Name: vt.Name, Registrations: regs})
			}
			writeJSON(w, http.StatusOK, map[string]any{"filters": filters})
			return
		}

		regID, date := q.Get("registration_id"), q.Get("date")
		if regID == "" || date == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("registration_id and date parameters are required."))
			return
		}
		id, err := strconv.Atoi(regID)
		if err != nil {
			notFound(w)
			return
		}
		for _, vt := range d.VehicleTypes {
			for _, reg := range vt.Registrations {
				if reg.ID != id {
					continue
				}
				charts, ok := reg.Charts[date]
				if !ok {
					notFound(w)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"charts": charts})
				return
			}
		}
		notFound(w)
	}
}

func (s *Server) TrailsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dataset()
		q := r.URL.Query()

		if q.Has("fetch_filters") || len(q) == 0 {
			filters := make([]fleet.TrailVehicle, 0, len(d.TrailVehicles))
			for _, v := range d.TrailVehicles {
				filters = append(filters, v.filter())
			}
			writeJSON(w, http.StatusOK, map[string]any{"filters": filters})
			return
		}

		vehicleID, date := q.Get("vehicle_id"), q.Get("date")
		if vehicleID == "" || date == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("vehicle_id and date parameters are required."))
			return
		}
		id, err := strconv.Atoi(vehicleID)
		if err != nil {
			notFound(w)
			return
		}
		for _, v := range d.TrailVehicles {
			if v.ID != id {
				continue
			}
			day, ok := v.Days[date]
			if !ok || len(day.Path) == 0 {
				writeJSON(w, http.StatusNotFound, errorBody("No trail data found for the specified vehicle and date."))
				return
			}
			writeJSON(w, http.StatusOK, fleet.Trail{Metrics: day.Metrics, ECUData: day.ECU, TrailPath: day.Path})
			return
		}
		notFound(w)
	}
}

// ReportsHandler serves the filter lists with ?fetch_filters and otherwise a
// page of reports, newest first.
func (s *Server) ReportsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dataset()
		q := r.URL.Query()

		if q.Has("fetch_filters") {
			writeJSON(w, http.StatusOK, d.ReportFilters())
			return
		}

		results := d.filterReports(reportFilter{
			start:          q.Get("start_date"),
			end:            q.Get("end_date"),
			reportType:     q.Get("report_type"),
			vehicleType:    q.Get("vehicle_type"),
			registrationNo: q.Get("registration_no"),
		})

		pageSize := defaultPageSize
		if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
			pageSize = min(v, maxPageSize)
		}
		page := 1
		if raw := q.Get("page"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				writeJSON(w, http.StatusNotFound, detail("Invalid page."))
				return
			}
			page = v
		}

		count := len(results)
		lastPage := max(1, (count+pageSize-1)/pageSize)
		if page > lastPage {
			writeJSON(w, http.StatusNotFound, detail("Invalid page."))
			return
		}

		lo := (page - 1) * pageSize
		hi := min(lo+pageSize, count)
		out := fleet.ReportPage{Count: count, Results: results[lo:hi]}
		if page < lastPage {
			out.Next = utils.Ptr(pageURL(r, page+1))
		}
		if page > 1 {
			out.Previous = utils.Ptr(pageURL(r, page-1))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// pageURL rebuilds the absolute request URL for page. Page 1 drops the page
// parameter.
func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}
