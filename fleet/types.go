package fleet

import (
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-fleet-client/session"
)

// DateLayout is the format of every date query parameter and date list.
const DateLayout = "2006-01-02"

// ReportTimeLayout is the format of Report.Name.
const ReportTimeLayout = "02 Jan 2006, 15:04"

type FleetStat struct {
	Title   string `json:"title"`
	Value   int    `json:"value"`
	Active  int    `json:"active"`
	Special bool   `json:"special"`
}

type DashboardStats struct {
	FleetStats []FleetStat `json:"fleet_stats"`

	// PerformanceStats maps a stat key such as "total_distance" to its
	// display value, e.g. "12,500 km".
	PerformanceStats map[string]string `json:"performance_stats"`
}

type SummaryItem struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

type Vehicle struct {
	Name    string `json:"name"`
	Rating  string `json:"rating"`
	Speed   int    `json:"speed"`
	SOC     int    `json:"soc"`
	Range   int    `json:"range"`
	Temp    int    `json:"temp"`
	Address string `json:"address"`
}

type VehicleSummary struct {
	FleetName   string        `json:"fleet_name"`
	SummaryData []SummaryItem `json:"summary_data"`
	Vehicles    []Vehicle     `json:"vehicles"`
}

type Registration struct {
	ID                 int      `json:"id"`
	RegistrationNumber string   `json:"registration_number"`
	Dates              []string `json:"dates"`
}

type VehicleType struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Registrations []Registration `json:"registrations"`
}

type Series struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

type Chart struct {
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

type VehicleCharts struct {
	BatteryData     Chart `json:"battery_data"`
	TemperatureData Chart `json:"temperature_data"`
	VoltageData     Chart `json:"voltage_data"`
	CurrentData     Chart `json:"current_data"`
}

type TrailVehicle struct {
	ID             int      `json:"id"`
	VehicleType    string   `json:"vehicle_type"`
	RegistrationNo string   `json:"registration_no"`
	Fleet          string   `json:"fleet"`
	AvailableDates []string `json:"available_dates"`
}

type Metric struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

type Control struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ECU struct {
	Name     string    `json:"name"`
	Controls []Control `json:"controls"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Trail struct {
	Metrics   map[string]Metric `json:"metrics"`
	ECUData   []ECU             `json:"ecu_data"`
	TrailPath []Coordinate      `json:"trail_path"`
}

type Report struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	VehicleType        string `json:"vehicle_type"`
	RegistrationNumber string `json:"registration_number"`
	ReportType         string `json:"report_type"`
	Col2               string `json:"col2"`
	Signal             string `json:"signal"`
	Signal0            string `json:"signal0"`
	Signal1            string `json:"signal1"`
	Signal2            string `json:"signal2"`
}

// Time parses Name.
func (r Report) Time() (time.Time, error) {
	return time.Parse(ReportTimeLayout, r.Name)
}

type ReportPage struct {
	Count    int      `json:"count"`
	Next     *string  `json:"next"`
	Previous *string  `json:"previous"`
	Results  []Report `json:"results"`
}

type ReportFilters struct {
	ReportTypes   []string            `json:"reportTypes"`
	VehicleTypes  []string            `json:"vehicleTypes"`
	Registrations map[string][]string `json:"registrations"`
	Dates         []string            `json:"dates"`
}

// ReportQuery filters and pages the report list. Zero values are omitted.
// The date range applies only when both ends are set.
type ReportQuery struct {
	Page           int
	PageSize       int
	StartDate      time.Time
	EndDate        time.Time
	ReportType     string
	VehicleType    string
	RegistrationNo string
}

func (q ReportQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() {
		v.Set("start_date", q.StartDate.Format(DateLayout))
		v.Set("end_date", q.EndDate.Format(DateLayout))
	}
	if q.ReportType != "" {
		v.Set("report_type", q.ReportType)
	}
	if q.VehicleType != "" {
		v.Set("vehicle_type", q.VehicleType)
	}
	if q.RegistrationNo != "" {
		v.Set("registration_no", q.RegistrationNo)
	}
	return v
}

type Health struct {
	Status string `json:"status"`
}

// User is re-exported for the admin users list.
type User = session.User
