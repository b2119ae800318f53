package mockapi

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-fleet-client/fleet"
)

type summaryRecord struct {
	FleetType string
	Totals    [6]string
	Vehicles  []fleet.Vehicle
}

var summaryTitles = [6]struct{ title, unit string }{
	{"Total Distance", "km"},
	{"CO2 Savings", "kg"},
	{"Avg. Energy Consumption", "kWh"},
	{"Run Time", "hrs"},
	{"Traction Energy", "MWh"},
	{"Regen. Energy", "MWh"},
}

// summary renders a record. Each value is the leading number of the stored
// figure, e.g. "1280 km" becomes "1280".
func (r summaryRecord) summary() fleet.VehicleSummary {
	items := make([]fleet.SummaryItem, 0, len(r.Totals))
	for i, total := range r.Totals {
		value := ""
		if fields := strings.Fields(total); len(fields) > 0 {
			value = fields[0]
		}
		items = append(items, fleet.SummaryItem{Title: summaryTitles[i].title, Value: value, Unit: summaryTitles[i].unit})
	}
	vehicles := r.Vehicles
	if vehicles == nil {
		vehicles = []fleet.Vehicle{}
	}
	return fleet.VehicleSummary{FleetName: r.FleetType, SummaryData: items, Vehicles: vehicles}
}

type registrationRecord struct {
	ID     int
	Number string
	Charts map[string]fleet.VehicleCharts
}

func (r registrationRecord) dates() []string {
	dates := make([]string, 0, len(r.Charts))
	for d := range r.Charts {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

type vehicleTypeRecord struct {
	ID            int
	Name          string
	Registrations []registrationRecord
}

type trailDay struct {
	Metrics map[string]fleet.Metric
	ECU     []fleet.ECU
	Path    []fleet.Coordinate
}

type trailVehicleRecord struct {
	ID             int
	VehicleType    string
	RegistrationNo string
	Fleet          string
	Days           map[string]trailDay
}

func (v trailVehicleRecord) filter() fleet.TrailVehicle {
	dates := make([]string, 0, len(v.Days))
	for d := range v.Days {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return fleet.TrailVehicle{
		ID:             v.ID,
		VehicleType:    v.VehicleType,
		RegistrationNo: v.RegistrationNo,
		Fleet:          v.Fleet,
		AvailableDates: dates,
	}
}

type reportRecord struct {
	Report fleet.Report
	At     time.Time
}

// Dataset is the fleet data served by the mock backend. Dates are relative to
// the day it was built.
type Dataset struct {
	FleetStats       []fleet.FleetStat
	PerformanceStats map[string]string
	Summaries        []summaryRecord
	VehicleTypes     []vehicleTypeRecord
	TrailVehicles    []trailVehicleRecord
	Reports          []reportRecord
}

// NewDataset builds the seed data. The same now always yields the same data.
func NewDataset(now time.Time) *Dataset {
	rng := rand.New(rand.NewPCG(uint64(now.YearDay()), 42))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	d := &Dataset{
		FleetStats: []fleet.FleetStat{
			{Title: "EKA 7", Value: 12, Active: 8, Special: true},
			{Title: "EKA 9", Value: 8, Active: 6},
			{Title: "EKA 12", Value: 5, Active: 5},
			{Title: "EKA Low Floor", Value: 10, Active: 9},
			{Title: "EKA Coach", Value: 3, Active: 2},
			{Title: "EKA 2.5T", Value: 15, Active: 15},
		},
		PerformanceStats: map[string]string{
			"total_distance":         "12,500 km",
			"co2_savings":            "1.2 tons",
			"avg_energy_consumption": "0.8 kWh/km",
			"total_run_time":         "350 hrs",
			"traction_energy":        "10 MWh",
			"regen_energy":           "1.5 MWh",
		},
		Summaries: []summaryRecord{{
			FleetType: "Eka 7",
			Totals:    [6]string{"1280 km", "150 kg", "0.9 kWh", "45 hrs", "1.1 MWh", "0.2 MWh"},
			Vehicles: []fleet.Vehicle{
				{Name: "MH12 AB 1234", Rating: "4.8", Speed: 25, SOC: 78, Range: 90, Temp: 32, Address: "Near Balewadi High Street, Pune"},
				{Name: "MH14 CD 5678", Rating: "4.5", Speed: 0, SOC: 92, Range: 110, Temp: 28, Address: "Parked at Baner, Pune"},
				{Name: "MH01 EF 9101", Rating: "4.9", Speed: 40, SOC: 65, Range: 75, Temp: 35, Address: "Enroute Hinjewadi Phase 3, Pune"},
			},
		}},
	}

	days := []time.Time{today, yesterday}
	regID := 0
	addRegistration := func(number string) registrationRecord {
		regID++
		charts := make(map[string]fleet.VehicleCharts, len(days))
		for _, day := range days {
			charts[day.Format(fleet.DateLayout)] = seedCharts(rng)
		}
		return registrationRecord{ID: regID, Number: number, Charts: charts}
	}
	d.VehicleTypes = []vehicleTypeRecord{
		{ID: 1, Name: "Eka 7", Registrations: []registrationRecord{addRegistration("MH12 AB 1234"), addRegistration("MH14 CD 5678")}},
		{ID: 2, Name: "Eka 9", Registrations: []registrationRecord{addRegistration("MH01 EF 9101")}},
	}

	d.TrailVehicles = []trailVehicleRecord{
		{
			ID: 1, VehicleType: "EKA 9", RegistrationNo: "MH 14 AB 1234", Fleet: "PMPML",
			Days: map[string]trailDay{
				today.Format(fleet.DateLayout):     seedTrailDay(rng, 18.5204, 73.8567, 10),
				yesterday.Format(fleet.DateLayout): seedTrailDay(rng, 18.5204, 73.8567, 10),
			},
		},
		{
			ID: 2, VehicleType: "EKA 7", RegistrationNo: "MH 01 CD 5678", Fleet: "BEST",
			Days: map[string]trailDay{
				today.Format(fleet.DateLayout): seedTrailDay(rng, 19.0760, 72.8777, 8),
			},
		},
		{ID: 3, VehicleType: "EKA 7", RegistrationNo: "MH 01 CD 5679", Fleet: "BEST", Days: map[string]trailDay{}},
	}

	d.Reports = seedReports(rng, today, d.VehicleTypes)
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func chartLabels() []string {
	labels := make([]string, 0, 40)
	for t := 8 * 60; t < 18*60; t += 15 {
		labels = append(labels, fmt.Sprintf("%02d:%02d", t/60, t%60))
	}
	return labels
}

func seedSeries(rng *rand.Rand, name string, n int, lo, hi float64) fleet.Series {
	data := make([]float64, n)
	for i := range data {
		data[i] = round2(lo + rng.Float64()*(hi-lo))
	}
	return fleet.Series{Name: name, Data: data}
}

func seedCharts(rng *rand.Rand) fleet.VehicleCharts {
	labels := chartLabels()
	n := len(labels)
	return fleet.VehicleCharts{
		BatteryData: fleet.Chart{Labels: labels, Series: []fleet.Series{
			seedSeries(rng, "A Pack", n, 40, 100),
			seedSeries(rng, "B Pack", n, 40, 100),
		}},
		TemperatureData: fleet.Chart{Labels: labels, Series: []fleet.Series{
			seedSeries(rng, "Min Temp", n, 20, 30),
			seedSeries(rng, "Max Temp", n, 30, 45),
		}},
		VoltageData: fleet.Chart{Labels: labels, Series: []fleet.Series{
			seedSeries(rng, "Voltage", n, 20, 28),
		}},
		CurrentData: fleet.Chart{Labels: labels, Series: []fleet.Series{
			seedSeries(rng, "Current", n, 50, 150),
			seedSeries(rng, "Peak", n, 150, 250),
		}},
	}
}

func seedTrailDay(rng *rand.Rand, lat, lng float64, points int) trailDay {
	path := make([]fleet.Coordinate, points)
	for i := range path {
		path[i] = fleet.Coordinate{
			Lat: math.Round((lat+float64(i)*0.002+rng.Float64()*0.0005)*1e6) / 1e6,
			Lng: math.Round((lng+float64(i)*0.0015+rng.Float64()*0.0005)*1e6) / 1e6,
		}
	}
	metrics := map[string]fleet.Metric{
		"speed":        {Value: fmt.Sprintf("%d", 20+rng.IntN(40)), Unit: "km/h"},
		"soc":          {Value: fmt.Sprintf("%d", 40+rng.IntN(60)), Unit: "%"},
		"motorSpeed":   {Value: fmt.Sprintf("%d", 1000+rng.IntN(2000)), Unit: "rpm"},
		"motorTorque":  {Value: fmt.Sprintf("%d", 100+rng.IntN(200)), Unit: "Nm"},
		"acceleration": {Value: fmt.Sprintf("%.1f", rng.Float64()*2), Unit: "m/s²"},
		"brake":        {Value: "Off", Unit: ""},
		"faults":       {Value: "0", Unit: ""},
	}
	ecu := []fleet.ECU{
		{Name: "BMS", Controls: []fleet.Control{
			{Name: "Pack Voltage", Value: fmt.Sprintf("%d V", 600+rng.IntN(50))},
			{Name: "Cell Temp", Value: fmt.Sprintf("%d °C", 25+rng.IntN(10))},
		}},
		{Name: "Motor", Controls: []fleet.Control{
			{Name: "Motor Temp", Value: fmt.Sprintf("%d °C", 40+rng.IntN(20))},
			{Name: "Inverter Temp", Value: fmt.Sprintf("%d °C", 35+rng.IntN(15))},
		}},
		{Name: "HVPDU", Controls: []fleet.Control{
			{Name: "Contactor", Value: "Closed"},
			{Name: "Isolation", Value: "OK"},
		}},
	}
	return trailDay{Metrics: metrics, ECU: ecu, Path: path}
}

var reportTypes = []string{"Performance", "Health", "Charging", "Fault"}

// seedReports generates four reports a day for the last fifteen days, newest
// first.
func seedReports(rng *rand.Rand, today time.Time, types []vehicleTypeRecord) []reportRecord {
	type reg struct{ vehicleType, number string }
	var regs []reg
	for _, vt := range types {
		for _, r := range vt.Registrations {
			regs = append(regs, reg{vt.Name, r.Number})
		}
	}

	var out []reportRecord
	id := 0
	for day := 14; day >= 0; day-- {
		for slot := 0; slot < 4; slot++ {
			id++
			at := today.AddDate(0, 0, -day).Add(time.Duration(9+slot*2) * time.Hour).Add(time.Duration(rng.IntN(60)) * time.Minute)
			r := regs[id%len(regs)]
			out = append(out, reportRecord{
				At: at,
				Report: fleet.Report{
					ID:                 id,
					Name:               at.Format(fleet.ReportTimeLayout),
					VehicleType:        r.vehicleType,
					RegistrationNumber: r.number,
					ReportType:         reportTypes[id%len(reportTypes)],
					Col2:               fmt.Sprintf("Val-%02d", rng.IntN(100)),
					Signal:             fmt.Sprintf("Sig-%03d", rng.IntN(1000)),
					Signal0:            fmt.Sprintf("S0-%d", rng.IntN(10)),
					Signal1:            fmt.Sprintf("S1-%d", rng.IntN(10)),
					Signal2:            fmt.Sprintf("S2-%d", rng.IntN(10)),
				},
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}

// ReportFilters lists the distinct filter values across all reports.
func (d *Dataset) ReportFilters() fleet.ReportFilters {
	typeSet := map[string]struct{}{}
	vehicleSet := map[string]struct{}{}
	dateSet := map[string]struct{}{}
	regs := map[string][]string{}
	seenReg := map[string]struct{}{}

	for _, r := range d.Reports {
		typeSet[r.Report.ReportType] = struct{}{}
		vehicleSet[r.Report.VehicleType] = struct{}{}
		dateSet[r.At.Format(fleet.DateLayout)] = struct{}{}
		key := r.Report.VehicleType + "|" + r.Report.RegistrationNumber
		if _, ok := seenReg[key]; !ok {
			seenReg[key] = struct{}{}
			regs[r.Report.VehicleType] = append(regs[r.Report.VehicleType], r.Report.RegistrationNumber)
		}
	}
	for _, numbers := range regs {
		sort.Strings(numbers)
	}

	dates := keys(dateSet)
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return fleet.ReportFilters{
		ReportTypes:   keys(typeSet),
		VehicleTypes:  keys(vehicleSet),
		Registrations: regs,
		Dates:         dates,
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// reportFilter holds the parsed report list filters.
type reportFilter struct {
	start, end     string
	reportType     string
	vehicleType    string
	registrationNo string
}

func (f reportFilter) match(r reportRecord) bool {
	if f.start != "" && f.end != "" {
		day := r.At.Format(fleet.DateLayout)
		if day < f.start || day > f.end {
			return false
		}
	}
	if f.reportType != "" && r.Report.ReportType != f.reportType {
		return false
	}
	if f.vehicleType != "" && r.Report.VehicleType != f.vehicleType {
		return false
	}
	if f.registrationNo != "" && r.Report.RegistrationNumber != f.registrationNo {
		return false
	}
	return true
}

func (d *Dataset) filterReports(f reportFilter) []fleet.Report {
	out := []fleet.Report{}
	for _, r := range d.Reports {
		if f.match(r) {
			out = append(out, r.Report)
		}
	}
	return out
}
