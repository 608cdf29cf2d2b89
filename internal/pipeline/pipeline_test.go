package pipeline

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/features"
	"github.com/aldikf/airfare-price-service/internal/model"
	"github.com/aldikf/airfare-price-service/internal/models"
)

const testAirports = `name,code,latitude,longitude
Airport A,AAA,0,0
Airport B,BBB,1,0
`

// countingModel records every row it is asked to score.
type countingModel struct {
	calls    int
	rows     []features.FeatureRow
	estimate float64
	err      error
}

func (m *countingModel) Predict(row features.FeatureRow) (float64, error) {
	m.calls++
	m.rows = append(m.rows, row)
	return m.estimate, m.err
}

func (m *countingModel) Info() model.Info {
	return model.Info{Name: "counting", Version: "test"}
}

func newTestPipeline(t *testing.T, m model.Predictor) *Pipeline {
	t.Helper()
	dir, err := airports.Parse(strings.NewReader(testAirports))
	if err != nil {
		t.Fatalf("airports.Parse() error = %v", err)
	}
	return New(dir, m)
}

func garudaDescriptor() models.FlightDescriptor {
	return models.FlightDescriptor{
		Airline:       "Garuda Indonesia",
		TravelDate:    "24/03/2019",
		DepartureTime: "22:20",
		ArrivalTime:   "01:10",
		Duration:      "2h 50m",
		Transit:       "non-stop",
		InfoNote:      "No info",
		Origin:        "Airport A (AAA)",
		Destination:   "Airport B (BBB)",
	}
}

// TestPredict_EndToEnd runs the reference booking through the whole pipeline.
func TestPredict_EndToEnd(t *testing.T) {
	m := &countingModel{estimate: 1250000}
	p := newTestPipeline(t, m)

	got, err := p.Predict(garudaDescriptor())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("model called %d times, want 1", m.calls)
	}

	row := m.rows[0]
	checks := []struct {
		name string
		got  *int
		want int
	}{
		{"travelDay", row.TravelDay, 24},
		{"travelMonth", row.TravelMonth, 3},
		{"travelWeekday", row.TravelWeekday, 6},
		{"depHour", row.DepHour, 22},
		{"depMin", row.DepMin, 20},
		{"arrHour", row.ArrHour, 1},
		{"arrMin", row.ArrMin, 10},
		{"transitCount", row.TransitCount, 0},
		{"dayChange", row.DayChange, 1},
	}
	for _, c := range checks {
		if c.got == nil || *c.got != c.want {
			t.Errorf("%s = %v, want %d", c.name, c.got, c.want)
		}
	}
	if row.DurationMinutes != 170 {
		t.Errorf("DurationMinutes = %d, want 170", row.DurationMinutes)
	}
	if math.Abs(row.DistanceKm-111.19) > 0.5 {
		t.Errorf("DistanceKm = %.3f, want ~111.19", row.DistanceKm)
	}
	if row.Airline != "Garuda Indonesia" || row.InfoNote != "No info" {
		t.Errorf("categoricals = %q, %q", row.Airline, row.InfoNote)
	}

	if got.Estimate != 1250000 {
		t.Errorf("Estimate = %v, want 1250000", got.Estimate)
	}
	if math.Abs(got.LowerBound-0.9*got.Estimate) > 1e-6 || math.Abs(got.UpperBound-1.1*got.Estimate) > 1e-6 {
		t.Errorf("band = [%v, %v], want ±10%% of %v", got.LowerBound, got.UpperBound, got.Estimate)
	}
	if got.DistanceKm != row.DistanceKm {
		t.Errorf("DistanceKm = %v, want %v", got.DistanceKm, row.DistanceKm)
	}
	if got.Origin.Code != "AAA" || got.Destination.Code != "BBB" {
		t.Errorf("route = %s-%s, want AAA-BBB", got.Origin.Code, got.Destination.Code)
	}
	if got.Model != "counting@test" {
		t.Errorf("Model = %q", got.Model)
	}
}

// TestPredict_SameAirportRejected verifies no model call happens when origin equals destination.
func TestPredict_SameAirportRejected(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		destination string
	}{
		{"same label", "Airport A (AAA)", "Airport A (AAA)"},
		{"same code different case", "aaa", "AAA"},
		{"label and code", "Airport A (AAA)", "AAA"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &countingModel{estimate: 1}
			p := newTestPipeline(t, m)
			d := garudaDescriptor()
			d.Origin, d.Destination = tc.origin, tc.destination

			_, err := p.Predict(d)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Predict() error = %v, want ErrValidation", err)
			}
			if m.calls != 0 {
				t.Fatalf("model called %d times, want 0", m.calls)
			}
		})
	}
}

func TestPredict_MissingAirport(t *testing.T) {
	m := &countingModel{estimate: 1}
	p := newTestPipeline(t, m)
	d := garudaDescriptor()
	d.Destination = "  "

	_, err := p.Predict(d)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Predict() error = %v, want ErrValidation", err)
	}
	if m.calls != 0 {
		t.Fatalf("model called %d times, want 0", m.calls)
	}
}

// TestPredict_UnknownAirport verifies unknown labels fail before inference.
func TestPredict_UnknownAirport(t *testing.T) {
	for _, side := range []string{"origin", "destination"} {
		t.Run(side, func(t *testing.T) {
			m := &countingModel{estimate: 1}
			p := newTestPipeline(t, m)
			d := garudaDescriptor()
			if side == "origin" {
				d.Origin = "Atlantis (ATL)"
			} else {
				d.Destination = "Atlantis (ATL)"
			}

			_, err := p.Predict(d)
			if !errors.Is(err, airports.ErrUnknownAirport) {
				t.Fatalf("Predict() error = %v, want ErrUnknownAirport", err)
			}
			if !strings.HasPrefix(err.Error(), side) {
				t.Errorf("error %q should name the %s", err, side)
			}
			if m.calls != 0 {
				t.Fatalf("model called %d times, want 0", m.calls)
			}
		})
	}
}

func TestPredict_NegativeEstimateClamped(t *testing.T) {
	p := newTestPipeline(t, &countingModel{estimate: -500})
	got, err := p.Predict(garudaDescriptor())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got.Estimate != 0 || got.LowerBound != 0 || got.UpperBound != 0 {
		t.Fatalf("Predict() = %+v, want zero estimate and band", got)
	}
}

func TestPredict_ModelErrors(t *testing.T) {
	tests := []struct {
		name string
		m    *countingModel
	}{
		{"model error", &countingModel{err: features.ErrSchemaMismatch}},
		{"NaN", &countingModel{estimate: math.NaN()}},
		{"Inf", &countingModel{estimate: math.Inf(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t, tc.m)
			if _, err := p.Predict(garudaDescriptor()); err == nil {
				t.Fatal("Predict() error = nil, want error")
			}
		})
	}

	p := newTestPipeline(t, &countingModel{err: features.ErrSchemaMismatch})
	_, err := p.Predict(garudaDescriptor())
	if !errors.Is(err, features.ErrSchemaMismatch) {
		t.Fatalf("Predict() error = %v, want wrapped ErrSchemaMismatch", err)
	}
}

// TestPredict_Deterministic verifies identical descriptors produce identical rows and estimates.
func TestPredict_Deterministic(t *testing.T) {
	m := &countingModel{estimate: 99}
	p := newTestPipeline(t, m)
	a, err := p.Predict(garudaDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Predict(garudaDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	if a.Features.Key() != b.Features.Key() || a.Estimate != b.Estimate {
		t.Fatalf("predictions differ: %+v vs %+v", a, b)
	}
}

// TestPredict_WithLinearModel runs the pipeline against a real artifact-backed model.
func TestPredict_WithLinearModel(t *testing.T) {
	cols := features.Columns()
	numeric := map[string]model.NumericTerm{}
	for _, c := range cols {
		if !features.IsCategorical(c) {
			numeric[c] = model.NumericTerm{}
		}
	}
	numeric[features.ColDistanceKm] = model.NumericTerm{Coef: 1000}
	lm, err := model.New(model.Artifact{
		Name:      "linear",
		Version:   "t",
		Features:  cols,
		Intercept: 50000,
		Numeric:   numeric,
		Categorical: map[string]map[string]float64{
			features.ColAirline:  {"Garuda Indonesia": 200000},
			features.ColInfoNote: {},
		},
	})
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	p := newTestPipeline(t, lm)
	got, err := p.Predict(garudaDescriptor())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := 50000 + 200000 + 1000*got.DistanceKm
	if math.Abs(got.Estimate-want) > 1e-6 {
		t.Fatalf("Estimate = %v, want %v", got.Estimate, want)
	}
	if p.ModelInfo().Name != "linear" {
		t.Errorf("ModelInfo().Name = %q", p.ModelInfo().Name)
	}
}
