// Package features derives the fixed feature row the fare model was trained on
// from loosely formatted flight descriptor fields.
//
// Every derivation is pure: the same Input always yields the same FeatureRow.
// Text that does not match its expected pattern produces a nil (missing) value
// rather than an error; the model decides how to treat missing values.
package features

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrSchemaMismatch is returned when a column list does not match the fixed feature schema.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Column names as they appear in the training frame. Order is significant.
const (
	ColAirline       = "Maskapai"
	ColInfoNote      = "Informasi_Tambahan"
	ColDistanceKm    = "Jarak_Km"
	ColTravelDay     = "travel_day"
	ColTravelMonth   = "travel_month"
	ColTravelWeekday = "travel_weekday"
	ColDepHour       = "dep_hour"
	ColDepMin        = "dep_min"
	ColArrHour       = "arr_hour"
	ColArrMin        = "arr_min"
	ColDurationMin   = "dur_min"
	ColTransitCount  = "transit_count"
	ColDayChange     = "day_change"
)

var columns = []string{
	ColAirline, ColInfoNote, ColDistanceKm,
	ColTravelDay, ColTravelMonth, ColTravelWeekday,
	ColDepHour, ColDepMin, ColArrHour, ColArrMin,
	ColDurationMin, ColTransitCount, ColDayChange,
}

var categorical = map[string]bool{
	ColAirline:  true,
	ColInfoNote: true,
}

// Columns returns the ordered feature schema. The returned slice is a copy.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// IsCategorical reports whether the named column holds a categorical level.
func IsCategorical(col string) bool {
	return categorical[col]
}

// ValidateColumns checks that cols equals the feature schema exactly, in order.
func ValidateColumns(cols []string) error {
	if len(cols) != len(columns) {
		return fmt.Errorf("%w: got %d columns, want %d", ErrSchemaMismatch, len(cols), len(columns))
	}
	for i, c := range cols {
		if c != columns[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, c, columns[i])
		}
	}
	return nil
}

// Input is the raw, text-level flight descriptor plus the precomputed route distance.
type Input struct {
	Airline       string
	InfoNote      string
	TravelDate    string
	DepartureTime string
	ArrivalTime   string
	Duration      string
	Transit       string
	DistanceKm    float64
}

// FeatureRow is one model input row. Nil pointers are missing values.
type FeatureRow struct {
	Airline         string  `json:"Maskapai"`
	InfoNote        string  `json:"Informasi_Tambahan"`
	DistanceKm      float64 `json:"Jarak_Km"`
	TravelDay       *int    `json:"travel_day"`
	TravelMonth     *int    `json:"travel_month"`
	TravelWeekday   *int    `json:"travel_weekday"`
	DepHour         *int    `json:"dep_hour"`
	DepMin          *int    `json:"dep_min"`
	ArrHour         *int    `json:"arr_hour"`
	ArrMin          *int    `json:"arr_min"`
	DurationMinutes int     `json:"dur_min"`
	TransitCount    *int    `json:"transit_count"`
	DayChange       *int    `json:"day_change"`
}

// Value is a single cell of a FeatureRow. Exactly one of Level or Number is meaningful,
// depending on whether the column is categorical. Null marks a missing numeric value.
type Value struct {
	Column string
	Level  string
	Number float64
	Null   bool
}

// Values returns the row's cells in schema order.
func (r FeatureRow) Values() []Value {
	return []Value{
		{Column: ColAirline, Level: r.Airline},
		{Column: ColInfoNote, Level: r.InfoNote},
		{Column: ColDistanceKm, Number: r.DistanceKm},
		intValue(ColTravelDay, r.TravelDay),
		intValue(ColTravelMonth, r.TravelMonth),
		intValue(ColTravelWeekday, r.TravelWeekday),
		intValue(ColDepHour, r.DepHour),
		intValue(ColDepMin, r.DepMin),
		intValue(ColArrHour, r.ArrHour),
		intValue(ColArrMin, r.ArrMin),
		{Column: ColDurationMin, Number: float64(r.DurationMinutes)},
		intValue(ColTransitCount, r.TransitCount),
		intValue(ColDayChange, r.DayChange),
	}
}

// NullColumns returns the names of columns whose value is missing, in schema order.
func (r FeatureRow) NullColumns() []string {
	var out []string
	for _, v := range r.Values() {
		if v.Null {
			out = append(out, v.Column)
		}
	}
	return out
}

// Key returns a stable textual encoding of the row, usable as a cache key component.
func (r FeatureRow) Key() string {
	var b strings.Builder
	for i, v := range r.Values() {
		if i > 0 {
			b.WriteByte('|')
		}
		switch {
		case IsCategorical(v.Column):
			b.WriteString(strconv.Quote(v.Level))
		case v.Null:
			b.WriteString("null")
		default:
			b.WriteString(strconv.FormatFloat(v.Number, 'g', -1, 64))
		}
	}
	return b.String()
}

func intValue(col string, p *int) Value {
	if p == nil {
		return Value{Column: col, Null: true}
	}
	return Value{Column: col, Number: float64(*p)}
}

var (
	clockPattern    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	hoursPattern    = regexp.MustCompile(`(\d+)\s*h`)
	minutesPattern  = regexp.MustCompile(`(\d+)\s*m`)
	firstIntPattern = regexp.MustCompile(`\d+`)
)

// Day-first layouts, tried in order.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"02/01/2006 15:04",
	"2006-01-02T15:04:05",
}

// Month-first layouts, tried only when no day-first reading is a valid date,
// as in "03/24/2019".
var monthFirstLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01.02.2006",
	"1.2.2006",
}

// maxDurationComponent caps the hours and minutes read from a duration so
// the minute total cannot overflow.
const maxDurationComponent = 1_000_000

// Transform derives one FeatureRow from in.
func Transform(in Input) FeatureRow {
	row := FeatureRow{
		Airline:    in.Airline,
		InfoNote:   in.InfoNote,
		DistanceKm: in.DistanceKm,
	}

	if d, ok := ParseTravelDate(in.TravelDate); ok {
		row.TravelDay = intPtr(d.Day())
		row.TravelMonth = intPtr(int(d.Month()))
		row.TravelWeekday = intPtr(MondayWeekday(d))
	}

	row.DepHour, row.DepMin = ParseClock(in.DepartureTime)
	row.ArrHour, row.ArrMin = ParseClock(in.ArrivalTime)
	row.DurationMinutes = ParseDurationMinutes(in.Duration)
	row.TransitCount = ParseTransitCount(in.Transit)
	row.DayChange = DayChange(row.DepHour, row.DepMin, row.DurationMinutes)
	return row
}

// TransformAll applies Transform to every input.
func TransformAll(in []Input) []FeatureRow {
	out := make([]FeatureRow, len(in))
	for i := range in {
		out[i] = Transform(in[i])
	}
	return out
}

// ParseTravelDate parses a day-first date, falling back to month-first when
// the day-first reading is impossible. ok is false when no layout matches.
func ParseTravelDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layouts := range [][]string{dateLayouts, monthFirstLayouts} {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// MondayWeekday returns the weekday index with Monday = 0 and Sunday = 6.
func MondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseClock extracts hour and minute from the first H:MM or HH:MM occurrence in s.
// Both are nil when there is no match.
func ParseClock(s string) (hour, minute *int) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, nil
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, nil
	}
	mm, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, nil
	}
	return &h, &mm
}

// ParseDurationMinutes reads "<n>h" and "<n>m" tokens from a lower-cased duration
// string such as "2h 50m". A missing component counts as 0; each component is
// capped at maxDurationComponent.
func ParseDurationMinutes(s string) int {
	s = strings.ToLower(s)
	return firstInt(hoursPattern, s)*60 + firstInt(minutesPattern, s)
}

// ParseTransitCount returns 0 for descriptors containing "non" (non-stop),
// otherwise the first integer in the descriptor, or nil when there is none.
func ParseTransitCount(s string) *int {
	s = strings.ToLower(s)
	if strings.Contains(s, "non") {
		return intPtr(0)
	}
	digits := firstIntPattern.FindString(s)
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// DayChange counts the midnights crossed by departing at hour:minute and flying
// durationMinutes. Nil when the departure time is missing.
func DayChange(hour, minute *int, durationMinutes int) *int {
	if hour == nil || minute == nil {
		return nil
	}
	total := *hour*60 + *minute + durationMinutes
	return intPtr(floorDiv(total, 24*60))
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return maxDurationComponent
		}
		return 0
	}
	return min(n, maxDurationComponent)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func intPtr(v int) *int {
	return &v
}
