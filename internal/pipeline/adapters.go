package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/aldikf/airfare-price-service/internal/models"
)

const minutesPerDay = 24 * 60

// ScheduleInput is a request built from structured date and time pickers.
// Date is yyyy-mm-dd; times are HH:MM on a 24-hour clock.
type ScheduleInput struct {
	Airline       string
	Date          string
	DepartureTime string
	ArrivalTime   string
	Transit       string
	InfoNote      string
	Origin        string
	Destination   string
}

// FromText builds a descriptor from free-text fields, which are only trimmed.
// Unparseable text is left for the feature derivation to treat as missing.
func FromText(d models.FlightDescriptor) models.FlightDescriptor {
	return models.FlightDescriptor{
		Airline:       strings.TrimSpace(d.Airline),
		TravelDate:    strings.TrimSpace(d.TravelDate),
		DepartureTime: strings.TrimSpace(d.DepartureTime),
		ArrivalTime:   strings.TrimSpace(d.ArrivalTime),
		Duration:      strings.TrimSpace(d.Duration),
		Transit:       strings.TrimSpace(d.Transit),
		InfoNote:      strings.TrimSpace(d.InfoNote),
		Origin:        strings.TrimSpace(d.Origin),
		Destination:   strings.TrimSpace(d.Destination),
	}
}

// FromSchedule builds a descriptor from structured inputs. The flight duration is
// derived from the two clock times; an arrival at or before departure is taken to be
// the next day. The descriptor carries canonical text so both adapters share one
// feature derivation.
func FromSchedule(in ScheduleInput) (models.FlightDescriptor, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(in.Date))
	if err != nil {
		return models.FlightDescriptor{}, fmt.Errorf("%w: date %q is not yyyy-mm-dd", ErrValidation, in.Date)
	}
	dep, err := clockMinutes(in.DepartureTime)
	if err != nil {
		return models.FlightDescriptor{}, fmt.Errorf("%w: departure time %q is not HH:MM", ErrValidation, in.DepartureTime)
	}
	arr, err := clockMinutes(in.ArrivalTime)
	if err != nil {
		return models.FlightDescriptor{}, fmt.Errorf("%w: arrival time %q is not HH:MM", ErrValidation, in.ArrivalTime)
	}

	return FromText(models.FlightDescriptor{
		Airline:       in.Airline,
		TravelDate:    date.Format("02/01/2006"),
		DepartureTime: formatClock(dep),
		ArrivalTime:   formatClock(arr),
		Duration:      FormatDuration(ScheduleDurationMinutes(dep, arr)),
		Transit:       in.Transit,
		InfoNote:      in.InfoNote,
		Origin:        in.Origin,
		Destination:   in.Destination,
	}), nil
}

// ScheduleDurationMinutes returns (arrival - departure) mod one day, in minutes,
// where an arrival at or before departure adds 24 hours.
func ScheduleDurationMinutes(departure, arrival int) int {
	d := arrival - departure
	if d <= 0 {
		d += minutesPerDay
	}
	return d
}

// FormatDuration renders minutes as "Xh Ym".
func FormatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
