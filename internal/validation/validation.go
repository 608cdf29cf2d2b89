// Package validation checks HTTP request bodies and query parameters before
// they reach the prediction service.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is wrapped by every error this package returns.
var ErrInvalidRequest = errors.New("invalid request")

// ErrQueryTooLong is returned when a search query exceeds the maximum length.
var ErrQueryTooLong = fmt.Errorf("%w: query too long", ErrInvalidRequest)

// ErrQueryInvalidChars is returned when a search query contains disallowed characters.
var ErrQueryInvalidChars = fmt.Errorf("%w: query contains invalid characters", ErrInvalidRequest)

// ErrInvalidLimit is returned for a limit that is not a positive integer.
var ErrInvalidLimit = fmt.Errorf("%w: limit must be a positive integer", ErrInvalidRequest)

// PredictionRequest is the free-text prediction body. Unparseable dates and
// times are not rejected here; they become null features.
type PredictionRequest struct {
	Airline       string `json:"airline" validate:"max=100"`
	TravelDate    string `json:"travelDate" validate:"max=40"`
	DepartureTime string `json:"departureTime" validate:"max=40"`
	ArrivalTime   string `json:"arrivalTime" validate:"max=40"`
	Duration      string `json:"duration" validate:"max=40"`
	Transit       string `json:"transit" validate:"max=40"`
	InfoNote      string `json:"infoNote" validate:"max=100"`
	Origin        string `json:"origin" validate:"required,max=200"`
	Destination   string `json:"destination" validate:"required,max=200"`
}

// ScheduleRequest is the structured prediction body.
type ScheduleRequest struct {
	Airline       string `json:"airline" validate:"max=100"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	DepartureTime string `json:"departureTime" validate:"required,datetime=15:04"`
	ArrivalTime   string `json:"arrivalTime" validate:"required,datetime=15:04"`
	Transit       string `json:"transit" validate:"max=40"`
	InfoNote      string `json:"infoNote" validate:"max=100"`
	Origin        string `json:"origin" validate:"required,max=200"`
	Destination   string `json:"destination" validate:"required,max=200"`
}

// FieldError names one failed constraint using the JSON field name.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Error lists every failed field of a request body.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// Unwrap lets errors.Is match ErrInvalidRequest.
func (e *Error) Unwrap() error { return ErrInvalidRequest }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct trims every string field of req in place and checks its tags.
// req must be a pointer to a struct.
func Struct(req interface{}) error {
	trimStrings(req)
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

func trimStrings(req interface{}) {
	v := reflect.ValueOf(req)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

// ValidateSearchQuery trims an airport search query and restricts it to
// letters, digits, space and the punctuation found in airport labels.
// An empty query is valid and means "list everything".
func ValidateSearchQuery(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '(', ')', '.', '\'', ',':
		return true
	}
	return false
}

// ParseLimit parses an optional limit query parameter. Empty yields def;
// values above max are capped.
func ParseLimit(s string, def, max int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLimit
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
