package airports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/aldikf/airfare-price-service/internal/geo"
)

var (
	// ErrMissingReferenceData is returned when the airport table is absent or malformed.
	ErrMissingReferenceData = errors.New("airport reference data unavailable")
	// ErrUnknownAirport is returned by Resolve when no record matches.
	ErrUnknownAirport = errors.New("unknown airport")
)

// Accepted header names per required column, matched case-insensitively.
var (
	nameHeaders = []string{"nama_bandara", "name", "airport_name"}
	codeHeaders = []string{"airport_code", "code", "iata"}
	latHeaders  = []string{"latitude", "lat"}
	lonHeaders  = []string{"longitude", "lon", "lng"}
)

var labelCodePattern = regexp.MustCompile(`\(([A-Za-z0-9]{2,4})\)\s*$`)

// Record is one airport row.
type Record struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Label returns the display label "{name} ({code})".
func (r Record) Label() string {
	return r.Name + " (" + r.Code + ")"
}

// Point returns the record's coordinates.
func (r Record) Point() geo.Point {
	return geo.Point{Lat: r.Latitude, Lon: r.Longitude}
}

// Directory is an immutable airport lookup. Safe for concurrent reads.
type Directory struct {
	records []Record
	byCode  map[string]int
	byLabel map[string]int
}

// Load reads the airport table at path.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMissingReferenceData, path, err)
	}
	defer f.Close()
	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse reads a CSV airport table with a header row. Duplicate codes are rejected.
func Parse(r io.Reader) (*Directory, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %v", ErrMissingReferenceData, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: table has no records", ErrMissingReferenceData)
	}

	head := rows[0]
	idx := func(names []string) int {
		for i, h := range head {
			h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
			for _, n := range names {
				if strings.EqualFold(h, n) {
					return i
				}
			}
		}
		return -1
	}
	nameIdx, codeIdx, latIdx, lonIdx := idx(nameHeaders), idx(codeHeaders), idx(latHeaders), idx(lonHeaders)
	for _, c := range []struct {
		col string
		i   int
	}{{"name", nameIdx}, {"code", codeIdx}, {"latitude", latIdx}, {"longitude", lonIdx}} {
		if c.i < 0 {
			return nil, fmt.Errorf("%w: missing required column %q", ErrMissingReferenceData, c.col)
		}
	}

	d := &Directory{
		records: make([]Record, 0, len(rows)-1),
		byCode:  make(map[string]int, len(rows)-1),
		byLabel: make(map[string]int, len(rows)-1),
	}
	for n, row := range rows[1:] {
		line := n + 2
		rec := Record{
			Code: strings.ToUpper(strings.TrimSpace(row[codeIdx])),
			Name: strings.TrimSpace(row[nameIdx]),
		}
		if rec.Code == "" {
			return nil, fmt.Errorf("%w: line %d: empty airport code", ErrMissingReferenceData, line)
		}
		if rec.Latitude, err = parseCoord(row[latIdx], 90); err != nil {
			return nil, fmt.Errorf("%w: line %d: latitude: %v", ErrMissingReferenceData, line, err)
		}
		if rec.Longitude, err = parseCoord(row[lonIdx], 180); err != nil {
			return nil, fmt.Errorf("%w: line %d: longitude: %v", ErrMissingReferenceData, line, err)
		}
		if prev, dup := d.byCode[rec.Code]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate airport code %s (first seen as %q)", ErrMissingReferenceData, line, rec.Code, d.records[prev].Name)
		}
		d.byCode[rec.Code] = len(d.records)
		d.byLabel[rec.Label()] = len(d.records)
		d.records = append(d.records, rec)
	}
	return d, nil
}

func parseCoord(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		return 0, fmt.Errorf("%v outside [-%v, %v]", v, limit, limit)
	}
	return v, nil
}

// Resolve finds a record by exact display label, then by airport code
// (case-insensitive), then by a trailing "(CODE)" in the input.
func (d *Directory) Resolve(labelOrCode string) (Record, error) {
	s := strings.TrimSpace(labelOrCode)
	if s == "" {
		return Record{}, fmt.Errorf("%w: empty selection", ErrUnknownAirport)
	}
	if i, ok := d.byLabel[s]; ok {
		return d.records[i], nil
	}
	if i, ok := d.byCode[strings.ToUpper(s)]; ok {
		return d.records[i], nil
	}
	if m := labelCodePattern.FindStringSubmatch(s); m != nil {
		if i, ok := d.byCode[strings.ToUpper(m[1])]; ok {
			return d.records[i], nil
		}
	}
	return Record{}, fmt.Errorf("%w: %q", ErrUnknownAirport, s)
}

// Labels returns display labels in table order.
func (d *Directory) Labels() []string {
	out := make([]string, len(d.records))
	for i, r := range d.records {
		out[i] = r.Label()
	}
	return out
}

// Records returns a copy of all records in table order.
func (d *Directory) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Len returns the number of airports.
func (d *Directory) Len() int {
	return len(d.records)
}

// Search returns records whose label contains query, case-insensitively, in table order.
// limit <= 0 means no limit. An empty query matches everything.
func (d *Directory) Search(query string, limit int) []Record {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Record
	for _, r := range d.records {
		if q != "" && !strings.Contains(strings.ToLower(r.Label()), q) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
