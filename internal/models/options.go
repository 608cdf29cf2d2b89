package models

// FormOptions lists the menu choices a client can offer for each free-text
// field. The sets are open: values outside them are still accepted and score
// as unseen categories.
type FormOptions struct {
	Airlines  []string         `json:"airlines"`
	Transits  []string         `json:"transits"`
	InfoNotes []string         `json:"infoNotes"`
	Defaults  FlightDescriptor `json:"defaults"`
}

var airlineOptions = []string{
	"Garuda Indonesia",
	"Lion Air",
	"Batik Air",
	"Transit Maskapai",
	"Citilink",
	"Sriwijaya Air",
	"AirAsia Indonesia",
	"Super Air Jet",
	"Transit Premium",
	"Garuda Indonesia Business",
	"Sriwijaya Air Premium",
	"Wings Air",
}

var transitOptions = []string{"non-stop", "1 stop", "2 stops"}

// "No info" and "No Info" are distinct levels in the training data.
var infoNoteOptions = []string{
	"No info",
	"In-flight meal not included",
	"No check-in baggage included",
	"1 Long layover",
	"Change airports",
	"Business class",
	"No Info",
	"1 Short layover",
	"Red-eye flight",
	"2 Long layover",
}

// DefaultFormOptions returns a fresh copy of the menus and prefilled values.
func DefaultFormOptions() FormOptions {
	return FormOptions{
		Airlines:  append([]string(nil), airlineOptions...),
		Transits:  append([]string(nil), transitOptions...),
		InfoNotes: append([]string(nil), infoNoteOptions...),
		Defaults: FlightDescriptor{
			Airline:       airlineOptions[0],
			TravelDate:    "24/03/2019",
			DepartureTime: "22:20",
			ArrivalTime:   "01:10 22 Mar",
			Duration:      "2h 50m",
			Transit:       transitOptions[0],
			InfoNote:      infoNoteOptions[0],
		},
	}
}
