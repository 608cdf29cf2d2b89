package http

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var displayPrinter = message.NewPrinter(language.English)

// formatPrice renders an estimate as "{currency} 1,250,000".
func formatPrice(currency string, amount float64) string {
	return displayPrinter.Sprintf("%s %.0f", currency, amount)
}

// formatDistance renders a distance as "983.42 km".
func formatDistance(km float64) string {
	return displayPrinter.Sprintf("%.2f km", km)
}
