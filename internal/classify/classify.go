// Package classify decides, from the raw text layer alone, whether a
// document is an ordinary invoice or a transportation trip sheet.
package classify

import "strings"

// DocType is the document class assigned before any field extraction.
type DocType string

const (
	Invoice   DocType = "INVOICE"
	TripSheet DocType = "TRIP_SHEET"
)

// tripSheetSignals are literal markers that positively identify a
// ride-hailing trip sheet. Ordered: the first hit wins.
var tripSheetSignals = []string{"行程单", "TRIP TABLE"}

// Classify returns TripSheet as soon as any signal is found in text,
// otherwise Invoice. Empty text is not positively identifiable and
// defaults to Invoice.
func Classify(text string) DocType {
	for _, sig := range tripSheetSignals {
		if strings.Contains(text, sig) {
			return TripSheet
		}
	}
	return Invoice
}
