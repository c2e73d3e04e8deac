// Package report accumulates the records of successfully routed
// invoices and renders the end-of-run artifacts (JSON summary, XLSX).
package report

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"

	"github.com/mingyu-ho/invoice-pipeline/internal/extract"
	"github.com/mingyu-ho/invoice-pipeline/internal/tripsheet"
)

// Record is one invoice row in the batch report.
type Record struct {
	FileName      string `json:"file_name"`
	InvoiceKind   string `json:"invoice_kind,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Amount        string `json:"amount,omitempty"`
	InvoiceDate   string `json:"invoice_date,omitempty"`
	Category      string `json:"category,omitempty"`
	Currency      string `json:"currency,omitempty"`
	HasTripSheet  bool   `json:"has_trip_sheet,omitempty"`
	TripSheetFile string `json:"trip_sheet_file,omitempty"`
}

// BatchReport is the complete, ordered batch handed to the writers once
// routing has finished.
type BatchReport struct {
	Records []Record
}

// Total sums the parseable record amounts.
func (r BatchReport) Total() float64 {
	var total float64
	for _, rec := range r.Records {
		if v, ok := parseAmount(rec.Amount); ok {
			total += v
		}
	}
	return math.Round(total*100) / 100
}

// Aggregator appends records in routing order. No deduplication happens
// here; that is the routing engine's job.
type Aggregator struct {
	logger  *slog.Logger
	records []Record
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Add appends one primary-routed invoice under its assigned name.
func (a *Aggregator) Add(assignedName string, f extract.Fields) {
	a.records = append(a.records, Record{
		FileName:      assignedName,
		InvoiceKind:   f.Kind.Value,
		InvoiceNumber: f.Number.Value,
		Amount:        f.Amount.Value,
		InvoiceDate:   f.Date.Value,
		Category:      f.Category.Value,
		Currency:      f.Currency.Value,
	})
}

// LinkTripSheet attaches a parsed trip sheet to the first invoice whose
// amount matches the sheet total within one cent. Returns false when no
// invoice matches.
func (a *Aggregator) LinkTripSheet(s tripsheet.Sheet, jsonName string) bool {
	if s.TotalAmount == 0 {
		return false
	}
	for i := range a.records {
		if a.records[i].HasTripSheet {
			continue
		}
		amt, ok := parseAmount(a.records[i].Amount)
		if !ok {
			continue
		}
		if math.Abs(amt-s.TotalAmount) < 0.01 {
			a.records[i].HasTripSheet = true
			a.records[i].TripSheetFile = jsonName
			a.logger.Info("report.trip_sheet.linked",
				"invoice", a.records[i].FileName, "trip_sheet", jsonName)
			return true
		}
	}
	a.logger.Warn("report.trip_sheet.unmatched",
		"trip_sheet", jsonName, "total", s.TotalAmount)
	return false
}

// Report hands over the finished batch. Callers receive a copy so later
// aggregation cannot mutate an already-delivered report.
func (a *Aggregator) Report() BatchReport {
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return BatchReport{Records: out}
}

var reNonNumeric = regexp.MustCompile(`[^0-9.]`)

func parseAmount(s string) (float64, bool) {
	cleaned := reNonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
