package constants

import "strings"

// Default directory layout relative to the working directory.
const (
	DefaultInputDir      = "input"
	DefaultOutputDir     = "output"
	DefaultDuplicatesDir = "duplicates"
	DefaultTripSheetsDir = "trip_sheets"
)

// InvoiceDataJSON is the batch summary written into the output directory.
const InvoiceDataJSON = "invoice_data.json"

// InvoiceReportXLSX is the spreadsheet written into the output directory.
const InvoiceReportXLSX = "invoice_report.xlsx"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether ext (with or without dot) names a PDF file.
func IsPDF(ext string) bool {
	return NormalizeExt(ext) == "pdf"
}

// SanitizeFilename strips characters that are illegal in file names on
// common filesystems. Used when building canonical invoice names from
// extracted categories.
func SanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, s)
}
