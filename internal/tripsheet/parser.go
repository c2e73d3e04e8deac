// Package tripsheet parses ride-hailing trip sheets (滴滴/美团 行程单)
// out of their text layer and writes the derived JSON artifacts.
package tripsheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Trip is one ride on a sheet.
type Trip struct {
	Date        string  `json:"date"` // YYYY/MM/DD
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
}

// Sheet is the structured form of one trip-sheet PDF.
type Sheet struct {
	FileName    string  `json:"file_name"`
	TotalAmount float64 `json:"total_amount"`
	Trips       []Trip  `json:"trips"`
}

var (
	reTotal = regexp.MustCompile(`合计\s*([0-9]+(?:\.[0-9]{1,2})?)\s*元`)
	reYear  = regexp.MustCompile(`行程起止日期[:：]\s*([0-9]{4})-`)

	// One ride per line: seq, MM-DD, HH:MM pickup time, origin,
	// destination, amount. Layout drift in the columns between these
	// anchors is tolerated.
	reTripLine = regexp.MustCompile(`^\s*\d+\s+(\d{2}-\d{2})\s+\d{2}:\d{2}\s+(\S+)\s+(\S+)\s+([0-9]+(?:\.[0-9]{1,2})?)\s*元?\s*$`)

	reDatePart = regexp.MustCompile(`^(\d{2})-(\d{2})$`)
)

// Parse extracts the total and the ride rows from a trip sheet's text.
// Missing pieces are left zero; a sheet with no recognizable rows still
// reports its total when the 合计 line is present.
func Parse(fileName, text string) Sheet {
	s := Sheet{FileName: fileName}

	if m := reTotal.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.TotalAmount = v
		}
	}

	year := yearOf(text)
	for _, line := range strings.Split(text, "\n") {
		m := reTripLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, ok := standardizeDate(m[1], year)
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			continue
		}
		s.Trips = append(s.Trips, Trip{
			Date:        date,
			Origin:      m[2],
			Destination: m[3],
			Amount:      amount,
		})
	}
	return s
}

// yearOf pulls the year out of the 行程起止日期 range, defaulting to the
// current year when the header is absent.
func yearOf(text string) string {
	if m := reYear.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strconv.Itoa(time.Now().Year())
}

// standardizeDate turns "04-11" plus a year into "2024/04/11".
func standardizeDate(datePart, year string) (string, bool) {
	m := reDatePart.FindStringSubmatch(datePart)
	if m == nil {
		return "", false
	}
	return year + "/" + m[1] + "/" + m[2], true
}
