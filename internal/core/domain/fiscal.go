package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FinancialYear returns the April to March accounting period containing t,
// formatted as "2024-2025".
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}

// AdjacentFinancialYears returns fy followed by the previous and next periods.
func AdjacentFinancialYears(fy string) []string {
	start, ok := parseFinancialYearStart(fy)
	if !ok {
		return []string{fy}
	}
	return []string{
		fy,
		fmt.Sprintf("%d-%d", start-1, start),
		fmt.Sprintf("%d-%d", start+1, start+2),
	}
}

func parseFinancialYearStart(fy string) (int, bool) {
	head, _, found := strings.Cut(fy, "-")
	if !found {
		return 0, false
	}
	start, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return start, true
}

// MonthName is the folder name used for a month under BillsAndInvoices.
func MonthName(t time.Time) string {
	return t.Month().String()
}

// DateLayout is the canonical date layout used in filenames and logs.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// ParseDocumentDate accepts the date shapes commonly found on invoices.
func ParseDocumentDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
