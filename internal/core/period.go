package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodKind selects how a Period scopes records.
type PeriodKind int

const (
	PeriodAll PeriodKind = iota
	PeriodToday
	PeriodThisMonth
	PeriodYearMonth
)

// AllMonths selects every month of a year in a year/month period.
const AllMonths time.Month = 0

// Period is a date-range selector over LastSaleDate.
type Period struct {
	Kind  PeriodKind
	Year  int
	Month time.Month
}

func AllTime() Period   { return Period{Kind: PeriodAll} }
func Today() Period     { return Period{Kind: PeriodToday} }
func ThisMonth() Period { return Period{Kind: PeriodThisMonth} }

// InYear selects every month of year.
func InYear(year int) Period {
	return Period{Kind: PeriodYearMonth, Year: year, Month: AllMonths}
}

// InMonth selects one calendar month.
func InMonth(year int, month time.Month) Period {
	return Period{Kind: PeriodYearMonth, Year: year, Month: month}
}

// ParsePeriod reads the query-string form of a period:
// "all", "today", "month", "YYYY" or "YYYY-MM". Empty means all.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "all":
		return AllTime(), nil
	case "today":
		return Today(), nil
	case "month":
		return ThisMonth(), nil
	}

	yearPart, monthPart, hasMonth := strings.Cut(s, "-")
	year, err := strconv.Atoi(yearPart)
	if err != nil || len(yearPart) != 4 || year < 1 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	if !hasMonth {
		return InYear(year), nil
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return InMonth(year, time.Month(month)), nil
}

// String is the inverse of ParsePeriod.
func (p Period) String() string {
	switch p.Kind {
	case PeriodToday:
		return "today"
	case PeriodThisMonth:
		return "month"
	case PeriodYearMonth:
		if p.Month == AllMonths {
			return fmt.Sprintf("%04d", p.Year)
		}
		return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	default:
		return "all"
	}
}

// Contains reports whether a sale date falls in the period. Calendar
// fields are compared in loc. A nil date is only contained in PeriodAll.
func (p Period) Contains(saleDate *time.Time, now time.Time, loc *time.Location) bool {
	if p.Kind == PeriodAll {
		return true
	}
	if saleDate == nil {
		return false
	}
	if loc == nil {
		loc = time.Local
	}

	d := saleDate.In(loc)
	n := now.In(loc)
	switch p.Kind {
	case PeriodToday:
		dy, dm, dd := d.Date()
		ny, nm, nd := n.Date()
		return dy == ny && dm == nm && dd == nd
	case PeriodThisMonth:
		return d.Year() == n.Year() && d.Month() == n.Month()
	case PeriodYearMonth:
		if d.Year() != p.Year {
			return false
		}
		return p.Month == AllMonths || d.Month() == p.Month
	}
	return false
}

// SelectByPeriod returns the records whose LastSaleDate falls in p, in
// input order. now and loc are injected so the result is deterministic.
func SelectByPeriod(records []InventoryRecord, p Period, now time.Time, loc *time.Location) []InventoryRecord {
	out := make([]InventoryRecord, 0, len(records))
	for _, r := range records {
		if p.Contains(r.LastSaleDate, now, loc) {
			out = append(out, r)
		}
	}
	return out
}
