// Package tradingdays answers whether a date range contains exchange
// sessions, so price fetchers can skip upstream calls for holiday-only
// ranges.
package tradingdays

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// DefaultMIC is the NYSE calendar used for US listings.
const DefaultMIC = "xnys"

var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
}

// MIC guesses the exchange calendar for a ticker from its suffix.
func MIC(symbol string) string {
	if i := strings.LastIndex(symbol, "."); i > 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[i:])]; ok {
			return mic
		}
	}
	return DefaultMIC
}

// Calendar wraps an exchange calendar; without one it treats Mon-Fri as open.
type Calendar struct {
	cal *calendar.Calendar
	loc *time.Location
}

func For(mic string) *Calendar {
	cal := calendar.GetCalendar(strings.ToLower(mic))
	if cal == nil {
		cal = calendar.GetCalendar(DefaultMIC)
	}
	if cal == nil {
		return &Calendar{loc: time.UTC}
	}
	return &Calendar{cal: cal, loc: cal.Loc}
}

// IsBusinessDay reports whether the calendar date of d is a session day.
// Only the year, month and day of d are used.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	local := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, c.loc)
	if c.cal == nil {
		wd := local.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(local)
}

// BusinessDays lists session days in [start, end] inclusive.
func (c *Calendar) BusinessDays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := day(start); !d.After(day(end)); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// HasBusinessDay is BusinessDays without the allocation.
func (c *Calendar) HasBusinessDay(start, end time.Time) bool {
	for d := day(start); !d.After(day(end)); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			return true
		}
	}
	return false
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
