// Package markethours knows which days the exchange trades and when the
// session closes, so scheduled backtests only run once a new daily bar
// exists.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE cash session close in IST.
const (
	CloseHour   = 15
	CloseMinute = 30
)

// Calendar is an exchange's trading days and closing time.
type Calendar struct {
	loc         *time.Location
	closeHour   int
	closeMinute int
	holidays    map[string]bool
}

// NSE returns the NSE calendar with its published holidays plus any extra
// YYYY-MM-DD dates.
func NSE(extra ...string) (*Calendar, error) {
	c := &Calendar{
		loc:         IST,
		closeHour:   CloseHour,
		closeMinute: CloseMinute,
		holidays:    make(map[string]bool, len(nseHolidays)+len(extra)),
	}
	for _, d := range nseHolidays {
		c.holidays[d] = true
	}
	for _, d := range extra {
		if _, err := time.ParseInLocation(time.DateOnly, d, IST); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
		c.holidays[d] = true
	}
	return c, nil
}

// IsHoliday reports whether t's date (in exchange time) is a listed holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[t.In(c.loc).Format(time.DateOnly)]
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	wd := local.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !c.IsHoliday(local)
}

// Close returns the session close on t's date.
func (c *Calendar) Close(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.closeHour, c.closeMinute, 0, 0, c.loc)
}

// HasNewBar reports whether a trading session closed on t's date by t, i.e.
// whether a daily run at t would see a bar the previous run did not.
func (c *Calendar) HasNewBar(t time.Time) bool {
	return c.IsTradingDay(t) && !t.Before(c.Close(t))
}

// LastClose returns the most recent session close at or before t.
func (c *Calendar) LastClose(t time.Time) time.Time {
	if c.HasNewBar(t) {
		return c.Close(t)
	}
	d := t.In(c.loc)
	for i := 0; i < 15; i++ { // longest holiday run plus weekends
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			return c.Close(d)
		}
	}
	return c.Close(t.AddDate(0, 0, -1))
}

// StatusString returns a human-readable description for logs.
func (c *Calendar) StatusString(t time.Time) string {
	if c.HasNewBar(t) {
		return "session closed today, new bar available"
	}
	if !c.IsTradingDay(t) {
		return fmt.Sprintf("no session on %s, last close %s",
			t.In(c.loc).Format("Mon 2006-01-02"), c.LastClose(t).Format("Mon 2006-01-02"))
	}
	return fmt.Sprintf("session open, closes in %s", fmtDur(c.Close(t).Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
