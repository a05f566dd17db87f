package portfolio

import (
	"fmt"
	"math"
)

// Period is a day count broken into 365-day years and 30-day months. It is an
// approximation, not calendar arithmetic; reported holding periods and
// annualised figures depend on it staying that way.
type Period struct {
	Years  int `json:"years"`
	Months int `json:"months"`
	Days   int `json:"days"`
}

// PeriodOf decomposes a day count. Fractional counts are rounded half to even
// first.
func PeriodOf(days float64) Period {
	d := int(math.RoundToEven(days))
	return Period{
		Years:  d / 365,
		Months: (d % 365) / 30,
		Days:   (d % 365) % 30,
	}
}

// String renders "years.months.days", e.g. "1.2.0".
func (p Period) String() string {
	return fmt.Sprintf("%d.%d.%d", p.Years, p.Months, p.Days)
}
