package reconcile

import (
	"time"

	"cloud.google.com/go/civil"
)

// AddMonths moves d by n calendar months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(d civil.Date, n int) civil.Date {
	first := time.Date(d.Year, d.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := d.Day
	if day > lastDay {
		day = lastDay
	}
	return civil.Date{Year: first.Year(), Month: first.Month(), Day: day}
}
