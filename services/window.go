package services

import "time"

// WindowDates returns the historical search window for a target date: the
// same month/day in each of the previous yearsBack years, most recent first.
// A Feb 29 target maps to Feb 28 in non-leap years, so the result always has
// exactly yearsBack dates.
func WindowDates(target time.Time, yearsBack int) []time.Time {
	dates := make([]time.Time, 0, yearsBack)
	month, day := target.Month(), target.Day()

	for i := 1; i <= yearsBack; i++ {
		year := target.Year() - i
		d := day
		if month == time.February && day == 29 && !isLeapYear(year) {
			d = 28
		}
		dates = append(dates, time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
	}
	return dates
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
