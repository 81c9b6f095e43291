package battle

import "time"

// =============================================================================
// CLAN CALENDAR - Maps wall-clock time onto clan days and clan months
// =============================================================================

// DayStartHour is the local hour at which a clan day begins.
const DayStartHour = 5

// MonthStartDay is the first calendar day that belongs to a new clan month.
// Days 1..20 are reported under the previous month.
const MonthStartDay = 21

// ClanDate is a clan calendar bucket. Month is the clan month, which may
// differ from the calendar month of Day.
type ClanDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ClanDateOf converts a timestamp into the clan calendar for a region offset.
//
// The timestamp is shifted into UTC+(offset-5) so that 05:00 local time
// becomes midnight, then truncated to a day. A day below 21 rolls the month
// back by one, crossing into the previous year in January.
func ClanDateOf(t time.Time, utcOffsetHours int) ClanDate {
	zone := time.FixedZone("clan", (utcOffsetHours-DayStartHour)*3600)
	local := t.In(zone)

	year, month, day := local.Year(), local.Month(), local.Day()
	if day < MonthStartDay {
		month--
	}
	if month < time.January {
		month = time.December
		year--
	}
	return ClanDate{Year: year, Month: month, Day: day}
}

// SameClanDay reports whether a and b fall on the same clan day.
func SameClanDay(a, b time.Time, utcOffsetHours int) bool {
	return ClanDateOf(a, utcOffsetHours) == ClanDateOf(b, utcOffsetHours)
}

// FilterRunsByDay keeps the records submitted on the clan day of at.
func FilterRunsByDay(runs []RunRecord, at time.Time, utcOffsetHours int) []RunRecord {
	day := ClanDateOf(at, utcOffsetHours)
	var out []RunRecord
	for _, r := range runs {
		if ClanDateOf(r.SubmittedAt, utcOffsetHours) == day {
			out = append(out, r)
		}
	}
	return out
}

// FilterEntriesByDay keeps the entries submitted on the clan day of at.
func FilterEntriesByDay(entries []Entry, at time.Time, utcOffsetHours int) []Entry {
	day := ClanDateOf(at, utcOffsetHours)
	var out []Entry
	for _, e := range entries {
		if ClanDateOf(e.SubmittedAt, utcOffsetHours) == day {
			out = append(out, e)
		}
	}
	return out
}
