package services

import (
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/models"
)

// Period is the ISO week a settlement is measured over.
type Period struct {
	ID    int       `json:"period_id"`
	Year  int       `json:"year"`
	Week  int       `json:"week"`
	Start time.Time `json:"start"`
	Dates []string  `json:"dates"`
}

// ResolvePeriod maps a period identifier onto an ISO week:
//
//	0 or 1        the ISO week containing now
//	2..53         that week of the current ISO year
//	YYYYWW        an explicit year and week, e.g. 202610
func ResolvePeriod(periodID int, now time.Time) (Period, error) {
	now = now.UTC()
	currentYear, currentWeek := now.ISOWeek()

	var year, week int
	switch {
	case periodID == 0 || periodID == 1:
		year, week = currentYear, currentWeek
	case periodID >= 2 && periodID <= 53:
		year, week = currentYear, periodID
	case periodID >= 100001:
		year, week = periodID/100, periodID%100
	default:
		return Period{}, apperr.Newf(apperr.ErrInvalidPeriod, "invalid period identifier %d", periodID)
	}

	if week < 1 || week > isoWeeksInYear(year) {
		return Period{}, apperr.Newf(apperr.ErrInvalidPeriod, "year %d has no ISO week %d", year, week)
	}

	start := isoWeekStart(year, week)
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format(models.ActivityDateLayout)
	}
	return Period{ID: year*100 + week, Year: year, Week: week, Start: start, Dates: dates}, nil
}

// isoWeekStart returns the Monday of the given ISO week. Week 1 is the week
// containing January 4th.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+7*(week-1))
}

func isoWeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}
