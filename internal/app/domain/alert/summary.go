package alert

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Summarize aggregates alerts relative to now. Calendar boundaries are taken
// in now's location.
func Summarize(alerts []Alert, now time.Time) Summary {
	s := Summary{
		TotalAlerts:  len(alerts),
		ByType:       map[string]int{},
		BySeverity:   map[string]int{},
		DailyCount:   []Count{},
		WeeklyCount:  []Count{},
		MonthlyCount: []Count{},
	}

	loc := now.Location()
	days := make(map[string]int, len(alerts))
	for _, a := range alerts {
		switch a.Status {
		case StatusNew:
			s.NewAlerts++
		case StatusConfirmed:
			s.ConfirmedAlerts++
		case StatusDismissed:
			s.DismissedAlerts++
		case StatusFalsePositive:
			s.FalsePositiveAlerts++
		}
		s.ByType[string(a.AlertType)]++
		s.BySeverity[string(a.Severity)]++
		days[a.DetectionTime.In(loc).Format(dateLayout)]++
	}

	today := startOfDay(now)

	for i := 6; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key := d.Format(dateLayout)
		s.DailyCount = append(s.DailyCount, Count{Date: key, Count: days[key]})
	}

	// Weeks: (start, end], end stepping back 7 days from today.
	for i := 3; i >= 0; i-- {
		start := today.AddDate(0, 0, -(i+1)*7)
		end := today.AddDate(0, 0, -i*7)
		n := 0
		for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
			n += days[d.Format(dateLayout)]
		}
		s.WeeklyCount = append(s.WeeklyCount, Count{
			Week:      fmt.Sprintf("Week %d", 4-i),
			StartDate: start.Format(dateLayout),
			EndDate:   end.Format(dateLayout),
			Count:     n,
		})
	}

	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	for i := 5; i >= 0; i-- {
		first := firstOfMonth.AddDate(0, -i, 0)
		last := first.AddDate(0, 1, -1)
		if i == 0 {
			last = today
		}
		n := 0
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			n += days[d.Format(dateLayout)]
		}
		s.MonthlyCount = append(s.MonthlyCount, Count{
			Month:     first.Format("January 2006"),
			StartDate: first.Format(dateLayout),
			EndDate:   last.Format(dateLayout),
			Count:     n,
		})
	}

	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD filter value in loc.
func ParseDate(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
