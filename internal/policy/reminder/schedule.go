package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Schedule yields the trigger instants of a recurring job.
type Schedule interface {
	// Next returns the first trigger strictly after t.
	Next(t time.Time) time.Time
	String() string
}

// Daily triggers once a day at a wall-clock time in Location.
type Daily struct {
	Hour, Minute int
	Location     *time.Location
}

func (d Daily) Next(t time.Time) time.Time {
	local := t.In(d.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, d.Location)
	if !next.After(t) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, d.Location)
	}
	return next
}

func (d Daily) String() string {
	return fmt.Sprintf("daily %02d:%02d %s", d.Hour, d.Minute, d.Location)
}

// Weekly triggers once a week on Weekday at a wall-clock time in Location.
type Weekly struct {
	Weekday      time.Weekday
	Hour, Minute int
	Location     *time.Location
}

func (w Weekly) Next(t time.Time) time.Time {
	local := t.In(w.Location)
	ahead := (int(w.Weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+ahead, w.Hour, w.Minute, 0, 0, w.Location)
	if !next.After(t) {
		next = time.Date(local.Year(), local.Month(), local.Day()+ahead+7, w.Hour, w.Minute, 0, 0, w.Location)
	}
	return next
}

func (w Weekly) String() string {
	return fmt.Sprintf("weekly %s %02d:%02d %s", w.Weekday, w.Hour, w.Minute, w.Location)
}

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// ParseDaily reads "HH:MM".
func ParseDaily(expr string, loc *time.Location) (Daily, error) {
	hour, minute, err := parseClock(expr)
	if err != nil {
		return Daily{}, err
	}
	return Daily{Hour: hour, Minute: minute, Location: loc}, nil
}

// ParseWeekly reads "DAY HH:MM" with a three-letter English day, e.g. "MON 08:00".
func ParseWeekly(expr string, loc *time.Location) (Weekly, error) {
	fields := strings.Fields(expr)
	if len(fields) != 2 {
		return Weekly{}, fmt.Errorf("weekly schedule %q: want \"DAY HH:MM\"", expr)
	}
	day, ok := weekdays[strings.ToUpper(fields[0])]
	if !ok {
		return Weekly{}, fmt.Errorf("weekly schedule %q: unknown day %q", expr, fields[0])
	}
	hour, minute, err := parseClock(fields[1])
	if err != nil {
		return Weekly{}, err
	}
	return Weekly{Weekday: day, Hour: hour, Minute: minute, Location: loc}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
