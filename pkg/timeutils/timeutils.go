package timeutils

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var weekdaysPT = [...]string{
	"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado",
}

// Greeting returns the Portuguese salutation for the hour of t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// WeekdayPT returns the Portuguese weekday name of t.
func WeekdayPT(t time.Time) string {
	return weekdaysPT[t.Weekday()]
}

// LocalDate renders t as YYYY-MM-DD in loc. It backs the lazy midnight reset of daily counters.
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// AtOffset returns date shifted by offsetDays at hour:00 in the date's location.
func AtOffset(date time.Time, offsetDays, hour int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+offsetDays, hour, 0, 0, 0, date.Location())
}
