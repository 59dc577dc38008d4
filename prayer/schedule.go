// Package prayer determines the next daily prayer and counts down to it.
package prayer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Name identifies one of the daily prayers.
type Name string

const (
	Fajr    Name = "Fajr"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Daily lists the obligatory prayers in their order through the day.
var Daily = []Name{Fajr, Dhuhr, Asr, Maghrib, Isha}

var (
	// ErrEmptySchedule is returned when a schedule has no prayers.
	ErrEmptySchedule = errors.New("prayer: empty schedule")

	// ErrMissingPrayer is returned when a daily prayer has no time.
	ErrMissingPrayer = errors.New("prayer: missing prayer time")

	// ErrInvalidTime is returned when a clock time cannot be parsed.
	ErrInvalidTime = errors.New("prayer: invalid time")

	// ErrStaleSchedule is returned when every prayer the schedules can
	// offer is already in the past.
	ErrStaleSchedule = errors.New("prayer: schedule has passed")
)

// Prayer is a named prayer at an absolute time.
type Prayer struct {
	Name Name      `json:"name"`
	At   time.Time `json:"at"`
}

// Schedule holds one day's prayers sorted by time.
type Schedule struct {
	Date    time.Time `json:"date"`
	Prayers []Prayer  `json:"prayers"`
}

// ParseSchedule builds the schedule for date from clock times such as
// "05:12", "05:12 (EET)" or "5:12 PM". Times are interpreted in date's
// location. Every prayer in Daily must be present; other names (e.g.
// Sunrise) are ignored.
func ParseSchedule(date time.Time, times map[Name]string) (Schedule, error) {
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, date.Location())

	sched := Schedule{Date: midnight}
	for _, name := range Daily {
		raw, ok := times[name]
		if !ok || strings.TrimSpace(raw) == "" {
			return Schedule{}, fmt.Errorf("%w: %s", ErrMissingPrayer, name)
		}
		hour, minute, err := parseClock(raw)
		if err != nil {
			return Schedule{}, fmt.Errorf("%s: %w", name, err)
		}
		sched.Prayers = append(sched.Prayers, Prayer{
			Name: name,
			At:   time.Date(y, m, d, hour, minute, 0, 0, date.Location()),
		})
	}

	sort.SliceStable(sched.Prayers, func(i, j int) bool {
		return sched.Prayers[i].At.Before(sched.Prayers[j].At)
	})
	return sched, nil
}

// parseClock accepts "HH:MM", an optional trailing "(TZ)" annotation and an
// optional AM/PM marker.
func parseClock(raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "("); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	period := ""
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "AM"):
		period = "AM"
	case strings.HasSuffix(upper, "PM"):
		period = "PM"
	}
	if period != "" {
		s = strings.TrimSpace(s[:len(s)-2])
	}

	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	switch period {
	case "AM", "PM":
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		hour %= 12
		if period == "PM" {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
	}
	return hour, minute, nil
}

// Next returns the first prayer strictly after now. Once today's last prayer
// has passed it rolls over to the first prayer of tomorrow, or, when tomorrow
// is nil, to today's first prayer shifted by one calendar day. If that is in
// the past too, Next returns ErrStaleSchedule.
func Next(today Schedule, tomorrow *Schedule, now time.Time) (Prayer, error) {
	if len(today.Prayers) == 0 {
		return Prayer{}, ErrEmptySchedule
	}

	for _, p := range today.Prayers {
		if p.At.After(now) {
			return p, nil
		}
	}

	if tomorrow != nil && len(tomorrow.Prayers) > 0 {
		for _, p := range tomorrow.Prayers {
			if p.At.After(now) {
				return p, nil
			}
		}
		return Prayer{}, fmt.Errorf("%w: %s", ErrStaleSchedule, tomorrow.Date.Format("2006-01-02"))
	}

	first := today.Prayers[0]
	first.At = first.At.AddDate(0, 0, 1)
	if !first.At.After(now) {
		return Prayer{}, fmt.Errorf("%w: %s", ErrStaleSchedule, today.Date.Format("2006-01-02"))
	}
	return first, nil
}
