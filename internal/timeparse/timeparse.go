// Package timeparse reads a day and an hour out of free-text questions such
// as "tomorrow at noon" or "friday evening".
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	clockRe   = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	weekdayRe = regexp.MustCompile(`(?i)\b(?:on\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	dayRe     = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|this\s+(?:morning|afternoon|evening))\b`)
	partRe    = regexp.MustCompile(`(?i)\b(?:at\s+|in\s+the\s+)?(noon|midday|midnight|morning|afternoon|evening)\b`)
)

// PartHours maps day parts to the hour they stand for.
var PartHours = map[string]int{
	"morning":   9,
	"noon":      12,
	"midday":    12,
	"afternoon": 15,
	"evening":   19,
	"tonight":   21,
	"midnight":  0,
}

// Parse returns the moment text names and text with the matched phrases cut
// out. Without a time expression the moment is now. A time already past
// rolls to the next day unless a day was named, and minutes are rounded to
// the nearest ten. found reports whether any expression matched.
func Parse(text string, now time.Time) (when time.Time, rest string, found bool) {
	rest = " " + text + " "
	day := now
	hour, minute := now.Hour(), now.Minute()
	explicitDay := false

	if m := dayRe.FindStringSubmatch(rest); m != nil {
		words := strings.Fields(m[1])
		word := strings.ToLower(words[len(words)-1])
		switch word {
		case "tomorrow":
			day = now.AddDate(0, 0, 1)
		case "tonight":
			hour, minute = PartHours["tonight"], 0
		default:
			if h, ok := PartHours[word]; ok {
				hour, minute = h, 0
			}
		}
		explicitDay, found = true, true
		rest = strings.Replace(rest, m[0], " ", 1)
	}
	if m := weekdayRe.FindStringSubmatch(rest); m != nil {
		day = nextWeekday(now, m[1])
		explicitDay, found = true, true
		rest = strings.Replace(rest, m[0], " ", 1)
	}
	if m := partRe.FindStringSubmatch(rest); m != nil {
		hour, minute = PartHours[strings.ToLower(m[1])], 0
		found = true
		rest = strings.Replace(rest, m[0], " ", 1)
	} else if m := clockRe.FindStringSubmatch(rest); m != nil && (m[2] != "" || m[3] != "" || strings.HasPrefix(strings.ToLower(strings.TrimSpace(m[0])), "at")) {
		h, _ := strconv.Atoi(m[1])
		mi := 0
		if m[2] != "" {
			mi, _ = strconv.Atoi(m[2])
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if h < 12 {
				h += 12
			}
		case "am":
			if h == 12 {
				h = 0
			}
		}
		if h < 24 && mi < 60 {
			hour, minute = h, mi
			found = true
		}
		rest = strings.Replace(rest, m[0], " ", 1)
	}

	hour, minute = RoundToTen(hour, minute)
	when = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !explicitDay && when.Before(now.Add(-10*time.Minute)) {
		when = when.AddDate(0, 0, 1)
	}
	return when, rest, found
}

// RoundToTen rounds a clock time to the nearest ten minutes, wrapping past
// midnight.
func RoundToTen(hour, minute int) (int, int) {
	m := (minute + 5) / 10 * 10
	if m == 60 {
		return (hour + 1) % 24, 0
	}
	return hour, m
}

func nextWeekday(now time.Time, name string) time.Time {
	for i := 1; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if strings.EqualFold(d.Weekday().String(), name) {
			return d
		}
	}
	return now
}
