package engine

import (
	"fmt"
	"time"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, validation("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// cycleBounds returns the anchored 7-day window containing day.
func cycleBounds(day time.Time, anchor time.Weekday) (time.Time, time.Time) {
	back := (int(day.Weekday()) - int(anchor) + 7) % 7
	start := day.AddDate(0, 0, -back)
	return start, start.AddDate(0, 0, 6)
}

// fitCycle moves the anchored window [start, end] off the neighbouring weeks so it can be
// inserted. prevEnd and nextStart may be empty. The result spans 6 to 8 days and prefers to end
// on the day before the anchor so later weeks fall back into the cycle.
func fitCycle(start, end time.Time, anchor time.Weekday, prevEnd, nextStart string) (time.Time, time.Time, error) {
	var lo time.Time
	if prevEnd != "" {
		p, err := parseDate(prevEnd)
		if err != nil {
			return start, end, err
		}
		lo = p.AddDate(0, 0, 1)
		if start.Before(lo) {
			start = lo
			end = start.AddDate(0, 0, 6)
			for i := 6; i <= 8; i++ {
				if c := start.AddDate(0, 0, i); c.AddDate(0, 0, 1).Weekday() == anchor {
					end = c
					break
				}
			}
		}
	}
	if nextStart != "" {
		n, err := parseDate(nextStart)
		if err != nil {
			return start, end, err
		}
		if hi := n.AddDate(0, 0, -1); end.After(hi) {
			end = hi
			start = end.AddDate(0, 0, -6)
			if start.Before(lo) {
				start = lo
			}
		}
	}
	if d := spanDays(start, end); d < 6 {
		return start, end, &DomainError{Kind: ErrValidation, Entity: "week", Value: formatDate(start) + ".." + formatDate(end),
			Message: "no room for a 6 to 8 day week between the neighbouring weeks"}
	}
	return start, end, nil
}

// weekCode derives the code from the ISO year and week of the start day.
func weekCode(start time.Time) (string, int, int) {
	y, w := start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w), y, w
}

// editBoundary is the first anchor day strictly after the entry date.
func editBoundary(entryDate time.Time, anchor time.Weekday) time.Time {
	ahead := (int(anchor) - int(entryDate.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return entryDate.AddDate(0, 0, ahead)
}

// spanDays is the number of whole days between start and end.
func spanDays(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

// overlapDays counts calendar days shared by [aStart, aEnd] and [bStart, bEnd], inclusive.
func overlapDays(aStart, aEnd, bStart, bEnd string) int {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if start > end {
		return 0
	}
	s, err1 := time.Parse(domain.DateLayout, start)
	e, err2 := time.Parse(domain.DateLayout, end)
	if err1 != nil || err2 != nil {
		return 0
	}
	return spanDays(s, e) + 1
}
