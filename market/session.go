package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a minute-resolution time of day in the exchange timezone.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("bad clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("bad clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("bad clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("bad clock %q: out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// Session describes one exchange trading day: market hours, the window in
// which new entries are allowed, and the hard-close boundary at which every
// open position is flattened. All checks work on the bar's own timestamp,
// converted into the session location, so live and backtest see the same
// clock.
type Session struct {
	Location   *time.Location
	Open       Clock
	Close      Clock
	EntryStart Clock
	EntryEnd   Clock
	HardClose  Clock
	Interval   time.Duration
}

func (s Session) minuteOf(t time.Time) int {
	lt := t.In(s.Location)
	return lt.Hour()*60 + lt.Minute()
}

// IsOpen reports whether t falls inside market hours, boundaries inclusive.
func (s Session) IsOpen(t time.Time) bool {
	m := s.minuteOf(t)
	return m >= s.Open.minutes() && m <= s.Close.minutes()
}

// IsTradingDay reports whether t falls on a weekday.
func (s Session) IsTradingDay(t time.Time) bool {
	wd := t.In(s.Location).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// InEntryWindow reports whether new entries are allowed at t.
func (s Session) InEntryWindow(t time.Time) bool {
	m := s.minuteOf(t)
	return m >= s.EntryStart.minutes() && m <= s.EntryEnd.minutes()
}

// AtOrAfterHardClose reports whether t has reached the flatten-everything
// boundary.
func (s Session) AtOrAfterHardClose(t time.Time) bool {
	return s.minuteOf(t) >= s.HardClose.minutes()
}

// UntilOpen returns how long until the next session open, zero when the
// session is open now. The target lands a few seconds past the opening
// minute so the first fetch sees the opening bar.
func (s Session) UntilOpen(now time.Time) time.Duration {
	lt := now.In(s.Location)
	if s.IsTradingDay(lt) && s.IsOpen(lt) {
		return 0
	}
	day := lt
	if !s.IsTradingDay(day) || s.minuteOf(day) > s.Close.minutes() {
		day = day.AddDate(0, 0, 1)
	}
	for !s.IsTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	open := time.Date(day.Year(), day.Month(), day.Day(),
		s.Open.Hour, s.Open.Minute, 5, 0, s.Location)
	return open.Sub(lt)
}

// NextBarDelay returns how long to sleep from now until just after the next
// interval boundary. A small buffer lets the data source finish writing the
// bar before we ask for it.
func (s Session) NextBarDelay(now time.Time) time.Duration {
	lt := now.In(s.Location)
	ivMin := int(s.Interval.Minutes())
	if ivMin <= 0 {
		ivMin = 15
	}
	secsIntoBar := (lt.Minute()%ivMin)*60 + lt.Second()
	remaining := ivMin*60 - secsIntoBar + 2
	return time.Duration(remaining) * time.Second
}
