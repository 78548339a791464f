package period

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how an anchor date expands into a period.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// ParseMode accepts day, week or month. An empty string means day.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDay:
		return ModeDay, nil
	case ModeWeek:
		return ModeWeek, nil
	case ModeMonth:
		return ModeMonth, nil
	}
	return "", &InvalidPeriodError{Reason: fmt.Sprintf("unknown mode %q", s)}
}

// TimeProvider is an interface for getting the current time
type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// SystemTimeProvider reads the system clock.
type SystemTimeProvider struct{}

func (SystemTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// WeekConvention defines the default weekly window: the most recent StartDay
// on or before the anchor, running EndOffsetDays further.
type WeekConvention struct {
	StartDay      time.Weekday
	EndOffsetDays int
}

// DefaultWeek is a Saturday start ending on the following Monday.
var DefaultWeek = WeekConvention{StartDay: time.Saturday, EndOffsetDays: 2}

// Request is the input to Resolve. Start and End override the default
// week or month window when both are set; they are ignored in day mode.
type Request struct {
	Mode   Mode
	Anchor time.Time
	Start  *time.Time
	End    *time.Time
}

// Resolver turns a mode and anchor date into a concrete period.
type Resolver struct {
	Clock    TimeProvider
	Week     WeekConvention
	Location *time.Location
}

// NewResolver returns a resolver using the given clock and week convention.
// A nil clock falls back to the system clock.
func NewResolver(clock TimeProvider, week WeekConvention) *Resolver {
	if clock == nil {
		clock = SystemTimeProvider{}
	}
	return &Resolver{Clock: clock, Week: week, Location: time.UTC}
}

// Today returns the current civil date according to the resolver's clock.
func (r *Resolver) Today() time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return Date(r.Clock.Now(loc))
}

// Resolve expands req into a validated period.
func (r *Resolver) Resolve(req Request) (Period, error) {
	if req.Anchor.IsZero() {
		req.Anchor = r.Today()
	}
	anchor := Date(req.Anchor)

	switch req.Mode {
	case "", ModeDay:
		return Single(anchor), nil
	case ModeWeek:
		if p, ok, err := override(req); ok || err != nil {
			return p, err
		}
		return r.week(anchor), nil
	case ModeMonth:
		if p, ok, err := override(req); ok || err != nil {
			return p, err
		}
		return r.month(anchor), nil
	}
	return Period{}, &InvalidPeriodError{Reason: fmt.Sprintf("unknown mode %q", req.Mode)}
}

func override(req Request) (Period, bool, error) {
	switch {
	case req.Start == nil && req.End == nil:
		return Period{}, false, nil
	case req.Start == nil || req.End == nil:
		return Period{}, true, &InvalidPeriodError{Reason: "explicit start and end must be given together"}
	}
	p, err := New(*req.Start, *req.End)
	return p, true, err
}

func (r *Resolver) week(anchor time.Time) Period {
	back := (int(anchor.Weekday()) - int(r.Week.StartDay) + 7) % 7
	start := anchor.AddDate(0, 0, -back)
	return Period{Start: start, End: start.AddDate(0, 0, r.Week.EndOffsetDays)}
}

func (r *Resolver) month(anchor time.Time) Period {
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	today := r.Today()
	if today.Year() == anchor.Year() && today.Month() == anchor.Month() {
		end = today
	}
	return Period{Start: start, End: end}
}

// ParseRequest builds a request from its text form. Empty values are left
// unset.
func ParseRequest(mode, anchor, from, to string) (Request, error) {
	var req Request

	m, err := ParseMode(mode)
	if err != nil {
		return req, err
	}
	req.Mode = m

	if anchor != "" {
		if req.Anchor, err = ParseDate(anchor); err != nil {
			return req, err
		}
	}
	if from != "" {
		d, err := ParseDate(from)
		if err != nil {
			return req, err
		}
		req.Start = &d
	}
	if to != "" {
		d, err := ParseDate(to)
		if err != nil {
			return req, err
		}
		req.End = &d
	}
	return req, nil
}
