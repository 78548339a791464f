// Package period resolves reporting windows into inclusive lists of calendar days.
package period

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for civil dates.
const DateLayout = "2006-01-02"

// ErrInvalidPeriod is matched by every *InvalidPeriodError.
var ErrInvalidPeriod = errors.New("invalid period")

// InvalidPeriodError describes a period that cannot be resolved.
type InvalidPeriodError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	if e.Start.IsZero() && e.End.IsZero() {
		return fmt.Sprintf("invalid period: %s", e.Reason)
	}
	return fmt.Sprintf("invalid period %s..%s: %s", e.Start.Format(DateLayout), e.End.Format(DateLayout), e.Reason)
}

func (e *InvalidPeriodError) Is(target error) bool {
	return target == ErrInvalidPeriod
}

// Period is an inclusive range of calendar days. Start and End are UTC midnights.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Date truncates t to its civil date, expressed as a UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &InvalidPeriodError{Reason: fmt.Sprintf("malformed date %q", s)}
	}
	return t, nil
}

// New builds a validated period from two dates.
func New(start, end time.Time) (Period, error) {
	p := Period{Start: Date(start), End: Date(end)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Single returns the one-day period for d.
func Single(d time.Time) Period {
	d = Date(d)
	return Period{Start: d, End: d}
}

// Validate reports an InvalidPeriodError when the range is empty or inverted.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &InvalidPeriodError{Start: p.Start, End: p.End, Reason: "start and end are required"}
	}
	if p.Start.After(p.End) {
		return &InvalidPeriodError{Start: p.Start, End: p.End, Reason: "start is after end"}
	}
	return nil
}

// DayCount is the number of calendar days in the period, both ends included.
func (p Period) DayCount() int {
	return int(Date(p.End).Sub(Date(p.Start)).Hours()/24) + 1
}

// Days lists every calendar day from Start to End inclusive.
func (p Period) Days() []time.Time {
	n := p.DayCount()
	if n <= 0 {
		return nil
	}
	days := make([]time.Time, n)
	start := Date(p.Start)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// Contains reports whether the civil date of t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(Date(p.Start)) && !d.After(Date(p.End))
}

// Previous returns the period of equal length that ends the day before p starts.
func Previous(p Period) (Period, error) {
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	n := p.DayCount()
	end := Date(p.Start).AddDate(0, 0, -1)
	return Period{Start: end.AddDate(0, 0, -(n - 1)), End: end}, nil
}

func (p Period) String() string {
	if p.Start.Equal(p.End) {
		return p.Start.Format(DateLayout)
	}
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}
