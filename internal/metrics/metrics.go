// Package metrics holds the raw campaign counters and the ratio metrics derived from them.
package metrics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ErrNegativeCounter is matched by every *CounterError.
var ErrNegativeCounter = errors.New("negative counter")

// CounterError reports a raw counter submitted with a negative value.
type CounterError struct {
	Field string
	Value string
}

func (e *CounterError) Error() string {
	return fmt.Sprintf("counter %s must not be negative, got %s", e.Field, e.Value)
}

func (e *CounterError) Is(target error) bool {
	return target == ErrNegativeCounter
}

// Raw counter names, in display order.
const (
	Reach       = "reach"
	Impressions = "impressions"
	Clicks      = "clicks"
	PageViews   = "page_views"
	Leads       = "leads"
	Checkouts   = "checkouts"
	Sales       = "sales"
	Spend       = "spend"
	Revenue     = "revenue"
)

// Derived metric names.
const (
	ROAS           = "roas"
	CTR            = "ctr"
	CPM            = "cpm"
	CPC            = "cpc"
	CPL            = "cpl"
	ConversionRate = "conversion_rate"
)

// CounterNames lists the additive counters.
var CounterNames = []string{Reach, Impressions, Clicks, PageViews, Leads, Checkouts, Sales, Spend, Revenue}

// DerivedNames lists the ratio metrics.
var DerivedNames = []string{ROAS, CTR, CPM, CPC, CPL, ConversionRate}

// Names lists every metric a summary exposes.
func Names() []string {
	names := make([]string, 0, len(CounterNames)+len(DerivedNames))
	names = append(names, CounterNames...)
	return append(names, DerivedNames...)
}

// IsName reports whether name is a metric a summary exposes.
func IsName(name string) bool {
	return slices.Contains(Names(), name)
}

// Counters are the directly observed, additive quantities for one entity.
// Spend and Revenue are currency values kept to two decimal places.
type Counters struct {
	Reach       int64           `json:"reach"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	PageViews   int64           `json:"page_views"`
	Leads       int64           `json:"leads"`
	Checkouts   int64           `json:"checkouts"`
	Sales       int64           `json:"sales"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Validate rejects any negative counter.
func (c Counters) Validate() error {
	ints := []struct {
		name  string
		value int64
	}{
		{Reach, c.Reach},
		{Impressions, c.Impressions},
		{Clicks, c.Clicks},
		{PageViews, c.PageViews},
		{Leads, c.Leads},
		{Checkouts, c.Checkouts},
		{Sales, c.Sales},
	}
	for _, f := range ints {
		if f.value < 0 {
			return &CounterError{Field: f.name, Value: fmt.Sprint(f.value)}
		}
	}
	if c.Spend.IsNegative() {
		return &CounterError{Field: Spend, Value: c.Spend.String()}
	}
	if c.Revenue.IsNegative() {
		return &CounterError{Field: Revenue, Value: c.Revenue.String()}
	}
	return nil
}

// Normalize rounds the currency counters to cents.
func (c Counters) Normalize() Counters {
	c.Spend = c.Spend.Round(2)
	c.Revenue = c.Revenue.Round(2)
	return c
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Reach:       c.Reach + o.Reach,
		Impressions: c.Impressions + o.Impressions,
		Clicks:      c.Clicks + o.Clicks,
		PageViews:   c.PageViews + o.PageViews,
		Leads:       c.Leads + o.Leads,
		Checkouts:   c.Checkouts + o.Checkouts,
		Sales:       c.Sales + o.Sales,
		Spend:       c.Spend.Add(o.Spend),
		Revenue:     c.Revenue.Add(o.Revenue),
	}
}

// Equal compares counters, treating currency values numerically.
func (c Counters) Equal(o Counters) bool {
	return c.Reach == o.Reach &&
		c.Impressions == o.Impressions &&
		c.Clicks == o.Clicks &&
		c.PageViews == o.PageViews &&
		c.Leads == o.Leads &&
		c.Checkouts == o.Checkouts &&
		c.Sales == o.Sales &&
		c.Spend.Equal(o.Spend) &&
		c.Revenue.Equal(o.Revenue)
}

// IsZero reports whether every counter is zero.
func (c Counters) IsZero() bool {
	return c.Equal(Counters{})
}

// Value returns the named counter as a float.
func (c Counters) Value(name string) (float64, bool) {
	switch name {
	case Reach:
		return float64(c.Reach), true
	case Impressions:
		return float64(c.Impressions), true
	case Clicks:
		return float64(c.Clicks), true
	case PageViews:
		return float64(c.PageViews), true
	case Leads:
		return float64(c.Leads), true
	case Checkouts:
		return float64(c.Checkouts), true
	case Sales:
		return float64(c.Sales), true
	case Spend:
		return c.Spend.InexactFloat64(), true
	case Revenue:
		return c.Revenue.InexactFloat64(), true
	}
	return 0, false
}

// Summary pairs summed counters with the ratios derived from them.
type Summary struct {
	Counters
	Derived
}

// Summarize derives the ratio metrics for c.
func Summarize(c Counters) Summary {
	return Summary{Counters: c, Derived: Derive(c)}
}

// Value looks up a counter or derived metric by name.
func (s Summary) Value(name string) (float64, bool) {
	if v, ok := s.Counters.Value(name); ok {
		return v, true
	}
	return s.Derived.Value(name)
}
