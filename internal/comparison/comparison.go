// Package comparison computes period-over-period variance per metric,
// suppressing comparisons against statistically insignificant prior values.
package comparison

import (
	"strings"

	"github.com/shopspring/decimal"

	"funnelmetrics/internal/metrics"
)

// Floors holds the minimum previous-period value each metric needs before a
// variance is reported. Metrics without an entry use Default.
type Floors struct {
	Default   float64            `json:"default"`
	PerMetric map[string]float64 `json:"per_metric"`
}

// DefaultFloors returns the stock floors.
func DefaultFloors() Floors {
	return Floors{
		Default: 1,
		PerMetric: map[string]float64{
			metrics.Impressions: 100,
			metrics.Clicks:      5,
			metrics.Leads:       1,
			metrics.Sales:       1,
		},
	}
}

// For returns the floor for metric.
func (f Floors) For(metric string) float64 {
	if v, ok := f.PerMetric[strings.ToLower(metric)]; ok {
		return v
	}
	return f.Default
}

// Result compares one metric across two periods. VariancePct is nil when no
// meaningful comparison exists.
type Result struct {
	Current     float64  `json:"current"`
	Previous    float64  `json:"previous"`
	VariancePct *float64 `json:"variance_pct"`
}

// Direction summarizes the variance as up, down, flat or none.
func (r Result) Direction() string {
	switch {
	case r.VariancePct == nil:
		return "none"
	case *r.VariancePct > 0:
		return "up"
	case *r.VariancePct < 0:
		return "down"
	}
	return "flat"
}

// Report maps metric names to their comparison.
type Report map[string]Result

// Variance returns the percentage change from previous to current rounded to
// one decimal, or nil when previous is below floor. With a zero floor and a
// zero previous value the change is 0 when current is also 0 and nil otherwise.
func Variance(current, previous, floor float64) *float64 {
	if previous < floor {
		return nil
	}
	if previous == 0 {
		if current == 0 {
			zero := 0.0
			return &zero
		}
		return nil
	}

	pct := decimal.NewFromFloat(current).
		Sub(decimal.NewFromFloat(previous)).
		Div(decimal.NewFromFloat(previous)).
		Mul(decimal.NewFromInt(100)).
		Round(1).
		InexactFloat64()
	return &pct
}

// Compare builds a report over every counter and derived metric.
func Compare(current, previous metrics.Summary, floors Floors) Report {
	report := make(Report, len(metrics.Names()))
	for _, name := range metrics.Names() {
		c, _ := current.Value(name)
		p, _ := previous.Value(name)
		report[name] = Result{
			Current:     c,
			Previous:    p,
			VariancePct: Variance(c, p, floors.For(name)),
		}
	}
	return report
}
