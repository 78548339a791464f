// Package distribution spreads aggregate totals evenly across the days of a
// period. The last day absorbs the rounding remainder so daily values always
// sum back to the original total.
package distribution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

func checkDays(n int) error {
	if n < 1 {
		return &period.InvalidPeriodError{Reason: fmt.Sprintf("cannot distribute over %d days", n)}
	}
	return nil
}

// SplitInt divides an integer total into n daily values of floor(total/n),
// with the remainder added to the last day.
func SplitInt(total int64, n int) ([]int64, error) {
	if err := checkDays(n); err != nil {
		return nil, err
	}
	if total < 0 {
		return nil, &metrics.CounterError{Field: "total", Value: fmt.Sprint(total)}
	}

	out := make([]int64, n)
	if n == 1 {
		out[0] = total
		return out, nil
	}

	daily := total / int64(n)
	for i := 0; i < n-1; i++ {
		out[i] = daily
	}
	out[n-1] = total - daily*int64(n-1)
	return out, nil
}

// SplitCurrency divides a currency total into n daily values rounded to cents,
// with the remainder added to the last day. When rounding up would leave the
// last day negative the daily value is truncated to cents instead.
func SplitCurrency(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if err := checkDays(n); err != nil {
		return nil, err
	}
	if total.IsNegative() {
		return nil, &metrics.CounterError{Field: "total", Value: total.String()}
	}

	out := make([]decimal.Decimal, n)
	if n == 1 {
		out[0] = total
		return out, nil
	}

	count := decimal.NewFromInt(int64(n))
	rest := decimal.NewFromInt(int64(n - 1))

	daily := total.DivRound(count, 2)
	last := total.Sub(daily.Mul(rest))
	if last.IsNegative() {
		daily = total.Div(count).Truncate(2)
		last = total.Sub(daily.Mul(rest))
	}

	for i := 0; i < n-1; i++ {
		out[i] = daily
	}
	out[n-1] = last
	return out, nil
}

// Counters splits every counter in c across n days.
func Counters(c metrics.Counters, n int) ([]metrics.Counters, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := checkDays(n); err != nil {
		return nil, err
	}

	out := make([]metrics.Counters, n)
	ints := []struct {
		total int64
		set   func(*metrics.Counters, int64)
	}{
		{c.Reach, func(d *metrics.Counters, v int64) { d.Reach = v }},
		{c.Impressions, func(d *metrics.Counters, v int64) { d.Impressions = v }},
		{c.Clicks, func(d *metrics.Counters, v int64) { d.Clicks = v }},
		{c.PageViews, func(d *metrics.Counters, v int64) { d.PageViews = v }},
		{c.Leads, func(d *metrics.Counters, v int64) { d.Leads = v }},
		{c.Checkouts, func(d *metrics.Counters, v int64) { d.Checkouts = v }},
		{c.Sales, func(d *metrics.Counters, v int64) { d.Sales = v }},
	}
	for _, f := range ints {
		values, err := SplitInt(f.total, n)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			f.set(&out[i], v)
		}
	}

	spend, err := SplitCurrency(c.Spend, n)
	if err != nil {
		return nil, err
	}
	revenue, err := SplitCurrency(c.Revenue, n)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Spend = spend[i]
		out[i].Revenue = revenue[i]
	}
	return out, nil
}

// Day is one calendar day's share of a distributed total.
type Day struct {
	Date     time.Time        `json:"date"`
	Counters metrics.Counters `json:"counters"`
	Derived  metrics.Derived  `json:"derived"`
}

// Over distributes c across the given days and derives each day's ratios.
func Over(days []time.Time, c metrics.Counters) ([]Day, error) {
	split, err := Counters(c, len(days))
	if err != nil {
		return nil, err
	}

	out := make([]Day, len(days))
	for i, d := range days {
		out[i] = Day{
			Date:     period.Date(d),
			Counters: split[i],
			Derived:  metrics.Derive(split[i]),
		}
	}
	return out, nil
}
