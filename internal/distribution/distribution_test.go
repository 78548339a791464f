package distribution_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/distribution"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

func sumInts(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}

func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func TestSplitInt(t *testing.T) {
	t.Run("remainder lands on the last day", func(t *testing.T) {
		values, err := distribution.SplitInt(100, 7)
		require.NoError(t, err)
		assert.Equal(t, []int64{14, 14, 14, 14, 14, 14, 16}, values)
	})

	t.Run("single day keeps the total", func(t *testing.T) {
		values, err := distribution.SplitInt(37, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{37}, values)
	})

	t.Run("total smaller than day count", func(t *testing.T) {
		values, err := distribution.SplitInt(2, 5)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 0, 0, 0, 2}, values)
	})

	t.Run("exact reconstruction", func(t *testing.T) {
		for _, total := range []int64{0, 1, 99, 100, 301, 123457} {
			for n := 1; n <= 31; n++ {
				values, err := distribution.SplitInt(total, n)
				require.NoError(t, err)
				require.Len(t, values, n)
				assert.Equal(t, total, sumInts(values), "total=%d n=%d", total, n)
			}
		}
	})

	t.Run("zero days is an invalid period", func(t *testing.T) {
		_, err := distribution.SplitInt(10, 0)
		assert.ErrorIs(t, err, period.ErrInvalidPeriod)
	})

	t.Run("negative total is rejected", func(t *testing.T) {
		_, err := distribution.SplitInt(-1, 3)
		assert.ErrorIs(t, err, metrics.ErrNegativeCounter)
	})
}

func TestSplitCurrency(t *testing.T) {
	t.Run("rounds to cents and carries the remainder", func(t *testing.T) {
		values, err := distribution.SplitCurrency(decimal.RequireFromString("100.00"), 3)
		require.NoError(t, err)
		assert.Equal(t, "33.33", values[0].StringFixed(2))
		assert.Equal(t, "33.33", values[1].StringFixed(2))
		assert.Equal(t, "33.34", values[2].StringFixed(2))
	})

	t.Run("rounding up is corrected on the last day", func(t *testing.T) {
		values, err := distribution.SplitCurrency(decimal.RequireFromString("200.00"), 3)
		require.NoError(t, err)
		assert.Equal(t, "66.67", values[0].StringFixed(2))
		assert.Equal(t, "66.66", values[2].StringFixed(2))
	})

	t.Run("last day never goes negative", func(t *testing.T) {
		values, err := distribution.SplitCurrency(decimal.RequireFromString("0.05"), 7)
		require.NoError(t, err)
		for _, v := range values {
			assert.False(t, v.IsNegative(), v.String())
		}
		assert.True(t, sumDecimals(values).Equal(decimal.RequireFromString("0.05")))
	})

	t.Run("exact reconstruction", func(t *testing.T) {
		for _, raw := range []string{"0", "0.01", "10.00", "99.99", "3000.00", "1234.57", "0.04"} {
			total := decimal.RequireFromString(raw)
			for n := 1; n <= 31; n++ {
				values, err := distribution.SplitCurrency(total, n)
				require.NoError(t, err)
				assert.True(t, sumDecimals(values).Equal(total), "total=%s n=%d", raw, n)
				for _, v := range values {
					assert.False(t, v.IsNegative())
				}
			}
		}
	})
}

func TestOverMonth(t *testing.T) {
	p, err := period.New(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	totals := metrics.Counters{
		Leads:   300,
		Sales:   30,
		Spend:   decimal.RequireFromString("3000.00"),
		Revenue: decimal.RequireFromString("9000.00"),
	}

	days, err := distribution.Over(p.Days(), totals)
	require.NoError(t, err)
	require.Len(t, days, 30)

	sum := metrics.Counters{}
	for _, d := range days {
		assert.Equal(t, int64(10), d.Counters.Leads)
		assert.Equal(t, int64(1), d.Counters.Sales)
		assert.Equal(t, "100.00", d.Counters.Spend.StringFixed(2))
		assert.Equal(t, "300.00", d.Counters.Revenue.StringFixed(2))
		assert.Equal(t, 3.0, d.Derived.ROAS)
		assert.Equal(t, 10.0, d.Derived.ConversionRate)
		sum = sum.Add(d.Counters)
	}
	assert.True(t, sum.Equal(totals))
	assert.Equal(t, p.End, days[29].Date)
}

func TestCountersRejectsNegativeInput(t *testing.T) {
	_, err := distribution.Counters(metrics.Counters{Sales: -3}, 5)
	var cerr *metrics.CounterError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, metrics.Sales, cerr.Field)
}
