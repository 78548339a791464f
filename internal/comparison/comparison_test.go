package comparison_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/comparison"
	"funnelmetrics/internal/metrics"
)

func TestVariance(t *testing.T) {
	testCases := []struct {
		name     string
		current  float64
		previous float64
		floor    float64
		expected *float64
	}{
		{name: "below floor is suppressed", current: 300, previous: 50, floor: 100, expected: nil},
		{name: "doubling", current: 300, previous: 150, floor: 100, expected: ptr(100.0)},
		{name: "halving", current: 75, previous: 150, floor: 100, expected: ptr(-50.0)},
		{name: "at the floor is compared", current: 110, previous: 100, floor: 100, expected: ptr(10.0)},
		{name: "rounds to one decimal", current: 2, previous: 3, floor: 1, expected: ptr(-33.3)},
		{name: "rounds half up", current: 1.0005, previous: 1, floor: 0, expected: ptr(0.1)},
		{name: "zero floor with both zero is flat", current: 0, previous: 0, floor: 0, expected: ptr(0.0)},
		{name: "zero floor with growth from zero is suppressed", current: 5, previous: 0, floor: 0, expected: nil},
		{name: "zero previous under a positive floor", current: 0, previous: 0, floor: 1, expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := comparison.Variance(tc.current, tc.previous, tc.floor)
			if tc.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.expected, *got)
		})
	}
}

func TestCompare(t *testing.T) {
	current := metrics.Summarize(metrics.Counters{
		Impressions: 300,
		Clicks:      12,
		Leads:       4,
		Sales:       1,
		Spend:       decimal.RequireFromString("60.00"),
		Revenue:     decimal.RequireFromString("180.00"),
	})
	previous := metrics.Summarize(metrics.Counters{
		Impressions: 50,
		Clicks:      6,
		Leads:       2,
		Sales:       0,
		Spend:       decimal.RequireFromString("30.00"),
		Revenue:     decimal.RequireFromString("30.00"),
	})

	report := comparison.Compare(current, previous, comparison.DefaultFloors())
	require.Len(t, report, len(metrics.Names()))

	assert.Nil(t, report[metrics.Impressions].VariancePct, "50 impressions is under the floor of 100")
	assert.Equal(t, 300.0, report[metrics.Impressions].Current)
	assert.Equal(t, 50.0, report[metrics.Impressions].Previous)
	assert.Equal(t, "none", report[metrics.Impressions].Direction())

	require.NotNil(t, report[metrics.Clicks].VariancePct)
	assert.Equal(t, 100.0, *report[metrics.Clicks].VariancePct)
	assert.Equal(t, "up", report[metrics.Clicks].Direction())

	assert.Nil(t, report[metrics.Sales].VariancePct)

	require.NotNil(t, report[metrics.Spend].VariancePct)
	assert.Equal(t, 100.0, *report[metrics.Spend].VariancePct)

	require.NotNil(t, report[metrics.ROAS].VariancePct)
	assert.Equal(t, 200.0, *report[metrics.ROAS].VariancePct)
}

func TestFloorsFor(t *testing.T) {
	floors := comparison.Floors{Default: 2, PerMetric: map[string]float64{"impressions": 1000}}
	assert.Equal(t, 1000.0, floors.For("Impressions"))
	assert.Equal(t, 2.0, floors.For(metrics.CPC))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "flat", comparison.Result{VariancePct: ptr(0)}.Direction())
	assert.Equal(t, "down", comparison.Result{VariancePct: ptr(-1)}.Direction())
}

func ptr(v float64) *float64 { return &v }
