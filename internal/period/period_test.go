package period_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/period"
)

// MockTimeProvider implements the TimeProvider interface for testing
type MockTimeProvider struct {
	FixedTime time.Time
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	return m.FixedTime.In(loc)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestResolve(t *testing.T) {
	// Friday, March 15, 2024
	clock := &MockTimeProvider{FixedTime: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	resolver := period.NewResolver(clock, period.DefaultWeek)

	testCases := []struct {
		name      string
		req       period.Request
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "day mode uses the anchor",
			req:       period.Request{Mode: period.ModeDay, Anchor: date(2024, 3, 10)},
			wantStart: date(2024, 3, 10),
			wantEnd:   date(2024, 3, 10),
		},
		{
			name:      "day mode ignores overrides",
			req:       period.Request{Mode: period.ModeDay, Anchor: date(2024, 3, 10), Start: ptr(date(2024, 3, 1)), End: ptr(date(2024, 3, 5))},
			wantStart: date(2024, 3, 10),
			wantEnd:   date(2024, 3, 10),
		},
		{
			name:      "week mode starts on the previous saturday",
			req:       period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 15)},
			wantStart: date(2024, 3, 9),
			wantEnd:   date(2024, 3, 11),
		},
		{
			name:      "week mode anchored on a saturday",
			req:       period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 16)},
			wantStart: date(2024, 3, 16),
			wantEnd:   date(2024, 3, 18),
		},
		{
			name:      "week mode honours an explicit range",
			req:       period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 15), Start: ptr(date(2024, 3, 4)), End: ptr(date(2024, 3, 10))},
			wantStart: date(2024, 3, 4),
			wantEnd:   date(2024, 3, 10),
		},
		{
			name:    "week mode rejects a half override",
			req:     period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 15), Start: ptr(date(2024, 3, 4))},
			wantErr: true,
		},
		{
			name:    "week mode rejects an inverted override",
			req:     period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 15), Start: ptr(date(2024, 3, 10)), End: ptr(date(2024, 3, 4))},
			wantErr: true,
		},
		{
			name:      "current month ends today",
			req:       period.Request{Mode: period.ModeMonth, Anchor: date(2024, 3, 5)},
			wantStart: date(2024, 3, 1),
			wantEnd:   date(2024, 3, 15),
		},
		{
			name:      "past month ends on its last day",
			req:       period.Request{Mode: period.ModeMonth, Anchor: date(2024, 2, 10)},
			wantStart: date(2024, 2, 1),
			wantEnd:   date(2024, 2, 29),
		},
		{
			name:      "missing anchor defaults to today",
			req:       period.Request{Mode: period.ModeDay},
			wantStart: date(2024, 3, 15),
			wantEnd:   date(2024, 3, 15),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := resolver.Resolve(tc.req)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, period.ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, p.Start)
			assert.Equal(t, tc.wantEnd, p.End)
		})
	}
}

func TestResolveCustomWeekConvention(t *testing.T) {
	clock := &MockTimeProvider{FixedTime: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	resolver := period.NewResolver(clock, period.WeekConvention{StartDay: time.Monday, EndOffsetDays: 6})

	p, err := resolver.Resolve(period.Request{Mode: period.ModeWeek, Anchor: date(2024, 3, 15)})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 11), p.Start)
	assert.Equal(t, date(2024, 3, 17), p.End)
	assert.Equal(t, 7, p.DayCount())
}

func TestDays(t *testing.T) {
	p, err := period.New(date(2024, 2, 27), date(2024, 3, 2))
	require.NoError(t, err)

	days := p.Days()
	require.Len(t, days, 5)
	assert.Equal(t, date(2024, 2, 27), days[0])
	assert.Equal(t, date(2024, 2, 29), days[2])
	assert.Equal(t, date(2024, 3, 2), days[4])
	assert.Equal(t, 5, p.DayCount())
}

func TestNewNormalizesToCivilDates(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	p, err := period.New(time.Date(2024, 3, 1, 23, 30, 0, 0, loc), time.Date(2024, 3, 1, 1, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 1), p.Start)
	assert.Equal(t, 1, p.DayCount())
}

func TestPrevious(t *testing.T) {
	t.Run("same length ending the day before", func(t *testing.T) {
		p, err := period.New(date(2024, 3, 1), date(2024, 3, 15))
		require.NoError(t, err)

		prev, err := period.Previous(p)
		require.NoError(t, err)
		assert.Equal(t, date(2024, 2, 15), prev.Start)
		assert.Equal(t, date(2024, 2, 29), prev.End)
		assert.Equal(t, p.DayCount(), prev.DayCount())
	})

	t.Run("single day", func(t *testing.T) {
		prev, err := period.Previous(period.Single(date(2024, 1, 1)))
		require.NoError(t, err)
		assert.Equal(t, date(2023, 12, 31), prev.Start)
		assert.Equal(t, date(2023, 12, 31), prev.End)
	})

	t.Run("inverted period fails", func(t *testing.T) {
		_, err := period.Previous(period.Period{Start: date(2024, 3, 2), End: date(2024, 3, 1)})
		require.Error(t, err)
		assert.ErrorIs(t, err, period.ErrInvalidPeriod)

		var perr *period.InvalidPeriodError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, date(2024, 3, 2), perr.Start)
	})
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]period.Mode{"": period.ModeDay, "DAY": period.ModeDay, "week": period.ModeWeek, " month ": period.ModeMonth} {
		got, err := period.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := period.ParseMode("quarter")
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)
}

func TestContains(t *testing.T) {
	p, err := period.New(date(2024, 3, 1), date(2024, 3, 3))
	require.NoError(t, err)
	assert.True(t, p.Contains(time.Date(2024, 3, 3, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(date(2024, 3, 4)))
	assert.False(t, p.Contains(date(2024, 2, 29)))
}

func TestParseRequest(t *testing.T) {
	req, err := period.ParseRequest("week", "2024-03-11", "", "")
	require.NoError(t, err)
	assert.Equal(t, period.ModeWeek, req.Mode)
	assert.Equal(t, date(2024, 3, 11), req.Anchor)
	assert.Nil(t, req.Start)
	assert.Nil(t, req.End)

	req, err = period.ParseRequest("month", "", "2024-03-01", "2024-03-10")
	require.NoError(t, err)
	assert.True(t, req.Anchor.IsZero())
	require.NotNil(t, req.Start)
	require.NotNil(t, req.End)
	assert.Equal(t, date(2024, 3, 10), *req.End)

	_, err = period.ParseRequest("fortnight", "", "", "")
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)

	_, err = period.ParseRequest("day", "11/03/2024", "", "")
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)
}
