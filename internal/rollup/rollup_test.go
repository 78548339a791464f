package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/records"
	"funnelmetrics/internal/rollup"
)

type failingRecords struct{}

func (failingRecords) QueryRecords(_ context.Context, ref entities.Ref, p period.Period, _ department.Department) ([]records.Record, error) {
	key := records.Key{EntityType: ref.Type, EntityID: ref.ID, PeriodStart: p.Start, PeriodEnd: p.End}
	return nil, &records.StoreError{Op: "query", Key: key, Err: assert.AnError}
}

// fakeHierarchy keeps entities in insertion order.
type fakeHierarchy struct {
	entities []entities.Entity
}

func (h *fakeHierarchy) add(t entities.Type, parent *entities.Entity, name string) entities.Entity {
	e := entities.Entity{ID: uint(len(h.entities) + 1), Type: t, Name: name}
	if parent != nil {
		id := parent.ID
		e.ParentID = &id
	}
	h.entities = append(h.entities, e)
	return e
}

func (h *fakeHierarchy) Entity(_ context.Context, ref entities.Ref) (*entities.Entity, error) {
	for _, e := range h.entities {
		if e.Ref() == ref {
			e := e
			return &e, nil
		}
	}
	return nil, &entities.NotFoundError{Ref: ref}
}

func (h *fakeHierarchy) ListChildren(_ context.Context, ref entities.Ref) ([]entities.Entity, error) {
	var out []entities.Entity
	for _, e := range h.entities {
		if e.ParentID != nil && *e.ParentID == ref.ID {
			out = append(out, e)
		}
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func put(t *testing.T, store *records.MemoryStore, e entities.Entity, d int, c metrics.Counters, detail department.Detail) {
	t.Helper()
	require.NoError(t, store.UpsertRecord(context.Background(), records.Record{
		Key:      records.DayKey(e.Ref(), day(d)),
		Counters: c,
		Detail:   detail,
	}))
}

func TestBuild(t *testing.T) {
	h := &fakeHierarchy{}
	funnel := h.add(entities.Funnel, nil, "Webinar funnel")
	campaignA := h.add(entities.Campaign, &funnel, "Cold traffic")
	campaignB := h.add(entities.Campaign, &funnel, "Retargeting")
	adSet := h.add(entities.AdSet, &campaignA, "Lookalike 1%")
	creative1 := h.add(entities.Creative, &adSet, "Video A")
	creative2 := h.add(entities.Creative, &adSet, "Carousel B")
	idle := h.add(entities.Campaign, &funnel, "Paused")

	store := records.NewMemoryStore()

	// Creatives spend at very different scales.
	put(t, store, creative1, 1, metrics.Counters{Impressions: 1000, Clicks: 10, Leads: 5, Sales: 1, Spend: money("10.00"), Revenue: money("20.00")}, nil)
	put(t, store, creative2, 1, metrics.Counters{Impressions: 9000, Clicks: 90, Leads: 20, Sales: 2, Spend: money("90.00"), Revenue: money("180.00")}, nil)
	put(t, store, creative2, 2, metrics.Counters{Impressions: 1000, Clicks: 0, Leads: 5, Sales: 2, Spend: money("100.00"), Revenue: money("0")}, nil)
	put(t, store, campaignB, 1, metrics.Counters{Impressions: 500, Clicks: 25, Leads: 10, Sales: 5, Spend: money("50.00"), Revenue: money("500.00")}, nil)
	// Outside the period.
	put(t, store, campaignB, 20, metrics.Counters{Leads: 999}, nil)

	p, err := period.New(day(1), day(7))
	require.NoError(t, err)

	agg := rollup.NewAggregator(h, store)
	root, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: p})
	require.NoError(t, err)

	t.Run("children keep creation order", func(t *testing.T) {
		require.Len(t, root.Children, 3)
		assert.Equal(t, campaignA.ID, root.Children[0].ID)
		assert.Equal(t, campaignB.ID, root.Children[1].ID)
		assert.Equal(t, idle.ID, root.Children[2].ID)
		assert.Equal(t, "Retargeting", root.Children[1].Name)
	})

	t.Run("raw counters add up at every level", func(t *testing.T) {
		for _, row := range rollup.Flatten(root) {
			if len(row.Node.Children) == 0 {
				continue
			}
			sum := metrics.Counters{}
			for _, c := range row.Node.Children {
				sum = sum.Add(c.Summary.Counters)
			}
			assert.True(t, sum.Equal(row.Node.Summary.Counters), "node %s", row.Node.Name)
		}
		assert.Equal(t, int64(11500), root.Summary.Impressions)
		assert.Equal(t, int64(40), root.Summary.Leads)
		assert.True(t, root.Summary.Spend.Equal(money("250")))
	})

	t.Run("ratios are recomputed from sums", func(t *testing.T) {
		adSetNode := rollup.Find(root, adSet.Ref())
		require.NotNil(t, adSetNode)
		require.Len(t, adSetNode.Children, 2)

		c1 := adSetNode.Children[0]
		assert.Equal(t, 2.0, c1.Summary.ROAS)

		// creative2: 180 revenue over 190 spend
		c2 := adSetNode.Children[1]
		assert.Equal(t, 0.95, c2.Summary.ROAS)

		// 200 / 200, not the mean of 2.0 and 0.95
		assert.Equal(t, 1.0, adSetNode.Summary.ROAS)
		assert.Equal(t, 1.0, rollup.Find(root, campaignA.Ref()).Summary.ROAS)

		// (200 + 500) / (200 + 50)
		assert.Equal(t, 2.8, root.Summary.ROAS)
		assert.Equal(t, 25.0, root.Summary.ConversionRate)
	})

	t.Run("entity without records is an all-zero node", func(t *testing.T) {
		n := rollup.Find(root, idle.Ref())
		require.NotNil(t, n)
		assert.True(t, n.Summary.Counters.IsZero())
		assert.Equal(t, metrics.Derived{}, n.Summary.Derived)
		assert.NotNil(t, n.Children)
	})

	t.Run("child filter restricts the root", func(t *testing.T) {
		filtered, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: p, ChildIDs: []uint{campaignB.ID}})
		require.NoError(t, err)
		require.Len(t, filtered.Children, 1)
		assert.Equal(t, int64(500), filtered.Summary.Impressions)
	})

	t.Run("leaf root sums its own records", func(t *testing.T) {
		n, err := agg.Build(context.Background(), creative2.Ref(), rollup.FilterState{Period: p})
		require.NoError(t, err)
		assert.Equal(t, int64(10000), n.Summary.Impressions)
		assert.Empty(t, n.Children)
	})
}

func TestBuildDepartmentFilter(t *testing.T) {
	h := &fakeHierarchy{}
	funnel := h.add(entities.Funnel, nil, "Sales funnel")
	campaign := h.add(entities.Campaign, &funnel, "Outbound")

	store := records.NewMemoryStore()
	put(t, store, campaign, 1, metrics.Counters{Leads: 10}, &department.SDRDetail{Calls: 40})
	put(t, store, campaign, 2, metrics.Counters{Leads: 3}, &department.CloserDetail{CallsTaken: 3})
	put(t, store, campaign, 3, metrics.Counters{Leads: 1}, nil)

	p, err := period.New(day(1), day(3))
	require.NoError(t, err)
	agg := rollup.NewAggregator(h, store)

	all, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: p})
	require.NoError(t, err)
	assert.Equal(t, int64(14), all.Summary.Leads)

	sdr, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: p, Department: department.SDR})
	require.NoError(t, err)
	assert.Equal(t, int64(10), sdr.Summary.Leads)
}

func TestBuildErrors(t *testing.T) {
	h := &fakeHierarchy{}
	funnel := h.add(entities.Funnel, nil, "Funnel")
	h.add(entities.Campaign, &funnel, "Campaign")

	p, err := period.New(day(1), day(2))
	require.NoError(t, err)

	t.Run("unknown root", func(t *testing.T) {
		agg := rollup.NewAggregator(h, records.NewMemoryStore())
		_, err := agg.Build(context.Background(), entities.Ref{Type: entities.Funnel, ID: 99}, rollup.FilterState{Period: p})
		assert.ErrorIs(t, err, entities.ErrNotFound)
	})

	t.Run("inverted period", func(t *testing.T) {
		agg := rollup.NewAggregator(h, records.NewMemoryStore())
		_, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: period.Period{Start: day(3), End: day(1)}})
		assert.ErrorIs(t, err, period.ErrInvalidPeriod)
	})

	t.Run("store failure carries the entity", func(t *testing.T) {
		agg := rollup.NewAggregator(h, failingRecords{})
		_, err := agg.Build(context.Background(), funnel.Ref(), rollup.FilterState{Period: p})
		require.Error(t, err)
		assert.ErrorIs(t, err, records.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "campaign:2")
	})
}
