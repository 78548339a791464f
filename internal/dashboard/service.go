// Package dashboard drives the two data flows of the metrics engine: turning a
// submitted period total into per-day records, and turning stored records into
// a compared rollup tree.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"funnelmetrics/internal/comparison"
	"funnelmetrics/internal/department"
	"funnelmetrics/internal/distribution"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/pkg/async"
	"funnelmetrics/internal/records"
	"funnelmetrics/internal/rollup"
)

// EntityReader looks up entities and their direct children.
type EntityReader interface {
	Entity(ctx context.Context, ref entities.Ref) (*entities.Entity, error)
	ListChildren(ctx context.Context, ref entities.Ref) ([]entities.Entity, error)
}

// FloorsFunc returns the significance floors in effect.
type FloorsFunc func() (comparison.Floors, error)

// Service wires the engine components together.
type Service struct {
	Resolver   *period.Resolver
	Adapter    *records.Adapter
	Aggregator *rollup.Aggregator
	Entities   EntityReader
	Floors     FloorsFunc
	Logger     *slog.Logger
}

// NewService returns a service. A nil floors func uses the stock floors.
func NewService(resolver *period.Resolver, adapter *records.Adapter, aggregator *rollup.Aggregator, ents EntityReader, floors FloorsFunc, logger *slog.Logger) *Service {
	return &Service{
		Resolver:   resolver,
		Adapter:    adapter,
		Aggregator: aggregator,
		Entities:   ents,
		Floors:     floors,
		Logger:     logger,
	}
}

// SubmitInput is a period total for one entity.
type SubmitInput struct {
	Entity   entities.Ref
	Period   period.Request
	Counters metrics.Counters
	Detail   department.Detail
}

// SubmitResult reports what a submission wrote.
type SubmitResult struct {
	Entity   entities.Ref       `json:"entity"`
	Period   period.Period      `json:"period"`
	Days     []distribution.Day `json:"days"`
	Created  int                `json:"created"`
	Updated  int                `json:"updated"`
	Degraded bool               `json:"degraded"`
	Warnings []error            `json:"-"`
}

// WarningMessages returns the warnings as strings for display.
func (r SubmitResult) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// SubmitError is returned when a day of a submission could not be stored.
// Days before Day were written and resubmitting is safe.
type SubmitError struct {
	Entity entities.Ref
	Period period.Period
	Day    records.Key
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit %s for %s failed at %s: %v", e.Entity, e.Period, e.Day.PeriodStart.Format(period.DateLayout), e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// HierarchyInput selects the tree, period and filters of a hierarchy fetch.
type HierarchyInput struct {
	Root       entities.Ref
	Period     period.Request
	Department department.Department
	ChildIDs   []uint
}

// HierarchyReport is a rollup tree whose nodes carry a comparison with the
// previous period of equal length.
type HierarchyReport struct {
	Period     period.Period         `json:"period"`
	Previous   period.Period         `json:"previous_period"`
	Department department.Department `json:"department,omitempty"`
	Root       *rollup.Node          `json:"root"`
}

// Submit validates a period total, spreads it over the period's days and
// upserts one record per day. Days are written in order and the first store
// failure stops the submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.Counters.Validate(); err != nil {
		return nil, err
	}
	if err := department.Validate(in.Detail); err != nil {
		return nil, err
	}
	if _, err := s.Entities.Entity(ctx, in.Entity); err != nil {
		return nil, err
	}
	// Rollups only read records of childless nodes.
	children, err := s.Entities.ListChildren(ctx, in.Entity)
	if err != nil {
		return nil, err
	}
	if len(children) > 0 {
		return nil, fmt.Errorf("%w: %s has %d children, submit to one of them", entities.ErrNotLeaf, in.Entity, len(children))
	}

	p, err := s.Resolver.Resolve(in.Period)
	if err != nil {
		return nil, err
	}

	days, err := distribution.Over(p.Days(), in.Counters.Normalize())
	if err != nil {
		return nil, err
	}

	var details []department.Detail
	if in.Detail != nil {
		details, err = department.Split(in.Detail, len(days))
		if err != nil {
			return nil, err
		}
	}

	result := &SubmitResult{Entity: in.Entity, Period: p, Days: days}
	for i, d := range days {
		rec := records.Record{
			Key:      records.DayKey(in.Entity, d.Date),
			Counters: d.Counters,
			Derived:  d.Derived,
		}
		if details != nil {
			rec.Detail = details[i]
		}

		res, err := s.Adapter.Upsert(ctx, rec)
		if err != nil {
			return result, &SubmitError{Entity: in.Entity, Period: p, Day: rec.Key, Err: err}
		}
		if res.Created {
			result.Created++
		} else {
			result.Updated++
		}
		if res.Degraded {
			result.Degraded = true
		}
		result.Warnings = append(result.Warnings, res.Warnings...)
	}

	s.logger().Info("Metrics submitted",
		slog.String("entity", in.Entity.String()),
		slog.String("period", p.String()),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Bool("degraded", result.Degraded))

	return result, nil
}

// Hierarchy builds the current and previous rollups concurrently and attaches
// a comparison report to every node of the current tree.
func (s *Service) Hierarchy(ctx context.Context, in HierarchyInput) (*HierarchyReport, error) {
	current, err := s.Resolver.Resolve(in.Period)
	if err != nil {
		return nil, err
	}
	previous, err := period.Previous(current)
	if err != nil {
		return nil, err
	}

	floors := comparison.DefaultFloors()
	if s.Floors != nil {
		floors, err = s.Floors()
		if err != nil {
			return nil, err
		}
	}

	build := func(p period.Period) func(context.Context) (*rollup.Node, error) {
		return func(ctx context.Context) (*rollup.Node, error) {
			return s.Aggregator.Build(ctx, in.Root, rollup.FilterState{
				Period:     p,
				Department: in.Department,
				ChildIDs:   in.ChildIDs,
			})
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := async.NewPool[*rollup.Node](2)
	results := pool.Execute(ctx, []async.Task[*rollup.Node]{
		{Name: "current", Execute: build(current)},
		{Name: "previous", Execute: build(previous)},
	})

	cur, prev := results["current"], results["previous"]
	if err := errors.Join(cur.Err, prev.Err); err != nil {
		return nil, err
	}
	if cur.Data == nil || prev.Data == nil {
		return nil, ctx.Err()
	}

	attach(cur.Data, index(prev.Data), floors)

	return &HierarchyReport{
		Period:     current,
		Previous:   previous,
		Department: in.Department,
		Root:       cur.Data,
	}, nil
}

func index(root *rollup.Node) map[entities.Ref]*rollup.Node {
	out := map[entities.Ref]*rollup.Node{}
	for _, row := range rollup.Flatten(root) {
		out[row.Node.Ref()] = row.Node
	}
	return out
}

func attach(n *rollup.Node, previous map[entities.Ref]*rollup.Node, floors comparison.Floors) {
	prev := metrics.Summarize(metrics.Counters{})
	if p, ok := previous[n.Ref()]; ok {
		prev = p.Summary
	}
	n.Comparison = comparison.Compare(n.Summary, prev, floors)
	for _, c := range n.Children {
		attach(c, previous, floors)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
