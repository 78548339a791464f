// Package rollup sums metric records bottom-up through the funnel hierarchy
// and re-derives ratio metrics at every level.
package rollup

import (
	"context"
	"fmt"

	"funnelmetrics/internal/comparison"
	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/records"
)

// Hierarchy walks entities.
type Hierarchy interface {
	Entity(ctx context.Context, ref entities.Ref) (*entities.Entity, error)
	ListChildren(ctx context.Context, ref entities.Ref) ([]entities.Entity, error)
}

// RecordQuerier reads an entity's records for a period.
type RecordQuerier interface {
	QueryRecords(ctx context.Context, ref entities.Ref, p period.Period, dept department.Department) ([]records.Record, error)
}

// FilterState selects what a rollup covers.
type FilterState struct {
	Period     period.Period
	Department department.Department
	// ChildIDs, when non-empty, keeps only these direct children of the root.
	ChildIDs []uint
}

// Node is one entity with the summary of everything below it.
type Node struct {
	Type       entities.Type     `json:"type"`
	ID         uint              `json:"id"`
	Name       string            `json:"name"`
	Summary    metrics.Summary   `json:"summary"`
	Comparison comparison.Report `json:"comparison,omitempty"`
	Children   []*Node           `json:"children"`
}

// Ref returns the node's entity reference.
func (n *Node) Ref() entities.Ref {
	return entities.Ref{Type: n.Type, ID: n.ID}
}

// Aggregator builds rollup trees.
type Aggregator struct {
	Hierarchy Hierarchy
	Records   RecordQuerier
}

// NewAggregator returns an aggregator over the given readers.
func NewAggregator(h Hierarchy, r RecordQuerier) *Aggregator {
	return &Aggregator{Hierarchy: h, Records: r}
}

// Build returns the rollup tree rooted at root. Nodes without children sum
// their own records in the period; every other node sums its direct
// children. Ratios are derived from each node's own sums.
func (a *Aggregator) Build(ctx context.Context, root entities.Ref, filter FilterState) (*Node, error) {
	if err := filter.Period.Validate(); err != nil {
		return nil, err
	}

	entity, err := a.Hierarchy.Entity(ctx, root)
	if err != nil {
		return nil, err
	}

	children, err := a.Hierarchy.ListChildren(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(filter.ChildIDs) > 0 {
		children = keepIDs(children, filter.ChildIDs)
	}

	return a.node(ctx, *entity, children, filter)
}

func (a *Aggregator) build(ctx context.Context, entity entities.Entity, filter FilterState) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	children, err := a.Hierarchy.ListChildren(ctx, entity.Ref())
	if err != nil {
		return nil, err
	}
	return a.node(ctx, entity, children, filter)
}

func (a *Aggregator) node(ctx context.Context, entity entities.Entity, children []entities.Entity, filter FilterState) (*Node, error) {
	n := &Node{
		Type:     entity.Type,
		ID:       entity.ID,
		Name:     entity.Name,
		Children: make([]*Node, 0, len(children)),
	}

	if len(children) == 0 {
		recs, err := a.Records.QueryRecords(ctx, entity.Ref(), filter.Period, filter.Department)
		if err != nil {
			return nil, fmt.Errorf("rollup %s: %w", entity.Ref(), err)
		}
		n.Summary = metrics.Summarize(records.Sum(recs))
		return n, nil
	}

	total := metrics.Counters{}
	for _, child := range children {
		cn, err := a.build(ctx, child, filter)
		if err != nil {
			return nil, err
		}
		total = total.Add(cn.Summary.Counters)
		n.Children = append(n.Children, cn)
	}
	n.Summary = metrics.Summarize(total)
	return n, nil
}

func keepIDs(children []entities.Entity, ids []uint) []entities.Entity {
	keep := make(map[uint]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := children[:0:0]
	for _, c := range children {
		if keep[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Row is a node with its depth in the tree.
type Row struct {
	Depth int
	Node  *Node
}

// Flatten lists the tree depth-first, parents before children.
func Flatten(root *Node) []Row {
	var rows []Row
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		rows = append(rows, Row{Depth: depth, Node: n})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return rows
}

// Find returns the node for ref, or nil.
func Find(root *Node, ref entities.Ref) *Node {
	for _, row := range Flatten(root) {
		if row.Node.Ref() == ref {
			return row.Node
		}
	}
	return nil
}
