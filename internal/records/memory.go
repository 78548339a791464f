package records

import (
	"context"
	"sort"
	"sync"

	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

// MemoryStore is an in-process Store. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) FindRecord(_ context.Context, key Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[normalize(key).String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) UpsertRecord(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Key = normalize(rec.Key)

	rec.Counters = rec.Counters.Normalize()
	rec.Derived = metrics.Derive(rec.Counters)

	id := rec.Key.String()
	if _, ok := s.records[id]; !ok {
		s.order = append(s.order, id)
	}
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) QueryRecords(_ context.Context, ref entities.Ref, p period.Period, dept department.Department) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, id := range s.order {
		rec := s.records[id]
		if rec.EntityType != ref.Type || rec.EntityID != ref.ID {
			continue
		}
		if rec.PeriodStart.Before(period.Date(p.Start)) || rec.PeriodEnd.After(period.Date(p.End)) {
			continue
		}
		if dept != department.None && (rec.Detail == nil || rec.Detail.Department() != dept) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func normalize(k Key) Key {
	k.PeriodStart = period.Date(k.PeriodStart)
	k.PeriodEnd = period.Date(k.PeriodEnd)
	return k
}
