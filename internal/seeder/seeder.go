package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/settings"
)

// Totals are the counters of one fixture node for the fixture period.
type Totals struct {
	Reach       int64   `yaml:"reach"`
	Impressions int64   `yaml:"impressions"`
	Clicks      int64   `yaml:"clicks"`
	PageViews   int64   `yaml:"page_views"`
	Leads       int64   `yaml:"leads"`
	Checkouts   int64   `yaml:"checkouts"`
	Sales       int64   `yaml:"sales"`
	Spend       float64 `yaml:"spend"`
	Revenue     float64 `yaml:"revenue"`

	Department string         `yaml:"department"`
	Detail     map[string]any `yaml:"detail"`
}

// Counters converts t, rounding currency to cents.
func (t Totals) Counters() metrics.Counters {
	return metrics.Counters{
		Reach:       t.Reach,
		Impressions: t.Impressions,
		Clicks:      t.Clicks,
		PageViews:   t.PageViews,
		Leads:       t.Leads,
		Checkouts:   t.Checkouts,
		Sales:       t.Sales,
		Spend:       decimal.NewFromFloat(t.Spend).Round(2),
		Revenue:     decimal.NewFromFloat(t.Revenue).Round(2),
	}
}

// Node is an entity of the fixture with its optional totals and children.
// Only the child list matching the node's level is read.
type Node struct {
	Name      string  `yaml:"name"`
	Totals    *Totals `yaml:"totals"`
	Campaigns []Node  `yaml:"campaigns"`
	AdSets    []Node  `yaml:"ad_sets"`
	Creatives []Node  `yaml:"creatives"`
}

func (n Node) children(t entities.Type) []Node {
	switch t {
	case entities.Funnel:
		return n.Campaigns
	case entities.Campaign:
		return n.AdSets
	case entities.AdSet:
		return n.Creatives
	}
	return nil
}

// Fixture describes a hierarchy and the period its totals cover.
type Fixture struct {
	Mode    string `yaml:"mode"`
	Anchor  string `yaml:"anchor"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Funnels []Node `yaml:"funnels"`
}

// Request returns the period request of the fixture.
func (f Fixture) Request() (period.Request, error) {
	mode, err := period.ParseMode(f.Mode)
	if err != nil {
		return period.Request{}, err
	}
	req := period.Request{Mode: mode}

	dates := []struct {
		raw string
		dst **time.Time
	}{
		{f.Anchor, nil},
		{f.From, &req.Start},
		{f.To, &req.End},
	}
	for _, d := range dates {
		if d.raw == "" {
			continue
		}
		parsed, err := period.ParseDate(d.raw)
		if err != nil {
			return period.Request{}, err
		}
		if d.dst == nil {
			req.Anchor = parsed
			continue
		}
		*d.dst = &parsed
	}
	return req, nil
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(raw)
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if len(f.Funnels) == 0 {
		return nil, errors.New("fixture has no funnels")
	}
	return &f, nil
}

// DefaultFixture builds a sample month with two funnels. The numbers are
// random but stable for a given seed.
func DefaultFixture(seed uint64) *Fixture {
	rng := rand.New(rand.NewPCG(seed, seed))

	creative := func(name string) Node {
		impressions := 2000 + rng.Int64N(8000)
		clicks := impressions / (20 + rng.Int64N(30))
		leads := clicks / (3 + rng.Int64N(5))
		sales := leads / (4 + rng.Int64N(6))
		spend := float64(100+rng.IntN(900)) + float64(rng.IntN(100))/100
		return Node{
			Name: name,
			Totals: &Totals{
				Reach:       impressions * 7 / 10,
				Impressions: impressions,
				Clicks:      clicks,
				PageViews:   clicks * 9 / 10,
				Leads:       leads,
				Checkouts:   sales * 2,
				Sales:       sales,
				Spend:       spend,
				Revenue:     float64(sales) * 49.90,
			},
		}
	}

	adSet := func(name string) Node {
		return Node{Name: name, Creatives: []Node{
			creative(name + " video"),
			creative(name + " carousel"),
		}}
	}

	return &Fixture{
		Mode: string(period.ModeMonth),
		Funnels: []Node{
			{Name: "Webinar", Campaigns: []Node{
				{Name: "Webinar cold traffic", AdSets: []Node{adSet("Lookalike 1%"), adSet("Interests")}},
				{Name: "Webinar retargeting", AdSets: []Node{adSet("Site visitors 30d")}},
			}},
			{Name: "Low ticket", Campaigns: []Node{
				{Name: "Low ticket launch", AdSets: []Node{adSet("Broad")}},
			}},
		},
	}
}

// Seeder creates the fixture hierarchy and submits its totals through the
// dashboard service, so seeded data goes through the same write path as
// the API. Entities are matched by name under their parent and reused.
type Seeder struct {
	DB      *gorm.DB
	Service *dashboard.Service
	Logger  *slog.Logger
}

// Stats counts what a run did.
type Stats struct {
	Entities    int
	Submissions int
	Created     int
	Updated     int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, svc *dashboard.Service, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{DB: db, Service: svc, Logger: logger}
}

// Run seeds f and records the time of the run.
func (s *Seeder) Run(ctx context.Context, f *Fixture) (Stats, error) {
	start := time.Now()
	var stats Stats

	req, err := f.Request()
	if err != nil {
		return stats, err
	}

	for _, funnel := range f.Funnels {
		if err := s.seedNode(ctx, funnel, entities.Funnel, nil, req, &stats); err != nil {
			return stats, err
		}
	}

	if err := settings.UpdateSetting(s.DB, settings.KeyLastSeededAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return stats, err
	}

	s.Logger.Info("Seeding completed",
		slog.Int("entities", stats.Entities),
		slog.Int("submissions", stats.Submissions),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func (s *Seeder) seedNode(ctx context.Context, n Node, t entities.Type, parentID *uint, req period.Request, stats *Stats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entity, err := s.findOrCreate(t, parentID, n.Name)
	if err != nil {
		return err
	}
	stats.Entities++

	if n.Totals != nil {
		if len(n.children(t)) > 0 {
			return fmt.Errorf("%s %q: %w: totals go on the lowest level", t, n.Name, entities.ErrNotLeaf)
		}
		detail, err := n.Totals.detail()
		if err != nil {
			return fmt.Errorf("%s %q: %w", t, n.Name, err)
		}

		res, err := s.Service.Submit(ctx, dashboard.SubmitInput{
			Entity:   entity.Ref(),
			Period:   req,
			Counters: n.Totals.Counters(),
			Detail:   detail,
		})
		if err != nil {
			return fmt.Errorf("%s %q: %w", t, n.Name, err)
		}
		stats.Submissions++
		stats.Created += res.Created
		stats.Updated += res.Updated
	}

	childType, ok := t.ChildType()
	if !ok {
		return nil
	}
	for _, child := range n.children(t) {
		if err := s.seedNode(ctx, child, childType, &entity.ID, req, stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) findOrCreate(t entities.Type, parentID *uint, name string) (*entities.Entity, error) {
	var existing entities.Entity
	query := s.DB.Where("type = ? AND name = ?", t, name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	err := query.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s %q: %w", t, name, err)
	}
	return entities.Create(s.DB, t, parentID, name)
}

func (t Totals) detail() (department.Detail, error) {
	dept, err := department.Parse(t.Department)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if len(t.Detail) > 0 {
		if raw, err = json.Marshal(t.Detail); err != nil {
			return nil, err
		}
	}
	return department.Decode(dept, raw)
}
