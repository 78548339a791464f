package metrics

import "github.com/shopspring/decimal"

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// Derived holds the ratio metrics computed from a set of counters.
type Derived struct {
	ROAS           float64 `json:"roas"`
	CTR            float64 `json:"ctr"`
	CPM            float64 `json:"cpm"`
	CPC            float64 `json:"cpc"`
	CPL            float64 `json:"cpl"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Derive computes every ratio metric from c, rounded to two decimal places.
// A zero denominator yields 0.
func Derive(c Counters) Derived {
	impressions := decimal.NewFromInt(c.Impressions)
	clicks := decimal.NewFromInt(c.Clicks)
	leads := decimal.NewFromInt(c.Leads)
	sales := decimal.NewFromInt(c.Sales)

	return Derived{
		ROAS:           ratio(c.Revenue, c.Spend, decimal.NewFromInt(1)),
		CTR:            ratio(clicks, impressions, hundred),
		CPM:            ratio(c.Spend, impressions, thousand),
		CPC:            ratio(c.Spend, clicks, decimal.NewFromInt(1)),
		CPL:            ratio(c.Spend, leads, decimal.NewFromInt(1)),
		ConversionRate: ratio(sales, leads, hundred),
	}
}

func ratio(num, den, scale decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Mul(scale).DivRound(den, 2).InexactFloat64()
}

// Value returns the named derived metric.
func (d Derived) Value(name string) (float64, bool) {
	switch name {
	case ROAS:
		return d.ROAS, true
	case CTR:
		return d.CTR, true
	case CPM:
		return d.CPM, true
	case CPC:
		return d.CPC, true
	case CPL:
		return d.CPL, true
	case ConversionRate:
		return d.ConversionRate, true
	}
	return 0, false
}
