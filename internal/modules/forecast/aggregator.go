// Package forecast assembles the driver components into the forecast mart:
// renewal, new-business and expansion revenue per (month, scenario, segment),
// with actuals joined in and scenario completeness guaranteed structurally.
package forecast

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/expansion"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Record is one forecast mart row. Exactly three scenario rows exist per
// (company, month, segment).
type Record struct {
	CompanyID        string
	Month            monthly.Month
	Scenario         domain.Scenario
	Segment          string
	RenewalRevenue   float64
	NewBizRevenue    float64
	ExpansionRevenue float64
	TotalRevenue     float64
	ActualRevenue    float64
}

// Aggregator sums driver components onto the month spine.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates a new forecast aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{log: log.With().Str("component", "forecast_aggregator").Logger()}
}

// Inputs carries the per-component rows the aggregator consumes.
type Inputs struct {
	CompanyID   string
	Renewals    []renewals.Probability
	Valuations  []pipeline.Valuation
	Expansion   []expansion.Forecast
	ActualMRR   []subscriptions.CustomerMRR
	Segments    map[string]string // customerID -> segment, for actuals
	AllSegments []string          // the complete segment universe to zero-fill
}

// Aggregate emits the full cross product of (month spine) x (3 scenarios) x
// (segments), zero-filling cells with no component contribution. The spine is
// the continuous month range spanning every input row. Renewal revenue is
// probability-weighted MRR at the renewal month; new business is the
// opportunity expected value spread to a monthly equivalent at its
// slippage-adjusted start month; expansion contributes at its own month.
// Actuals are scenario-invariant.
func (a *Aggregator) Aggregate(in Inputs) []Record {
	type cellKey struct {
		month    monthly.Month
		scenario domain.Scenario
		segment  string
	}
	cells := make(map[cellKey]*Record)

	var months []monthly.Month
	note := func(m monthly.Month) { months = append(months, m) }

	cell := func(m monthly.Month, sc domain.Scenario, segment string) *Record {
		key := cellKey{m, sc, segment}
		if c, ok := cells[key]; ok {
			return c
		}
		c := &Record{CompanyID: in.CompanyID, Month: m, Scenario: sc, Segment: segment}
		cells[key] = c
		return c
	}

	for _, p := range in.Renewals {
		note(p.RenewalMonth)
		cell(p.RenewalMonth, p.Scenario, p.Segment).RenewalRevenue += p.Probability * p.RenewalMRR
	}
	for _, v := range in.Valuations {
		if v.Type != domain.OpportunityNewBiz {
			continue
		}
		note(v.ExpectedStartMonth)
		cell(v.ExpectedStartMonth, v.Scenario, v.Segment).NewBizRevenue += v.ExpectedValue / 12
	}
	for _, f := range in.Expansion {
		note(f.Month)
		cell(f.Month, f.Scenario, f.Segment).ExpansionRevenue += f.Contribution
	}

	actuals := make(map[cellKey]float64)
	for _, cm := range in.ActualMRR {
		note(cm.Month)
		segment := in.Segments[cm.CustomerID]
		actuals[cellKey{month: cm.Month, segment: segment}] += cm.MRR
	}

	if len(months) == 0 {
		return nil
	}

	first, last := months[0], months[0]
	for _, m := range months[1:] {
		if m.Before(first) {
			first = m
		}
		if last.Before(m) {
			last = m
		}
	}

	// Segment universe: the configured list plus anything observed in the
	// inputs, so no contribution can fall outside the emitted cross product.
	segmentSet := make(map[string]bool)
	for _, s := range in.AllSegments {
		segmentSet[s] = true
	}
	for key := range cells {
		segmentSet[key.segment] = true
	}
	for key := range actuals {
		segmentSet[key.segment] = true
	}
	segments := make([]string, 0, len(segmentSet))
	for s := range segmentSet {
		segments = append(segments, s)
	}
	sort.Strings(segments)

	out := make([]Record, 0, (last.Sub(first)+1)*len(domain.Scenarios)*len(segments))
	for _, m := range monthly.Range(first, last) {
		for _, segment := range segments {
			actual := actuals[cellKey{month: m, segment: segment}]
			for _, scenario := range domain.Scenarios {
				rec := *cell(m, scenario, segment)
				rec.ActualRevenue = actual
				rec.TotalRevenue = rec.RenewalRevenue + rec.NewBizRevenue + rec.ExpansionRevenue
				out = append(out, rec)
			}
		}
	}

	a.log.Debug().
		Int("rows", len(out)).
		Str("first_month", first.String()).
		Str("last_month", last.String()).
		Msg("Forecast aggregated")
	return out
}
