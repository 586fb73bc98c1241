package renewals

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/formulas"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Probability bounds for the rule path. Configuration errors clamp, they
// never fail the run.
const (
	probFloor = 0.05
	probCeil  = 0.99
)

// Rule adjustments by health tier and trend bucket.
const (
	adjHealthStrong   = 0.05  // health >= 8
	adjHealthGood     = 0.02  // health 6-7
	adjHealthWeak     = -0.05 // health 4-5
	adjHealthCritical = -0.12 // health <= 3

	adjTrendGrowing   = 0.03
	adjTrendDeclining = -0.04
)

// Estimator computes per-customer renewal probabilities.
type Estimator struct {
	snap   *assumptions.Snapshot
	source *models.ProbabilitySource
	log    zerolog.Logger
}

// NewEstimator creates a renewal estimator bound to one run's assumption
// snapshot and resolved probability source.
func NewEstimator(snap *assumptions.Snapshot, source *models.ProbabilitySource, log zerolog.Logger) *Estimator {
	return &Estimator{
		snap:   snap,
		source: source,
		log:    log.With().Str("component", "renewal_estimator").Logger(),
	}
}

// Candidates finds each customer's earliest unresolved renewal month. Per
// contract, months at or after the horizon are collected and the renewal
// month is the month after the latest of them; contracts fully in the past
// have already resolved and produce no candidate. Per customer, the earliest
// contract renewal month wins. RenewalMRR is the customer's total MRR in the
// month preceding renewal.
func Candidates(ledger []subscriptions.MonthlyRevenue, segments map[domain.CustomerKey]string, horizon monthly.Month) []Candidate {
	type contractKey struct {
		customer   domain.CustomerKey
		contractID string
	}
	lastMonth := make(map[contractKey]monthly.Month)
	customerMRR := make(map[domain.CustomerKey]map[monthly.Month]float64)

	for _, rec := range ledger {
		ck := domain.CustomerKey{CompanyID: rec.CompanyID, CustomerID: rec.CustomerID}
		byMonth := customerMRR[ck]
		if byMonth == nil {
			byMonth = make(map[monthly.Month]float64)
			customerMRR[ck] = byMonth
		}
		byMonth[rec.Month] += rec.MRR

		if rec.Month.Before(horizon) {
			continue
		}
		key := contractKey{ck, rec.ContractID}
		if last, ok := lastMonth[key]; !ok || last.Before(rec.Month) {
			lastMonth[key] = rec.Month
		}
	}

	earliest := make(map[domain.CustomerKey]monthly.Month)
	for key, last := range lastMonth {
		renewal := last.Add(1)
		if cur, ok := earliest[key.customer]; !ok || renewal.Before(cur) {
			earliest[key.customer] = renewal
		}
	}

	out := make([]Candidate, 0, len(earliest))
	for ck, renewal := range earliest {
		out = append(out, Candidate{
			CompanyID:    ck.CompanyID,
			CustomerID:   ck.CustomerID,
			Segment:      segments[ck],
			RenewalMonth: renewal,
			RenewalMRR:   customerMRR[ck][renewal.Add(-1)],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// Estimate produces one probability row per candidate and scenario. The rule
// probability is the segment baseline plus health and trend adjustments; a
// champion-model prediction for the same customer and renewal month replaces
// it before the scenario deltas apply.
func (e *Estimator) Estimate(candidates []Candidate, healthRecords []health.Record, horizon monthly.Month) []Probability {
	latestHealth := latestHealthByCustomer(healthRecords, horizon)

	out := make([]Probability, 0, len(candidates)*len(domain.Scenarios))
	for _, c := range candidates {
		baseline := e.snap.Baseline(c.Segment)
		p := baseline.BaseProb
		if rec, ok := latestHealth[domain.CustomerKey{CompanyID: c.CompanyID, CustomerID: c.CustomerID}]; ok {
			p += healthAdjustment(rec.HealthScore) + trendAdjustment(rec.Trend)
		}
		p = formulas.Clamp(p, probFloor, probCeil)
		source := domain.ProbabilitySourceRules

		if learned, ok := e.source.Lookup(c.CustomerID, c.RenewalMonth); ok {
			p = learned
			source = e.source.Label
		}

		for _, scenario := range domain.Scenarios {
			adjusted := p
			switch scenario {
			case domain.ScenarioUpside:
				adjusted += baseline.UpsideAdd
			case domain.ScenarioDownside:
				adjusted -= baseline.DownsideSub
			}
			out = append(out, Probability{
				CompanyID:    c.CompanyID,
				CustomerID:   c.CustomerID,
				RenewalMonth: c.RenewalMonth,
				Scenario:     scenario,
				Segment:      c.Segment,
				Probability:  formulas.Clamp(adjusted, probFloor, probCeil),
				Source:       source,
				RenewalMRR:   c.RenewalMRR,
			})
		}
	}

	e.log.Debug().
		Int("candidates", len(candidates)).
		Str("source", e.source.Label).
		Msg("Renewal probabilities estimated")
	return out
}

// latestHealthByCustomer keeps each customer's most recent health record at or
// before the horizon.
func latestHealthByCustomer(records []health.Record, horizon monthly.Month) map[domain.CustomerKey]health.Record {
	out := make(map[domain.CustomerKey]health.Record)
	for _, rec := range records {
		if rec.Month.After(horizon) {
			continue
		}
		ck := domain.CustomerKey{CompanyID: rec.CompanyID, CustomerID: rec.CustomerID}
		if cur, ok := out[ck]; !ok || cur.Month.Before(rec.Month) {
			out[ck] = rec
		}
	}
	return out
}

func healthAdjustment(score int) float64 {
	switch {
	case score >= 8:
		return adjHealthStrong
	case score >= 6:
		return adjHealthGood
	case score >= 4:
		return adjHealthWeak
	default:
		return adjHealthCritical
	}
}

func trendAdjustment(trend domain.TrendBucket) float64 {
	switch trend {
	case domain.TrendGrowing:
		return adjTrendGrowing
	case domain.TrendDeclining:
		return adjTrendDeclining
	default:
		return 0
	}
}
