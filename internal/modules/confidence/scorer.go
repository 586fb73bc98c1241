// Package confidence scores how much to trust each forecast cell and derives
// the customer-level risk marts (churn watchlist, ARR movers).
package confidence

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/expansion"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Risk component weights. Customer-health risk dominates, pipeline dependence
// is next, concentration is least weighted.
const (
	weightLowHealth     = 0.40
	weightPipeline      = 0.35
	weightConcentration = 0.25

	lowHealthThreshold = 4
	topConcentrationN  = 5
)

// Score is one derived confidence row per forecast grain.
type Score struct {
	CompanyID            string
	Month                monthly.Month
	Scenario             domain.Scenario
	Segment              string
	PctLowHealth         float64
	PctPipelineDependent float64
	Top5Concentration    float64
	Confidence           int // 0-100
}

// Scorer computes confidence scores from forecast cells and their
// customer-level decomposition.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a new confidence scorer
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "confidence_scorer").Logger()}
}

type grainKey struct {
	companyID string
	month     monthly.Month
	scenario  domain.Scenario
	segment   string
}

// Score produces one confidence row per forecast record. Customer-level
// contributions come from the renewal and expansion components (new business
// is not customer-attributable); low health means a score of 4 or below at
// the customer's latest scored month.
func (s *Scorer) Score(records []forecast.Record, renewalProbs []renewals.Probability,
	expansionRows []expansion.Forecast, healthRecords []health.Record) []Score {

	contributions := make(map[grainKey]map[string]float64)
	add := func(k grainKey, customerID string, amount float64) {
		byCustomer := contributions[k]
		if byCustomer == nil {
			byCustomer = make(map[string]float64)
			contributions[k] = byCustomer
		}
		byCustomer[customerID] += amount
	}

	for _, p := range renewalProbs {
		add(grainKey{p.CompanyID, p.RenewalMonth, p.Scenario, p.Segment},
			p.CustomerID, p.Probability*p.RenewalMRR)
	}
	for _, f := range expansionRows {
		add(grainKey{f.CompanyID, f.Month, f.Scenario, f.Segment},
			f.CustomerID, f.Contribution)
	}

	latestHealth := make(map[string]health.Record)
	for _, rec := range healthRecords {
		if cur, ok := latestHealth[rec.CustomerID]; !ok || cur.Month.Before(rec.Month) {
			latestHealth[rec.CustomerID] = rec
		}
	}

	out := make([]Score, 0, len(records))
	for _, rec := range records {
		k := grainKey{rec.CompanyID, rec.Month, rec.Scenario, rec.Segment}
		score := Score{
			CompanyID: rec.CompanyID,
			Month:     rec.Month,
			Scenario:  rec.Scenario,
			Segment:   rec.Segment,
		}

		if rec.TotalRevenue > 0 {
			byCustomer := contributions[k]

			var lowHealth float64
			amounts := make([]float64, 0, len(byCustomer))
			for customerID, amount := range byCustomer {
				amounts = append(amounts, amount)
				if h, ok := latestHealth[customerID]; ok && h.HealthScore <= lowHealthThreshold {
					lowHealth += amount
				}
			}
			sort.Sort(sort.Reverse(sort.Float64Slice(amounts)))
			var top float64
			for i := 0; i < len(amounts) && i < topConcentrationN; i++ {
				top += amounts[i]
			}

			score.PctLowHealth = lowHealth / rec.TotalRevenue
			score.PctPipelineDependent = rec.NewBizRevenue / rec.TotalRevenue
			score.Top5Concentration = top / rec.TotalRevenue
		}

		raw := 100 * (1 - (weightLowHealth*score.PctLowHealth +
			weightPipeline*score.PctPipelineDependent +
			weightConcentration*score.Top5Concentration))
		score.Confidence = clampInt(int(math.Round(raw)), 0, 100)
		out = append(out, score)
	}

	s.log.Debug().Int("rows", len(out)).Msg("Confidence scored")
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
