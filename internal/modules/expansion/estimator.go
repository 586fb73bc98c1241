// Package expansion forecasts upsell revenue as a trend-driven uplift
// percentage applied to each customer-month's current MRR.
package expansion

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

// UpliftFloor bounds the scenario-adjusted uplift from below. Contraction
// beyond 2% belongs to the churn model, not the expansion path.
const UpliftFloor = -0.02

// Forecast is one derived expansion-forecast row.
type Forecast struct {
	CompanyID    string
	CustomerID   string
	Month        monthly.Month
	Scenario     domain.Scenario
	Segment      string
	CurrentMRR   float64
	UpliftPct    float64
	Contribution float64
}

// Estimator computes expansion contributions per customer-month and scenario.
type Estimator struct {
	snap *assumptions.Snapshot
	log  zerolog.Logger
}

// NewEstimator creates an expansion estimator bound to one run's assumptions.
func NewEstimator(snap *assumptions.Snapshot, log zerolog.Logger) *Estimator {
	return &Estimator{
		snap: snap,
		log:  log.With().Str("component", "expansion_estimator").Logger(),
	}
}

// Estimate produces one forecast row per positive-MRR customer-month and
// scenario. The base uplift is keyed by (segment, trend bucket); the scenario
// adjustment is additive and the result floors at UpliftFloor. Customers with
// no health record for a month default to the flat trend.
func (e *Estimator) Estimate(customerMRR []subscriptions.CustomerMRR, healthRecords []health.Record, segments map[string]string) []Forecast {
	trends := trendByCustomerMonth(healthRecords)

	out := make([]Forecast, 0, len(customerMRR)*len(domain.Scenarios))
	for _, cm := range customerMRR {
		if cm.MRR <= 0 {
			continue
		}
		segment := segments[cm.CustomerID]
		trend := trendFor(trends, cm.CustomerID, cm.Month)
		baseUplift := e.snap.Uplift(segment, trend)

		for _, scenario := range domain.Scenarios {
			uplift := baseUplift + e.snap.Delta(scenario).ExpansionUpliftAdj
			if uplift < UpliftFloor {
				uplift = UpliftFloor
			}
			out = append(out, Forecast{
				CompanyID:    cm.CompanyID,
				CustomerID:   cm.CustomerID,
				Month:        cm.Month,
				Scenario:     scenario,
				Segment:      segment,
				CurrentMRR:   cm.MRR,
				UpliftPct:    uplift,
				Contribution: cm.MRR * uplift,
			})
		}
	}

	e.log.Debug().Int("rows", len(out)).Msg("Expansion forecast estimated")
	return out
}

type trendKey struct {
	customerID string
	month      monthly.Month
}

func trendByCustomerMonth(records []health.Record) map[trendKey]domain.TrendBucket {
	out := make(map[trendKey]domain.TrendBucket, len(records))
	for _, rec := range records {
		out[trendKey{rec.CustomerID, rec.Month}] = rec.Trend
	}
	return out
}

// trendFor returns the customer's trend at a month, falling back to the most
// recent earlier record within a year, then to flat.
func trendFor(trends map[trendKey]domain.TrendBucket, customerID string, month monthly.Month) domain.TrendBucket {
	for back := 0; back <= 12; back++ {
		if t, ok := trends[trendKey{customerID, month.Add(-back)}]; ok {
			return t
		}
	}
	return domain.TrendFlat
}

// SortForecasts orders rows deterministically for storage.
func SortForecasts(rows []Forecast) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		return a.Scenario < b.Scenario
	})
}
