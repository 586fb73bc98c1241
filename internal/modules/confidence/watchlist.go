package confidence

import (
	"sort"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/internal/modules/waterfall"
	"github.com/mhalford/revcast/pkg/monthly"
)

// WatchlistEntry ranks a customer by the ARR it puts at risk.
type WatchlistEntry struct {
	CompanyID    string
	Month        monthly.Month
	CustomerID   string
	Segment      string
	CurrentARR   float64
	RenewalProb  float64
	ChurnRiskARR float64 // (1 - renewal_prob) * current_arr
	HealthScore  int
	Trend        domain.TrendBucket
}

// Mover is one signed month-over-month ARR delta for the movers mart.
type Mover struct {
	CompanyID  string
	Month      monthly.Month
	CustomerID string
	Segment    string
	PriorARR   float64
	CurrentARR float64
	DeltaARR   float64
}

// BuildWatchlist ranks customers holding ARR at the horizon month by churn
// risk. The renewal probability is the customer's base-scenario estimate; a
// customer with no renewal candidate is not at renewal risk and is skipped.
func BuildWatchlist(ledger []subscriptions.CustomerMRR, probs []renewals.Probability,
	healthRecords []health.Record, segments map[string]string, horizon monthly.Month) []WatchlistEntry {

	arrAtHorizon := make(map[string]float64)
	companyByCustomer := make(map[string]string)
	for _, cm := range ledger {
		if cm.Month == horizon {
			arrAtHorizon[cm.CustomerID] += cm.MRR * 12
			companyByCustomer[cm.CustomerID] = cm.CompanyID
		}
	}

	baseProb := make(map[string]float64)
	for _, p := range probs {
		if p.Scenario == domain.ScenarioBase {
			baseProb[p.CustomerID] = p.Probability
		}
	}

	latestHealth := make(map[string]health.Record)
	for _, rec := range healthRecords {
		if rec.Month.After(horizon) {
			continue
		}
		if cur, ok := latestHealth[rec.CustomerID]; !ok || cur.Month.Before(rec.Month) {
			latestHealth[rec.CustomerID] = rec
		}
	}

	var out []WatchlistEntry
	for customerID, arr := range arrAtHorizon {
		if arr <= 0 {
			continue
		}
		prob, ok := baseProb[customerID]
		if !ok {
			continue
		}
		entry := WatchlistEntry{
			CompanyID:    companyByCustomer[customerID],
			Month:        horizon,
			CustomerID:   customerID,
			Segment:      segments[customerID],
			CurrentARR:   arr,
			RenewalProb:  prob,
			ChurnRiskARR: (1 - prob) * arr,
			Trend:        domain.TrendFlat,
		}
		if h, ok := latestHealth[customerID]; ok {
			entry.HealthScore = h.HealthScore
			entry.Trend = h.Trend
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ChurnRiskARR != out[j].ChurnRiskARR {
			return out[i].ChurnRiskARR > out[j].ChurnRiskARR
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// BuildMovers converts waterfall movements into the signed ARR movers mart,
// largest absolute delta first. Flat months are omitted.
func BuildMovers(movements []waterfall.CustomerMovement) []Mover {
	var out []Mover
	for _, mv := range movements {
		delta := mv.CurrentARR - mv.PriorARR
		if delta == 0 {
			continue
		}
		out = append(out, Mover{
			CompanyID:  mv.CompanyID,
			Month:      mv.Month,
			CustomerID: mv.CustomerID,
			Segment:    mv.Segment,
			PriorARR:   mv.PriorARR,
			CurrentARR: mv.CurrentARR,
			DeltaARR:   delta,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		da, db := a.DeltaARR, b.DeltaARR
		if da < 0 {
			da = -da
		}
		if db < 0 {
			db = -db
		}
		if da != db {
			return da > db
		}
		return a.CustomerID < b.CustomerID
	})
	return out
}
