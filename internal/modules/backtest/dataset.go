package backtest

import (
	"fmt"
	"sort"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

// BuildRenewalExamples turns resolved renewal events into labeled examples.
// A contract whose coverage ended at month L with L+1 at or before the
// horizon was due for renewal at L+1; the label is whether the customer still
// holds any positive MRR at that month. Every feature is dated at or before
// L, so an example used at cutoff c (target month <= c for training) can
// never see past its own target month.
func BuildRenewalExamples(ledger []subscriptions.MonthlyRevenue, healthRecords []health.Record,
	segments map[domain.CustomerKey]string, horizon monthly.Month) []models.Example {

	type contractKey struct {
		customer   domain.CustomerKey
		contractID string
	}
	contractLast := make(map[contractKey]monthly.Month)
	customerMRR := make(map[domain.CustomerKey]map[monthly.Month]float64)
	firstMonth := make(map[domain.CustomerKey]monthly.Month)

	for _, rec := range ledger {
		ck := domain.CustomerKey{CompanyID: rec.CompanyID, CustomerID: rec.CustomerID}
		key := contractKey{ck, rec.ContractID}
		if last, ok := contractLast[key]; !ok || last.Before(rec.Month) {
			contractLast[key] = rec.Month
		}
		byMonth := customerMRR[ck]
		if byMonth == nil {
			byMonth = make(map[monthly.Month]float64)
			customerMRR[ck] = byMonth
		}
		byMonth[rec.Month] += rec.MRR
		if first, ok := firstMonth[ck]; !ok || rec.Month.Before(first) {
			firstMonth[ck] = rec.Month
		}
	}

	healthAt := make(map[domain.CustomerKey][]health.Record)
	for _, rec := range healthRecords {
		ck := domain.CustomerKey{CompanyID: rec.CompanyID, CustomerID: rec.CustomerID}
		healthAt[ck] = append(healthAt[ck], rec)
	}
	for _, recs := range healthAt {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Month.Before(recs[j].Month) })
	}

	keys := make([]contractKey, 0, len(contractLast))
	for key := range contractLast {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.customer.CompanyID != b.customer.CompanyID {
			return a.customer.CompanyID < b.customer.CompanyID
		}
		if a.customer.CustomerID != b.customer.CustomerID {
			return a.customer.CustomerID < b.customer.CustomerID
		}
		return a.contractID < b.contractID
	})

	var out []models.Example
	for _, key := range keys {
		ck := key.customer
		target := contractLast[key].Add(1)
		if target.After(horizon) {
			continue // unresolved, nothing to learn yet
		}
		featureMonth := target.Add(-1)

		label := 0
		if customerMRR[ck][target] > 0 {
			label = 1
		}

		var healthScore, trendScore float64
		trend := "flat"
		for _, rec := range healthAt[ck] {
			if rec.Month.After(featureMonth) {
				break
			}
			healthScore = float64(rec.HealthScore)
			trendScore = rec.TrendScore
			trend = string(rec.Trend)
		}

		tenure := 0
		if first, ok := firstMonth[ck]; ok {
			tenure = featureMonth.Sub(first) + 1
		}
		segment := segments[ck]

		out = append(out, models.Example{
			CompanyID:   ck.CompanyID,
			EntityID:    ck.CustomerID,
			TargetMonth: target,
			Segment:     segment,
			Categorical: []string{segment, trend},
			Numeric: []float64{
				customerMRR[ck][featureMonth],
				healthScore,
				trendScore,
				float64(tenure),
			},
			Label: label,
		})
	}
	return out
}

// BuildPipelineExamples turns closed opportunities into labeled examples. The
// feature snapshot is the last open one before the close; opportunities still
// in flight carry no outcome and are skipped.
func BuildPipelineExamples(history []pipeline.Opportunity) ([]models.Example, error) {
	type oppKey struct {
		companyID     string
		opportunityID string
	}
	byOpp := make(map[oppKey][]pipeline.Opportunity)
	var order []oppKey
	for _, snap := range history {
		key := oppKey{snap.CompanyID, snap.OpportunityID}
		if _, ok := byOpp[key]; !ok {
			order = append(order, key)
		}
		byOpp[key] = append(byOpp[key], snap)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.companyID != b.companyID {
			return a.companyID < b.companyID
		}
		return a.opportunityID < b.opportunityID
	})

	var out []models.Example
	for _, key := range order {
		snaps := byOpp[key]
		sort.Slice(snaps, func(i, j int) bool {
			return snaps[i].SnapshotDate < snaps[j].SnapshotDate
		})

		closedIdx := -1
		for i, snap := range snaps {
			if !snap.Open() {
				closedIdx = i
				break
			}
		}
		if closedIdx <= 0 {
			// Still open, or closed with no prior open snapshot to learn from
			continue
		}

		closed := snaps[closedIdx]
		feature := snaps[closedIdx-1]
		target, err := monthly.Parse(closed.SnapshotDate)
		if err != nil {
			return nil, fmt.Errorf("opportunity %s: %w", key.opportunityID, err)
		}

		label := 0
		if closed.Stage == pipeline.StageClosedWon {
			label = 1
		}

		out = append(out, models.Example{
			CompanyID:   key.companyID,
			EntityID:    key.opportunityID,
			TargetMonth: target,
			Segment:     feature.Segment,
			Categorical: []string{feature.Segment, feature.Stage, string(feature.Type)},
			Numeric: []float64{
				feature.Amount,
				float64(closedIdx), // open snapshots observed before close
			},
			Label: label,
		})
	}
	return out, nil
}
