package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

func contractLedger(companyID, customerID, contractID string, start, end monthly.Month, mrr float64) []subscriptions.MonthlyRevenue {
	var out []subscriptions.MonthlyRevenue
	for _, m := range monthly.Range(start, end) {
		out = append(out, subscriptions.MonthlyRevenue{
			CompanyID: companyID, CustomerID: customerID, ContractID: contractID,
			LineID: "l1", Month: m, MRR: mrr,
		})
	}
	return out
}

func smbSegments(companyID string, customerIDs ...string) map[domain.CustomerKey]string {
	out := make(map[domain.CustomerKey]string)
	for _, id := range customerIDs {
		out[domain.CustomerKey{CompanyID: companyID, CustomerID: id}] = "smb"
	}
	return out
}

func TestBuildRenewalExamplesLabels(t *testing.T) {
	horizon := monthly.MustParse("2025-06")

	// renewer: first contract ends 2025-02, follow-on contract covers 2025-03
	// onward, so the 2025-03 renewal resolved positive.
	ledger := append(
		contractLedger("acme", "renewer", "c1", monthly.MustParse("2024-03"), monthly.MustParse("2025-02"), 100),
		contractLedger("acme", "renewer", "c2", monthly.MustParse("2025-03"), monthly.MustParse("2026-02"), 100)...,
	)
	// churner: contract ended 2025-01, nothing after.
	ledger = append(ledger,
		contractLedger("acme", "churner", "c3", monthly.MustParse("2024-02"), monthly.MustParse("2025-01"), 50)...)

	examples := BuildRenewalExamples(ledger, nil, smbSegments("acme", "renewer", "churner"), horizon)

	byEntity := make(map[string][]int)
	for _, ex := range examples {
		byEntity[ex.EntityID] = append(byEntity[ex.EntityID], ex.Label)
	}

	require.Contains(t, byEntity, "renewer")
	assert.Contains(t, byEntity["renewer"], 1)
	require.Equal(t, []int{0}, byEntity["churner"])
}

func TestBuildRenewalExamplesRespectsHorizon(t *testing.T) {
	horizon := monthly.MustParse("2025-06")
	// Contract runs through 2025-12: its renewal month 2026-01 is unresolved.
	ledger := contractLedger("acme", "cust", "c1", monthly.MustParse("2025-01"), monthly.MustParse("2025-12"), 100)

	examples := BuildRenewalExamples(ledger, nil, smbSegments("acme", "cust"), horizon)
	assert.Empty(t, examples)
}

func TestBuildRenewalExamplesIsolatesCompanies(t *testing.T) {
	horizon := monthly.MustParse("2025-12")

	// Two tenants reuse the customer id "c1". Company A's only contract
	// lapsed after 2025-03 with nothing following; company B's unrelated
	// customer keeps paying through the horizon. Company A's renewal must
	// resolve negative on its own ledger alone.
	ledger := append(
		contractLedger("a-corp", "c1", "ct1", monthly.MustParse("2024-04"), monthly.MustParse("2025-03"), 100),
		contractLedger("b-corp", "c1", "ct1", monthly.MustParse("2024-04"), monthly.MustParse("2025-12"), 200)...,
	)
	segments := map[domain.CustomerKey]string{
		{CompanyID: "a-corp", CustomerID: "c1"}: "smb",
		{CompanyID: "b-corp", CustomerID: "c1"}: "enterprise",
	}

	examples := BuildRenewalExamples(ledger, nil, segments, horizon)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, "a-corp", ex.CompanyID)
	assert.Equal(t, 0, ex.Label)
	assert.Equal(t, "smb", ex.Segment)
	// Feature MRR is company A's own, not the pooled total.
	assert.InDelta(t, 100, ex.Numeric[0], 1e-9)
}

func TestBuildRenewalExamplesFeaturesPredateTarget(t *testing.T) {
	horizon := monthly.MustParse("2025-06")
	ledger := contractLedger("acme", "cust", "c1", monthly.MustParse("2024-01"), monthly.MustParse("2024-12"), 100)

	// Health records exist after the target month; the example must only use
	// the one at or before the feature month.
	healthRecs := []health.Record{
		{CompanyID: "acme", CustomerID: "cust", Month: monthly.MustParse("2024-10"), HealthScore: 7, TrendScore: 0.5},
		{CompanyID: "acme", CustomerID: "cust", Month: monthly.MustParse("2025-03"), HealthScore: 2, TrendScore: 0.2},
	}

	examples := BuildRenewalExamples(ledger, healthRecs, smbSegments("acme", "cust"), horizon)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, monthly.MustParse("2025-01"), ex.TargetMonth)
	// Numeric layout: mrr, health, trend score, tenure
	assert.InDelta(t, 7, ex.Numeric[1], 1e-9)
	assert.InDelta(t, 100, ex.Numeric[0], 1e-9)
	assert.InDelta(t, 12, ex.Numeric[3], 1e-9)
}

func snap(oppID, date, stage string, amount float64) pipeline.Opportunity {
	return pipeline.Opportunity{
		CompanyID:          "acme",
		OpportunityID:      oppID,
		SnapshotDate:       date,
		Segment:            "smb",
		Stage:              stage,
		Amount:             amount,
		ExpectedCloseMonth: monthly.MustParse("2025-06"),
		Type:               "new_biz",
	}
}

func TestBuildPipelineExamplesOutcomes(t *testing.T) {
	history := []pipeline.Opportunity{
		snap("won", "2025-03-01", "proposal", 10000),
		snap("won", "2025-04-01", "negotiation", 12000),
		snap("won", "2025-05-01", pipeline.StageClosedWon, 12000),
		snap("lost", "2025-03-01", "qualification", 5000),
		snap("lost", "2025-04-01", pipeline.StageClosedLost, 5000),
		snap("open", "2025-05-01", "proposal", 7000),
	}

	examples, err := BuildPipelineExamples(history)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	byEntity := make(map[string]int)
	for _, ex := range examples {
		byEntity[ex.EntityID] = ex.Label
	}
	assert.Equal(t, 1, byEntity["won"])
	assert.Equal(t, 0, byEntity["lost"])

	for _, ex := range examples {
		if ex.EntityID == "won" {
			assert.Equal(t, monthly.MustParse("2025-05"), ex.TargetMonth)
			// Features come from the last open snapshot before the close
			assert.Equal(t, "negotiation", ex.Categorical[1])
			assert.InDelta(t, 12000, ex.Numeric[0], 1e-9)
		}
	}
}

func TestBuildPipelineExamplesSkipsImmediateClose(t *testing.T) {
	// A close with no prior open snapshot has no feature state to learn from.
	history := []pipeline.Opportunity{
		snap("flash", "2025-03-01", pipeline.StageClosedWon, 1000),
	}
	examples, err := BuildPipelineExamples(history)
	require.NoError(t, err)
	assert.Empty(t, examples)
}
