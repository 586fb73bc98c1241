package expansion

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

func testSnapshot() *assumptions.Snapshot {
	return &assumptions.Snapshot{
		ExpansionUplift: map[assumptions.UpliftKey]float64{
			{Segment: "smb", Trend: domain.TrendGrowing}:   0.020,
			{Segment: "smb", Trend: domain.TrendFlat}:      0.005,
			{Segment: "smb", Trend: domain.TrendDeclining}: -0.010,
		},
		ScenarioDeltas: map[domain.Scenario]assumptions.ScenarioDelta{
			domain.ScenarioUpside:   {ExpansionUpliftAdj: 0.010},
			domain.ScenarioDownside: {ExpansionUpliftAdj: -0.015},
		},
	}
}

func TestEstimateUpliftPerTrendAndScenario(t *testing.T) {
	est := NewEstimator(testSnapshot(), zerolog.Nop())
	month := monthly.MustParse("2025-06")

	mrr := []subscriptions.CustomerMRR{
		{CompanyID: "acme", CustomerID: "cust-1", Month: month, MRR: 1000},
	}
	recs := []health.Record{
		{CustomerID: "cust-1", Month: month, Trend: domain.TrendGrowing},
	}

	rows := est.Estimate(mrr, recs, map[string]string{"cust-1": "smb"})
	require.Len(t, rows, 3)

	byScenario := make(map[domain.Scenario]Forecast)
	for _, f := range rows {
		byScenario[f.Scenario] = f
	}

	assert.InDelta(t, 0.020, byScenario[domain.ScenarioBase].UpliftPct, 1e-9)
	assert.InDelta(t, 20, byScenario[domain.ScenarioBase].Contribution, 1e-9)
	assert.InDelta(t, 0.030, byScenario[domain.ScenarioUpside].UpliftPct, 1e-9)
	assert.InDelta(t, 0.005, byScenario[domain.ScenarioDownside].UpliftPct, 1e-9)
}

func TestEstimateFloorsContraction(t *testing.T) {
	est := NewEstimator(testSnapshot(), zerolog.Nop())
	month := monthly.MustParse("2025-06")

	mrr := []subscriptions.CustomerMRR{
		{CompanyID: "acme", CustomerID: "cust-1", Month: month, MRR: 1000},
	}
	recs := []health.Record{
		{CustomerID: "cust-1", Month: month, Trend: domain.TrendDeclining},
	}

	rows := est.Estimate(mrr, recs, map[string]string{"cust-1": "smb"})
	byScenario := make(map[domain.Scenario]Forecast)
	for _, f := range rows {
		byScenario[f.Scenario] = f
	}

	// Declining downside would be -0.010 - 0.015 = -0.025; floors at -0.02
	assert.InDelta(t, UpliftFloor, byScenario[domain.ScenarioDownside].UpliftPct, 1e-9)
	assert.InDelta(t, -20, byScenario[domain.ScenarioDownside].Contribution, 1e-9)
	assert.InDelta(t, -0.010, byScenario[domain.ScenarioBase].UpliftPct, 1e-9)
}

func TestEstimateSkipsNonPositiveMRR(t *testing.T) {
	est := NewEstimator(testSnapshot(), zerolog.Nop())
	month := monthly.MustParse("2025-06")

	rows := est.Estimate([]subscriptions.CustomerMRR{
		{CompanyID: "acme", CustomerID: "cust-1", Month: month, MRR: 0},
		{CompanyID: "acme", CustomerID: "cust-2", Month: month, MRR: -5},
	}, nil, map[string]string{"cust-1": "smb", "cust-2": "smb"})

	assert.Empty(t, rows)
}

func TestEstimateMissingHealthDefaultsToFlat(t *testing.T) {
	est := NewEstimator(testSnapshot(), zerolog.Nop())
	month := monthly.MustParse("2025-06")

	rows := est.Estimate([]subscriptions.CustomerMRR{
		{CompanyID: "acme", CustomerID: "cust-1", Month: month, MRR: 1000},
	}, nil, map[string]string{"cust-1": "smb"})

	for _, f := range rows {
		if f.Scenario == domain.ScenarioBase {
			assert.InDelta(t, 0.005, f.UpliftPct, 1e-9)
		}
	}
}

func TestEstimateCarriesForwardRecentTrend(t *testing.T) {
	est := NewEstimator(testSnapshot(), zerolog.Nop())
	scored := monthly.MustParse("2025-06")
	future := monthly.MustParse("2025-09")

	rows := est.Estimate([]subscriptions.CustomerMRR{
		{CompanyID: "acme", CustomerID: "cust-1", Month: future, MRR: 1000},
	}, []health.Record{
		{CustomerID: "cust-1", Month: scored, Trend: domain.TrendGrowing},
	}, map[string]string{"cust-1": "smb"})

	for _, f := range rows {
		if f.Scenario == domain.ScenarioBase {
			assert.InDelta(t, 0.020, f.UpliftPct, 1e-9)
		}
	}
}
