package forecast

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/expansion"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

func TestAggregateEmitsCompleteCrossProduct(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	june := monthly.MustParse("2025-06")
	august := monthly.MustParse("2025-08")

	in := Inputs{
		CompanyID:   "acme",
		AllSegments: []string{"smb", "enterprise"},
		Renewals: []renewals.Probability{
			{CompanyID: "acme", CustomerID: "c1", RenewalMonth: june,
				Scenario: domain.ScenarioBase, Segment: "smb", Probability: 0.8, RenewalMRR: 100},
		},
		Expansion: []expansion.Forecast{
			{CompanyID: "acme", CustomerID: "c2", Month: august,
				Scenario: domain.ScenarioBase, Segment: "enterprise", Contribution: 50},
		},
	}

	records := agg.Aggregate(in)

	// 3 months x 2 segments x 3 scenarios
	require.Len(t, records, 18)

	type grain struct {
		month   monthly.Month
		segment string
	}
	scenarios := make(map[grain]int)
	for _, rec := range records {
		scenarios[grain{rec.Month, rec.Segment}]++
	}
	for g, n := range scenarios {
		assert.Equal(t, 3, n, "grain %s/%s must carry exactly 3 scenario rows", g.month, g.segment)
	}
}

func TestAggregateComponentPlacement(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	june := monthly.MustParse("2025-06")
	july := monthly.MustParse("2025-07")

	in := Inputs{
		CompanyID:   "acme",
		AllSegments: []string{"smb"},
		Renewals: []renewals.Probability{
			{CompanyID: "acme", CustomerID: "c1", RenewalMonth: june,
				Scenario: domain.ScenarioBase, Segment: "smb", Probability: 0.8, RenewalMRR: 100},
		},
		Valuations: []pipeline.Valuation{
			{CompanyID: "acme", OpportunityID: "o1", Scenario: domain.ScenarioBase,
				Segment: "smb", Type: domain.OpportunityNewBiz,
				ExpectedValue: 12000, ExpectedStartMonth: july},
			// Renewal-type opportunities do not feed the new-business component
			{CompanyID: "acme", OpportunityID: "o2", Scenario: domain.ScenarioBase,
				Segment: "smb", Type: domain.OpportunityRenewal,
				ExpectedValue: 99999, ExpectedStartMonth: july},
		},
		Expansion: []expansion.Forecast{
			{CompanyID: "acme", CustomerID: "c1", Month: june,
				Scenario: domain.ScenarioBase, Segment: "smb", Contribution: 25},
		},
		ActualMRR: []subscriptions.CustomerMRR{
			{CompanyID: "acme", CustomerID: "c1", Month: june, MRR: 110},
		},
		Segments: map[string]string{"c1": "smb"},
	}

	records := agg.Aggregate(in)

	find := func(m monthly.Month, sc domain.Scenario) Record {
		for _, rec := range records {
			if rec.Month == m && rec.Scenario == sc && rec.Segment == "smb" {
				return rec
			}
		}
		t.Fatalf("missing record for %s %s", m, sc)
		return Record{}
	}

	juneBase := find(june, domain.ScenarioBase)
	assert.InDelta(t, 80, juneBase.RenewalRevenue, 1e-9)
	assert.InDelta(t, 25, juneBase.ExpansionRevenue, 1e-9)
	assert.InDelta(t, 0, juneBase.NewBizRevenue, 1e-9)
	assert.InDelta(t, 105, juneBase.TotalRevenue, 1e-9)
	assert.InDelta(t, 110, juneBase.ActualRevenue, 1e-9)

	julyBase := find(july, domain.ScenarioBase)
	// Annual expected value lands as a monthly equivalent
	assert.InDelta(t, 1000, julyBase.NewBizRevenue, 1e-9)
	assert.InDelta(t, 1000, julyBase.TotalRevenue, 1e-9)

	// Actuals are scenario-invariant
	assert.InDelta(t, 110, find(june, domain.ScenarioUpside).ActualRevenue, 1e-9)
	assert.InDelta(t, 110, find(june, domain.ScenarioDownside).ActualRevenue, 1e-9)
}

func TestAggregateEmptyInputs(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	assert.Nil(t, agg.Aggregate(Inputs{CompanyID: "acme", AllSegments: []string{"smb"}}))
}

func TestBuildSummaryGrowthAndConfidence(t *testing.T) {
	june := monthly.MustParse("2025-06")
	july := monthly.MustParse("2025-07")

	records := []Record{
		{CompanyID: "acme", Month: june, Scenario: domain.ScenarioBase, Segment: "smb", TotalRevenue: 100, ActualRevenue: 90},
		{CompanyID: "acme", Month: june, Scenario: domain.ScenarioBase, Segment: "enterprise", TotalRevenue: 300},
		{CompanyID: "acme", Month: july, Scenario: domain.ScenarioBase, Segment: "smb", TotalRevenue: 220},
		{CompanyID: "acme", Month: july, Scenario: domain.ScenarioBase, Segment: "enterprise", TotalRevenue: 220},
	}
	confidence := func(m monthly.Month, sc domain.Scenario, segment string) (int, bool) {
		if segment == "smb" {
			return 80, true
		}
		return 60, true
	}

	rows := BuildSummary(records, confidence)
	require.Len(t, rows, 2)

	assert.Equal(t, june, rows[0].Month)
	assert.InDelta(t, 400, rows[0].TotalForecast, 1e-9)
	assert.InDelta(t, 90, rows[0].TotalActual, 1e-9)
	assert.InDelta(t, 0, rows[0].GrowthMoM, 1e-9)
	assert.InDelta(t, 70, rows[0].AvgConfidence, 1e-9)

	assert.Equal(t, july, rows[1].Month)
	assert.InDelta(t, 440, rows[1].TotalForecast, 1e-9)
	assert.InDelta(t, 0.1, rows[1].GrowthMoM, 1e-9)
}

func TestBuildCoverageRatios(t *testing.T) {
	june := monthly.MustParse("2025-06")
	rows := BuildCoverage([]Record{
		{CompanyID: "acme", Month: june, Scenario: domain.ScenarioBase, Segment: "smb",
			RenewalRevenue: 60, NewBizRevenue: 30, ExpansionRevenue: 10, TotalRevenue: 100},
		{CompanyID: "acme", Month: june, Scenario: domain.ScenarioBase, Segment: "enterprise"},
	})

	require.Len(t, rows, 2)
	assert.InDelta(t, 0.3, rows[0].PipelineCoverage, 1e-9)
	assert.InDelta(t, 0.6, rows[0].RenewalCoverage, 1e-9)
	// Zero-total cells report zero coverage
	assert.InDelta(t, 0, rows[1].PipelineCoverage, 1e-9)
	assert.InDelta(t, 0, rows[1].RenewalCoverage, 1e-9)
}
