package pipeline

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/pkg/monthly"
)

func testSnapshot() *assumptions.Snapshot {
	return &assumptions.Snapshot{
		StageProbabilities: map[assumptions.StageKey]assumptions.StageProbability{
			{Segment: "smb", Stage: "negotiation"}: {Base: 0.60, Upside: 0.70, Downside: 0.45},
			{Segment: "smb", Stage: "proposal"}:    {Base: 0.40, Upside: 0.50, Downside: 0.30},
		},
		SlippageOffsets: map[assumptions.GroupStageKey]int{
			{SegmentGroup: "mid_market", Stage: "negotiation"}: 1,
			{SegmentGroup: "mid_market", Stage: "proposal"}:    2,
		},
		ScenarioDeltas: map[domain.Scenario]assumptions.ScenarioDelta{
			domain.ScenarioUpside:   {PipelineStageAdj: 0.05},
			domain.ScenarioDownside: {PipelineStageAdj: -0.05},
		},
	}
}

func openOpp(id, stage string, amount float64) Opportunity {
	return Opportunity{
		CompanyID:          "acme",
		OpportunityID:      id,
		Segment:            "smb",
		Stage:              stage,
		Amount:             amount,
		ExpectedCloseMonth: monthly.MustParse("2025-09"),
		Type:               domain.OpportunityNewBiz,
	}
}

func TestValueRuleProbabilitiesPerScenario(t *testing.T) {
	valuer := NewValuer(testSnapshot(), models.NewRuleSource(domain.DatasetPipeline), zerolog.Nop())

	vals := valuer.Value([]Opportunity{openOpp("opp-1", "negotiation", 12000)})
	require.Len(t, vals, 3)

	byScenario := make(map[domain.Scenario]Valuation)
	for _, v := range vals {
		byScenario[v.Scenario] = v
	}

	base := byScenario[domain.ScenarioBase]
	assert.InDelta(t, 0.60, base.CloseProbability, 1e-9)
	assert.InDelta(t, 7200, base.ExpectedValue, 1e-9)
	assert.Equal(t, "rules", base.Source)

	// Upside: 0.70 config variant plus the +0.05 scenario adjustment
	assert.InDelta(t, 0.75, byScenario[domain.ScenarioUpside].CloseProbability, 1e-9)
	assert.InDelta(t, 0.40, byScenario[domain.ScenarioDownside].CloseProbability, 1e-9)
}

func TestValueSlippageShiftsStartMonth(t *testing.T) {
	valuer := NewValuer(testSnapshot(), models.NewRuleSource(domain.DatasetPipeline), zerolog.Nop())

	vals := valuer.Value([]Opportunity{openOpp("opp-1", "proposal", 1000)})
	require.NotEmpty(t, vals)
	for _, v := range vals {
		assert.Equal(t, monthly.MustParse("2025-09"), v.ExpectedCloseMonth)
		assert.Equal(t, monthly.MustParse("2025-11"), v.ExpectedStartMonth)
	}
}

func TestValueSkipsClosedOpportunities(t *testing.T) {
	valuer := NewValuer(testSnapshot(), models.NewRuleSource(domain.DatasetPipeline), zerolog.Nop())

	vals := valuer.Value([]Opportunity{
		openOpp("opp-1", StageClosedWon, 5000),
		openOpp("opp-2", StageClosedLost, 5000),
		openOpp("opp-3", "negotiation", 5000),
	})

	require.Len(t, vals, 3)
	for _, v := range vals {
		assert.Equal(t, "opp-3", v.OpportunityID)
	}
}

func TestValueChampionReplacesBaseVariant(t *testing.T) {
	closeMonth := monthly.MustParse("2025-09")
	source := models.NewLearnedSource(domain.DatasetPipeline, models.ModelStumps,
		map[models.PredictionKey]models.Prediction{
			{EntityID: "opp-1", TargetMonth: closeMonth}: {Probability: 0.90},
		})
	valuer := NewValuer(testSnapshot(), source, zerolog.Nop())

	vals := valuer.Value([]Opportunity{
		openOpp("opp-1", "negotiation", 1000),
		openOpp("opp-2", "negotiation", 1000),
	})
	require.Len(t, vals, 6)

	for _, v := range vals {
		switch v.OpportunityID {
		case "opp-1":
			assert.Equal(t, "ml_stumps", v.Source)
			switch v.Scenario {
			case domain.ScenarioBase:
				assert.InDelta(t, 0.90, v.CloseProbability, 1e-9)
			case domain.ScenarioUpside:
				// 0.90 + (0.70-0.60) + 0.05 exceeds 1 and clamps
				assert.InDelta(t, 1.0, v.CloseProbability, 1e-9)
			case domain.ScenarioDownside:
				assert.InDelta(t, 0.90-0.15-0.05, v.CloseProbability, 1e-9)
			}
		case "opp-2":
			assert.Equal(t, "rules", v.Source)
		}
	}
}

func TestValueMissingStageConfigurationFallsBack(t *testing.T) {
	valuer := NewValuer(&assumptions.Snapshot{}, models.NewRuleSource(domain.DatasetPipeline), zerolog.Nop())

	vals := valuer.Value([]Opportunity{openOpp("opp-1", "unmapped_stage", 1000)})
	require.Len(t, vals, 3)
	for _, v := range vals {
		assert.InDelta(t, 0.10, v.CloseProbability, 1e-9)
		// Default slippage of one month
		assert.Equal(t, monthly.MustParse("2025-10"), v.ExpectedStartMonth)
	}
}
