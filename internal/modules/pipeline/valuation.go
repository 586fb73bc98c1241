package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/pkg/formulas"
)

// Valuer computes per-opportunity expected values for all scenarios.
type Valuer struct {
	snap   *assumptions.Snapshot
	source *models.ProbabilitySource
	log    zerolog.Logger
}

// NewValuer creates a pipeline valuer bound to one run's assumption snapshot
// and resolved probability source.
func NewValuer(snap *assumptions.Snapshot, source *models.ProbabilitySource, log zerolog.Logger) *Valuer {
	return &Valuer{
		snap:   snap,
		source: source,
		log:    log.With().Str("component", "pipeline_valuer").Logger(),
	}
}

// Value produces one valuation per open opportunity and scenario. The stage
// probability comes from configuration in three variants; a champion-model
// prediction replaces the base variant, with the configured upside/downside
// spreads and scenario adjustment applied additively on top and the result
// clamped to [0, 1]. Closed opportunities are skipped.
func (v *Valuer) Value(opps []Opportunity) []Valuation {
	out := make([]Valuation, 0, len(opps)*len(domain.Scenarios))
	for _, opp := range opps {
		if !opp.Open() {
			continue
		}

		cfg := v.snap.StageProbability(opp.Segment, opp.Stage)
		base := cfg.Base
		source := domain.ProbabilitySourceRules
		if learned, ok := v.source.Lookup(opp.OpportunityID, opp.ExpectedCloseMonth); ok {
			base = learned
			source = v.source.Label
		}

		slippage := v.snap.Slippage(domain.SegmentGroup(opp.Segment), opp.Stage)
		startMonth := opp.ExpectedCloseMonth.Add(slippage)

		for _, scenario := range domain.Scenarios {
			p := base
			switch scenario {
			case domain.ScenarioUpside:
				p += cfg.Upside - cfg.Base
			case domain.ScenarioDownside:
				p += cfg.Downside - cfg.Base
			}
			p += v.snap.Delta(scenario).PipelineStageAdj
			p = formulas.Clamp(p, 0, 1)

			out = append(out, Valuation{
				CompanyID:          opp.CompanyID,
				OpportunityID:      opp.OpportunityID,
				Scenario:           scenario,
				CustomerID:         opp.CustomerID,
				Segment:            opp.Segment,
				Stage:              opp.Stage,
				Type:               opp.Type,
				Amount:             opp.Amount,
				CloseProbability:   p,
				ExpectedValue:      opp.Amount * p,
				Source:             source,
				ExpectedCloseMonth: opp.ExpectedCloseMonth,
				ExpectedStartMonth: startMonth,
			})
		}
	}

	v.log.Debug().
		Int("opportunities", len(opps)).
		Int("valuations", len(out)).
		Str("source", v.source.Label).
		Msg("Pipeline valued")
	return out
}
