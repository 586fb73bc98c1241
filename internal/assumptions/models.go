// Package assumptions loads the versioned business assumptions into an
// immutable per-run snapshot. Components receive the snapshot explicitly;
// nothing reads assumption tables mid-run, so a run sees one consistent
// assumption set from start to finish.
package assumptions

import (
	"github.com/mhalford/revcast/internal/domain"
)

// StageKey addresses a close-probability lookup.
type StageKey struct {
	Segment string
	Stage   string
}

// GroupStageKey addresses a slippage lookup by coarse segment group.
type GroupStageKey struct {
	SegmentGroup string
	Stage        string
}

// UpliftKey addresses an expansion uplift lookup.
type UpliftKey struct {
	Segment string
	Trend   domain.TrendBucket
}

// SegmentBaseline holds the rule-based renewal probability inputs per segment.
type SegmentBaseline struct {
	BaseProb    float64
	UpsideAdd   float64
	DownsideSub float64
}

// StageProbability holds the three scenario variants of a close probability.
type StageProbability struct {
	Base     float64
	Upside   float64
	Downside float64
}

// HealthWeights holds the signal weights for the health scorer.
type HealthWeights struct {
	CRM   float64
	Usage float64
	Trend float64
}

// ScenarioDelta holds the additive adjustments applied for a non-base scenario.
type ScenarioDelta struct {
	ExpansionUpliftAdj float64
	PipelineStageAdj   float64
}

// Snapshot is the immutable assumption set for one run.
type Snapshot struct {
	SegmentBaselines   map[string]SegmentBaseline
	StageProbabilities map[StageKey]StageProbability
	SlippageOffsets    map[GroupStageKey]int
	HealthWeights      map[string]HealthWeights
	ExpansionUplift    map[UpliftKey]float64
	ScenarioDeltas     map[domain.Scenario]ScenarioDelta
}

// Fallbacks for lookups with no configured row. Missing configuration is an
// explicit, testable case, not a panic.
const (
	defaultRenewalBaseProb = 0.80
	defaultUpsideAdd       = 0.05
	defaultDownsideSub     = 0.08
	defaultStageProb       = 0.10
	defaultSlippageMonths  = 1
)

var defaultHealthWeights = HealthWeights{CRM: 0.35, Usage: 0.45, Trend: 0.20}

// Baseline returns the renewal baseline for a segment, falling back to the
// conservative default for unknown segments.
func (s *Snapshot) Baseline(segment string) SegmentBaseline {
	if b, ok := s.SegmentBaselines[segment]; ok {
		return b
	}
	return SegmentBaseline{
		BaseProb:    defaultRenewalBaseProb,
		UpsideAdd:   defaultUpsideAdd,
		DownsideSub: defaultDownsideSub,
	}
}

// StageProbability returns the close-probability variants for a segment/stage.
func (s *Snapshot) StageProbability(segment, stage string) StageProbability {
	if p, ok := s.StageProbabilities[StageKey{Segment: segment, Stage: stage}]; ok {
		return p
	}
	return StageProbability{Base: defaultStageProb, Upside: defaultStageProb, Downside: defaultStageProb}
}

// Slippage returns the timing offset in months for a segment group and stage.
func (s *Snapshot) Slippage(segmentGroup, stage string) int {
	if m, ok := s.SlippageOffsets[GroupStageKey{SegmentGroup: segmentGroup, Stage: stage}]; ok {
		return m
	}
	return defaultSlippageMonths
}

// Weights returns the health-score weights for a segment group.
func (s *Snapshot) Weights(segmentGroup string) HealthWeights {
	if w, ok := s.HealthWeights[segmentGroup]; ok {
		return w
	}
	return defaultHealthWeights
}

// Uplift returns the base expansion uplift percentage for a segment and trend.
func (s *Snapshot) Uplift(segment string, trend domain.TrendBucket) float64 {
	if u, ok := s.ExpansionUplift[UpliftKey{Segment: segment, Trend: trend}]; ok {
		return u
	}
	return 0
}

// Delta returns the scenario adjustment set; the base scenario has zero deltas.
func (s *Snapshot) Delta(scenario domain.Scenario) ScenarioDelta {
	if d, ok := s.ScenarioDeltas[scenario]; ok {
		return d
	}
	return ScenarioDelta{}
}
