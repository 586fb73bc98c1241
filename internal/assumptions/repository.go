package assumptions

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
)

// Repository loads assumption snapshots from assumptions.db.
// Assumption rows are versioned by updated_at; the loader takes the latest
// row per key so superseding an assumption is an insert, never an update.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new assumptions repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assumptions").Logger(),
	}
}

// LoadSnapshot reads the latest version of every assumption into one
// immutable snapshot.
func (r *Repository) LoadSnapshot() (*Snapshot, error) {
	snap := &Snapshot{
		SegmentBaselines:   make(map[string]SegmentBaseline),
		StageProbabilities: make(map[StageKey]StageProbability),
		SlippageOffsets:    make(map[GroupStageKey]int),
		HealthWeights:      make(map[string]HealthWeights),
		ExpansionUplift:    make(map[UpliftKey]float64),
		ScenarioDeltas:     make(map[domain.Scenario]ScenarioDelta),
	}

	if err := r.loadBaselines(snap); err != nil {
		return nil, err
	}
	if err := r.loadStageProbabilities(snap); err != nil {
		return nil, err
	}
	if err := r.loadSlippage(snap); err != nil {
		return nil, err
	}
	if err := r.loadHealthWeights(snap); err != nil {
		return nil, err
	}
	if err := r.loadUplift(snap); err != nil {
		return nil, err
	}
	if err := r.loadScenarioDeltas(snap); err != nil {
		return nil, err
	}

	r.log.Debug().
		Int("baselines", len(snap.SegmentBaselines)).
		Int("stage_probs", len(snap.StageProbabilities)).
		Msg("Assumption snapshot loaded")

	return snap, nil
}

func (r *Repository) loadBaselines(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT segment, renewal_base_prob, upside_add, downside_sub
		FROM segment_baselines b
		WHERE updated_at = (
			SELECT max(updated_at) FROM segment_baselines WHERE segment = b.segment
		)`)
	if err != nil {
		return fmt.Errorf("failed to query segment baselines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment string
		var b SegmentBaseline
		if err := rows.Scan(&segment, &b.BaseProb, &b.UpsideAdd, &b.DownsideSub); err != nil {
			return fmt.Errorf("failed to scan segment baseline: %w", err)
		}
		snap.SegmentBaselines[segment] = b
	}
	return rows.Err()
}

func (r *Repository) loadStageProbabilities(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT segment, stage, p_base, p_upside, p_downside
		FROM stage_probabilities sp
		WHERE updated_at = (
			SELECT max(updated_at) FROM stage_probabilities
			WHERE segment = sp.segment AND stage = sp.stage
		)`)
	if err != nil {
		return fmt.Errorf("failed to query stage probabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key StageKey
		var p StageProbability
		if err := rows.Scan(&key.Segment, &key.Stage, &p.Base, &p.Upside, &p.Downside); err != nil {
			return fmt.Errorf("failed to scan stage probability: %w", err)
		}
		snap.StageProbabilities[key] = p
	}
	return rows.Err()
}

func (r *Repository) loadSlippage(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT segment_group, stage, offset_months
		FROM slippage_offsets so
		WHERE updated_at = (
			SELECT max(updated_at) FROM slippage_offsets
			WHERE segment_group = so.segment_group AND stage = so.stage
		)`)
	if err != nil {
		return fmt.Errorf("failed to query slippage offsets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key GroupStageKey
		var months int
		if err := rows.Scan(&key.SegmentGroup, &key.Stage, &months); err != nil {
			return fmt.Errorf("failed to scan slippage offset: %w", err)
		}
		snap.SlippageOffsets[key] = months
	}
	return rows.Err()
}

func (r *Repository) loadHealthWeights(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT segment_group, weight_crm, weight_usage, weight_trend
		FROM health_weights hw
		WHERE updated_at = (
			SELECT max(updated_at) FROM health_weights WHERE segment_group = hw.segment_group
		)`)
	if err != nil {
		return fmt.Errorf("failed to query health weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var group string
		var w HealthWeights
		if err := rows.Scan(&group, &w.CRM, &w.Usage, &w.Trend); err != nil {
			return fmt.Errorf("failed to scan health weights: %w", err)
		}
		snap.HealthWeights[group] = w
	}
	return rows.Err()
}

func (r *Repository) loadUplift(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT segment, trend_bucket, uplift_pct
		FROM expansion_uplift eu
		WHERE updated_at = (
			SELECT max(updated_at) FROM expansion_uplift
			WHERE segment = eu.segment AND trend_bucket = eu.trend_bucket
		)`)
	if err != nil {
		return fmt.Errorf("failed to query expansion uplift: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment, trend string
		var pct float64
		if err := rows.Scan(&segment, &trend, &pct); err != nil {
			return fmt.Errorf("failed to scan expansion uplift: %w", err)
		}
		snap.ExpansionUplift[UpliftKey{Segment: segment, Trend: domain.TrendBucket(trend)}] = pct
	}
	return rows.Err()
}

func (r *Repository) loadScenarioDeltas(snap *Snapshot) error {
	rows, err := r.db.Query(`
		SELECT scenario, expansion_uplift_adj, pipeline_stage_adj
		FROM scenario_deltas sd
		WHERE updated_at = (
			SELECT max(updated_at) FROM scenario_deltas WHERE scenario = sd.scenario
		)`)
	if err != nil {
		return fmt.Errorf("failed to query scenario deltas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scenario string
		var d ScenarioDelta
		if err := rows.Scan(&scenario, &d.ExpansionUpliftAdj, &d.PipelineStageAdj); err != nil {
			return fmt.Errorf("failed to scan scenario delta: %w", err)
		}
		snap.ScenarioDeltas[domain.Scenario(scenario)] = d
	}
	return rows.Err()
}
