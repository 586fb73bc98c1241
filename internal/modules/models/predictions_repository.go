package models

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Prediction is one learned-model probability for an entity/target month.
type Prediction struct {
	CompanyID   string
	Dataset     domain.Dataset
	EntityID    string
	TargetMonth monthly.Month
	ModelName   string
	Probability float64
	AsOfMonth   monthly.Month
}

// PredictionsRepository reads the learned-prediction intake table in facts.db.
type PredictionsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPredictionsRepository creates a new predictions repository
func NewPredictionsRepository(db *sql.DB, log zerolog.Logger) *PredictionsRepository {
	return &PredictionsRepository{
		db:  db,
		log: log.With().Str("repo", "ml_predictions").Logger(),
	}
}

// GetChampionPredictions returns the champion model's predictions for a
// dataset, keyed by (entity_id, target_month). When an entity/month pair was
// scored at multiple as-of months, the most recent as_of_month wins.
func (r *PredictionsRepository) GetChampionPredictions(companyID string, dataset domain.Dataset, modelName string) (map[PredictionKey]Prediction, error) {
	rows, err := r.db.Query(`
		SELECT entity_id, target_month, predicted_probability, as_of_month
		FROM ml_predictions
		WHERE company_id = ? AND dataset = ? AND model_name = ?
		ORDER BY entity_id, target_month, as_of_month`,
		companyID, string(dataset), modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query ml predictions: %w", err)
	}
	defer rows.Close()

	out := make(map[PredictionKey]Prediction)
	for rows.Next() {
		p := Prediction{CompanyID: companyID, Dataset: dataset, ModelName: modelName}
		var target, asOf string
		if err := rows.Scan(&p.EntityID, &target, &p.Probability, &asOf); err != nil {
			return nil, fmt.Errorf("failed to scan ml prediction: %w", err)
		}
		if p.TargetMonth, err = monthly.Parse(target); err != nil {
			return nil, fmt.Errorf("invalid target_month %q: %w", target, err)
		}
		if p.AsOfMonth, err = monthly.Parse(asOf); err != nil {
			return nil, fmt.Errorf("invalid as_of_month %q: %w", asOf, err)
		}

		key := PredictionKey{EntityID: p.EntityID, TargetMonth: p.TargetMonth}
		if existing, ok := out[key]; !ok || existing.AsOfMonth.Before(p.AsOfMonth) {
			out[key] = p
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ml predictions: %w", err)
	}
	return out, nil
}

// SavePredictions writes backtest-produced predictions into the intake table,
// replacing any prior rows for the same key.
func (r *PredictionsRepository) SavePredictions(preds []Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ml_predictions
		(company_id, dataset, entity_id, target_month, model_name, predicted_probability, as_of_month)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range preds {
		_, err := stmt.Exec(p.CompanyID, string(p.Dataset), p.EntityID,
			p.TargetMonth.String(), p.ModelName, p.Probability, p.AsOfMonth.String())
		if err != nil {
			return fmt.Errorf("failed to insert ml prediction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ml predictions: %w", err)
	}
	r.log.Debug().Int("count", len(preds)).Msg("Saved ml predictions")
	return nil
}

// PredictionKey identifies one scored entity/month pair.
type PredictionKey struct {
	EntityID    string
	TargetMonth monthly.Month
}
