package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
)

// SelectionRepository persists champion selections in models.db. Selections
// are superseded by inserting a newer timestamped row, never edited in place,
// so the full selection history stays auditable.
type SelectionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSelectionRepository creates a new selection repository
func NewSelectionRepository(db *sql.DB, log zerolog.Logger) *SelectionRepository {
	return &SelectionRepository{
		db:  db,
		log: log.With().Str("repo", "model_selection").Logger(),
	}
}

// Save appends a selection as the new current row for its dataset.
func (r *SelectionRepository) Save(sel Selection, at time.Time) error {
	scores, err := json.Marshal(sel.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal selection scores: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO model_selection (dataset, preferred_model, selection_reason, scores, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(sel.Dataset), sel.PreferredModel, sel.Reason, string(scores),
		at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert model selection: %w", err)
	}

	r.log.Info().
		Str("dataset", string(sel.Dataset)).
		Str("preferred_model", sel.PreferredModel).
		Str("reason", sel.Reason).
		Msg("Model selection recorded")
	return nil
}

// GetCurrent returns the latest selection for a dataset, or nil when no
// selection has ever been recorded.
func (r *SelectionRepository) GetCurrent(dataset domain.Dataset) (*Selection, error) {
	row := r.db.QueryRow(`
		SELECT preferred_model, selection_reason, scores
		FROM model_selection
		WHERE dataset = ?
		ORDER BY updated_at DESC, preferred_model ASC
		LIMIT 1`, string(dataset))

	var sel Selection
	var scores string
	err := row.Scan(&sel.PreferredModel, &sel.Reason, &scores)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model selection: %w", err)
	}

	sel.Dataset = dataset
	if err := json.Unmarshal([]byte(scores), &sel.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selection scores: %w", err)
	}
	return &sel, nil
}
