package confidence

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository rebuilds confidence_scores, churn_watchlist and arr_movers in
// forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new confidence repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "confidence").Logger(),
	}
}

// ReplaceScores rebuilds the confidence_scores table inside tx.
func (r *Repository) ReplaceScores(tx *sql.Tx, scores []Score) error {
	if _, err := tx.Exec(`DELETE FROM confidence_scores`); err != nil {
		return fmt.Errorf("failed to clear confidence_scores: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO confidence_scores
			(company_id, month, scenario, segment, pct_low_health,
			 pct_pipeline_dependent, top5_concentration, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare confidence_scores insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scores {
		if _, err := stmt.Exec(s.CompanyID, s.Month.String(), string(s.Scenario),
			s.Segment, s.PctLowHealth, s.PctPipelineDependent,
			s.Top5Concentration, s.Confidence); err != nil {
			return fmt.Errorf("failed to insert confidence score: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(scores)).Msg("Confidence scores replaced")
	return nil
}

// GetScores returns all confidence rows ordered deterministically.
func (r *Repository) GetScores() ([]Score, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, scenario, segment, pct_low_health,
			pct_pipeline_dependent, top5_concentration, confidence
		FROM confidence_scores
		ORDER BY company_id, month, segment, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query confidence scores: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var s Score
		var month, scenario string
		if err := rows.Scan(&s.CompanyID, &month, &scenario, &s.Segment,
			&s.PctLowHealth, &s.PctPipelineDependent, &s.Top5Concentration,
			&s.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan confidence score: %w", err)
		}
		if s.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		s.Scenario = domain.Scenario(scenario)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceWatchlist rebuilds the churn_watchlist table inside tx.
func (r *Repository) ReplaceWatchlist(tx *sql.Tx, entries []WatchlistEntry) error {
	if _, err := tx.Exec(`DELETE FROM churn_watchlist`); err != nil {
		return fmt.Errorf("failed to clear churn_watchlist: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO churn_watchlist
			(company_id, month, customer_id, segment, current_arr,
			 renewal_prob, churn_risk_arr, health_score, trend_bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare churn_watchlist insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.CompanyID, e.Month.String(), e.CustomerID,
			e.Segment, e.CurrentARR, e.RenewalProb, e.ChurnRiskARR,
			e.HealthScore, string(e.Trend)); err != nil {
			return fmt.Errorf("failed to insert watchlist entry: %w", err)
		}
	}
	return nil
}

// GetWatchlist returns the churn watchlist ordered by risk descending.
func (r *Repository) GetWatchlist() ([]WatchlistEntry, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, customer_id, segment, current_arr,
			renewal_prob, churn_risk_arr, health_score, trend_bucket
		FROM churn_watchlist
		ORDER BY churn_risk_arr DESC, customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query churn watchlist: %w", err)
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		var month, trend string
		if err := rows.Scan(&e.CompanyID, &month, &e.CustomerID, &e.Segment,
			&e.CurrentARR, &e.RenewalProb, &e.ChurnRiskARR,
			&e.HealthScore, &trend); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		if e.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		e.Trend = domain.TrendBucket(trend)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceMovers rebuilds the arr_movers table inside tx.
func (r *Repository) ReplaceMovers(tx *sql.Tx, movers []Mover) error {
	if _, err := tx.Exec(`DELETE FROM arr_movers`); err != nil {
		return fmt.Errorf("failed to clear arr_movers: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO arr_movers
			(company_id, month, customer_id, segment, prior_arr, current_arr, delta_arr)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare arr_movers insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range movers {
		if _, err := stmt.Exec(m.CompanyID, m.Month.String(), m.CustomerID,
			m.Segment, m.PriorARR, m.CurrentARR, m.DeltaARR); err != nil {
			return fmt.Errorf("failed to insert arr mover: %w", err)
		}
	}
	return nil
}

// GetMovers returns the ARR movers ordered by absolute delta descending.
func (r *Repository) GetMovers() ([]Mover, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, customer_id, segment, prior_arr, current_arr, delta_arr
		FROM arr_movers
		ORDER BY abs(delta_arr) DESC, customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query arr movers: %w", err)
	}
	defer rows.Close()

	var out []Mover
	for rows.Next() {
		var m Mover
		var month string
		if err := rows.Scan(&m.CompanyID, &month, &m.CustomerID, &m.Segment,
			&m.PriorARR, &m.CurrentARR, &m.DeltaARR); err != nil {
			return nil, fmt.Errorf("failed to scan arr mover: %w", err)
		}
		if m.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
