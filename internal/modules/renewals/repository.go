package renewals

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository rebuilds renewal_probabilities in forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new renewals repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "renewals").Logger(),
	}
}

// ReplaceProbabilities rebuilds the renewal_probabilities table inside tx.
func (r *Repository) ReplaceProbabilities(tx *sql.Tx, probs []Probability) error {
	if _, err := tx.Exec(`DELETE FROM renewal_probabilities`); err != nil {
		return fmt.Errorf("failed to clear renewal_probabilities: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO renewal_probabilities
			(company_id, customer_id, renewal_month, scenario, segment, probability, source, renewal_mrr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare renewal_probabilities insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range probs {
		if _, err := stmt.Exec(p.CompanyID, p.CustomerID, p.RenewalMonth.String(),
			string(p.Scenario), p.Segment, p.Probability, p.Source, p.RenewalMRR); err != nil {
			return fmt.Errorf("failed to insert renewal probability: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(probs)).Msg("Renewal probabilities replaced")
	return nil
}

// GetProbabilities returns all renewal probability rows ordered deterministically.
func (r *Repository) GetProbabilities() ([]Probability, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, customer_id, renewal_month, scenario, segment, probability, source, renewal_mrr
		FROM renewal_probabilities
		ORDER BY company_id, customer_id, renewal_month, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query renewal probabilities: %w", err)
	}
	defer rows.Close()

	var out []Probability
	for rows.Next() {
		var p Probability
		var month, scenario string
		if err := rows.Scan(&p.CompanyID, &p.CustomerID, &month, &scenario,
			&p.Segment, &p.Probability, &p.Source, &p.RenewalMRR); err != nil {
			return nil, fmt.Errorf("failed to scan renewal probability: %w", err)
		}
		if p.RenewalMonth, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		p.Scenario = domain.Scenario(scenario)
		out = append(out, p)
	}
	return out, rows.Err()
}
