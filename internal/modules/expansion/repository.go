package expansion

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository rebuilds expansion_forecast in forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new expansion repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "expansion").Logger(),
	}
}

// ReplaceForecasts rebuilds the expansion_forecast table inside tx.
func (r *Repository) ReplaceForecasts(tx *sql.Tx, rows []Forecast) error {
	if _, err := tx.Exec(`DELETE FROM expansion_forecast`); err != nil {
		return fmt.Errorf("failed to clear expansion_forecast: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO expansion_forecast
			(company_id, customer_id, month, scenario, segment, current_mrr, uplift_pct, contribution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare expansion_forecast insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range rows {
		if _, err := stmt.Exec(f.CompanyID, f.CustomerID, f.Month.String(),
			string(f.Scenario), f.Segment, f.CurrentMRR, f.UpliftPct, f.Contribution); err != nil {
			return fmt.Errorf("failed to insert expansion forecast: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(rows)).Msg("Expansion forecast replaced")
	return nil
}

// GetForecasts returns all expansion rows ordered deterministically.
func (r *Repository) GetForecasts() ([]Forecast, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, customer_id, month, scenario, segment, current_mrr, uplift_pct, contribution
		FROM expansion_forecast
		ORDER BY company_id, customer_id, month, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query expansion forecast: %w", err)
	}
	defer rows.Close()

	var out []Forecast
	for rows.Next() {
		var f Forecast
		var month, scenario string
		if err := rows.Scan(&f.CompanyID, &f.CustomerID, &month, &scenario,
			&f.Segment, &f.CurrentMRR, &f.UpliftPct, &f.Contribution); err != nil {
			return nil, fmt.Errorf("failed to scan expansion forecast: %w", err)
		}
		if f.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		f.Scenario = domain.Scenario(scenario)
		out = append(out, f)
	}
	return out, rows.Err()
}
