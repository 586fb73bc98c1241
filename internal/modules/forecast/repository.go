package forecast

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository rebuilds the forecast mart tables in forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new forecast repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "forecast").Logger(),
	}
}

// ReplaceRecords rebuilds the forecast_records table inside tx.
func (r *Repository) ReplaceRecords(tx *sql.Tx, records []Record) error {
	if _, err := tx.Exec(`DELETE FROM forecast_records`); err != nil {
		return fmt.Errorf("failed to clear forecast_records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO forecast_records
			(company_id, month, scenario, segment, renewal_revenue,
			 new_biz_revenue, expansion_revenue, total_revenue, actual_revenue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare forecast_records insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.CompanyID, rec.Month.String(), string(rec.Scenario),
			rec.Segment, rec.RenewalRevenue, rec.NewBizRevenue,
			rec.ExpansionRevenue, rec.TotalRevenue, rec.ActualRevenue); err != nil {
			return fmt.Errorf("failed to insert forecast record: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(records)).Msg("Forecast records replaced")
	return nil
}

// GetRecords returns all forecast rows ordered deterministically.
func (r *Repository) GetRecords() ([]Record, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, scenario, segment, renewal_revenue,
			new_biz_revenue, expansion_revenue, total_revenue, actual_revenue
		FROM forecast_records
		ORDER BY company_id, month, segment, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var month, scenario string
		if err := rows.Scan(&rec.CompanyID, &month, &scenario, &rec.Segment,
			&rec.RenewalRevenue, &rec.NewBizRevenue, &rec.ExpansionRevenue,
			&rec.TotalRevenue, &rec.ActualRevenue); err != nil {
			return nil, fmt.Errorf("failed to scan forecast record: %w", err)
		}
		if rec.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		rec.Scenario = domain.Scenario(scenario)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReplaceSummary rebuilds the executive_summary table inside tx.
func (r *Repository) ReplaceSummary(tx *sql.Tx, rows []SummaryRow) error {
	if _, err := tx.Exec(`DELETE FROM executive_summary`); err != nil {
		return fmt.Errorf("failed to clear executive_summary: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO executive_summary
			(company_id, month, scenario, total_forecast_revenue,
			 total_actual_revenue, revenue_growth_mom, avg_confidence_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare executive_summary insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range rows {
		if _, err := stmt.Exec(s.CompanyID, s.Month.String(), string(s.Scenario),
			s.TotalForecast, s.TotalActual, s.GrowthMoM, s.AvgConfidence); err != nil {
			return fmt.Errorf("failed to insert executive summary: %w", err)
		}
	}
	return nil
}

// ReplaceCoverage rebuilds the coverage_metrics table inside tx.
func (r *Repository) ReplaceCoverage(tx *sql.Tx, rows []CoverageRow) error {
	if _, err := tx.Exec(`DELETE FROM coverage_metrics`); err != nil {
		return fmt.Errorf("failed to clear coverage_metrics: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO coverage_metrics
			(company_id, month, scenario, segment, pipeline_coverage_ratio, renewal_coverage_ratio)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare coverage_metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.Exec(c.CompanyID, c.Month.String(), string(c.Scenario),
			c.Segment, c.PipelineCoverage, c.RenewalCoverage); err != nil {
			return fmt.Errorf("failed to insert coverage metric: %w", err)
		}
	}
	return nil
}

// GetSummary returns the executive summary ordered deterministically.
func (r *Repository) GetSummary() ([]SummaryRow, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, scenario, total_forecast_revenue,
			total_actual_revenue, revenue_growth_mom, avg_confidence_score
		FROM executive_summary
		ORDER BY company_id, month, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query executive summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		var month, scenario string
		if err := rows.Scan(&s.CompanyID, &month, &scenario,
			&s.TotalForecast, &s.TotalActual, &s.GrowthMoM, &s.AvgConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan executive summary: %w", err)
		}
		if s.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		s.Scenario = domain.Scenario(scenario)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCoverage returns the coverage metrics ordered deterministically.
func (r *Repository) GetCoverage() ([]CoverageRow, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, scenario, segment, pipeline_coverage_ratio, renewal_coverage_ratio
		FROM coverage_metrics
		ORDER BY company_id, month, segment, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage metrics: %w", err)
	}
	defer rows.Close()

	var out []CoverageRow
	for rows.Next() {
		var c CoverageRow
		var month, scenario string
		if err := rows.Scan(&c.CompanyID, &month, &scenario, &c.Segment,
			&c.PipelineCoverage, &c.RenewalCoverage); err != nil {
			return nil, fmt.Errorf("failed to scan coverage metric: %w", err)
		}
		if c.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		c.Scenario = domain.Scenario(scenario)
		out = append(out, c)
	}
	return out, rows.Err()
}
