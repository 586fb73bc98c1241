package waterfall

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository rebuilds arr_waterfall and reconciliation_checks in forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new waterfall repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "waterfall").Logger(),
	}
}

// ReplaceRows rebuilds the arr_waterfall table inside tx.
func (r *Repository) ReplaceRows(tx *sql.Tx, rows []Row) error {
	if _, err := tx.Exec(`DELETE FROM arr_waterfall`); err != nil {
		return fmt.Errorf("failed to clear arr_waterfall: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO arr_waterfall
			(company_id, month, segment, scenario, starting_arr, new_arr,
			 expansion_arr, contraction_arr, churn_arr, ending_arr, movement_basis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare arr_waterfall insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.CompanyID, row.Month.String(), row.Segment,
			string(row.Scenario), row.StartingARR, row.NewARR, row.ExpansionARR,
			row.ContractionARR, row.ChurnARR, row.EndingARR, row.MovementBasis); err != nil {
			return fmt.Errorf("failed to insert arr_waterfall row: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(rows)).Msg("ARR waterfall replaced")
	return nil
}

// ReplaceChecks rebuilds the reconciliation_checks table inside tx.
func (r *Repository) ReplaceChecks(tx *sql.Tx, checks []Check) error {
	if _, err := tx.Exec(`DELETE FROM reconciliation_checks`); err != nil {
		return fmt.Errorf("failed to clear reconciliation_checks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO reconciliation_checks
			(company_id, month, segment, scenario, expected, actual, residual, ok)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reconciliation_checks insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range checks {
		okInt := 0
		if c.OK {
			okInt = 1
		}
		if _, err := stmt.Exec(c.CompanyID, c.Month.String(), c.Segment,
			string(c.Scenario), c.Expected, c.Actual, c.Residual, okInt); err != nil {
			return fmt.Errorf("failed to insert reconciliation check: %w", err)
		}
	}
	return nil
}

// GetRows returns all waterfall rows ordered deterministically.
func (r *Repository) GetRows() ([]Row, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, month, segment, scenario, starting_arr, new_arr,
			expansion_arr, contraction_arr, churn_arr, ending_arr, movement_basis
		FROM arr_waterfall
		ORDER BY company_id, month, segment, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query arr_waterfall: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var month, scenario string
		if err := rows.Scan(&row.CompanyID, &month, &row.Segment, &scenario,
			&row.StartingARR, &row.NewARR, &row.ExpansionARR, &row.ContractionARR,
			&row.ChurnARR, &row.EndingARR, &row.MovementBasis); err != nil {
			return nil, fmt.Errorf("failed to scan arr_waterfall row: %w", err)
		}
		if row.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		row.Scenario = domain.Scenario(scenario)
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetChecks returns every reconciliation check ordered deterministically.
func (r *Repository) GetChecks() ([]Check, error) {
	return r.queryChecks(`
		SELECT company_id, month, segment, scenario, expected, actual, residual, ok
		FROM reconciliation_checks
		ORDER BY company_id, month, segment, scenario`)
}

// GetFailedChecks returns reconciliation checks that breached the tolerance.
func (r *Repository) GetFailedChecks() ([]Check, error) {
	return r.queryChecks(`
		SELECT company_id, month, segment, scenario, expected, actual, residual, ok
		FROM reconciliation_checks
		WHERE ok = 0
		ORDER BY company_id, month, segment, scenario`)
}

func (r *Repository) queryChecks(query string) ([]Check, error) {
	rows, err := r.forecastDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation checks: %w", err)
	}
	defer rows.Close()

	var out []Check
	for rows.Next() {
		var c Check
		var month, scenario string
		var okInt int
		if err := rows.Scan(&c.CompanyID, &month, &c.Segment, &scenario,
			&c.Expected, &c.Actual, &c.Residual, &okInt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation check: %w", err)
		}
		if c.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		c.Scenario = domain.Scenario(scenario)
		c.OK = okInt == 1
		out = append(out, c)
	}
	return out, rows.Err()
}
