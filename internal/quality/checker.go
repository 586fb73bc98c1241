// Package quality evaluates the audit-facing hard-failure conditions as
// named, attributable violations: which rule, at which grain, with which
// values. A run that produces hard violations must not publish.
package quality

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Violation rules.
const (
	RuleScenarioCompleteness = "scenario_completeness"
	RuleReconciliation       = "reconciliation_identity"
	RuleTemporalLeakage      = "temporal_leakage"
	RuleForeignKeyOrphan     = "foreign_key_orphan"
	RuleContractInterval     = "contract_invalid_interval"
	RuleBacktestGate         = "backtest_gate"
)

// Severities.
const (
	SeverityHard = "hard"
	SeveritySoft = "soft"
)

// Violation is one named data-quality failure.
type Violation struct {
	Rule     string
	Severity string
	Grain    string
	Detail   string
}

// Checker runs the violation rules against the warehouse.
type Checker struct {
	warehouse *database.Warehouse
	log       zerolog.Logger
}

// NewChecker creates a new quality checker
func NewChecker(warehouse *database.Warehouse, log zerolog.Logger) *Checker {
	return &Checker{
		warehouse: warehouse,
		log:       log.With().Str("component", "quality_checker").Logger(),
	}
}

// RunAll evaluates every hard rule against the published tables and returns
// the violations found.
func (c *Checker) RunAll(horizon monthly.Month) ([]Violation, error) {
	var out []Violation
	checks := []func(monthly.Month) ([]Violation, error){
		c.checkScenarioCompleteness,
		c.checkReconciliation,
		c.checkTemporalLeakage,
		c.checkForeignKeys,
		c.checkContractIntervals,
	}
	for _, check := range checks {
		violations, err := check(horizon)
		if err != nil {
			return nil, err
		}
		out = append(out, violations...)
	}
	if len(out) > 0 {
		c.log.Error().Int("violations", len(out)).Msg("Data-quality violations found")
	}
	return out, nil
}

// CheckFacts evaluates the rules that depend only on the source facts
// (foreign-key orphans, invalid contract intervals). The runner calls this
// before computing anything.
func (c *Checker) CheckFacts() ([]Violation, error) {
	out, err := c.checkForeignKeys(0)
	if err != nil {
		return nil, err
	}
	intervals, err := c.checkContractIntervals(0)
	if err != nil {
		return nil, err
	}
	return append(out, intervals...), nil
}

// CheckModels evaluates temporal leakage against committed backtest history.
func (c *Checker) CheckModels(horizon monthly.Month) ([]Violation, error) {
	return c.checkTemporalLeakage(horizon)
}

// checkScenarioCompleteness requires exactly 3 scenario rows per forecast grain.
func (c *Checker) checkScenarioCompleteness(monthly.Month) ([]Violation, error) {
	rows, err := c.warehouse.Forecast.Conn().Query(`
		SELECT company_id, month, segment, count(DISTINCT scenario)
		FROM forecast_records
		GROUP BY company_id, month, segment
		HAVING count(DISTINCT scenario) != 3
		ORDER BY company_id, month, segment`)
	if err != nil {
		return nil, fmt.Errorf("failed to check scenario completeness: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var companyID, month, segment string
		var n int
		if err := rows.Scan(&companyID, &month, &segment, &n); err != nil {
			return nil, fmt.Errorf("failed to scan scenario completeness row: %w", err)
		}
		out = append(out, Violation{
			Rule:     RuleScenarioCompleteness,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s", companyID, month, segment),
			Detail:   fmt.Sprintf("expected 3 scenario rows, found %d", n),
		})
	}
	return out, rows.Err()
}

// checkReconciliation surfaces waterfall grains where the bridge identity broke.
func (c *Checker) checkReconciliation(monthly.Month) ([]Violation, error) {
	rows, err := c.warehouse.Forecast.Conn().Query(`
		SELECT company_id, month, segment, scenario, expected, actual, residual
		FROM reconciliation_checks
		WHERE ok = 0
		ORDER BY company_id, month, segment, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to check reconciliation: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var companyID, month, segment, scenario string
		var expected, actual, residual float64
		if err := rows.Scan(&companyID, &month, &segment, &scenario,
			&expected, &actual, &residual); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation row: %w", err)
		}
		out = append(out, Violation{
			Rule:     RuleReconciliation,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s/%s", companyID, month, segment, scenario),
			Detail:   fmt.Sprintf("ending %.4f vs bridged %.4f (residual %.4f)", actual, expected, residual),
		})
	}
	return out, rows.Err()
}

// checkTemporalLeakage flags backtest rows whose renewal or close label is
// dated after the actuals horizon: such a label could not have been observed.
func (c *Checker) checkTemporalLeakage(horizon monthly.Month) ([]Violation, error) {
	rows, err := c.warehouse.Models.Conn().Query(`
		SELECT dataset, model_name, cutoff_month, entity_id, target_month
		FROM backtest_results
		WHERE target_month > ?
		ORDER BY dataset, model_name, cutoff_month, entity_id`, horizon.String())
	if err != nil {
		return nil, fmt.Errorf("failed to check temporal leakage: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var dataset, model, cutoff, entity, target string
		if err := rows.Scan(&dataset, &model, &cutoff, &entity, &target); err != nil {
			return nil, fmt.Errorf("failed to scan leakage row: %w", err)
		}
		out = append(out, Violation{
			Rule:     RuleTemporalLeakage,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s/%s", dataset, model, cutoff, entity),
			Detail:   fmt.Sprintf("label month %s is after the actuals horizon %s", target, horizon),
		})
	}
	return out, rows.Err()
}

// checkForeignKeys flags references to customers with no master record.
func (c *Checker) checkForeignKeys(monthly.Month) ([]Violation, error) {
	type orphanQuery struct {
		table string
		query string
	}
	queries := []orphanQuery{
		{
			table: "pipeline_opportunities_snapshot",
			query: `
				SELECT DISTINCT p.company_id, p.customer_id
				FROM pipeline_opportunities_snapshot p
				LEFT JOIN customers c
					ON c.company_id = p.company_id AND c.customer_id = p.customer_id
				WHERE p.customer_id IS NOT NULL AND c.customer_id IS NULL
				ORDER BY p.company_id, p.customer_id`,
		},
		{
			table: "usage_monthly",
			query: `
				SELECT DISTINCT u.company_id, u.customer_id
				FROM usage_monthly u
				LEFT JOIN customers c
					ON c.company_id = u.company_id AND c.customer_id = u.customer_id
				WHERE c.customer_id IS NULL
				ORDER BY u.company_id, u.customer_id`,
		},
		{
			table: "subscription_line_items",
			query: `
				SELECT DISTINCT s.company_id, s.customer_id
				FROM subscription_line_items s
				LEFT JOIN customers c
					ON c.company_id = s.company_id AND c.customer_id = s.customer_id
				WHERE c.customer_id IS NULL
				ORDER BY s.company_id, s.customer_id`,
		},
	}

	var out []Violation
	for _, q := range queries {
		violations, err := c.orphans(q.table, q.query)
		if err != nil {
			return nil, err
		}
		out = append(out, violations...)
	}
	return out, nil
}

func (c *Checker) orphans(table, query string) ([]Violation, error) {
	rows, err := c.warehouse.Facts.Conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to check orphans in %s: %w", table, err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var companyID, customerID string
		if err := rows.Scan(&companyID, &customerID); err != nil {
			return nil, fmt.Errorf("failed to scan orphan row: %w", err)
		}
		out = append(out, Violation{
			Rule:     RuleForeignKeyOrphan,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s", table, companyID, customerID),
			Detail:   "customer reference has no master record",
		})
	}
	return out, rows.Err()
}

// checkContractIntervals flags lines whose end date precedes their start
// date. Such lines expand to zero monthly records, which would silently drop
// revenue; they are rejected explicitly instead.
func (c *Checker) checkContractIntervals(monthly.Month) ([]Violation, error) {
	rows, err := c.warehouse.Facts.Conn().Query(`
		SELECT company_id, contract_id, line_id, contract_start_date, contract_end_date
		FROM subscription_line_items
		WHERE contract_end_date < contract_start_date
		ORDER BY company_id, contract_id, line_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract intervals: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var companyID, contractID, lineID, start, end string
		if err := rows.Scan(&companyID, &contractID, &lineID, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan contract interval row: %w", err)
		}
		out = append(out, Violation{
			Rule:     RuleContractInterval,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s", companyID, contractID, lineID),
			Detail:   fmt.Sprintf("end date %s precedes start date %s", end, start),
		})
	}
	return out, rows.Err()
}

// Repository persists violations per run in forecast.db.
type Repository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new quality repository
func NewRepository(forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "quality").Logger(),
	}
}

// SaveViolations records a run's violations. History accumulates across runs.
func (r *Repository) SaveViolations(runID string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	tx, err := r.forecastDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO dq_violations (run_id, rule, severity, grain, detail)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare dq_violations insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range violations {
		if _, err := stmt.Exec(runID, v.Rule, v.Severity, v.Grain, v.Detail); err != nil {
			return fmt.Errorf("failed to insert violation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit violations: %w", err)
	}
	return nil
}

// GetByRun returns a run's violations.
func (r *Repository) GetByRun(runID string) ([]Violation, error) {
	rows, err := r.forecastDB.Query(`
		SELECT rule, severity, grain, detail
		FROM dq_violations
		WHERE run_id = ?
		ORDER BY rule, grain`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.Rule, &v.Severity, &v.Grain, &v.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
