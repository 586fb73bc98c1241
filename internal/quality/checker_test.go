package quality

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/waterfall"
	"github.com/mhalford/revcast/pkg/monthly"
)

func openWarehouse(t *testing.T) *database.Warehouse {
	t.Helper()
	w, err := database.OpenTestWarehouse("quality_" + t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func seedCustomer(t *testing.T, w *database.Warehouse, customerID string) {
	t.Helper()
	_, err := w.Facts.Conn().Exec(`
		INSERT INTO customers (company_id, customer_id, segment, created_date)
		VALUES ('acme', ?, 'smb', '2024-01-01')`, customerID)
	require.NoError(t, err)
}

func TestRunAllCleanWarehouse(t *testing.T) {
	w := openWarehouse(t)
	checker := NewChecker(w, zerolog.Nop())

	violations, err := checker.RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestScenarioCompletenessViolation(t *testing.T) {
	w := openWarehouse(t)
	_, err := w.Forecast.Conn().Exec(`
		INSERT INTO forecast_records
			(company_id, month, scenario, segment, renewal_revenue, new_biz_revenue,
			 expansion_revenue, total_revenue, actual_revenue)
		VALUES
			('acme', '2025-06-01', 'base', 'smb', 0, 0, 0, 0, 0),
			('acme', '2025-06-01', 'upside', 'smb', 0, 0, 0, 0, 0)`)
	require.NoError(t, err)

	violations, err := NewChecker(w, zerolog.Nop()).RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleScenarioCompleteness, violations[0].Rule)
	assert.Equal(t, SeverityHard, violations[0].Severity)
	assert.Contains(t, violations[0].Detail, "found 2")
}

func TestReconciliationViolation(t *testing.T) {
	w := openWarehouse(t)
	_, err := w.Forecast.Conn().Exec(`
		INSERT INTO reconciliation_checks
			(company_id, month, segment, scenario, expected, actual, residual, ok)
		VALUES ('acme', '2025-06-01', 'smb', 'base', 1000, 1100, 100, 0)`)
	require.NoError(t, err)

	violations, err := NewChecker(w, zerolog.Nop()).RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleReconciliation, violations[0].Rule)
	assert.Contains(t, violations[0].Grain, "2025-06-01")
}

func TestTemporalLeakageViolation(t *testing.T) {
	w := openWarehouse(t)
	_, err := w.Models.Conn().Exec(`
		INSERT INTO backtest_results
			(dataset, model_name, cutoff_month, company_id, entity_id, target_month, segment, y_true, p_pred)
		VALUES ('renewals', 'logistic', '2025-07-01', 'acme', 'cust-1', '2025-07-01', 'smb', 1, 0.8)`)
	require.NoError(t, err)

	violations, err := NewChecker(w, zerolog.Nop()).RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleTemporalLeakage, violations[0].Rule)
}

func TestForeignKeyOrphanViolation(t *testing.T) {
	w := openWarehouse(t)
	seedCustomer(t, w, "known")
	_, err := w.Facts.Conn().Exec(`
		INSERT INTO usage_monthly (company_id, month, customer_id, usage_count, active_users)
		VALUES ('acme', '2025-05-01', 'ghost', 100, 5),
		       ('acme', '2025-05-01', 'known', 100, 5)`)
	require.NoError(t, err)

	violations, err := NewChecker(w, zerolog.Nop()).RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleForeignKeyOrphan, violations[0].Rule)
	assert.Contains(t, violations[0].Grain, "ghost")
}

func TestContractIntervalViolation(t *testing.T) {
	w := openWarehouse(t)
	seedCustomer(t, w, "cust-1")
	_, err := w.Facts.Conn().Exec(`
		INSERT INTO subscription_line_items
			(company_id, contract_id, line_id, customer_id, product_id,
			 contract_start_date, contract_end_date, billing_frequency,
			 quantity, unit_price, discount_pct, status)
		VALUES ('acme', 'c1', 'l1', 'cust-1', 'p1',
			'2025-06-01', '2025-01-01', 'monthly', 1, 100, 0, 'active')`)
	require.NoError(t, err)

	violations, err := NewChecker(w, zerolog.Nop()).RunAll(monthly.MustParse("2025-06"))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleContractInterval, violations[0].Rule)
	assert.Contains(t, violations[0].Grain, "c1")
}

func TestFromReconciliationOnlyFailures(t *testing.T) {
	checks := []waterfall.Check{
		{CompanyID: "acme", Month: monthly.MustParse("2025-05"), Segment: "smb",
			Scenario: domain.ScenarioBase, Expected: 1000, Actual: 1000, Residual: 0, OK: true},
		{CompanyID: "acme", Month: monthly.MustParse("2025-06"), Segment: "smb",
			Scenario: domain.ScenarioBase, Expected: 1000, Actual: 1100, Residual: 100, OK: false},
	}

	violations := FromReconciliation(checks)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleReconciliation, violations[0].Rule)
	assert.Contains(t, violations[0].Grain, "2025-06-01")
}

func TestFromForecastRecordsMissingScenario(t *testing.T) {
	month := monthly.MustParse("2025-06")
	records := []forecast.Record{
		{CompanyID: "acme", Month: month, Segment: "smb", Scenario: domain.ScenarioBase},
		{CompanyID: "acme", Month: month, Segment: "smb", Scenario: domain.ScenarioUpside},
		{CompanyID: "acme", Month: month, Segment: "enterprise", Scenario: domain.ScenarioBase},
		{CompanyID: "acme", Month: month, Segment: "enterprise", Scenario: domain.ScenarioUpside},
		{CompanyID: "acme", Month: month, Segment: "enterprise", Scenario: domain.ScenarioDownside},
	}

	violations := FromForecastRecords(records)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Grain, "smb")
	assert.Contains(t, violations[0].Detail, "found 2")
}

func TestSaveAndGetViolations(t *testing.T) {
	w := openWarehouse(t)
	repo := NewRepository(w.Forecast.Conn(), zerolog.Nop())

	violations := []Violation{
		{Rule: RuleReconciliation, Severity: SeverityHard, Grain: "acme/2025-06-01/smb/base", Detail: "residual 0.5"},
		{Rule: RuleForeignKeyOrphan, Severity: SeverityHard, Grain: "usage_monthly/acme/ghost", Detail: "no master record"},
	}
	require.NoError(t, repo.SaveViolations("run-1", violations))
	require.NoError(t, repo.SaveViolations("run-2", violations[:1]))

	got, err := repo.GetByRun("run-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.GetByRun("run-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
