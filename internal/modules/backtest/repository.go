package backtest

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository persists backtest output in models.db. Unlike the forecast mart,
// metric history accumulates across runs: rows are upserted per key, never
// dropped wholesale, so the champion selector sees a stable history.
type Repository struct {
	modelsDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new backtest repository
func NewRepository(modelsDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		modelsDB: modelsDB,
		log:      log.With().Str("repo", "backtest").Logger(),
	}
}

// SaveReport upserts everything one backtest run produced.
func (r *Repository) SaveReport(report *Report) error {
	tx, err := r.modelsDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveResults(tx, report.Results); err != nil {
		return err
	}
	if err := saveMetrics(tx, report.Metrics); err != nil {
		return err
	}
	if err := saveBins(tx, report.Bins); err != nil {
		return err
	}
	if err := saveThresholds(tx, report.Thresholds); err != nil {
		return err
	}
	if err := saveCosts(tx, report.Costs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit backtest report: %w", err)
	}

	r.log.Info().
		Str("dataset", string(report.Dataset)).
		Int("results", len(report.Results)).
		Int("metrics", len(report.Metrics)).
		Msg("Backtest report saved")
	return nil
}

func saveResults(tx *sql.Tx, results []Result) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO backtest_results
			(dataset, model_name, cutoff_month, company_id, entity_id, target_month, segment, y_true, p_pred)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare backtest_results insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if _, err := stmt.Exec(string(res.Dataset), res.ModelName, res.CutoffMonth.String(),
			res.CompanyID, res.EntityID, res.TargetMonth.String(), res.Segment,
			res.YTrue, res.PPred); err != nil {
			return fmt.Errorf("failed to insert backtest result: %w", err)
		}
	}
	return nil
}

func saveMetrics(tx *sql.Tx, metrics []Metric) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO backtest_metrics
			(dataset, model_name, cutoff_month, segment, auc, brier, logloss, n_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare backtest_metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.Exec(string(m.Dataset), m.ModelName, m.CutoffMonth.String(),
			m.Segment, m.AUC, m.Brier, m.LogLoss, m.NRows); err != nil {
			return fmt.Errorf("failed to insert backtest metric: %w", err)
		}
	}
	return nil
}

func saveBins(tx *sql.Tx, bins []CalibrationBin) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO calibration_bins
			(dataset, model_name, cutoff_month, bin_id, p_pred_mean, y_true_rate, count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare calibration_bins insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bins {
		if _, err := stmt.Exec(string(b.Dataset), b.ModelName, b.CutoffMonth.String(),
			b.BinID, b.PPredMean, b.YTrueRate, b.Count); err != nil {
			return fmt.Errorf("failed to insert calibration bin: %w", err)
		}
	}
	return nil
}

func saveThresholds(tx *sql.Tx, metrics []ThresholdMetric) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO threshold_metrics
			(dataset, model_name, cutoff_month, threshold, predicted_positive,
			 tp, fp, tn, fn, precision, recall, fpr, fnr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold_metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.Exec(string(m.Dataset), m.ModelName, m.CutoffMonth.String(),
			m.Threshold, m.PredictedPositive, m.TP, m.FP, m.TN, m.FN,
			m.Precision, m.Recall, m.FPR, m.FNR); err != nil {
			return fmt.Errorf("failed to insert threshold metric: %w", err)
		}
	}
	return nil
}

func saveCosts(tx *sql.Tx, costs []CostPoint) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO cost_curves
			(dataset, model_name, cutoff_month, threshold, expected_cost)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cost_curves insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range costs {
		if _, err := stmt.Exec(string(c.Dataset), c.ModelName, c.CutoffMonth.String(),
			c.Threshold, c.ExpectedCost); err != nil {
			return fmt.Errorf("failed to insert cost point: %w", err)
		}
	}
	return nil
}

// GetCalibration returns the calibration-bin history for a dataset.
func (r *Repository) GetCalibration(dataset domain.Dataset) ([]CalibrationBin, error) {
	rows, err := r.modelsDB.Query(`
		SELECT dataset, model_name, cutoff_month, bin_id, p_pred_mean, y_true_rate, count
		FROM calibration_bins
		WHERE dataset = ?
		ORDER BY cutoff_month, model_name, bin_id`, string(dataset))
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration bins: %w", err)
	}
	defer rows.Close()

	var out []CalibrationBin
	for rows.Next() {
		var b CalibrationBin
		var ds, cutoff string
		if err := rows.Scan(&ds, &b.ModelName, &cutoff, &b.BinID,
			&b.PPredMean, &b.YTrueRate, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan calibration bin: %w", err)
		}
		b.Dataset = domain.Dataset(ds)
		if b.CutoffMonth, err = monthly.Parse(cutoff); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetCostCurves returns the expected-cost curve history for a dataset.
func (r *Repository) GetCostCurves(dataset domain.Dataset) ([]CostPoint, error) {
	rows, err := r.modelsDB.Query(`
		SELECT dataset, model_name, cutoff_month, threshold, expected_cost
		FROM cost_curves
		WHERE dataset = ?
		ORDER BY cutoff_month, model_name, threshold`, string(dataset))
	if err != nil {
		return nil, fmt.Errorf("failed to query cost curves: %w", err)
	}
	defer rows.Close()

	var out []CostPoint
	for rows.Next() {
		var c CostPoint
		var ds, cutoff string
		if err := rows.Scan(&ds, &c.ModelName, &cutoff, &c.Threshold, &c.ExpectedCost); err != nil {
			return nil, fmt.Errorf("failed to scan cost point: %w", err)
		}
		c.Dataset = domain.Dataset(ds)
		if c.CutoffMonth, err = monthly.Parse(cutoff); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetMetrics returns the full metric history for a dataset.
func (r *Repository) GetMetrics(dataset domain.Dataset) ([]Metric, error) {
	rows, err := r.modelsDB.Query(`
		SELECT dataset, model_name, cutoff_month, segment, auc, brier, logloss, n_rows
		FROM backtest_metrics
		WHERE dataset = ?
		ORDER BY cutoff_month, model_name, segment`, string(dataset))
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var ds, cutoff string
		if err := rows.Scan(&ds, &m.ModelName, &cutoff, &m.Segment,
			&m.AUC, &m.Brier, &m.LogLoss, &m.NRows); err != nil {
			return nil, fmt.Errorf("failed to scan backtest metric: %w", err)
		}
		m.Dataset = domain.Dataset(ds)
		if m.CutoffMonth, err = monthly.Parse(cutoff); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
