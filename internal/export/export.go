// Package export writes the published forecast marts as an artifact pack:
// one CSV per mart plus a msgpack bundle carrying the manifest and all rows,
// optionally uploaded to S3.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mhalford/revcast/internal/config"
	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/events"
	"github.com/mhalford/revcast/internal/modules/confidence"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/waterfall"
)

const bundleName = "artifacts.msgpack"

// Manifest describes one artifact pack.
type Manifest struct {
	RunID       string      `json:"run_id" msgpack:"run_id"`
	GeneratedAt time.Time   `json:"generated_at" msgpack:"generated_at"`
	Files       []FileEntry `json:"files" msgpack:"files"`
}

// FileEntry is one exported file with its data row count.
type FileEntry struct {
	Name string `json:"name" msgpack:"name"`
	Rows int    `json:"rows" msgpack:"rows"`
}

// Bundle is the msgpack payload: the manifest plus every mart's rows in
// CSV-shaped string tables keyed by mart name.
type Bundle struct {
	Manifest Manifest             `msgpack:"manifest"`
	Tables   map[string]tableData `msgpack:"tables"`
}

type tableData struct {
	Header []string   `msgpack:"header"`
	Rows   [][]string `msgpack:"rows"`
}

// table is one mart flattened for export.
type table struct {
	name   string
	header []string
	rows   [][]string
}

// Exporter writes artifact packs from the published marts.
type Exporter struct {
	cfg    *config.Config
	events *events.Manager
	log    zerolog.Logger

	forecastRepo   *forecast.Repository
	waterfallRepo  *waterfall.Repository
	confidenceRepo *confidence.Repository
	renewalsRepo   *renewals.Repository
	pipelineRepo   *pipeline.Repository

	uploader *Uploader
}

// NewExporter creates a new exporter
func NewExporter(warehouse *database.Warehouse, cfg *config.Config, eventManager *events.Manager, log zerolog.Logger) *Exporter {
	return &Exporter{
		cfg:            cfg,
		events:         eventManager,
		log:            log.With().Str("component", "exporter").Logger(),
		forecastRepo:   forecast.NewRepository(warehouse.Forecast.Conn(), log),
		waterfallRepo:  waterfall.NewRepository(warehouse.Forecast.Conn(), log),
		confidenceRepo: confidence.NewRepository(warehouse.Forecast.Conn(), log),
		renewalsRepo:   renewals.NewRepository(warehouse.Forecast.Conn(), log),
		pipelineRepo:   pipeline.NewRepository(warehouse.Facts.Conn(), warehouse.Forecast.Conn(), log),
	}
}

// Export writes the artifact pack for a run into <ExportDir>/<runID> and
// uploads it when an S3 bucket is configured.
func (e *Exporter) Export(ctx context.Context, runID string) (*Manifest, error) {
	dir := filepath.Join(e.cfg.ExportDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tables, err := e.loadTables()
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
	}
	bundle := Bundle{Tables: make(map[string]tableData, len(tables))}

	for _, t := range tables {
		name := t.name + ".csv"
		if err := writeCSV(filepath.Join(dir, name), t); err != nil {
			return nil, err
		}
		manifest.Files = append(manifest.Files, FileEntry{Name: name, Rows: len(t.rows)})
		bundle.Tables[t.name] = tableData{Header: t.header, Rows: t.rows}
	}
	bundle.Manifest = manifest

	if err := writeBundle(filepath.Join(dir, bundleName), bundle); err != nil {
		return nil, err
	}

	uploaded := false
	if e.cfg.S3Bucket != "" {
		if err := e.upload(ctx, dir, runID, manifest); err != nil {
			return nil, err
		}
		uploaded = true
	}

	e.events.EmitTyped("export", &events.ArtifactsExportedData{
		RunID:    runID,
		Dir:      dir,
		Files:    len(manifest.Files) + 1, // CSVs plus the bundle
		Uploaded: uploaded,
	})
	e.log.Info().
		Str("run_id", runID).
		Str("dir", dir).
		Int("files", len(manifest.Files)+1).
		Bool("uploaded", uploaded).
		Msg("Artifact pack exported")

	return &manifest, nil
}

func (e *Exporter) upload(ctx context.Context, dir, runID string, manifest Manifest) error {
	if e.uploader == nil {
		uploader, err := NewUploader(ctx, e.cfg, e.log)
		if err != nil {
			return err
		}
		e.uploader = uploader
	}

	for _, f := range manifest.Files {
		if err := e.uploader.UploadFile(ctx, filepath.Join(dir, f.Name), runID+"/"+f.Name); err != nil {
			return err
		}
	}
	return e.uploader.UploadFile(ctx, filepath.Join(dir, bundleName), runID+"/"+bundleName)
}

func writeCSV(path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(t.header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

func writeBundle(path string, bundle Bundle) error {
	data, err := msgpack.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}

func (e *Exporter) loadTables() ([]table, error) {
	records, err := e.forecastRepo.GetRecords()
	if err != nil {
		return nil, err
	}
	waterfallRows, err := e.waterfallRepo.GetRows()
	if err != nil {
		return nil, err
	}
	checks, err := e.waterfallRepo.GetChecks()
	if err != nil {
		return nil, err
	}
	scores, err := e.confidenceRepo.GetScores()
	if err != nil {
		return nil, err
	}
	watchlist, err := e.confidenceRepo.GetWatchlist()
	if err != nil {
		return nil, err
	}
	movers, err := e.confidenceRepo.GetMovers()
	if err != nil {
		return nil, err
	}
	summary, err := e.forecastRepo.GetSummary()
	if err != nil {
		return nil, err
	}
	coverage, err := e.forecastRepo.GetCoverage()
	if err != nil {
		return nil, err
	}
	probs, err := e.renewalsRepo.GetProbabilities()
	if err != nil {
		return nil, err
	}
	valuations, err := e.pipelineRepo.GetValuations()
	if err != nil {
		return nil, err
	}

	tables := []table{
		forecastTable(records),
		waterfallTable(waterfallRows),
		checksTable(checks),
		confidenceTable(scores),
		watchlistTable(watchlist),
		moversTable(movers),
		summaryTable(summary),
		coverageTable(coverage),
		renewalsTable(probs),
		pipelineTable(valuations),
	}
	return tables, nil
}

func forecastTable(records []forecast.Record) table {
	t := table{
		name: "forecast_records",
		header: []string{"company_id", "month", "scenario", "segment", "renewal_revenue",
			"new_biz_revenue", "expansion_revenue", "total_revenue", "actual_revenue"},
	}
	for _, rec := range records {
		t.rows = append(t.rows, []string{rec.CompanyID, rec.Month.String(),
			string(rec.Scenario), rec.Segment, ftoa(rec.RenewalRevenue),
			ftoa(rec.NewBizRevenue), ftoa(rec.ExpansionRevenue),
			ftoa(rec.TotalRevenue), ftoa(rec.ActualRevenue)})
	}
	return t
}

func waterfallTable(rows []waterfall.Row) table {
	t := table{
		name: "arr_waterfall",
		header: []string{"company_id", "month", "segment", "scenario", "starting_arr",
			"new_arr", "expansion_arr", "contraction_arr", "churn_arr", "ending_arr", "movement_basis"},
	}
	for _, row := range rows {
		t.rows = append(t.rows, []string{row.CompanyID, row.Month.String(), row.Segment,
			string(row.Scenario), ftoa(row.StartingARR), ftoa(row.NewARR),
			ftoa(row.ExpansionARR), ftoa(row.ContractionARR), ftoa(row.ChurnARR),
			ftoa(row.EndingARR), row.MovementBasis})
	}
	return t
}

func checksTable(checks []waterfall.Check) table {
	t := table{
		name:   "reconciliation_checks",
		header: []string{"company_id", "month", "segment", "scenario", "expected", "actual", "residual", "ok"},
	}
	for _, c := range checks {
		t.rows = append(t.rows, []string{c.CompanyID, c.Month.String(), c.Segment,
			string(c.Scenario), ftoa(c.Expected), ftoa(c.Actual), ftoa(c.Residual),
			strconv.FormatBool(c.OK)})
	}
	return t
}

func confidenceTable(scores []confidence.Score) table {
	t := table{
		name: "confidence_scores",
		header: []string{"company_id", "month", "scenario", "segment", "pct_low_health",
			"pct_pipeline_dependent", "top5_concentration", "confidence"},
	}
	for _, s := range scores {
		t.rows = append(t.rows, []string{s.CompanyID, s.Month.String(), string(s.Scenario),
			s.Segment, ftoa(s.PctLowHealth), ftoa(s.PctPipelineDependent),
			ftoa(s.Top5Concentration), strconv.Itoa(s.Confidence)})
	}
	return t
}

func watchlistTable(entries []confidence.WatchlistEntry) table {
	t := table{
		name: "churn_watchlist",
		header: []string{"company_id", "month", "customer_id", "segment", "current_arr",
			"renewal_prob", "churn_risk_arr", "health_score", "trend_bucket"},
	}
	for _, e := range entries {
		t.rows = append(t.rows, []string{e.CompanyID, e.Month.String(), e.CustomerID,
			e.Segment, ftoa(e.CurrentARR), ftoa(e.RenewalProb), ftoa(e.ChurnRiskARR),
			strconv.Itoa(e.HealthScore), string(e.Trend)})
	}
	return t
}

func moversTable(movers []confidence.Mover) table {
	t := table{
		name:   "arr_movers",
		header: []string{"company_id", "month", "customer_id", "segment", "prior_arr", "current_arr", "delta_arr"},
	}
	for _, m := range movers {
		t.rows = append(t.rows, []string{m.CompanyID, m.Month.String(), m.CustomerID,
			m.Segment, ftoa(m.PriorARR), ftoa(m.CurrentARR), ftoa(m.DeltaARR)})
	}
	return t
}

func summaryTable(rows []forecast.SummaryRow) table {
	t := table{
		name: "executive_summary",
		header: []string{"company_id", "month", "scenario", "total_forecast_revenue",
			"total_actual_revenue", "revenue_growth_mom", "avg_confidence_score"},
	}
	for _, s := range rows {
		t.rows = append(t.rows, []string{s.CompanyID, s.Month.String(), string(s.Scenario),
			ftoa(s.TotalForecast), ftoa(s.TotalActual), ftoa(s.GrowthMoM), ftoa(s.AvgConfidence)})
	}
	return t
}

func coverageTable(rows []forecast.CoverageRow) table {
	t := table{
		name: "coverage_metrics",
		header: []string{"company_id", "month", "scenario", "segment",
			"pipeline_coverage_ratio", "renewal_coverage_ratio"},
	}
	for _, c := range rows {
		t.rows = append(t.rows, []string{c.CompanyID, c.Month.String(), string(c.Scenario),
			c.Segment, ftoa(c.PipelineCoverage), ftoa(c.RenewalCoverage)})
	}
	return t
}

func renewalsTable(probs []renewals.Probability) table {
	t := table{
		name: "renewal_probabilities",
		header: []string{"company_id", "customer_id", "renewal_month", "scenario",
			"segment", "probability", "source", "renewal_mrr"},
	}
	for _, p := range probs {
		t.rows = append(t.rows, []string{p.CompanyID, p.CustomerID, p.RenewalMonth.String(),
			string(p.Scenario), p.Segment, ftoa(p.Probability), p.Source, ftoa(p.RenewalMRR)})
	}
	return t
}

func pipelineTable(vals []pipeline.Valuation) table {
	t := table{
		name: "pipeline_valuations",
		header: []string{"company_id", "opportunity_id", "scenario", "customer_id",
			"segment", "stage", "type", "amount", "close_probability", "expected_value",
			"source", "expected_close_month", "expected_start_month"},
	}
	for _, v := range vals {
		customerID := ""
		if v.CustomerID != nil {
			customerID = *v.CustomerID
		}
		t.rows = append(t.rows, []string{v.CompanyID, v.OpportunityID, string(v.Scenario),
			customerID, v.Segment, v.Stage, string(v.Type), ftoa(v.Amount),
			ftoa(v.CloseProbability), ftoa(v.ExpectedValue), v.Source,
			v.ExpectedCloseMonth.String(), v.ExpectedStartMonth.String()})
	}
	return t
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
