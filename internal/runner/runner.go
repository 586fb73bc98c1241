// Package runner orchestrates a full forecast run: facts checks, driver
// components, forecast aggregation, waterfall reconciliation, confidence
// scoring, backtests and champion selection, in dependency order. A run
// either publishes the whole derived state or leaves the previous state
// intact.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/events"
	"github.com/mhalford/revcast/internal/modules/backtest"
	"github.com/mhalford/revcast/internal/modules/confidence"
	"github.com/mhalford/revcast/internal/modules/expansion"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/health"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/internal/modules/waterfall"
	"github.com/mhalford/revcast/internal/quality"
	"github.com/mhalford/revcast/pkg/monthly"
)

var (
	// ErrRunInProgress is returned when a run is requested while another holds
	// the single-writer lock.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrQualityGate is returned when hard data-quality violations block
	// publication.
	ErrQualityGate = errors.New("hard data-quality violations found")
)

// Result summarizes a completed run.
type Result struct {
	RunID        string
	Horizon      monthly.Month
	ForecastRows int
	Violations   int
	Duration     time.Duration
}

// Runner executes the forecast pipeline against a warehouse. It holds the
// single-writer run lock: concurrent Run calls beyond the first fail fast
// with ErrRunInProgress.
type Runner struct {
	warehouse *database.Warehouse
	events    *events.Manager
	log       zerolog.Logger
	mu        sync.Mutex
}

// New creates a new runner
func New(warehouse *database.Warehouse, eventManager *events.Manager, log zerolog.Logger) *Runner {
	return &Runner{
		warehouse: warehouse,
		events:    eventManager,
		log:       log.With().Str("component", "runner").Logger(),
	}
}

// Run executes one full pipeline run. Trigger names the initiator ("api",
// "schedule", "startup") for the run events.
func (r *Runner) Run(ctx context.Context, trigger string) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	log := r.log.With().Str("run_id", runID).Logger()

	runLog := NewRunLogRepository(r.warehouse.Forecast.Conn(), log)
	qualityRepo := quality.NewRepository(r.warehouse.Forecast.Conn(), log)
	if err := runLog.Start(runID, started); err != nil {
		return nil, err
	}
	r.events.EmitTyped("runner", &events.RunStartedData{RunID: runID, Trigger: trigger})
	log.Info().Str("trigger", trigger).Msg("Run started")

	result, violations, err := r.execute(ctx, runID, log)
	_ = qualityRepo.SaveViolations(runID, violations)
	if err != nil {
		_ = runLog.Fail(runID, time.Now(), err, len(violations))
		r.events.EmitTyped("runner", &events.RunFailedData{RunID: runID, Error: err.Error()})
		log.Error().Err(err).Msg("Run failed")
		return nil, err
	}

	result.Violations = len(violations)
	result.Duration = time.Since(started)
	if err := runLog.Complete(runID, time.Now(), len(violations)); err != nil {
		return nil, err
	}
	r.events.EmitTyped("runner", &events.RunCompletedData{
		RunID:        runID,
		Horizon:      result.Horizon.String(),
		ForecastRows: result.ForecastRows,
		Duration:     result.Duration.Seconds(),
	})
	log.Info().
		Str("horizon", result.Horizon.String()).
		Int("forecast_rows", result.ForecastRows).
		Int("violations", len(violations)).
		Dur("duration", result.Duration).
		Msg("Run completed")
	return result, nil
}

// execute performs the pipeline stages and returns the result along with all
// violations found (hard and soft). Hard violations yield ErrQualityGate and
// no published derived state.
func (r *Runner) execute(ctx context.Context, runID string, log zerolog.Logger) (*Result, []quality.Violation, error) {
	w := r.warehouse
	checker := quality.NewChecker(w, log)

	// Facts checks come first: orphaned references and invalid contract
	// intervals poison everything downstream.
	violations, err := checker.CheckFacts()
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		return nil, violations, ErrQualityGate
	}

	snap, err := assumptions.NewRepository(w.Assumptions.Conn(), log).LoadSnapshot()
	if err != nil {
		return nil, nil, err
	}

	// Expand contracts into the monthly ledger.
	stage := time.Now()
	subsRepo := subscriptions.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	lines, err := subsRepo.GetContractLines()
	if err != nil {
		return nil, nil, err
	}
	ledger, _ := subscriptions.NewExpander(log).Expand(lines)
	r.stageDone(runID, "monthly_expansion", len(ledger), stage)

	// Health scoring.
	stage = time.Now()
	healthRepo := health.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	usage, err := healthRepo.GetUsage()
	if err != nil {
		return nil, nil, err
	}
	customers, err := healthRepo.GetCustomers()
	if err != nil {
		return nil, nil, err
	}
	healthRecords := health.NewScorer(log).Score(usage, customers, snap)
	r.stageDone(runID, "health_scoring", len(healthRecords), stage)

	// Customer ids are unique only within a company, so the cross-company
	// segment map keys on both.
	segments := make(map[domain.CustomerKey]string, len(customers))
	companySet := make(map[string]bool)
	for _, c := range customers {
		segments[domain.CustomerKey{CompanyID: c.CompanyID, CustomerID: c.CustomerID}] = c.Segment
		companySet[c.CompanyID] = true
	}
	companies := make([]string, 0, len(companySet))
	for c := range companySet {
		companies = append(companies, c)
	}
	sort.Strings(companies)

	horizon := dataHorizon(usage, ledger)

	if err := ctx.Err(); err != nil {
		return nil, violations, err
	}

	// Backtests and champion selection run before estimation so this run's
	// probability sources reflect this run's governance decision.
	pipeRepo := pipeline.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	forceRules, gateViolations, err := r.runBacktests(runID, log, ledger, healthRecords, segments, pipeRepo, horizon)
	if err != nil {
		return nil, violations, err
	}
	violations = append(violations, gateViolations...)

	leakage, err := checker.CheckModels(horizon)
	if err != nil {
		return nil, violations, err
	}
	if len(leakage) > 0 {
		return nil, append(violations, leakage...), ErrQualityGate
	}

	// Derived phase: everything below is computed in memory and written
	// inside one forecast.db transaction, committed only if no hard
	// violation surfaced.
	stage = time.Now()
	opps, err := pipeRepo.GetLatestOpportunities()
	if err != nil {
		return nil, violations, err
	}

	selRepo := models.NewSelectionRepository(w.Models.Conn(), log)
	predRepo := models.NewPredictionsRepository(w.Facts.Conn(), log)
	resolver := models.NewSourceResolver(selRepo, predRepo, log)

	derived := newDerivedSet(ledger, healthRecords)
	for _, companyID := range companies {
		if err := r.computeCompany(companyDeps{
			companyID:     companyID,
			snap:          snap,
			horizon:       horizon,
			segments:      segments,
			ledger:        ledger,
			healthRecords: healthRecords,
			opportunities: opps,
			resolver:      resolver,
			forceRules:    forceRules,
			log:           log,
		}, derived); err != nil {
			return nil, violations, err
		}
	}
	violations = append(violations, derived.violations...)

	hard := false
	for _, v := range violations {
		if v.Severity == quality.SeverityHard {
			hard = true
			break
		}
	}
	if hard {
		return nil, violations, ErrQualityGate
	}

	if err := r.publish(w, derived, log); err != nil {
		return nil, violations, err
	}
	r.stageDone(runID, "forecast_publish", len(derived.records), stage)
	r.events.EmitTyped("runner", &events.ForecastPublishedData{
		RunID:      runID,
		Months:     derived.monthCount(),
		Segments:   derived.segmentCount(),
		TotalRows:  len(derived.records),
		Reconciled: true,
	})

	return &Result{
		RunID:        runID,
		Horizon:      horizon,
		ForecastRows: len(derived.records),
	}, violations, nil
}

// companyDeps carries everything one company's derived computation needs.
type companyDeps struct {
	companyID     string
	snap          *assumptions.Snapshot
	horizon       monthly.Month
	segments      map[domain.CustomerKey]string
	ledger        []subscriptions.MonthlyRevenue
	healthRecords []health.Record
	opportunities []pipeline.Opportunity
	resolver      *models.SourceResolver
	forceRules    map[domain.Dataset]bool
	log           zerolog.Logger
}

// computeCompany runs the per-company slice of the DAG and appends its rows
// to the derived set.
func (r *Runner) computeCompany(deps companyDeps, out *derivedSet) error {
	var ledger []subscriptions.MonthlyRevenue
	for _, rec := range deps.ledger {
		if rec.CompanyID == deps.companyID {
			ledger = append(ledger, rec)
		}
	}
	var healthRecords []health.Record
	for _, rec := range deps.healthRecords {
		if rec.CompanyID == deps.companyID {
			healthRecords = append(healthRecords, rec)
		}
	}
	var opps []pipeline.Opportunity
	for _, o := range deps.opportunities {
		if o.CompanyID == deps.companyID {
			opps = append(opps, o)
		}
	}

	// Within one company, customer ids are unique again.
	segments := make(map[string]string)
	for key, segment := range deps.segments {
		if key.CompanyID == deps.companyID {
			segments[key.CustomerID] = segment
		}
	}

	customerMRR := customerTotals(ledger)
	var actuals, future []subscriptions.CustomerMRR
	for _, cm := range customerMRR {
		if cm.Month.After(deps.horizon) {
			future = append(future, cm)
		} else {
			actuals = append(actuals, cm)
		}
	}

	renewSource, err := r.resolveSource(deps, domain.DatasetRenewals)
	if err != nil {
		return err
	}
	pipeSource, err := r.resolveSource(deps, domain.DatasetPipeline)
	if err != nil {
		return err
	}

	candidates := renewals.Candidates(ledger, deps.segments, deps.horizon)
	probs := renewals.NewEstimator(deps.snap, renewSource, deps.log).
		Estimate(candidates, healthRecords, deps.horizon)

	valuations := pipeline.NewValuer(deps.snap, pipeSource, deps.log).Value(opps)

	expRows := expansion.NewEstimator(deps.snap, deps.log).
		Estimate(future, healthRecords, segments)

	records := forecast.NewAggregator(deps.log).Aggregate(forecast.Inputs{
		CompanyID:   deps.companyID,
		Renewals:    probs,
		Valuations:  valuations,
		Expansion:   expRows,
		ActualMRR:   actuals,
		Segments:    segments,
		AllSegments: allSegments,
	})

	engine := waterfall.NewEngine(deps.log)
	movements := engine.BuildMovements(deps.companyID, actuals, segments)
	rows := engine.RollupBase(movements)
	rows = append(rows, engine.RollupScenarios(records)...)
	checks := engine.Reconcile(rows)

	scores := confidence.NewScorer(deps.log).Score(records, probs, expRows, healthRecords)
	watchlist := confidence.BuildWatchlist(actuals, probs, healthRecords, segments, deps.horizon)
	movers := confidence.BuildMovers(movements)

	summary := forecast.BuildSummary(records, confidenceLookup(scores))
	coverage := forecast.BuildCoverage(records)

	out.violations = append(out.violations, quality.FromForecastRecords(records)...)
	out.violations = append(out.violations, quality.FromReconciliation(checks)...)

	out.probs = append(out.probs, probs...)
	out.valuations = append(out.valuations, valuations...)
	out.expansion = append(out.expansion, expRows...)
	out.records = append(out.records, records...)
	out.waterfallRows = append(out.waterfallRows, rows...)
	out.checks = append(out.checks, checks...)
	out.scores = append(out.scores, scores...)
	out.watchlist = append(out.watchlist, watchlist...)
	out.movers = append(out.movers, movers...)
	out.summary = append(out.summary, summary...)
	out.coverage = append(out.coverage, coverage...)
	return nil
}

// resolveSource returns the probability source for one dataset, degraded to
// rules when the backtest gate failed for it.
func (r *Runner) resolveSource(deps companyDeps, dataset domain.Dataset) (*models.ProbabilitySource, error) {
	if deps.forceRules[dataset] {
		return models.NewRuleSource(dataset), nil
	}
	return deps.resolver.Resolve(deps.companyID, dataset)
}

// runBacktests evaluates both datasets walk-forward, persists the reports,
// evaluates the quality gates and saves this run's champion selections.
// Datasets whose gate failed are forced back to the rule source.
func (r *Runner) runBacktests(runID string, log zerolog.Logger,
	ledger []subscriptions.MonthlyRevenue, healthRecords []health.Record,
	segments map[domain.CustomerKey]string, pipeRepo *pipeline.Repository,
	horizon monthly.Month) (map[domain.Dataset]bool, []quality.Violation, error) {

	stage := time.Now()
	w := r.warehouse
	engine := backtest.NewEngine(log)
	btRepo := backtest.NewRepository(w.Models.Conn(), log)
	selRepo := models.NewSelectionRepository(w.Models.Conn(), log)
	selector := models.NewSelector(log)

	history, err := pipeRepo.GetSnapshotHistory()
	if err != nil {
		return nil, nil, err
	}
	pipeExamples, err := backtest.BuildPipelineExamples(history)
	if err != nil {
		return nil, nil, err
	}
	examplesByDataset := map[domain.Dataset][]models.Example{
		domain.DatasetRenewals: backtest.BuildRenewalExamples(ledger, healthRecords, segments, horizon),
		domain.DatasetPipeline: pipeExamples,
	}

	forceRules := make(map[domain.Dataset]bool)
	var violations []quality.Violation
	metricRows := 0

	for _, dataset := range domain.Datasets {
		report, err := engine.Run(dataset, examplesByDataset[dataset])
		if err != nil {
			return nil, nil, err
		}
		if err := btRepo.SaveReport(report); err != nil {
			return nil, nil, err
		}
		metricRows += len(report.Metrics)

		metrics, err := btRepo.GetMetrics(dataset)
		if err != nil {
			return nil, nil, err
		}

		gate := backtest.EvaluateGate(dataset, metrics)
		r.events.EmitTyped("runner", &events.GateEvaluatedData{
			Dataset:     string(dataset),
			Passed:      gate.Passed,
			CutoffMonth: gate.CutoffMonth.String(),
			Detail:      gate.Detail,
		})
		if !gate.Passed {
			forceRules[dataset] = true
			violations = append(violations, quality.Violation{
				Rule:     quality.RuleBacktestGate,
				Severity: quality.SeveritySoft,
				Grain:    string(dataset),
				Detail:   gate.Detail,
			})
			log.Warn().
				Str("dataset", string(dataset)).
				Str("detail", gate.Detail).
				Msg("Backtest gate failed, dataset degraded to rules")
		}

		prev, err := selRepo.GetCurrent(dataset)
		if err != nil {
			return nil, nil, err
		}
		sel := selector.Select(dataset, backtest.SelectorMetrics(metrics))
		if err := selRepo.Save(sel, time.Now()); err != nil {
			return nil, nil, err
		}
		r.events.EmitTyped("runner", &events.ChampionSelectedData{
			Dataset:        string(dataset),
			PreferredModel: sel.PreferredModel,
			Reason:         sel.Reason,
			Changed:        prev == nil || prev.PreferredModel != sel.PreferredModel,
		})
	}

	r.stageDone(runID, "backtest_selection", metricRows, stage)
	return forceRules, violations, nil
}

// publish writes the whole derived state inside one forecast.db transaction.
func (r *Runner) publish(w *database.Warehouse, derived *derivedSet, log zerolog.Logger) error {
	tx, err := w.Forecast.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	subsRepo := subscriptions.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	healthRepo := health.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	pipeRepo := pipeline.NewRepository(w.Facts.Conn(), w.Forecast.Conn(), log)
	forecastRepo := forecast.NewRepository(w.Forecast.Conn(), log)
	waterfallRepo := waterfall.NewRepository(w.Forecast.Conn(), log)
	confRepo := confidence.NewRepository(w.Forecast.Conn(), log)

	steps := []func() error{
		func() error { return subsRepo.ReplaceMonthlyRevenue(tx, derived.ledger) },
		func() error { return healthRepo.ReplaceRecords(tx, derived.healthRecords) },
		func() error {
			return renewals.NewRepository(w.Forecast.Conn(), log).ReplaceProbabilities(tx, derived.probs)
		},
		func() error { return pipeRepo.ReplaceValuations(tx, derived.valuations) },
		func() error {
			return expansion.NewRepository(w.Forecast.Conn(), log).ReplaceForecasts(tx, derived.expansion)
		},
		func() error { return forecastRepo.ReplaceRecords(tx, derived.records) },
		func() error { return waterfallRepo.ReplaceRows(tx, derived.waterfallRows) },
		func() error { return waterfallRepo.ReplaceChecks(tx, derived.checks) },
		func() error { return confRepo.ReplaceScores(tx, derived.scores) },
		func() error { return confRepo.ReplaceWatchlist(tx, derived.watchlist) },
		func() error { return confRepo.ReplaceMovers(tx, derived.movers) },
		func() error { return forecastRepo.ReplaceSummary(tx, derived.summary) },
		func() error { return forecastRepo.ReplaceCoverage(tx, derived.coverage) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}
	return nil
}

func (r *Runner) stageDone(runID, stageName string, rows int, since time.Time) {
	r.events.EmitTyped("runner", &events.StageDoneData{
		RunID:    runID,
		Stage:    stageName,
		Rows:     rows,
		Duration: time.Since(since).Seconds(),
	})
}

// allSegments is the configured segment universe the forecast cross product
// zero-fills.
var allSegments = []string{
	domain.SegmentEnterprise,
	domain.SegmentLarge,
	domain.SegmentMedium,
	domain.SegmentSMB,
}

// derivedSet accumulates every derived table's rows across companies.
type derivedSet struct {
	ledger        []subscriptions.MonthlyRevenue
	healthRecords []health.Record
	probs         []renewals.Probability
	valuations    []pipeline.Valuation
	expansion     []expansion.Forecast
	records       []forecast.Record
	waterfallRows []waterfall.Row
	checks        []waterfall.Check
	scores        []confidence.Score
	watchlist     []confidence.WatchlistEntry
	movers        []confidence.Mover
	summary       []forecast.SummaryRow
	coverage      []forecast.CoverageRow
	violations    []quality.Violation
}

func newDerivedSet(ledger []subscriptions.MonthlyRevenue, healthRecords []health.Record) *derivedSet {
	return &derivedSet{ledger: ledger, healthRecords: healthRecords}
}

func (d *derivedSet) monthCount() int {
	seen := make(map[monthly.Month]bool)
	for _, rec := range d.records {
		seen[rec.Month] = true
	}
	return len(seen)
}

func (d *derivedSet) segmentCount() int {
	seen := make(map[string]bool)
	for _, rec := range d.records {
		seen[rec.Segment] = true
	}
	return len(seen)
}

// customerTotals sums the ledger to customer-month grain in memory; the run
// cannot read it back from the warehouse before the publish commit.
func customerTotals(ledger []subscriptions.MonthlyRevenue) []subscriptions.CustomerMRR {
	type key struct {
		companyID  string
		customerID string
		month      monthly.Month
	}
	totals := make(map[key]float64)
	for _, rec := range ledger {
		totals[key{rec.CompanyID, rec.CustomerID, rec.Month}] += rec.MRR
	}
	out := make([]subscriptions.CustomerMRR, 0, len(totals))
	for k, mrr := range totals {
		out = append(out, subscriptions.CustomerMRR{
			CompanyID:  k.companyID,
			CustomerID: k.customerID,
			Month:      k.month,
			MRR:        mrr,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		return a.Month.Before(b.Month)
	})
	return out
}

// confidenceLookup adapts computed scores for the summary builder.
func confidenceLookup(scores []confidence.Score) forecast.ConfidenceLookup {
	type key struct {
		month    monthly.Month
		scenario domain.Scenario
		segment  string
	}
	byGrain := make(map[key]int, len(scores))
	for _, s := range scores {
		byGrain[key{s.Month, s.Scenario, s.Segment}] = s.Confidence
	}
	return func(month monthly.Month, scenario domain.Scenario, segment string) (int, bool) {
		c, ok := byGrain[key{month, scenario, segment}]
		return c, ok
	}
}

// dataHorizon is the latest month with observed usage, falling back to the
// latest ledger month not after the current month when usage is empty.
func dataHorizon(usage []health.UsageRow, ledger []subscriptions.MonthlyRevenue) monthly.Month {
	var horizon monthly.Month
	for _, u := range usage {
		if u.Month.After(horizon) {
			horizon = u.Month
		}
	}
	if !horizon.IsZero() {
		return horizon
	}
	now := monthly.FromTime(time.Now())
	for _, rec := range ledger {
		if rec.Month.After(horizon) && !rec.Month.After(now) {
			horizon = rec.Month
		}
	}
	if horizon.IsZero() {
		horizon = now
	}
	return horizon
}
