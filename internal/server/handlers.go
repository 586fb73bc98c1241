package server

import (
	"net/http"

	"github.com/mhalford/revcast/internal/domain"
)

// forecastRow is the wire shape of one forecast mart row.
type forecastRow struct {
	CompanyID        string  `json:"company_id"`
	Month            string  `json:"month"`
	Scenario         string  `json:"scenario"`
	Segment          string  `json:"segment"`
	RenewalRevenue   float64 `json:"renewal_revenue"`
	NewBizRevenue    float64 `json:"new_biz_revenue"`
	ExpansionRevenue float64 `json:"expansion_revenue"`
	TotalRevenue     float64 `json:"total_revenue"`
	ActualRevenue    float64 `json:"actual_revenue"`
}

// handleForecast returns forecast records, optionally filtered by month,
// scenario and segment query parameters.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	records, err := s.forecastRepo.GetRecords()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load forecast records")
		s.writeError(w, http.StatusInternalServerError, "failed to load forecast records")
		return
	}

	month := r.URL.Query().Get("month")
	scenario := r.URL.Query().Get("scenario")
	segment := r.URL.Query().Get("segment")

	out := make([]forecastRow, 0, len(records))
	for _, rec := range records {
		if month != "" && rec.Month.String() != month {
			continue
		}
		if scenario != "" && string(rec.Scenario) != scenario {
			continue
		}
		if segment != "" && rec.Segment != segment {
			continue
		}
		out = append(out, forecastRow{
			CompanyID:        rec.CompanyID,
			Month:            rec.Month.String(),
			Scenario:         string(rec.Scenario),
			Segment:          rec.Segment,
			RenewalRevenue:   rec.RenewalRevenue,
			NewBizRevenue:    rec.NewBizRevenue,
			ExpansionRevenue: rec.ExpansionRevenue,
			TotalRevenue:     rec.TotalRevenue,
			ActualRevenue:    rec.ActualRevenue,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type waterfallRow struct {
	CompanyID      string  `json:"company_id"`
	Month          string  `json:"month"`
	Segment        string  `json:"segment"`
	Scenario       string  `json:"scenario"`
	StartingARR    float64 `json:"starting_arr"`
	NewARR         float64 `json:"new_arr"`
	ExpansionARR   float64 `json:"expansion_arr"`
	ContractionARR float64 `json:"contraction_arr"`
	ChurnARR       float64 `json:"churn_arr"`
	EndingARR      float64 `json:"ending_arr"`
	MovementBasis  string  `json:"movement_basis"`
}

func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	rows, err := s.waterfallRepo.GetRows()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load waterfall rows")
		s.writeError(w, http.StatusInternalServerError, "failed to load waterfall rows")
		return
	}

	out := make([]waterfallRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, waterfallRow{
			CompanyID:      row.CompanyID,
			Month:          row.Month.String(),
			Segment:        row.Segment,
			Scenario:       string(row.Scenario),
			StartingARR:    row.StartingARR,
			NewARR:         row.NewARR,
			ExpansionARR:   row.ExpansionARR,
			ContractionARR: row.ContractionARR,
			ChurnARR:       row.ChurnARR,
			EndingARR:      row.EndingARR,
			MovementBasis:  row.MovementBasis,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type reconciliationRow struct {
	CompanyID string  `json:"company_id"`
	Month     string  `json:"month"`
	Segment   string  `json:"segment"`
	Scenario  string  `json:"scenario"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Residual  float64 `json:"residual"`
	OK        bool    `json:"ok"`
}

// handleReconciliation returns reconciliation checks; ?failed=true narrows to
// breached grains.
func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	checks, err := s.loadChecks(r.URL.Query().Get("failed") == "true")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load reconciliation checks")
		s.writeError(w, http.StatusInternalServerError, "failed to load reconciliation checks")
		return
	}

	s.writeJSON(w, http.StatusOK, checks)
}

func (s *Server) loadChecks(failedOnly bool) ([]reconciliationRow, error) {
	get := s.waterfallRepo.GetChecks
	if failedOnly {
		get = s.waterfallRepo.GetFailedChecks
	}
	checks, err := get()
	if err != nil {
		return nil, err
	}
	out := make([]reconciliationRow, 0, len(checks))
	for _, c := range checks {
		out = append(out, reconciliationRow{
			CompanyID: c.CompanyID,
			Month:     c.Month.String(),
			Segment:   c.Segment,
			Scenario:  string(c.Scenario),
			Expected:  c.Expected,
			Actual:    c.Actual,
			Residual:  c.Residual,
			OK:        c.OK,
		})
	}
	return out, nil
}

type renewalRow struct {
	CompanyID    string  `json:"company_id"`
	CustomerID   string  `json:"customer_id"`
	RenewalMonth string  `json:"renewal_month"`
	Scenario     string  `json:"scenario"`
	Segment      string  `json:"segment"`
	Probability  float64 `json:"probability"`
	Source       string  `json:"source"`
	RenewalMRR   float64 `json:"renewal_mrr"`
}

func (s *Server) handleRenewals(w http.ResponseWriter, r *http.Request) {
	probs, err := s.renewalsRepo.GetProbabilities()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load renewal probabilities")
		s.writeError(w, http.StatusInternalServerError, "failed to load renewal probabilities")
		return
	}

	out := make([]renewalRow, 0, len(probs))
	for _, p := range probs {
		out = append(out, renewalRow{
			CompanyID:    p.CompanyID,
			CustomerID:   p.CustomerID,
			RenewalMonth: p.RenewalMonth.String(),
			Scenario:     string(p.Scenario),
			Segment:      p.Segment,
			Probability:  p.Probability,
			Source:       p.Source,
			RenewalMRR:   p.RenewalMRR,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type valuationRow struct {
	CompanyID          string  `json:"company_id"`
	OpportunityID      string  `json:"opportunity_id"`
	Scenario           string  `json:"scenario"`
	CustomerID         *string `json:"customer_id"`
	Segment            string  `json:"segment"`
	Stage              string  `json:"stage"`
	Type               string  `json:"type"`
	Amount             float64 `json:"amount"`
	CloseProbability   float64 `json:"close_probability"`
	ExpectedValue      float64 `json:"expected_value"`
	Source             string  `json:"source"`
	ExpectedCloseMonth string  `json:"expected_close_month"`
	ExpectedStartMonth string  `json:"expected_start_month"`
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	vals, err := s.pipelineRepo.GetValuations()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load pipeline valuations")
		s.writeError(w, http.StatusInternalServerError, "failed to load pipeline valuations")
		return
	}

	out := make([]valuationRow, 0, len(vals))
	for _, v := range vals {
		out = append(out, valuationRow{
			CompanyID:          v.CompanyID,
			OpportunityID:      v.OpportunityID,
			Scenario:           string(v.Scenario),
			CustomerID:         v.CustomerID,
			Segment:            v.Segment,
			Stage:              v.Stage,
			Type:               string(v.Type),
			Amount:             v.Amount,
			CloseProbability:   v.CloseProbability,
			ExpectedValue:      v.ExpectedValue,
			Source:             v.Source,
			ExpectedCloseMonth: v.ExpectedCloseMonth.String(),
			ExpectedStartMonth: v.ExpectedStartMonth.String(),
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type confidenceRow struct {
	CompanyID            string  `json:"company_id"`
	Month                string  `json:"month"`
	Scenario             string  `json:"scenario"`
	Segment              string  `json:"segment"`
	PctLowHealth         float64 `json:"pct_low_health"`
	PctPipelineDependent float64 `json:"pct_pipeline_dependent"`
	Top5Concentration    float64 `json:"top5_concentration"`
	Confidence           int     `json:"confidence"`
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	scores, err := s.confidenceRepo.GetScores()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load confidence scores")
		s.writeError(w, http.StatusInternalServerError, "failed to load confidence scores")
		return
	}

	out := make([]confidenceRow, 0, len(scores))
	for _, sc := range scores {
		out = append(out, confidenceRow{
			CompanyID:            sc.CompanyID,
			Month:                sc.Month.String(),
			Scenario:             string(sc.Scenario),
			Segment:              sc.Segment,
			PctLowHealth:         sc.PctLowHealth,
			PctPipelineDependent: sc.PctPipelineDependent,
			Top5Concentration:    sc.Top5Concentration,
			Confidence:           sc.Confidence,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type watchlistRow struct {
	CompanyID    string  `json:"company_id"`
	Month        string  `json:"month"`
	CustomerID   string  `json:"customer_id"`
	Segment      string  `json:"segment"`
	CurrentARR   float64 `json:"current_arr"`
	RenewalProb  float64 `json:"renewal_prob"`
	ChurnRiskARR float64 `json:"churn_risk_arr"`
	HealthScore  int     `json:"health_score"`
	TrendBucket  string  `json:"trend_bucket"`
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.confidenceRepo.GetWatchlist()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load churn watchlist")
		s.writeError(w, http.StatusInternalServerError, "failed to load churn watchlist")
		return
	}

	out := make([]watchlistRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, watchlistRow{
			CompanyID:    e.CompanyID,
			Month:        e.Month.String(),
			CustomerID:   e.CustomerID,
			Segment:      e.Segment,
			CurrentARR:   e.CurrentARR,
			RenewalProb:  e.RenewalProb,
			ChurnRiskARR: e.ChurnRiskARR,
			HealthScore:  e.HealthScore,
			TrendBucket:  string(e.Trend),
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type moverRow struct {
	CompanyID  string  `json:"company_id"`
	Month      string  `json:"month"`
	CustomerID string  `json:"customer_id"`
	Segment    string  `json:"segment"`
	PriorARR   float64 `json:"prior_arr"`
	CurrentARR float64 `json:"current_arr"`
	DeltaARR   float64 `json:"delta_arr"`
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	movers, err := s.confidenceRepo.GetMovers()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load ARR movers")
		s.writeError(w, http.StatusInternalServerError, "failed to load arr movers")
		return
	}

	out := make([]moverRow, 0, len(movers))
	for _, m := range movers {
		out = append(out, moverRow{
			CompanyID:  m.CompanyID,
			Month:      m.Month.String(),
			CustomerID: m.CustomerID,
			Segment:    m.Segment,
			PriorARR:   m.PriorARR,
			CurrentARR: m.CurrentARR,
			DeltaARR:   m.DeltaARR,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type summaryRow struct {
	CompanyID     string  `json:"company_id"`
	Month         string  `json:"month"`
	Scenario      string  `json:"scenario"`
	TotalForecast float64 `json:"total_forecast_revenue"`
	TotalActual   float64 `json:"total_actual_revenue"`
	GrowthMoM     float64 `json:"revenue_growth_mom"`
	AvgConfidence float64 `json:"avg_confidence_score"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.forecastRepo.GetSummary()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load executive summary")
		s.writeError(w, http.StatusInternalServerError, "failed to load executive summary")
		return
	}

	out := make([]summaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, summaryRow{
			CompanyID:     row.CompanyID,
			Month:         row.Month.String(),
			Scenario:      string(row.Scenario),
			TotalForecast: row.TotalForecast,
			TotalActual:   row.TotalActual,
			GrowthMoM:     row.GrowthMoM,
			AvgConfidence: row.AvgConfidence,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type coverageRow struct {
	CompanyID        string  `json:"company_id"`
	Month            string  `json:"month"`
	Scenario         string  `json:"scenario"`
	Segment          string  `json:"segment"`
	PipelineCoverage float64 `json:"pipeline_coverage_ratio"`
	RenewalCoverage  float64 `json:"renewal_coverage_ratio"`
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	rows, err := s.forecastRepo.GetCoverage()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load coverage metrics")
		s.writeError(w, http.StatusInternalServerError, "failed to load coverage metrics")
		return
	}

	out := make([]coverageRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, coverageRow{
			CompanyID:        row.CompanyID,
			Month:            row.Month.String(),
			Scenario:         string(row.Scenario),
			Segment:          row.Segment,
			PipelineCoverage: row.PipelineCoverage,
			RenewalCoverage:  row.RenewalCoverage,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

// datasetParam parses the ?dataset= query parameter, defaulting to renewals.
func datasetParam(r *http.Request) (domain.Dataset, bool) {
	raw := r.URL.Query().Get("dataset")
	switch raw {
	case "", string(domain.DatasetRenewals):
		return domain.DatasetRenewals, true
	case string(domain.DatasetPipeline):
		return domain.DatasetPipeline, true
	default:
		return "", false
	}
}
