package server

import (
	"net/http"

	"github.com/mhalford/revcast/internal/domain"
)

type metricRow struct {
	Dataset     string  `json:"dataset"`
	ModelName   string  `json:"model_name"`
	CutoffMonth string  `json:"cutoff_month"`
	Segment     string  `json:"segment"`
	AUC         float64 `json:"auc"`
	Brier       float64 `json:"brier"`
	LogLoss     float64 `json:"logloss"`
	NRows       int     `json:"n_rows"`
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	dataset, ok := datasetParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown dataset")
		return
	}

	metrics, err := s.backtestRepo.GetMetrics(dataset)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load backtest metrics")
		s.writeError(w, http.StatusInternalServerError, "failed to load backtest metrics")
		return
	}

	out := make([]metricRow, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, metricRow{
			Dataset:     string(m.Dataset),
			ModelName:   m.ModelName,
			CutoffMonth: m.CutoffMonth.String(),
			Segment:     m.Segment,
			AUC:         m.AUC,
			Brier:       m.Brier,
			LogLoss:     m.LogLoss,
			NRows:       m.NRows,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type calibrationRow struct {
	Dataset     string  `json:"dataset"`
	ModelName   string  `json:"model_name"`
	CutoffMonth string  `json:"cutoff_month"`
	BinID       int     `json:"bin_id"`
	PPredMean   float64 `json:"p_pred_mean"`
	YTrueRate   float64 `json:"y_true_rate"`
	Count       int     `json:"count"`
}

func (s *Server) handleModelCalibration(w http.ResponseWriter, r *http.Request) {
	dataset, ok := datasetParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown dataset")
		return
	}

	bins, err := s.backtestRepo.GetCalibration(dataset)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load calibration bins")
		s.writeError(w, http.StatusInternalServerError, "failed to load calibration bins")
		return
	}

	out := make([]calibrationRow, 0, len(bins))
	for _, b := range bins {
		out = append(out, calibrationRow{
			Dataset:     string(b.Dataset),
			ModelName:   b.ModelName,
			CutoffMonth: b.CutoffMonth.String(),
			BinID:       b.BinID,
			PPredMean:   b.PPredMean,
			YTrueRate:   b.YTrueRate,
			Count:       b.Count,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type costCurveRow struct {
	Dataset      string  `json:"dataset"`
	ModelName    string  `json:"model_name"`
	CutoffMonth  string  `json:"cutoff_month"`
	Threshold    float64 `json:"threshold"`
	ExpectedCost float64 `json:"expected_cost"`
}

func (s *Server) handleModelCostCurves(w http.ResponseWriter, r *http.Request) {
	dataset, ok := datasetParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown dataset")
		return
	}

	costs, err := s.backtestRepo.GetCostCurves(dataset)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load cost curves")
		s.writeError(w, http.StatusInternalServerError, "failed to load cost curves")
		return
	}

	out := make([]costCurveRow, 0, len(costs))
	for _, c := range costs {
		out = append(out, costCurveRow{
			Dataset:      string(c.Dataset),
			ModelName:    c.ModelName,
			CutoffMonth:  c.CutoffMonth.String(),
			Threshold:    c.Threshold,
			ExpectedCost: c.ExpectedCost,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

type selectionRow struct {
	Dataset        string             `json:"dataset"`
	PreferredModel string             `json:"preferred_model"`
	Reason         string             `json:"reason"`
	Scores         map[string]float64 `json:"scores"`
}

// handleModelSelection returns the current champion per probability dataset.
// A dataset with no recorded selection yet is simply absent.
func (s *Server) handleModelSelection(w http.ResponseWriter, r *http.Request) {
	out := make([]selectionRow, 0, len(domain.Datasets))
	for _, dataset := range domain.Datasets {
		sel, err := s.selectionRepo.GetCurrent(dataset)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to load model selection")
			s.writeError(w, http.StatusInternalServerError, "failed to load model selection")
			return
		}
		if sel == nil {
			continue
		}
		out = append(out, selectionRow{
			Dataset:        string(sel.Dataset),
			PreferredModel: sel.PreferredModel,
			Reason:         sel.Reason,
			Scores:         sel.Scores,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}
