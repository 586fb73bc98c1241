package forecast

import (
	"sort"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// SummaryRow is one executive-summary row: forecast vs actual totals per
// (company, month, scenario), with month-over-month growth and the average
// confidence across segments.
type SummaryRow struct {
	CompanyID     string
	Month         monthly.Month
	Scenario      domain.Scenario
	TotalForecast float64
	TotalActual   float64
	GrowthMoM     float64
	AvgConfidence float64
}

// CoverageRow measures how much of a cell's forecast rides on pipeline versus
// the renewal base.
type CoverageRow struct {
	CompanyID        string
	Month            monthly.Month
	Scenario         domain.Scenario
	Segment          string
	PipelineCoverage float64 // new_biz component / total
	RenewalCoverage  float64 // renewal component / total
}

// ConfidenceLookup resolves a confidence score for one forecast grain; absent
// grains return false.
type ConfidenceLookup func(month monthly.Month, scenario domain.Scenario, segment string) (int, bool)

// BuildSummary rolls forecast records up to (month, scenario). Growth is
// relative to the previous month's forecast total and zero when there is no
// prior month or the prior total is zero.
func BuildSummary(records []Record, confidence ConfidenceLookup) []SummaryRow {
	type key struct {
		companyID string
		month     monthly.Month
		scenario  domain.Scenario
	}
	totals := make(map[key]*SummaryRow)
	counts := make(map[key]int)

	for _, rec := range records {
		k := key{rec.CompanyID, rec.Month, rec.Scenario}
		row, ok := totals[k]
		if !ok {
			row = &SummaryRow{CompanyID: rec.CompanyID, Month: rec.Month, Scenario: rec.Scenario}
			totals[k] = row
		}
		row.TotalForecast += rec.TotalRevenue
		row.TotalActual += rec.ActualRevenue
		if confidence != nil {
			if c, ok := confidence(rec.Month, rec.Scenario, rec.Segment); ok {
				row.AvgConfidence += float64(c)
				counts[k]++
			}
		}
	}

	out := make([]SummaryRow, 0, len(totals))
	for k, row := range totals {
		if n := counts[k]; n > 0 {
			row.AvgConfidence /= float64(n)
		}
		if prev, ok := totals[key{k.companyID, k.month.Add(-1), k.scenario}]; ok && prev.TotalForecast != 0 {
			row.GrowthMoM = (row.TotalForecast - prev.TotalForecast) / prev.TotalForecast
		}
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		return a.Scenario < b.Scenario
	})
	return out
}

// BuildCoverage computes per-grain coverage ratios; zero-total cells report
// zero coverage rather than dividing by zero.
func BuildCoverage(records []Record) []CoverageRow {
	out := make([]CoverageRow, 0, len(records))
	for _, rec := range records {
		c := CoverageRow{
			CompanyID: rec.CompanyID,
			Month:     rec.Month,
			Scenario:  rec.Scenario,
			Segment:   rec.Segment,
		}
		if rec.TotalRevenue != 0 {
			c.PipelineCoverage = rec.NewBizRevenue / rec.TotalRevenue
			c.RenewalCoverage = rec.RenewalRevenue / rec.TotalRevenue
		}
		out = append(out, c)
	}
	return out
}
