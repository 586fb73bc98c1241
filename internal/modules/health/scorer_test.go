package health

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

func snapWithWeights(crm, usage, trend float64) *assumptions.Snapshot {
	return &assumptions.Snapshot{
		HealthWeights: map[string]assumptions.HealthWeights{
			"enterprise_large": {CRM: crm, Usage: usage, Trend: trend},
			"mid_market":       {CRM: crm, Usage: usage, Trend: trend},
		},
	}
}

func crmPtr(v float64) *float64 { return &v }

func usageSeries(customerID string, months []string, counts []float64, users float64) []UsageRow {
	rows := make([]UsageRow, len(months))
	for i, m := range months {
		rows[i] = UsageRow{
			CompanyID:   "co1",
			CustomerID:  customerID,
			Month:       monthly.MustParse(m),
			UsageCount:  counts[i],
			ActiveUsers: users,
		}
	}
	return rows
}

func TestScoreIsWithinBounds(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	usage := usageSeries("cust1", []string{"2024-01"}, []float64{100}, 10)
	customers := []Customer{{CompanyID: "co1", CustomerID: "cust1", Segment: "smb", CRMHealth: crmPtr(10)}}

	records := s.Score(usage, customers, snapWithWeights(0.3, 0.5, 0.2))
	require.Len(t, records, 1)
	assert.GreaterOrEqual(t, records[0].HealthScore, 1)
	assert.LessOrEqual(t, records[0].HealthScore, 10)
}

func TestPerfectSignalsMapToTen(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	// Single customer: own usage is the p90 reference, so usage score is 1.
	usage := usageSeries("cust1", []string{"2024-01", "2024-02", "2024-03", "2024-04"},
		[]float64{100, 100, 100, 200}, 10)
	customers := []Customer{{CompanyID: "co1", CustomerID: "cust1", Segment: "enterprise", CRMHealth: crmPtr(10)}}

	records := s.Score(usage, customers, snapWithWeights(0.4, 0.4, 0.2))
	require.Len(t, records, 4)
	// April: CRM=1, usage=1, trend=growing (0.8) -> raw = 0.4+0.4+0.16 = 0.96 -> 1+floor(8.64) = 9
	april := records[3]
	assert.Equal(t, domain.TrendGrowing, april.Trend)
	assert.Equal(t, 9, april.HealthScore)
}

func TestMissingCRMIsImputed(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	usage := usageSeries("cust1", []string{"2024-01"}, []float64{50}, 5)
	customers := []Customer{{CompanyID: "co1", CustomerID: "cust1", Segment: "smb"}}

	records := s.Score(usage, customers, snapWithWeights(1, 0, 0))
	require.Len(t, records, 1)
	assert.InDelta(t, 0.5, records[0].CRMScore, 1e-9)
	// Weighted entirely on CRM: raw 0.5 -> tier 5
	assert.Equal(t, 5, records[0].HealthScore)
}

func TestTrendUndefinedUnderThreeMonthsTenure(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	usage := usageSeries("cust1", []string{"2024-01", "2024-02"}, []float64{100, 300}, 10)
	customers := []Customer{{CompanyID: "co1", CustomerID: "cust1", Segment: "smb", CRMHealth: crmPtr(5)}}

	records := s.Score(usage, customers, snapWithWeights(0.3, 0.5, 0.2))
	for _, rec := range records {
		assert.Equal(t, domain.TrendFlat, rec.Trend)
	}
}

func TestTrendClassification(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	months := []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05", "2024-06"}

	tests := []struct {
		name   string
		counts []float64
		want   domain.TrendBucket
	}{
		{"growing", []float64{100, 100, 100, 100, 100, 110}, domain.TrendGrowing},
		{"declining", []float64{100, 100, 100, 100, 100, 90}, domain.TrendDeclining},
		{"flat", []float64{100, 100, 100, 100, 100, 102}, domain.TrendFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := usageSeries("cust1", months, tt.counts, 10)
			customers := []Customer{{CompanyID: "co1", CustomerID: "cust1", Segment: "smb", CRMHealth: crmPtr(5)}}
			records := s.Score(usage, customers, snapWithWeights(0.3, 0.5, 0.2))
			require.Len(t, records, 6)
			assert.Equal(t, tt.want, records[5].Trend)
		})
	}
}

func TestUsageScoreCappedAtP90(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	// cust2 uses far more per user than the p90 reference; score still caps at 1.
	usage := []UsageRow{
		{CompanyID: "co1", CustomerID: "cust1", Month: monthly.MustParse("2024-01"), UsageCount: 10, ActiveUsers: 10},
		{CompanyID: "co1", CustomerID: "cust2", Month: monthly.MustParse("2024-01"), UsageCount: 900, ActiveUsers: 1},
	}
	customers := []Customer{
		{CompanyID: "co1", CustomerID: "cust1", Segment: "smb", CRMHealth: crmPtr(5)},
		{CompanyID: "co1", CustomerID: "cust2", Segment: "smb", CRMHealth: crmPtr(5)},
	}
	records := s.Score(usage, customers, snapWithWeights(0, 1, 0))
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.LessOrEqual(t, rec.UsageScore, 1.0)
	}
}

func TestOrphanUsageRowsAreSkipped(t *testing.T) {
	s := NewScorer(zerolog.Nop())
	usage := usageSeries("ghost", []string{"2024-01"}, []float64{100}, 10)
	records := s.Score(usage, nil, snapWithWeights(0.3, 0.5, 0.2))
	assert.Empty(t, records)
}
