package health

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/assumptions"
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/formulas"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Trend classification thresholds on the month-over-3-months-ago usage delta.
const (
	trendGrowingMin   = 0.05
	trendDecliningMax = -0.05
)

// Signal scores per trend bucket.
var trendScores = map[domain.TrendBucket]float64{
	domain.TrendGrowing:   0.8,
	domain.TrendFlat:      0.5,
	domain.TrendDeclining: 0.2,
}

// CRM score imputed when the CRM health input is absent.
const defaultCRMScore = 0.5

// Scorer computes customer health records from usage and master data.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a new health scorer
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "health_scorer").Logger()}
}

type usageKey struct {
	companyID  string
	customerID string
	month      monthly.Month
}

type monthKey struct {
	companyID string
	month     monthly.Month
}

// Score computes one Record per usage row. Signals are normalized to [0,1]:
// CRM = input/10 (imputed 0.5 when absent), usage = min(1, per-user usage /
// the month's cross-customer p90), trend from the 3-month usage delta. The
// weighted sum is clamped to [0,1] and mapped to 1-10 via 1 + floor(9*raw).
func (s *Scorer) Score(usage []UsageRow, customers []Customer, snap *assumptions.Snapshot) []Record {
	customerByID := make(map[string]Customer, len(customers))
	for _, c := range customers {
		customerByID[c.CompanyID+"|"+c.CustomerID] = c
	}

	usageByKey := make(map[usageKey]UsageRow, len(usage))
	perUserByMonth := make(map[monthKey][]float64)
	for _, u := range usage {
		usageByKey[usageKey{u.CompanyID, u.CustomerID, u.Month}] = u
		mk := monthKey{u.CompanyID, u.Month}
		perUserByMonth[mk] = append(perUserByMonth[mk], u.UsagePerUser())
	}

	p90ByMonth := make(map[monthKey]float64, len(perUserByMonth))
	for mk, values := range perUserByMonth {
		p90ByMonth[mk] = formulas.Percentile(values, 90)
	}

	// Earliest usage month per customer defines tenure for the trend rule.
	firstMonth := make(map[string]monthly.Month)
	for _, u := range usage {
		key := u.CompanyID + "|" + u.CustomerID
		if cur, ok := firstMonth[key]; !ok || u.Month.Before(cur) {
			firstMonth[key] = u.Month
		}
	}

	records := make([]Record, 0, len(usage))
	for _, u := range usage {
		cust, ok := customerByID[u.CompanyID+"|"+u.CustomerID]
		if !ok {
			// Orphan usage rows are reported by the quality gate; skip here.
			continue
		}

		crmScore := defaultCRMScore
		if cust.CRMHealth != nil {
			crmScore = formulas.Clamp(*cust.CRMHealth/10, 0, 1)
		}

		perUser := u.UsagePerUser()
		usageScore := 0.0
		if p90 := p90ByMonth[monthKey{u.CompanyID, u.Month}]; p90 > 0 {
			usageScore = math.Min(1, perUser/p90)
		}

		trend := s.trendBucket(u, usageByKey, firstMonth[u.CompanyID+"|"+u.CustomerID])
		w := snap.Weights(domain.SegmentGroup(cust.Segment))
		raw := formulas.Clamp(
			w.CRM*crmScore+w.Usage*usageScore+w.Trend*trendScores[trend], 0, 1)

		records = append(records, Record{
			CompanyID:    u.CompanyID,
			CustomerID:   u.CustomerID,
			Month:        u.Month,
			HealthScore:  scoreToTier(raw),
			CRMScore:     crmScore,
			UsageScore:   usageScore,
			TrendScore:   trendScores[trend],
			UsagePerUser: perUser,
			Trend:        trend,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CompanyID != records[j].CompanyID {
			return records[i].CompanyID < records[j].CompanyID
		}
		if records[i].CustomerID != records[j].CustomerID {
			return records[i].CustomerID < records[j].CustomerID
		}
		return records[i].Month.Before(records[j].Month)
	})

	s.log.Debug().Int("records", len(records)).Msg("Health scoring complete")
	return records
}

// trendBucket classifies the month-over-3-months-ago usage delta. Undefined
// at tenure under 3 months; that case is flat.
func (s *Scorer) trendBucket(u UsageRow, usage map[usageKey]UsageRow, first monthly.Month) domain.TrendBucket {
	if first.IsZero() || u.Month.Sub(first) < 3 {
		return domain.TrendFlat
	}
	prior, ok := usage[usageKey{u.CompanyID, u.CustomerID, u.Month.Add(-3)}]
	if !ok || prior.UsageCount <= 0 {
		return domain.TrendFlat
	}
	delta := (u.UsageCount - prior.UsageCount) / prior.UsageCount
	switch {
	case delta >= trendGrowingMin:
		return domain.TrendGrowing
	case delta <= trendDecliningMax:
		return domain.TrendDeclining
	default:
		return domain.TrendFlat
	}
}

// scoreToTier maps a [0,1] raw score to the 1-10 integer scale.
func scoreToTier(raw float64) int {
	tier := 1 + int(math.Floor(9*raw))
	if tier > 10 {
		tier = 10 // raw == 1.0 exactly
	}
	return tier
}
