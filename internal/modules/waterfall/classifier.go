package waterfall

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/subscriptions"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Classify labels a single prior/current ARR transition.
func Classify(prior, current float64) domain.Movement {
	switch {
	case prior == 0 && current > 0:
		return domain.MovementNew
	case prior > 0 && current == 0:
		return domain.MovementChurn
	case prior > 0 && current > prior:
		return domain.MovementExpansion
	case prior > 0 && current > 0 && current < prior:
		return domain.MovementContraction
	default:
		return domain.MovementFlat
	}
}

// Engine builds the waterfall rollups and reconciliation checks.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new waterfall engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "waterfall_engine").Logger()}
}

// BuildMovements classifies every customer's ARR transition (ARR = 12 x MRR)
// for each month after the first on the ledger's month spine. Customers
// absent in a month carry zero ARR for it, so a lapsed contract shows up as
// churn rather than silently vanishing.
func (e *Engine) BuildMovements(companyID string, ledger []subscriptions.CustomerMRR, segments map[string]string) []CustomerMovement {
	if len(ledger) == 0 {
		return nil
	}

	arr := make(map[string]map[monthly.Month]float64)
	first, last := ledger[0].Month, ledger[0].Month
	for _, cm := range ledger {
		byMonth := arr[cm.CustomerID]
		if byMonth == nil {
			byMonth = make(map[monthly.Month]float64)
			arr[cm.CustomerID] = byMonth
		}
		byMonth[cm.Month] += cm.MRR * 12
		if cm.Month.Before(first) {
			first = cm.Month
		}
		if last.Before(cm.Month) {
			last = cm.Month
		}
	}

	customers := make([]string, 0, len(arr))
	for id := range arr {
		customers = append(customers, id)
	}
	sort.Strings(customers)

	var out []CustomerMovement
	for _, customerID := range customers {
		byMonth := arr[customerID]
		for _, m := range monthly.Range(first.Add(1), last) {
			prior := byMonth[m.Add(-1)]
			current := byMonth[m]
			if prior == 0 && current == 0 {
				continue
			}
			out = append(out, CustomerMovement{
				CompanyID:  companyID,
				CustomerID: customerID,
				Month:      m,
				Segment:    segments[customerID],
				PriorARR:   prior,
				CurrentARR: current,
				Movement:   Classify(prior, current),
			})
		}
	}
	return out
}

// RollupBase aggregates customer movements to (month, segment) for the base
// scenario with full movement decomposition.
func (e *Engine) RollupBase(movements []CustomerMovement) []Row {
	type key struct {
		companyID string
		month     monthly.Month
		segment   string
	}
	rollup := make(map[key]*Row)

	for _, mv := range movements {
		k := key{mv.CompanyID, mv.Month, mv.Segment}
		row, ok := rollup[k]
		if !ok {
			row = &Row{
				CompanyID:     mv.CompanyID,
				Month:         mv.Month,
				Segment:       mv.Segment,
				Scenario:      domain.ScenarioBase,
				MovementBasis: BasisFull,
			}
			rollup[k] = row
		}
		row.StartingARR += mv.PriorARR
		row.EndingARR += mv.CurrentARR

		switch mv.Movement {
		case domain.MovementNew:
			row.NewARR += mv.CurrentARR
		case domain.MovementChurn:
			row.ChurnARR += mv.PriorARR
		case domain.MovementExpansion:
			row.ExpansionARR += mv.CurrentARR - mv.PriorARR
		case domain.MovementContraction:
			row.ContractionARR += mv.PriorARR - mv.CurrentARR
		}
	}

	out := make([]Row, 0, len(rollup))
	for _, row := range rollup {
		out = append(out, *row)
	}
	sortRows(out)
	return out
}

// RollupScenarios derives upside/downside waterfalls from consecutive
// forecast totals. There is no customer-level decomposition for hypothetical
// scenarios, so the net ARR delta is attributed entirely to new (growth) or
// churn (decline) and the row is marked with the net movement basis. The
// reconciliation identity holds exactly by construction.
func (e *Engine) RollupScenarios(records []forecast.Record) []Row {
	type key struct {
		companyID string
		month     monthly.Month
		segment   string
		scenario  domain.Scenario
	}
	totals := make(map[key]float64)
	for _, rec := range records {
		if rec.Scenario == domain.ScenarioBase {
			continue
		}
		totals[key{rec.CompanyID, rec.Month, rec.Segment, rec.Scenario}] = rec.TotalRevenue * 12
	}

	var out []Row
	for k, ending := range totals {
		starting, ok := totals[key{k.companyID, k.month.Add(-1), k.segment, k.scenario}]
		if !ok {
			continue
		}
		row := Row{
			CompanyID:     k.companyID,
			Month:         k.month,
			Segment:       k.segment,
			Scenario:      k.scenario,
			StartingARR:   starting,
			EndingARR:     ending,
			MovementBasis: BasisNet,
		}
		if delta := ending - starting; delta >= 0 {
			row.NewARR = delta
		} else {
			row.ChurnARR = -delta
		}
		out = append(out, row)
	}
	sortRows(out)
	return out
}

// Reconcile emits one check per waterfall row against the bridge identity.
func (e *Engine) Reconcile(rows []Row) []Check {
	checks := make([]Check, 0, len(rows))
	failures := 0
	for _, row := range rows {
		expected := row.StartingARR + row.NewARR + row.ExpansionARR - row.ContractionARR - row.ChurnARR
		residual := row.EndingARR - expected
		ok := math.Abs(residual) <= Tolerance
		if !ok {
			failures++
		}
		checks = append(checks, Check{
			CompanyID: row.CompanyID,
			Month:     row.Month,
			Segment:   row.Segment,
			Scenario:  row.Scenario,
			Expected:  expected,
			Actual:    row.EndingARR,
			Residual:  residual,
			OK:        ok,
		})
	}
	if failures > 0 {
		e.log.Error().Int("failures", failures).Msg("Reconciliation identity violated")
	}
	return checks
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.Segment != b.Segment {
			return a.Segment < b.Segment
		}
		return a.Scenario < b.Scenario
	})
}
