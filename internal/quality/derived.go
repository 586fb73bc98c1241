package quality

import (
	"fmt"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/waterfall"
	"github.com/mhalford/revcast/pkg/monthly"
)

// FromReconciliation converts failed bridge checks into violations. The runner
// uses this on in-memory results so a broken identity blocks publication
// instead of being discovered after commit.
func FromReconciliation(checks []waterfall.Check) []Violation {
	var out []Violation
	for _, chk := range checks {
		if chk.OK {
			continue
		}
		out = append(out, Violation{
			Rule:     RuleReconciliation,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s/%s", chk.CompanyID, chk.Month, chk.Segment, chk.Scenario),
			Detail:   fmt.Sprintf("ending %.4f vs bridged %.4f (residual %.4f)", chk.Actual, chk.Expected, chk.Residual),
		})
	}
	return out
}

// FromForecastRecords flags grains that do not carry exactly one row per
// scenario.
func FromForecastRecords(records []forecast.Record) []Violation {
	type grain struct {
		companyID string
		month     monthly.Month
		segment   string
	}
	scenarios := make(map[grain]map[domain.Scenario]bool)
	for _, rec := range records {
		g := grain{rec.CompanyID, rec.Month, rec.Segment}
		if scenarios[g] == nil {
			scenarios[g] = make(map[domain.Scenario]bool)
		}
		scenarios[g][rec.Scenario] = true
	}

	var out []Violation
	for g, seen := range scenarios {
		if len(seen) == len(domain.Scenarios) {
			continue
		}
		out = append(out, Violation{
			Rule:     RuleScenarioCompleteness,
			Severity: SeverityHard,
			Grain:    fmt.Sprintf("%s/%s/%s", g.companyID, g.month, g.segment),
			Detail:   fmt.Sprintf("expected 3 scenario rows, found %d", len(seen)),
		})
	}
	return out
}
