package subscriptions

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/pkg/monthly"
)

// InvalidInterval describes a contract line whose end month precedes its
// start month. The expansion engine reports these explicitly instead of
// silently producing zero ledger rows for them.
type InvalidInterval struct {
	CompanyID  string
	ContractID string
	LineID     string
	Start      monthly.Month
	End        monthly.Month
}

func (v InvalidInterval) String() string {
	return fmt.Sprintf("%s/%s/%s: end %s before start %s",
		v.CompanyID, v.ContractID, v.LineID, v.End, v.Start)
}

// Expander turns contract lines into the monthly revenue ledger.
type Expander struct {
	log zerolog.Logger
}

// NewExpander creates a new monthly expansion engine
func NewExpander(log zerolog.Logger) *Expander {
	return &Expander{log: log.With().Str("component", "expander").Logger()}
}

// Expand produces one MonthlyRevenue row per calendar month from each line's
// start month through its end month inclusive. No row is produced outside
// that span; this is the structural basis for every later aggregation.
// Lines with an inverted interval are skipped and returned as violations.
func (e *Expander) Expand(lines []ContractLine) ([]MonthlyRevenue, []InvalidInterval) {
	var out []MonthlyRevenue
	var invalid []InvalidInterval

	for _, line := range lines {
		if line.EndMonth.Before(line.StartMonth) {
			invalid = append(invalid, InvalidInterval{
				CompanyID:  line.CompanyID,
				ContractID: line.ContractID,
				LineID:     line.LineID,
				Start:      line.StartMonth,
				End:        line.EndMonth,
			})
			continue
		}

		mrr := line.MRR()
		for _, m := range monthly.Range(line.StartMonth, line.EndMonth) {
			out = append(out, MonthlyRevenue{
				CompanyID:  line.CompanyID,
				CustomerID: line.CustomerID,
				ProductID:  line.ProductID,
				ContractID: line.ContractID,
				LineID:     line.LineID,
				Month:      m,
				MRR:        mrr,
			})
		}
	}

	e.log.Debug().
		Int("lines", len(lines)).
		Int("ledger_rows", len(out)).
		Int("invalid_intervals", len(invalid)).
		Msg("Monthly expansion complete")

	return out, invalid
}
