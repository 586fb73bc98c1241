package subscriptions

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

func line(start, end string, freq domain.BillingFrequency, qty, price, discount float64) ContractLine {
	return ContractLine{
		CompanyID:        "co1",
		ContractID:       "c1",
		LineID:           "l1",
		CustomerID:       "cust1",
		ProductID:        "p1",
		StartMonth:       monthly.MustParse(start),
		EndMonth:         monthly.MustParse(end),
		BillingFrequency: freq,
		Quantity:         qty,
		UnitPrice:        price,
		DiscountPct:      discount,
		Status:           domain.ContractActive,
	}
}

func TestExpandProducesInclusiveMonthCount(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, invalid := e.Expand([]ContractLine{
		line("2024-01", "2024-12", domain.BillingMonthly, 10, 50, 0),
	})
	require.Empty(t, invalid)
	require.Len(t, records, 12)
	assert.Equal(t, "2024-01-01", records[0].Month.String())
	assert.Equal(t, "2024-12-01", records[11].Month.String())
	for _, rec := range records {
		assert.InDelta(t, 500.0, rec.MRR, 1e-9)
	}
}

func TestExpandNoRecordsOutsideSpan(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, _ := e.Expand([]ContractLine{
		line("2024-03", "2024-05", domain.BillingMonthly, 1, 100, 0),
	})
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.False(t, rec.Month.Before(monthly.MustParse("2024-03")))
		assert.False(t, rec.Month.After(monthly.MustParse("2024-05")))
	}
}

func TestExpandAnnualBillingSpreadsOverTwelve(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, _ := e.Expand([]ContractLine{
		line("2024-01", "2024-06", domain.BillingAnnual, 1, 12000, 0),
	})
	require.Len(t, records, 6)
	assert.InDelta(t, 1000.0, records[0].MRR, 1e-9)
}

func TestExpandAppliesDiscount(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, _ := e.Expand([]ContractLine{
		line("2024-01", "2024-01", domain.BillingMonthly, 2, 100, 0.25),
	})
	require.Len(t, records, 1)
	assert.InDelta(t, 150.0, records[0].MRR, 1e-9)
}

func TestExpandRejectsInvertedInterval(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, invalid := e.Expand([]ContractLine{
		line("2024-06", "2024-01", domain.BillingMonthly, 1, 100, 0),
	})
	assert.Empty(t, records)
	require.Len(t, invalid, 1)
	assert.Equal(t, "c1", invalid[0].ContractID)
}

func TestExpandSingleMonthContract(t *testing.T) {
	e := NewExpander(zerolog.Nop())
	records, invalid := e.Expand([]ContractLine{
		line("2024-04", "2024-04", domain.BillingMonthly, 1, 99, 0),
	})
	require.Empty(t, invalid)
	require.Len(t, records, 1)
}
