package monthly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsMonthAndDateForms(t *testing.T) {
	for _, s := range []string{"2024-03", "2024-03-01", "2024-03-17"} {
		m, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, "2024-03-01", m.String())
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"", "2024", "03-2024", "2024-13", "2024-00-01"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestAddCrossesYearBoundaries(t *testing.T) {
	m := MustParse("2023-11")
	assert.Equal(t, "2024-02-01", m.Add(3).String())
	assert.Equal(t, "2022-12-01", m.Add(-11).String())
}

func TestSubIsInverseOfAdd(t *testing.T) {
	a := MustParse("2022-05")
	b := a.Add(27)
	assert.Equal(t, 27, b.Sub(a))
	assert.Equal(t, -27, a.Sub(b))
}

func TestRangeInclusive(t *testing.T) {
	months := Range(MustParse("2024-11"), MustParse("2025-02"))
	require.Len(t, months, 4)
	assert.Equal(t, "2024-11-01", months[0].String())
	assert.Equal(t, "2025-02-01", months[3].String())
}

func TestRangeInvertedIntervalIsEmpty(t *testing.T) {
	assert.Nil(t, Range(MustParse("2024-05"), MustParse("2024-04")))
}

func TestFromTimeTruncates(t *testing.T) {
	ts := time.Date(2024, 7, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-01", FromTime(ts).String())
}
