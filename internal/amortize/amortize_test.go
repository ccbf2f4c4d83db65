package amortize

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendfast/origination-engine/internal/domain"
)

var testStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func terms(principal float64, rate float64, weeks int) domain.LoanTerms {
	return domain.LoanTerms{
		Principal:  decimal.NewFromFloat(principal),
		AnnualRate: decimal.NewFromFloat(rate),
		TermWeeks:  weeks,
		StartDate:  testStart,
	}
}

func TestScheduleShape(t *testing.T) {
	tests := []struct {
		name      string
		principal float64
		rate      float64
		weeks     int
	}{
		{name: "small loan", principal: 1000, rate: 0.10, weeks: 10},
		{name: "dealer loan", principal: 2988, rate: 0.0899, weeks: 16},
		{name: "year long", principal: 25000, rate: 0.1599, weeks: 52},
		{name: "zero rate", principal: 5000, rate: 0, weeks: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := Amortized(terms(tt.principal, tt.rate, tt.weeks))
			require.NoError(t, err)
			require.Len(t, schedule, tt.weeks)

			prevBalance := decimal.NewFromFloat(tt.principal)
			for i, entry := range schedule {
				assert.Equal(t, i+1, entry.Number, "payment numbers must be sequential with no gaps")
				assert.Equal(t, testStart.AddDate(0, 0, 7*(i+1)), entry.DueDate)
				assert.False(t, entry.RemainingBalance.IsNegative(), "balance must never go negative")
				assert.True(t, entry.RemainingBalance.LessThanOrEqual(prevBalance),
					"balance must be non-increasing: week %d has %s after %s",
					entry.Number, entry.RemainingBalance, prevBalance)
				prevBalance = entry.RemainingBalance
			}
		})
	}
}

func TestSimpleZeroRate(t *testing.T) {
	schedule, err := Simple(terms(1000, 0, 10), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Len(t, schedule, 10)

	for _, entry := range schedule {
		assert.True(t, entry.InterestPortion.IsZero(),
			"week %d: interest should be zero at zero rate", entry.Number)
		assert.True(t, entry.PrincipalPortion.Equal(decimal.NewFromInt(100)),
			"week %d: full payment should go to principal", entry.Number)
	}

	assert.True(t, schedule[9].RemainingBalance.IsZero(),
		"final balance should be exactly zero, got %s", schedule[9].RemainingBalance)
}

func TestSimpleUsesTwelfthOfAnnualRate(t *testing.T) {
	// The preview schedule divides the annual rate by 12, not 52. First
	// week's interest on 1200 at 12% annual is 1200 * 0.01 = 12.00.
	schedule, err := Simple(terms(1200, 0.12, 12), decimal.NewFromInt(105))
	require.NoError(t, err)

	assert.True(t, schedule[0].InterestPortion.Equal(decimal.NewFromInt(12)),
		"first week interest should be 12.00, got %s", schedule[0].InterestPortion)
	assert.True(t, schedule[0].PrincipalPortion.Equal(decimal.NewFromInt(93)),
		"first week principal should be 93.00, got %s", schedule[0].PrincipalPortion)
}

func TestSimpleRunsFullTermEvenWhenPaidEarly(t *testing.T) {
	// Oversized payment clears the balance in 4 weeks; the schedule still
	// has exactly 10 entries with the tail pinned at zero.
	schedule, err := Simple(terms(1000, 0, 10), decimal.NewFromInt(250))
	require.NoError(t, err)
	require.Len(t, schedule, 10)

	assert.True(t, schedule[3].RemainingBalance.IsZero())
	assert.True(t, schedule[9].RemainingBalance.IsZero())
}

func TestAmortizedZeroRatePayment(t *testing.T) {
	payment, err := AmortizedWeeklyPayment(terms(1000, 0, 10))
	require.NoError(t, err)
	assert.True(t, payment.Equal(decimal.NewFromInt(100)),
		"zero-rate payment should be principal/termWeeks, got %s", payment)
}

func TestAmortizedDerivedPayment(t *testing.T) {
	// Cross-check the decimal computation against the closed-form formula
	// evaluated in floating point.
	loanTerms := terms(2988, 0.0899, 16)

	r := 0.0899 / 52
	pow := math.Pow(1+r, 16)
	want := decimal.NewFromFloat(2988 * (r * pow) / (pow - 1)).Round(2)

	payment, err := AmortizedWeeklyPayment(loanTerms)
	require.NoError(t, err)
	assert.True(t, payment.Equal(want), "expected %s, got %s", want, payment)

	schedule, err := Amortized(loanTerms)
	require.NoError(t, err)
	require.Len(t, schedule, 16)

	// The derived payment retires the balance within rounding tolerance.
	final := schedule[15].RemainingBalance
	assert.True(t, final.LessThanOrEqual(decimal.NewFromFloat(0.01)),
		"16th entry should leave at most a cent of balance, got %s", final)

	// Principal portions sum back to the original principal.
	var principalSum decimal.Decimal
	for _, entry := range schedule {
		principalSum = principalSum.Add(entry.PrincipalPortion)
	}
	diff := principalSum.Sub(loanTerms.Principal).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.NewFromFloat(0.25)),
		"principal portions should sum to the principal within rounding tolerance, off by %s", diff)
}

func TestDeterminism(t *testing.T) {
	loanTerms := terms(2988, 0.0899, 16)

	first, err := Amortized(loanTerms)
	require.NoError(t, err)
	second, err := Amortized(loanTerms)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].DueDateLabel, second[i].DueDateLabel)
		assert.Equal(t, first[i].PrincipalPortion.String(), second[i].PrincipalPortion.String())
		assert.Equal(t, first[i].InterestPortion.String(), second[i].InterestPortion.String())
		assert.Equal(t, first[i].TotalPayment.String(), second[i].TotalPayment.String())
		assert.Equal(t, first[i].RemainingBalance.String(), second[i].RemainingBalance.String())
	}
}

func TestDateLabels(t *testing.T) {
	simple, err := Simple(terms(1000, 0, 4), decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-12", simple[0].DueDateLabel, "preview schedule uses ISO dates")

	amortized, err := Amortized(terms(1000, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, "01/12/2026", amortized[0].DueDateLabel, "legal-document schedule uses MM/DD/YYYY")
}

func TestInvalidTerms(t *testing.T) {
	tests := []struct {
		name  string
		terms domain.LoanTerms
	}{
		{name: "zero principal", terms: terms(0, 0.10, 10)},
		{name: "negative principal", terms: terms(-500, 0.10, 10)},
		{name: "zero term", terms: terms(1000, 0.10, 0)},
		{name: "negative term", terms: terms(1000, 0.10, -3)},
		{name: "negative rate", terms: terms(1000, -0.10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Amortized(tt.terms)
			assert.Error(t, err)

			_, err = Simple(tt.terms, decimal.NewFromInt(100))
			assert.Error(t, err)
		})
	}

	_, err := Simple(terms(1000, 0.10, 10), decimal.Zero)
	assert.Error(t, err, "simple mode requires a positive weekly payment")
}
