package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExpectedCash(t *testing.T) {
	got := ExpectedCash(dec("5000"), dec("1200"), decimal.Zero)
	assert.Equal(t, "6200", got.String())

	got = ExpectedCash(dec("5000"), dec("1200"), dec("300"))
	assert.Equal(t, "5900", got.String())

	// Never clamped: refunding more cash than was taken is alarming but valid.
	got = ExpectedCash(dec("100"), decimal.Zero, dec("500"))
	assert.Equal(t, "-400", got.String())
}

func TestVarianceExactMatch(t *testing.T) {
	// Opening 5000 + one cash sale of 1200, counted 6200.
	expected := ExpectedCash(dec("5000"), dec("1200"), decimal.Zero)
	v := Variance(dec("6200"), expected)

	assert.True(t, v.IsZero())
	assert.Equal(t, SeverityAcceptable, ClassifySeverity(v, DefaultThresholds()))
}

func TestVarianceShortage(t *testing.T) {
	// Same session counted at 5600: a 600 shortage crosses the warning bound.
	expected := ExpectedCash(dec("5000"), dec("1200"), decimal.Zero)
	v := Variance(dec("5600"), expected)

	assert.Equal(t, "-600", v.String())
	assert.Equal(t, SeverityCritical, ClassifySeverity(v, DefaultThresholds()))
}

func TestClassifySeverityBounds(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		magnitude string
		want      string
	}{
		{"0", SeverityAcceptable},
		{"100", SeverityAcceptable},
		{"100.01", SeverityWarning},
		{"500", SeverityWarning},
		{"500.01", SeverityCritical},
		{"5000", SeverityCritical},
		{"5000.01", SeveritySevere},
	}
	for _, tc := range cases {
		m := dec(tc.magnitude)
		assert.Equal(t, tc.want, ClassifySeverity(m, th), "magnitude %s", tc.magnitude)
		// Overage and shortage of equal magnitude classify identically.
		assert.Equal(t, tc.want, ClassifySeverity(m.Neg(), th), "magnitude -%s", tc.magnitude)
	}
}

func TestAggregateByMethodConservation(t *testing.T) {
	payments := []PaymentAmount{
		{Method: MethodCash, Amount: dec("150.50")},
		{Method: MethodCard, Amount: dec("49.50")},
		{Method: MethodCash, Amount: dec("-30")},
		{Method: "crypto", Amount: dec("10")}, // unknown → other
	}

	totals := AggregateByMethod(payments)

	// All six kinds are always present.
	require.Len(t, totals, len(Methods))
	for _, m := range Methods {
		_, ok := totals[m]
		require.True(t, ok, "missing method %s", m)
	}

	assert.Equal(t, "120.5", totals[MethodCash].String())
	assert.Equal(t, "49.5", totals[MethodCard].String())
	assert.Equal(t, "10", totals[MethodOther].String())

	// Conservation: the aggregate sums to the plain sum of inputs.
	input := decimal.Zero
	for _, p := range payments {
		input = input.Add(p.Amount)
	}
	assert.True(t, SumMethods(totals).Equal(input))
}

func TestPercentageOf(t *testing.T) {
	assert.Equal(t, 50, PercentageOf(dec("1"), dec("2")))
	assert.Equal(t, 0, PercentageOf(dec("5"), decimal.Zero))
	assert.Equal(t, 100, PercentageOf(dec("30"), dec("2")))
	assert.Equal(t, 0, PercentageOf(dec("-5"), dec("10")))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "1.33", Ratio(dec("40"), dec("3000")).String())
	assert.Equal(t, "-2.5", Ratio(dec("-50"), dec("2000")).String())
	assert.True(t, Ratio(dec("40"), decimal.Zero).IsZero())
}
