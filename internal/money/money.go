// Package money holds the pure cash arithmetic used by the session state
// machine and the reconciliation engine: expected cash, variance, severity
// classification and per-tender aggregation. Functions here never touch the
// database and never return errors — they are defined for all numeric
// inputs, including negative and zero edges.
package money

import "github.com/shopspring/decimal"

// Known tender kinds. Aggregations always report all six, even when zero.
const (
	MethodCash    = "cash"
	MethodCard    = "card"
	MethodVoucher = "voucher"
	MethodGift    = "gift"
	MethodBank    = "bank"
	MethodOther   = "other"
)

// Methods lists the known tender kinds in display order.
var Methods = []string{MethodCash, MethodCard, MethodVoucher, MethodGift, MethodBank, MethodOther}

// Severity classifies the magnitude of a cash variance.
const (
	SeverityAcceptable = "acceptable"
	SeverityWarning    = "warning"
	SeverityCritical   = "critical"
	SeveritySevere     = "severe"
)

// Thresholds are the severity bounds on |variance|, in absolute currency
// units. Tenants operating at different cash volumes override them via
// configuration.
type Thresholds struct {
	AcceptableMax decimal.Decimal
	WarningMax    decimal.Decimal
	CriticalMax   decimal.Decimal
}

// DefaultThresholds returns the stock bounds: |v| <= 100 acceptable,
// <= 500 warning, <= 5000 critical, above that severe.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AcceptableMax: decimal.NewFromInt(100),
		WarningMax:    decimal.NewFromInt(500),
		CriticalMax:   decimal.NewFromInt(5000),
	}
}

// PaymentAmount is one tender line of a sale or refund.
type PaymentAmount struct {
	Method string
	Amount decimal.Decimal
}

// ExpectedCash is the theoretical drawer balance: opening float plus cash
// taken minus cash refunded. Never clamped — a negative result is a valid
// (if alarming) outcome surfaced to the caller.
func ExpectedCash(openingFloat, cashTotal, cashRefunds decimal.Decimal) decimal.Decimal {
	return openingFloat.Add(cashTotal).Sub(cashRefunds)
}

// Variance is counted cash minus expected cash. Positive means overage,
// negative means shortage.
func Variance(countedCash, expectedCash decimal.Decimal) decimal.Decimal {
	return countedCash.Sub(expectedCash)
}

// ClassifySeverity buckets |variance| against the thresholds. Symmetric in
// sign: an overage and a shortage of equal magnitude classify identically.
func ClassifySeverity(variance decimal.Decimal, t Thresholds) string {
	abs := variance.Abs()
	switch {
	case abs.LessThanOrEqual(t.AcceptableMax):
		return SeverityAcceptable
	case abs.LessThanOrEqual(t.WarningMax):
		return SeverityWarning
	case abs.LessThanOrEqual(t.CriticalMax):
		return SeverityCritical
	default:
		return SeveritySevere
	}
}

// AggregateByMethod sums payment amounts grouped by tender kind. Unknown
// methods fall under "other"; the result always contains all six known
// kinds so downstream reports never branch on missing keys.
func AggregateByMethod(payments []PaymentAmount) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(Methods))
	for _, m := range Methods {
		totals[m] = decimal.Zero
	}
	for _, p := range payments {
		m := p.Method
		if _, known := totals[m]; !known {
			m = MethodOther
		}
		totals[m] = totals[m].Add(p.Amount)
	}
	return totals
}

// SumMethods totals an aggregated method map.
func SumMethods(totals map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range Methods {
		sum = sum.Add(totals[m])
	}
	return sum
}

// PercentageOf returns part/whole as a whole-number percentage clamped to
// 0..100. A zero whole yields 0 rather than propagating a division by zero.
func PercentageOf(part, whole decimal.Decimal) int {
	if whole.IsZero() {
		return 0
	}
	pct := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// Ratio returns part/whole * 100 as a decimal rounded to two places, with
// the same zero-whole guard. Used for variance percentages where the sign
// and fraction matter.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
