package dto

import "github.com/shopspring/decimal"

// CashFlowLedger traces a session's money flow end to end.
// Actual and Variance are absent while the session is still open.
type CashFlowLedger struct {
	Opening  decimal.Decimal  `json:"opening"`
	Sales    decimal.Decimal  `json:"sales"`
	Refunds  decimal.Decimal  `json:"refunds"`
	Expected decimal.Decimal  `json:"expected"`
	Actual   *decimal.Decimal `json:"actual,omitempty"`
	Variance *decimal.Decimal `json:"variance,omitempty"`
}

// RevenueSummary breaks session revenue into sales and refunds.
type RevenueSummary struct {
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
	NetSales     decimal.Decimal `json:"net_sales"`
}

// ReconciliationReport joins expected totals, actual counted cash and the
// per-method breakdown for one session. Always recomputed from the sale
// ledger, never persisted as primary data.
type ReconciliationReport struct {
	SessionID    string `json:"session_id"`
	FacilityID   string `json:"facility_id"`
	FacilityName string `json:"facility_name"`
	Status       string `json:"status"`
	// Provisional is true while the session is open and no closing count exists.
	Provisional bool `json:"provisional"`

	OpeningFloat decimal.Decimal  `json:"opening_float"`
	ExpectedCash decimal.Decimal  `json:"expected_cash"`
	ActualCash   *decimal.Decimal `json:"actual_cash,omitempty"`
	Variance     *decimal.Decimal `json:"variance,omitempty"`
	Severity     *string          `json:"severity,omitempty"`

	Totals  map[string]decimal.Decimal `json:"totals_by_method"`
	Summary RevenueSummary             `json:"summary"`
	Ledger  CashFlowLedger             `json:"ledger"`
}

// PeriodReport aggregates reconciliation over every session in a period
// (daily, weekly or monthly).
type PeriodReport struct {
	From string `json:"from"` // RFC 3339
	To   string `json:"to"`

	TotalSessionCount  int             `json:"total_session_count"`
	TotalOpeningFloat  decimal.Decimal `json:"total_opening_float"`
	TotalExpectedCash  decimal.Decimal `json:"total_expected_cash"`
	TotalActualCash    decimal.Decimal `json:"total_actual_cash"`
	TotalVariance      decimal.Decimal `json:"total_variance"`
	VariancePercentage decimal.Decimal `json:"variance_percentage"`

	Sessions []ReconciliationReport `json:"sessions"`
}
