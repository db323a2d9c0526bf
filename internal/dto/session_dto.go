package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	FacilityID   string          `json:"facility_id"   validate:"required,uuid"`
	FacilityName string          `json:"facility_name" validate:"required,min=1"`
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"min=0"`
	Note         *string         `json:"note"`
}

type CountCashRequest struct {
	SessionID   string          `json:"session_id"   validate:"required,uuid"`
	CountedCash decimal.Decimal `json:"counted_cash" validate:"min=0"`
	Note        *string         `json:"note"`
}

type VerifyCountRequest struct {
	SessionID  string          `json:"session_id"  validate:"required,uuid"`
	ActualCash decimal.Decimal `json:"actual_cash" validate:"min=0"`
	Note       *string         `json:"note"`
}

type HandleVarianceRequest struct {
	SessionID  string          `json:"session_id"  validate:"required,uuid"`
	ActualCash decimal.Decimal `json:"actual_cash" validate:"min=0"`
	Action     string          `json:"action"      validate:"omitempty,oneof=accept adjust_float escalate"`
	Reason     string          `json:"reason"`
}

type CloseSessionRequest struct {
	SessionID    string          `json:"session_id"    validate:"required,uuid"`
	ClosingCount decimal.Decimal `json:"closing_count" validate:"min=0"`
	Note         *string         `json:"note"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionResponse struct {
	ID           string                     `json:"id"`
	FacilityID   string                     `json:"facility_id"`
	FacilityName string                     `json:"facility_name"`
	Status       string                     `json:"status"` // open | closed
	OpenedBy     string                     `json:"opened_by"`
	OpenedAt     string                     `json:"opened_at"` // RFC 3339
	OpeningFloat decimal.Decimal            `json:"opening_float"`
	Totals       map[string]decimal.Decimal `json:"totals_by_method"`

	ClosedBy         *string          `json:"closed_by,omitempty"`
	ClosedAt         *string          `json:"closed_at,omitempty"`
	ClosingCount     *decimal.Decimal `json:"closing_count,omitempty"`
	ExpectedCash     *decimal.Decimal `json:"expected_cash,omitempty"`
	Variance         *decimal.Decimal `json:"variance,omitempty"`
	VarianceSeverity *string          `json:"variance_severity,omitempty"`
}

// CashCountingResult is the outcome of a non-mutating counting probe.
type CashCountingResult struct {
	SessionID    string          `json:"session_id"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	Variance     decimal.Decimal `json:"variance"`
	Severity     string          `json:"severity"`
}

// CashVerificationResult records that a human confirmed a counted amount.
type CashVerificationResult struct {
	SessionID  string          `json:"session_id"`
	ActualCash decimal.Decimal `json:"actual_cash"`
	Variance   decimal.Decimal `json:"variance"`
	Severity   string          `json:"severity"`
	VerifiedAt string          `json:"verified_at"`
}

// CashVarianceResult records the disposition chosen for a variance found
// during counting, before the session is closed.
type CashVarianceResult struct {
	SessionID string          `json:"session_id"`
	Variance  decimal.Decimal `json:"variance"`
	Severity  string          `json:"severity"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
}

// AuditEntryResponse is one immutable verification/variance record.
type AuditEntryResponse struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"` // verify | variance
	CountedCash  decimal.Decimal `json:"counted_cash"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	Variance     decimal.Decimal `json:"variance"`
	Severity     string          `json:"severity"`
	Action       *string         `json:"action,omitempty"`
	Reason       *string         `json:"reason,omitempty"`
	Note         *string         `json:"note,omitempty"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    string          `json:"created_at"`
}

type SessionListResponse struct {
	Data  []SessionResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
