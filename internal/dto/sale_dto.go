package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleItemRequest struct {
	Description string          `json:"description" validate:"required,min=1"`
	Quantity    int             `json:"quantity"    validate:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"  validate:"min=0"`
	Discount    decimal.Decimal `json:"discount"    validate:"min=0"`
}

type PaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash card voucher gift bank other"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type RecordSaleRequest struct {
	SessionID     string            `json:"session_id" validate:"required,uuid"`
	Items         []SaleItemRequest `json:"items"      validate:"required,min=1,dive"`
	Tax           decimal.Decimal   `json:"tax"        validate:"min=0"`
	Tip           decimal.Decimal   `json:"tip"        validate:"min=0"`
	Payments      []PaymentRequest  `json:"payments"   validate:"required,min=1,dive"`
	CustomerEmail *string           `json:"customer_email" validate:"omitempty,email"`
}

type RefundSaleRequest struct {
	SaleID   string           `json:"sale_id"  validate:"required,uuid"`
	Payments []PaymentRequest `json:"payments" validate:"required,min=1,dive"`
	Reason   string           `json:"reason"   validate:"required,min=3"`
}

type SaleFilter struct {
	SessionID string
	Status    string
	Page      int
	Limit     int
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleItemResponse struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type SaleSummary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Tip        decimal.Decimal `json:"tip"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type SaleResponse struct {
	ID           string               `json:"id"`
	Number       int64                `json:"number"`
	SessionID    string               `json:"session_id"`
	Status       string               `json:"status"` // final | refunded | partial_refund
	RefundFor    *string              `json:"refund_for,omitempty"`
	RefundReason *string              `json:"refund_reason,omitempty"`
	Items        []SaleItemResponse   `json:"items"`
	Summary      SaleSummary          `json:"summary"`
	Payments     []PaymentRequest     `json:"payments"`
	Change       decimal.Decimal      `json:"change"`
	Fiscal       FiscalStatusResponse `json:"fiscal"`
	CreatedAt    string               `json:"created_at"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
