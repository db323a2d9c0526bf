package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale lifecycle status values. Independent of fiscal status.
const (
	SaleFinal         = "final"
	SaleRefunded      = "refunded"
	SalePartialRefund = "partial_refund"
)

// Fiscal submission status values. A sale moves between these only through
// the fiscal submission controller.
const (
	FiscalPending = "pending"
	FiscalSuccess = "success"
	FiscalError   = "error"
	FiscalRetry   = "retry"
)

// Sale belongs to exactly one session and facility. Refunds are new Sales
// linked to the original through RefundFor, with negated payment amounts.
type Sale struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	FacilityID uuid.UUID `gorm:"type:uuid;not null"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Number     int64     `gorm:"not null"`
	RecordedBy uuid.UUID `gorm:"type:uuid;not null"`

	Status       string     `gorm:"type:varchar(20);not null;default:'final'"`
	RefundFor    *uuid.UUID `gorm:"type:uuid;index"`
	RefundReason *string    `gorm:"type:text"`

	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Tax        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Tip        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	GrandTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Fiscal FiscalInfo `gorm:"embedded;embeddedPrefix:fiscal_"`

	Items    []SaleItem    `gorm:"foreignKey:SaleID"`
	Payments []SalePayment `gorm:"foreignKey:SaleID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRefund reports whether this sale reverses another one.
func (s *Sale) IsRefund() bool { return s.RefundFor != nil }

// FiscalInfo is the fiscal sub-record of a sale. The external fiscal number
// is set exactly once, on first success.
type FiscalInfo struct {
	Status      string     `gorm:"type:varchar(10);not null;default:'pending'"`
	Number      *string    `gorm:"type:varchar(30)"`
	Error       *string    `gorm:"type:text"`
	ProcessedAt *time.Time
	RetryCount  int `gorm:"not null;default:0"`
}

type SaleItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	Description string          `gorm:"not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// SalePayment is one tender line. Method: cash|card|voucher|gift|bank|other.
// Refund payments carry negative amounts.
type SalePayment struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Method string          `gorm:"type:varchar(10);not null"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
