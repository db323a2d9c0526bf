package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowzen/internal/money"
)

// Session status values.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// CashSession represents one cash-drawer shift at one facility, bounded by
// open/close. A tenant/facility pair has at most one open session at a time
// (enforced by a partial unique index plus a service-level guard).
//
// The Total* columns are a running cache updated additively as sales and
// refunds post against the session. They are a hint: close and reconcile
// always recompute from the sale ledger to tolerate drift from crashed
// postings.
type CashSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index:idx_sessions_tenant_facility"`
	FacilityID   uuid.UUID `gorm:"type:uuid;not null;index:idx_sessions_tenant_facility"`
	FacilityName string    `gorm:"type:varchar(120);not null"`

	OpenedBy     uuid.UUID       `gorm:"type:uuid;not null"`
	OpenedAt     time.Time       `gorm:"not null"`
	OpeningFloat decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OpeningNote  *string

	TotalCash    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalCard    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalVoucher decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalGift    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalBank    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalOther   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// CashRefunds accumulates cash paid back out; it reduces expected cash.
	CashRefunds decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	// Closing fields — set exactly once, frozen at the moment of closing.
	ClosedBy         *uuid.UUID `gorm:"type:uuid"`
	ClosedAt         *time.Time
	ClosingCount     *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ExpectedCash     *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Variance         *decimal.Decimal `gorm:"type:decimal(12,2)"`
	VarianceSeverity *string          `gorm:"type:varchar(20)"`
	ClosingNote      *string

	Status    string `gorm:"type:varchar(10);not null;default:'open'"`
	UpdatedAt time.Time

	AuditEntries []CashAuditEntry `gorm:"foreignKey:SessionID"`
}

// CachedTotals returns the running per-tender cache as a method map.
func (s *CashSession) CachedTotals() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		money.MethodCash:    s.TotalCash,
		money.MethodCard:    s.TotalCard,
		money.MethodVoucher: s.TotalVoucher,
		money.MethodGift:    s.TotalGift,
		money.MethodBank:    s.TotalBank,
		money.MethodOther:   s.TotalOther,
	}
}

// IsOpen reports whether the session still accepts postings.
func (s *CashSession) IsOpen() bool { return s.Status == SessionOpen }

// Audit entry kinds. Counting probes are non-mutating and leave no entry.
const (
	AuditVerify   = "verify"
	AuditVariance = "variance"
)

// Variance disposition actions recorded by HandleVariance.
const (
	VarianceAccept      = "accept"
	VarianceAdjustFloat = "adjust_float"
	VarianceEscalate    = "escalate"
)

// CashAuditEntry is an immutable record of a verification or
// variance-disposition step taken while a session is open. Entries are
// NEVER modified or deleted.
type CashAuditEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null"`
	Kind      string    `gorm:"type:varchar(20);not null"`

	CountedCash  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ExpectedCash decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Variance     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Severity     string          `gorm:"type:varchar(20);not null"`

	// Action/Reason are set only for variance dispositions.
	Action *string `gorm:"type:varchar(20)"`
	Reason *string
	Note   *string

	RecordedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
}
