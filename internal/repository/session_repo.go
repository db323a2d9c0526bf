package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flowzen/internal/model"
	"flowzen/internal/money"
)

// SessionRepository persists cash sessions and their audit trail.
//
// Mutations that race a concurrent close (AddTotalsTx, Close) are guarded by
// a `status = 'open'` predicate on the session row, so the database
// linearizes them: one wins, the loser sees zero rows affected and the
// service maps that to a conflict/invalid-state error.
type SessionRepository interface {
	Create(ctx context.Context, s *model.CashSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindOpenByFacility(ctx context.Context, tenantID, facilityID uuid.UUID) (*model.CashSession, error)
	// AddTotalsTx additively posts per-method deltas against an OPEN session.
	// Returns the number of rows updated: 0 means the session was not open.
	AddTotalsTx(tx *gorm.DB, sessionID uuid.UUID, deltas map[string]decimal.Decimal, cashRefundDelta decimal.Decimal) (int64, error)
	// Close freezes the closing fields iff the session is still open.
	// Returns false when another close won the race.
	Close(ctx context.Context, s *model.CashSession) (bool, error)
	CreateAuditEntry(ctx context.Context, e *model.CashAuditEntry) error
	ListAuditEntries(ctx context.Context, sessionID uuid.UUID) ([]model.CashAuditEntry, error)
	ListClosed(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]model.CashSession, int64, error)
	ListOpenedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]model.CashSession, error)
	DB() *gorm.DB
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) Create(ctx context.Context, s *model.CashSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenByFacility(ctx context.Context, tenantID, facilityID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND facility_id = ? AND status = ?", tenantID, facilityID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var totalColumns = map[string]string{
	money.MethodCash:    "total_cash",
	money.MethodCard:    "total_card",
	money.MethodVoucher: "total_voucher",
	money.MethodGift:    "total_gift",
	money.MethodBank:    "total_bank",
	money.MethodOther:   "total_other",
}

func (r *sessionRepo) AddTotalsTx(tx *gorm.DB, sessionID uuid.UUID, deltas map[string]decimal.Decimal, cashRefundDelta decimal.Decimal) (int64, error) {
	updates := make(map[string]interface{}, len(deltas)+1)
	for method, delta := range deltas {
		col, ok := totalColumns[method]
		if !ok || delta.IsZero() {
			continue
		}
		updates[col] = gorm.Expr(col+" + ?", delta)
	}
	if !cashRefundDelta.IsZero() {
		updates["cash_refunds"] = gorm.Expr("cash_refunds + ?", cashRefundDelta)
	}
	if len(updates) == 0 {
		// Nothing to post, but the caller still needs the open check.
		updates["updated_at"] = gorm.Expr("updated_at")
	}
	res := tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionOpen).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *sessionRepo) Close(ctx context.Context, s *model.CashSession) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.CashSession{}).
		Where("id = ? AND status = ?", s.ID, model.SessionOpen).
		Updates(map[string]interface{}{
			"status":            model.SessionClosed,
			"closed_by":         s.ClosedBy,
			"closed_at":         s.ClosedAt,
			"closing_count":     s.ClosingCount,
			"expected_cash":     s.ExpectedCash,
			"variance":          s.Variance,
			"variance_severity": s.VarianceSeverity,
			"closing_note":      s.ClosingNote,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) CreateAuditEntry(ctx context.Context, e *model.CashAuditEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *sessionRepo) ListAuditEntries(ctx context.Context, sessionID uuid.UUID) ([]model.CashAuditEntry, error) {
	var entries []model.CashAuditEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *sessionRepo) ListClosed(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64
	q := r.db.WithContext(ctx).Model(&model.CashSession{}).
		Where("tenant_id = ? AND status = ?", tenantID, model.SessionClosed)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("closed_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *sessionRepo) ListOpenedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]model.CashSession, error) {
	var sessions []model.CashSession
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND opened_at >= ? AND opened_at < ?", tenantID, from, to).
		Order("opened_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) DB() *gorm.DB { return r.db }
