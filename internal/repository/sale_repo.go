package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowzen/internal/dto"
	"flowzen/internal/model"
)

// SaleRepository persists sales together with their items, payments and
// fiscal sub-record. The per-session list is the authoritative ledger the
// reconciliation engine recomputes from.
type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Sale, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error)
	NextNumber(ctx context.Context, tx *gorm.DB) (int64, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	// UpdateFiscal replaces the fiscal sub-record. Only the fiscal
	// submission controller calls this.
	UpdateFiscal(ctx context.Context, id uuid.UUID, f model.FiscalInfo) error
	// ListStuckFiscal returns sales whose fiscal status is still pending or
	// retry past the given age — candidates for the sweep cron.
	ListStuckFiscal(ctx context.Context, olderThan time.Time, limit int) ([]model.Sale, error)
	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}
	return tx.Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&sales).Error
	return sales, err
}

func (r *saleRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Sale{}).Where("tenant_id = ?", tenantID)
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sales []model.Sale
	err := q.Preload("Items").Preload("Payments").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&sales).Error
	return sales, total, err
}

func (r *saleRepo) NextNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}
	var n int64
	err := tx.Raw("SELECT nextval('sale_number_seq')").Scan(&n).Error
	return n, err
}

func (r *saleRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.Sale{}).Where("id = ?", id).Update("status", status).Error
}

func (r *saleRepo) UpdateFiscal(ctx context.Context, id uuid.UUID, f model.FiscalInfo) error {
	return r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"fiscal_status":       f.Status,
			"fiscal_number":       f.Number,
			"fiscal_error":        f.Error,
			"fiscal_processed_at": f.ProcessedAt,
			"fiscal_retry_count":  f.RetryCount,
		}).Error
}

func (r *saleRepo) ListStuckFiscal(ctx context.Context, olderThan time.Time, limit int) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.db.WithContext(ctx).
		Where("fiscal_status IN ? AND updated_at < ?", []string{model.FiscalPending, model.FiscalRetry}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sales).Error
	return sales, err
}

func (r *saleRepo) DB() *gorm.DB { return r.db }
