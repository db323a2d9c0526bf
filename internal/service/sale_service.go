package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flowzen/internal/apperr"
	"flowzen/internal/dto"
	"flowzen/internal/model"
	"flowzen/internal/money"
	"flowzen/internal/repository"
)

// JobQueue is the async boundary between recording a sale and fiscalizing
// it. Implemented by the redis-backed worker dispatcher.
type JobQueue interface {
	EnqueueFiscalize(ctx context.Context, saleID uuid.UUID, customerEmail *string) error
}

// SaleService records sales and refunds against an open cash session. A
// sale, its items, its payments, the ticket number and the session totals
// update all commit in one transaction; fiscalization happens afterwards,
// asynchronously, because fiscal failures must never undo a recorded sale.
type SaleService interface {
	RecordSale(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.RecordSaleRequest) (*dto.SaleResponse, error)
	Refund(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.RefundSaleRequest) (*dto.SaleResponse, error)
	Get(ctx context.Context, tenantID, saleID uuid.UUID) (*dto.SaleResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	sales    repository.SaleRepository
	sessions repository.SessionRepository
	posting  SessionService
	queue    JobQueue
	log      zerolog.Logger
}

func NewSaleService(sales repository.SaleRepository, sessions repository.SessionRepository, posting SessionService, queue JobQueue, log zerolog.Logger) SaleService {
	return &saleService{sales: sales, sessions: sessions, posting: posting, queue: queue, log: log}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

func (s *saleService) RecordSale(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.RecordSaleRequest) (*dto.SaleResponse, error) {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apperr.NewValidation("session_id", "invalid uuid")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil || session.TenantID != tenantID {
		return nil, apperr.NewInvalidState("cash session not found")
	}
	if !session.IsOpen() {
		return nil, apperr.NewInvalidState("cash session is not open")
	}

	items := make([]model.SaleItem, 0, len(req.Items))
	subtotal, discount := decimal.Zero, decimal.Zero
	for _, it := range req.Items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		items = append(items, model.SaleItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Subtotal:    line.Sub(it.Discount),
		})
		subtotal = subtotal.Add(line)
		discount = discount.Add(it.Discount)
	}
	grandTotal := subtotal.Sub(discount).Add(req.Tax).Add(req.Tip)

	payments := make([]model.SalePayment, 0, len(req.Payments))
	paymentLines := make([]money.PaymentAmount, 0, len(req.Payments))
	paid := decimal.Zero
	for _, p := range req.Payments {
		if !p.Amount.IsPositive() {
			return nil, apperr.NewValidation("payments", "amounts must be positive")
		}
		payments = append(payments, model.SalePayment{Method: p.Method, Amount: p.Amount})
		paymentLines = append(paymentLines, money.PaymentAmount{Method: p.Method, Amount: p.Amount})
		paid = paid.Add(p.Amount)
	}
	if paid.LessThan(grandTotal) {
		return nil, apperr.NewValidation("payments", "insufficient payment for the grand total")
	}
	// Overpayment means change handed back from the drawer, so the cash line
	// is stored net of it and the ledger keeps summing to the grand total.
	change := paid.Sub(grandTotal)
	if change.IsPositive() {
		cashIdx := -1
		for i := range payments {
			if payments[i].Method == money.MethodCash {
				cashIdx = i
				break
			}
		}
		if cashIdx == -1 || payments[cashIdx].Amount.LessThan(change) {
			return nil, apperr.NewValidation("payments", "change exceeds the cash tendered")
		}
		payments[cashIdx].Amount = payments[cashIdx].Amount.Sub(change)
		paymentLines[cashIdx].Amount = paymentLines[cashIdx].Amount.Sub(change)
	}

	sale := &model.Sale{
		TenantID:   tenantID,
		FacilityID: session.FacilityID,
		SessionID:  session.ID,
		RecordedBy: operatorID,
		Status:     model.SaleFinal,
		Subtotal:   subtotal,
		Discount:   discount,
		Tax:        req.Tax,
		Tip:        req.Tip,
		GrandTotal: grandTotal,
		Fiscal:     model.FiscalInfo{Status: model.FiscalPending},
		Items:      items,
		Payments:   payments,
	}

	err = runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		number, err := s.sales.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		sale.Number = number
		if err := s.sales.Create(ctx, tx, sale); err != nil {
			return err
		}
		// Posting and the open check happen on the same session row, so a
		// close racing this sale rolls the whole thing back.
		return s.posting.PostSaleTx(tx, session.ID, paymentLines)
	})
	if err != nil {
		return nil, err
	}

	if s.queue != nil {
		if qerr := s.queue.EnqueueFiscalize(ctx, sale.ID, req.CustomerEmail); qerr != nil {
			// The sale is committed; the sweep cron picks up pending sales
			// the queue missed.
			s.log.Error().Err(qerr).Str("sale_id", sale.ID.String()).Msg("enqueue fiscalization failed")
		}
	}
	resp := saleToResponse(sale)
	resp.Change = change
	return resp, nil
}

func (s *saleService) Refund(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.RefundSaleRequest) (*dto.SaleResponse, error) {
	saleID, err := uuid.Parse(req.SaleID)
	if err != nil {
		return nil, apperr.NewValidation("sale_id", "invalid uuid")
	}
	original, err := s.sales.FindByID(ctx, saleID)
	if err != nil || original.TenantID != tenantID {
		return nil, apperr.NewInvalidState("sale not found")
	}
	if original.IsRefund() {
		return nil, apperr.NewInvalidState("cannot refund a refund")
	}
	if original.Status == model.SaleRefunded {
		return nil, apperr.NewInvalidState("sale is already fully refunded")
	}

	payments := make([]model.SalePayment, 0, len(req.Payments))
	paymentLines := make([]money.PaymentAmount, 0, len(req.Payments))
	refunded := decimal.Zero
	for _, p := range req.Payments {
		amt := p.Amount.Abs()
		if amt.IsZero() {
			return nil, apperr.NewValidation("payments", "amounts must be non-zero")
		}
		// Refund payment rows are stored negative so the ledger replay and
		// the session totals stay plain sums.
		payments = append(payments, model.SalePayment{Method: p.Method, Amount: amt.Neg()})
		paymentLines = append(paymentLines, money.PaymentAmount{Method: p.Method, Amount: amt})
		refunded = refunded.Add(amt)
	}
	if refunded.GreaterThan(original.GrandTotal) {
		return nil, apperr.NewValidation("payments", "refund exceeds the original sale total")
	}

	newStatus := model.SalePartialRefund
	if refunded.Equal(original.GrandTotal) {
		newStatus = model.SaleRefunded
	}

	refund := &model.Sale{
		TenantID:     tenantID,
		FacilityID:   original.FacilityID,
		SessionID:    original.SessionID,
		RecordedBy:   operatorID,
		Status:       model.SaleFinal,
		RefundFor:    &original.ID,
		RefundReason: &req.Reason,
		Subtotal:     refunded.Neg(),
		GrandTotal:   refunded.Neg(),
		Fiscal:       model.FiscalInfo{Status: model.FiscalPending},
		Payments:     payments,
	}

	err = runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		number, err := s.sales.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		refund.Number = number
		if err := s.sales.Create(ctx, tx, refund); err != nil {
			return err
		}
		if err := s.sales.UpdateStatusTx(tx, original.ID, newStatus); err != nil {
			return err
		}
		return s.posting.PostRefundTx(tx, original.SessionID, paymentLines)
	})
	if err != nil {
		return nil, err
	}

	if s.queue != nil {
		if qerr := s.queue.EnqueueFiscalize(ctx, refund.ID, nil); qerr != nil {
			s.log.Error().Err(qerr).Str("sale_id", refund.ID.String()).Msg("enqueue fiscalization failed")
		}
	}
	return saleToResponse(refund), nil
}

func (s *saleService) Get(ctx context.Context, tenantID, saleID uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil || sale.TenantID != tenantID {
		return nil, apperr.NewInvalidState("sale not found")
	}
	return saleToResponse(sale), nil
}

func (s *saleService) List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	sales, total, err := s.sales.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		items = append(items, *saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func saleToResponse(sale *model.Sale) *dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(sale.Items))
	for _, it := range sale.Items {
		items = append(items, dto.SaleItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Subtotal:    it.Subtotal,
		})
	}
	payments := make([]dto.PaymentRequest, 0, len(sale.Payments))
	for _, p := range sale.Payments {
		payments = append(payments, dto.PaymentRequest{Method: p.Method, Amount: p.Amount})
	}
	resp := &dto.SaleResponse{
		ID:        sale.ID.String(),
		Number:    sale.Number,
		SessionID: sale.SessionID.String(),
		Status:    sale.Status,
		Items:     items,
		Summary: dto.SaleSummary{
			Subtotal:   sale.Subtotal,
			Discount:   sale.Discount,
			Tax:        sale.Tax,
			Tip:        sale.Tip,
			GrandTotal: sale.GrandTotal,
		},
		Payments:  payments,
		Fiscal:    *fiscalToResponse(sale),
		CreatedAt: sale.CreatedAt.UTC().Format(time.RFC3339),
	}
	if sale.RefundFor != nil {
		v := sale.RefundFor.String()
		resp.RefundFor = &v
		resp.RefundReason = sale.RefundReason
	}
	return resp
}
