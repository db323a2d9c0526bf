package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flowzen/internal/dto"
	"flowzen/internal/infra"
	"flowzen/internal/model"
	"flowzen/internal/money"
	"flowzen/internal/repository"
)

// ── In-memory SessionRepository ──────────────────────────────────────────────

type fakeSessionRepo struct {
	sessions map[uuid.UUID]*model.CashSession
	audits   []model.CashAuditEntry
	openErr  error // when set, FindOpenByFacility fails with it
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*model.CashSession)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *model.CashSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.CashSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeSessionRepo) FindOpenByFacility(_ context.Context, tenantID, facilityID uuid.UUID) (*model.CashSession, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.FacilityID == facilityID && s.Status == model.SessionOpen {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) AddTotalsTx(_ *gorm.DB, sessionID uuid.UUID, deltas map[string]decimal.Decimal, cashRefundDelta decimal.Decimal) (int64, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != model.SessionOpen {
		return 0, nil
	}
	s.TotalCash = s.TotalCash.Add(deltas[money.MethodCash])
	s.TotalCard = s.TotalCard.Add(deltas[money.MethodCard])
	s.TotalVoucher = s.TotalVoucher.Add(deltas[money.MethodVoucher])
	s.TotalGift = s.TotalGift.Add(deltas[money.MethodGift])
	s.TotalBank = s.TotalBank.Add(deltas[money.MethodBank])
	s.TotalOther = s.TotalOther.Add(deltas[money.MethodOther])
	s.CashRefunds = s.CashRefunds.Add(cashRefundDelta)
	return 1, nil
}

func (r *fakeSessionRepo) Close(_ context.Context, s *model.CashSession) (bool, error) {
	stored, ok := r.sessions[s.ID]
	if !ok || stored.Status != model.SessionOpen {
		return false, nil
	}
	stored.Status = model.SessionClosed
	stored.ClosedBy = s.ClosedBy
	stored.ClosedAt = s.ClosedAt
	stored.ClosingCount = s.ClosingCount
	stored.ExpectedCash = s.ExpectedCash
	stored.Variance = s.Variance
	stored.VarianceSeverity = s.VarianceSeverity
	stored.ClosingNote = s.ClosingNote
	return true, nil
}

func (r *fakeSessionRepo) CreateAuditEntry(_ context.Context, e *model.CashAuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	r.audits = append(r.audits, *e)
	return nil
}

func (r *fakeSessionRepo) ListAuditEntries(_ context.Context, sessionID uuid.UUID) ([]model.CashAuditEntry, error) {
	var out []model.CashAuditEntry
	for _, e := range r.audits {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListClosed(_ context.Context, tenantID uuid.UUID, page, limit int) ([]model.CashSession, int64, error) {
	var all []model.CashSession
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.Status == model.SessionClosed {
			all = append(all, *s)
		}
	}
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *fakeSessionRepo) ListOpenedBetween(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]model.CashSession, error) {
	var out []model.CashSession
	for _, s := range r.sessions {
		if s.TenantID == tenantID && !s.OpenedAt.Before(from) && s.OpenedAt.Before(to) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (r *fakeSessionRepo) DB() *gorm.DB { return nil }

var _ repository.SessionRepository = (*fakeSessionRepo)(nil)

// ── In-memory SaleRepository ─────────────────────────────────────────────────

type fakeSaleRepo struct {
	sales   map[uuid.UUID]*model.Sale
	order   []uuid.UUID
	nextNum int64
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{sales: make(map[uuid.UUID]*model.Sale)}
}

func (r *fakeSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	r.sales[s.ID] = s
	r.order = append(r.order, s.ID)
	return nil
}

func (r *fakeSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeSaleRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Sale, error) {
	var out []model.Sale
	for _, id := range r.order {
		if r.sales[id].SessionID == sessionID {
			out = append(out, *r.sales[id])
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) List(_ context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var out []model.Sale
	for _, id := range r.order {
		s := r.sales[id]
		if s.TenantID != tenantID {
			continue
		}
		if filter.SessionID != "" && s.SessionID.String() != filter.SessionID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSaleRepo) NextNumber(_ context.Context, _ *gorm.DB) (int64, error) {
	r.nextNum++
	return r.nextNum, nil
}

func (r *fakeSaleRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, status string) error {
	s, ok := r.sales[id]
	if !ok {
		return errors.New("record not found")
	}
	s.Status = status
	return nil
}

func (r *fakeSaleRepo) UpdateFiscal(_ context.Context, id uuid.UUID, f model.FiscalInfo) error {
	s, ok := r.sales[id]
	if !ok {
		return errors.New("record not found")
	}
	s.Fiscal = f
	return nil
}

func (r *fakeSaleRepo) ListStuckFiscal(_ context.Context, olderThan time.Time, limit int) ([]model.Sale, error) {
	var out []model.Sale
	for _, id := range r.order {
		s := r.sales[id]
		if (s.Fiscal.Status == model.FiscalPending || s.Fiscal.Status == model.FiscalRetry) && s.UpdatedAt.Before(olderThan) {
			out = append(out, *s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*fakeSaleRepo)(nil)

// ── Scripted fiscal gateway ──────────────────────────────────────────────────

// fakeGateway plays back a scripted sequence of submit outcomes and records
// how many reset/submit calls the controller makes.
type fakeGateway struct {
	resetCalls  int
	submitCalls int
	resetErr    error   // returned by every Reset call
	submitErrs  []error // nil entry = success
	number      string
}

func (g *fakeGateway) Reset(_ context.Context, _ uuid.UUID) error {
	g.resetCalls++
	return g.resetErr
}

func (g *fakeGateway) Submit(_ context.Context, _, _ uuid.UUID) (*infra.SubmitResult, error) {
	idx := g.submitCalls
	g.submitCalls++
	if idx < len(g.submitErrs) && g.submitErrs[idx] != nil {
		return nil, g.submitErrs[idx]
	}
	return &infra.SubmitResult{FiscalNumber: g.number}, nil
}

var _ infra.FiscalGateway = (*fakeGateway)(nil)

// ── Recording job queue ──────────────────────────────────────────────────────

type fakeQueue struct {
	enqueued []uuid.UUID
}

func (q *fakeQueue) EnqueueFiscalize(_ context.Context, saleID uuid.UUID, _ *string) error {
	q.enqueued = append(q.enqueued, saleID)
	return nil
}

var _ JobQueue = (*fakeQueue)(nil)

// noSleep fulfils the settle delay instantly and records the durations.
func noSleep(slept *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}
