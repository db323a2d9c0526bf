package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flowzen/internal/apperr"
	"flowzen/internal/dto"
	"flowzen/internal/model"
	"flowzen/internal/money"
	"flowzen/internal/repository"
)

// SessionService is the cash session state machine: open → (counting /
// verification cycles) → closed. It is the only component allowed to mutate
// a CashSession; the reconciliation engine is a read-only consumer.
type SessionService interface {
	Open(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	// CountCash is a non-mutating probe against the session's current
	// expected cash; it may be called any number of times before closing.
	CountCash(ctx context.Context, req dto.CountCashRequest) (*dto.CashCountingResult, error)
	// VerifyCashCount records that a human confirmed a counted amount.
	VerifyCashCount(ctx context.Context, operatorID uuid.UUID, req dto.VerifyCountRequest) (*dto.CashVerificationResult, error)
	// HandleVariance records a disposition for a variance found during
	// counting. Action and reason are mandatory beyond the acceptable
	// threshold.
	HandleVariance(ctx context.Context, operatorID uuid.UUID, req dto.HandleVarianceRequest) (*dto.CashVarianceResult, error)
	Close(ctx context.Context, operatorID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error)
	Active(ctx context.Context, tenantID, facilityID uuid.UUID) (*dto.SessionResponse, error)
	History(ctx context.Context, tenantID uuid.UUID, page, limit int) (*dto.SessionListResponse, error)
	Report(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error)
	AuditTrail(ctx context.Context, tenantID, sessionID uuid.UUID) ([]dto.AuditEntryResponse, error)

	// PostSaleTx / PostRefundTx additively apply a sale's payments to the
	// session's running totals inside the caller's transaction. They fail
	// with InvalidStateError when the session is no longer open.
	PostSaleTx(tx *gorm.DB, sessionID uuid.UUID, payments []money.PaymentAmount) error
	PostRefundTx(tx *gorm.DB, sessionID uuid.UUID, payments []money.PaymentAmount) error
}

type sessionService struct {
	repo       repository.SessionRepository
	sales      repository.SaleRepository
	thresholds money.Thresholds
}

func NewSessionService(repo repository.SessionRepository, sales repository.SaleRepository, thresholds money.Thresholds) SessionService {
	return &sessionService{repo: repo, sales: sales, thresholds: thresholds}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, tenantID, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if req.OpeningFloat.IsNegative() {
		return nil, apperr.NewValidation("opening_float", "must not be negative")
	}
	facilityID, err := uuid.Parse(req.FacilityID)
	if err != nil {
		return nil, apperr.NewValidation("facility_id", "invalid uuid")
	}

	// Guard: at most one open session per tenant/facility. The partial
	// unique index on cash_sessions backstops this against racing opens.
	existing, err := s.repo.FindOpenByFacility(ctx, tenantID, facilityID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.NewConflict("an open cash session already exists for this facility")
	}

	session := &model.CashSession{
		TenantID:     tenantID,
		FacilityID:   facilityID,
		FacilityName: req.FacilityName,
		OpenedBy:     operatorID,
		OpenedAt:     time.Now().UTC(),
		OpeningFloat: req.OpeningFloat,
		OpeningNote:  req.Note,
		Status:       model.SessionOpen,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return sessionToResponse(session), nil
}

// ── Counting / verification / variance ────────────────────────────────────────

// probe loads the session and computes the current expected cash from the
// running cache. The cache holds net totals (refunds posted negatively), so
// gross cash is reconstructed by adding back the refund accumulator.
func (s *sessionService) probe(ctx context.Context, sessionID string) (*model.CashSession, decimal.Decimal, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, decimal.Zero, apperr.NewValidation("session_id", "invalid uuid")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, decimal.Zero, apperr.NewInvalidState("cash session not found")
	}
	grossCash := session.TotalCash.Add(session.CashRefunds)
	expected := money.ExpectedCash(session.OpeningFloat, grossCash, session.CashRefunds)
	return session, expected, nil
}

func (s *sessionService) CountCash(ctx context.Context, req dto.CountCashRequest) (*dto.CashCountingResult, error) {
	session, expected, err := s.probe(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	variance := money.Variance(req.CountedCash, expected)
	return &dto.CashCountingResult{
		SessionID:    session.ID.String(),
		ExpectedCash: expected,
		CountedCash:  req.CountedCash,
		Variance:     variance,
		Severity:     money.ClassifySeverity(variance, s.thresholds),
	}, nil
}

func (s *sessionService) VerifyCashCount(ctx context.Context, operatorID uuid.UUID, req dto.VerifyCountRequest) (*dto.CashVerificationResult, error) {
	session, expected, err := s.probe(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	variance := money.Variance(req.ActualCash, expected)
	severity := money.ClassifySeverity(variance, s.thresholds)

	entry := &model.CashAuditEntry{
		SessionID:    session.ID,
		Kind:         model.AuditVerify,
		CountedCash:  req.ActualCash,
		ExpectedCash: expected,
		Variance:     variance,
		Severity:     severity,
		Note:         req.Note,
		RecordedBy:   operatorID,
	}
	if err := s.repo.CreateAuditEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &dto.CashVerificationResult{
		SessionID:  session.ID.String(),
		ActualCash: req.ActualCash,
		Variance:   variance,
		Severity:   severity,
		VerifiedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *sessionService) HandleVariance(ctx context.Context, operatorID uuid.UUID, req dto.HandleVarianceRequest) (*dto.CashVarianceResult, error) {
	session, expected, err := s.probe(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	variance := money.Variance(req.ActualCash, expected)
	severity := money.ClassifySeverity(variance, s.thresholds)

	if severity != money.SeverityAcceptable {
		if req.Action == "" {
			return nil, apperr.NewValidation("action", "required when variance exceeds the acceptable threshold")
		}
		if req.Reason == "" {
			return nil, apperr.NewValidation("reason", "required when variance exceeds the acceptable threshold")
		}
	}
	action := req.Action
	if action == "" {
		action = model.VarianceAccept
	}

	entry := &model.CashAuditEntry{
		SessionID:    session.ID,
		Kind:         model.AuditVariance,
		CountedCash:  req.ActualCash,
		ExpectedCash: expected,
		Variance:     variance,
		Severity:     severity,
		Action:       &action,
		Reason:       &req.Reason,
		RecordedBy:   operatorID,
	}
	if err := s.repo.CreateAuditEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &dto.CashVarianceResult{
		SessionID: session.ID.String(),
		Variance:  variance,
		Severity:  severity,
		Action:    action,
		Reason:    req.Reason,
	}, nil
}

// ── Close ─────────────────────────────────────────────────────────────────────

// Close freezes expected cash and variance at the moment of closing. The
// figures come from the authoritative sale ledger, not the running cache,
// to tolerate drift from crashed postings.
func (s *sessionService) Close(ctx context.Context, operatorID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error) {
	if req.ClosingCount.IsNegative() {
		return nil, apperr.NewValidation("closing_count", "must not be negative")
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apperr.NewValidation("session_id", "invalid uuid")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.NewInvalidState("cash session not found")
	}
	if !session.IsOpen() {
		return nil, apperr.NewInvalidState("cash session is already closed")
	}

	sales, err := s.sales.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger := ledgerFromSales(sales)

	expected := money.ExpectedCash(session.OpeningFloat, ledger.cashSales, ledger.cashRefunds)
	variance := money.Variance(req.ClosingCount, expected)
	severity := money.ClassifySeverity(variance, s.thresholds)

	// Critical or severe variances need a supervisor note on record.
	if (severity == money.SeverityCritical || severity == money.SeveritySevere) &&
		(req.Note == nil || *req.Note == "") {
		return nil, apperr.NewValidation("note", "a note is required when closing with a "+severity+" variance")
	}

	now := time.Now().UTC()
	session.ClosedBy = &operatorID
	session.ClosedAt = &now
	session.ClosingCount = &req.ClosingCount
	session.ExpectedCash = &expected
	session.Variance = &variance
	session.VarianceSeverity = &severity
	session.ClosingNote = req.Note

	// Compare-and-swap on status: a close racing another close (or a late
	// sale posting) resolves deterministically at the session row.
	ok, err := s.repo.Close(ctx, session)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewInvalidState("cash session is already closed")
	}

	session.Status = model.SessionClosed
	return sessionToResponse(session), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Active returns nil, nil when no session is open for the facility. A
// repository failure propagates: it must not read as "no open session",
// or an outage would invite opening a duplicate.
func (s *sessionService) Active(ctx context.Context, tenantID, facilityID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindOpenByFacility(ctx, tenantID, facilityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *sessionService) History(ctx context.Context, tenantID uuid.UUID, page, limit int) (*dto.SessionListResponse, error) {
	sessions, total, err := s.repo.ListClosed(ctx, tenantID, page, limit)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, *sessionToResponse(&sessions[i]))
	}
	return &dto.SessionListResponse{Data: items, Total: total, Page: page, Limit: limit}, nil
}

// Report and AuditTrail answer "not found" for sessions of other tenants;
// the existence of a foreign session must not leak through the error.
func (s *sessionService) Report(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil || session.TenantID != tenantID {
		return nil, apperr.NewInvalidState("cash session not found")
	}
	return sessionToResponse(session), nil
}

func (s *sessionService) AuditTrail(ctx context.Context, tenantID, sessionID uuid.UUID) ([]dto.AuditEntryResponse, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil || session.TenantID != tenantID {
		return nil, apperr.NewInvalidState("cash session not found")
	}
	entries, err := s.repo.ListAuditEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntryResponse{
			ID:           e.ID.String(),
			Kind:         e.Kind,
			CountedCash:  e.CountedCash,
			ExpectedCash: e.ExpectedCash,
			Variance:     e.Variance,
			Severity:     e.Severity,
			Action:       e.Action,
			Reason:       e.Reason,
			Note:         e.Note,
			RecordedBy:   e.RecordedBy.String(),
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

// ── Postings ──────────────────────────────────────────────────────────────────

func (s *sessionService) PostSaleTx(tx *gorm.DB, sessionID uuid.UUID, payments []money.PaymentAmount) error {
	deltas := money.AggregateByMethod(payments)
	rows, err := s.repo.AddTotalsTx(tx, sessionID, deltas, decimal.Zero)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NewInvalidState("cash session is not open")
	}
	return nil
}

func (s *sessionService) PostRefundTx(tx *gorm.DB, sessionID uuid.UUID, payments []money.PaymentAmount) error {
	negated := make([]money.PaymentAmount, 0, len(payments))
	cashRefund := decimal.Zero
	for _, p := range payments {
		amt := p.Amount
		if amt.IsPositive() {
			amt = amt.Neg()
		}
		if p.Method == money.MethodCash {
			cashRefund = cashRefund.Add(amt.Abs())
		}
		negated = append(negated, money.PaymentAmount{Method: p.Method, Amount: amt})
	}
	deltas := money.AggregateByMethod(negated)
	rows, err := s.repo.AddTotalsTx(tx, sessionID, deltas, cashRefund)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NewInvalidState("cash session is not open")
	}
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func sessionToResponse(s *model.CashSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:           s.ID.String(),
		FacilityID:   s.FacilityID.String(),
		FacilityName: s.FacilityName,
		Status:       s.Status,
		OpenedBy:     s.OpenedBy.String(),
		OpenedAt:     s.OpenedAt.UTC().Format(time.RFC3339),
		OpeningFloat: s.OpeningFloat,
		Totals:       s.CachedTotals(),
	}
	if s.ClosedBy != nil {
		v := s.ClosedBy.String()
		resp.ClosedBy = &v
	}
	if s.ClosedAt != nil {
		v := s.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &v
	}
	resp.ClosingCount = s.ClosingCount
	resp.ExpectedCash = s.ExpectedCash
	resp.Variance = s.Variance
	resp.VarianceSeverity = s.VarianceSeverity
	return resp
}
