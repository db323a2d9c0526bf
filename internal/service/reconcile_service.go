package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowzen/internal/apperr"
	"flowzen/internal/dto"
	"flowzen/internal/model"
	"flowzen/internal/money"
	"flowzen/internal/repository"
)

// ReconcileService is the read-only reconciliation engine. Every figure it
// reports is recomputed from the sale ledger on each call; nothing here
// mutates a session, so reports are idempotent and safe to re-run.
type ReconcileService interface {
	Reconcile(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.ReconciliationReport, error)
	// PeriodReport aggregates every session opened in [from, to) for the
	// tenant, open sessions contributing provisional figures.
	PeriodReport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*dto.PeriodReport, error)
}

type reconcileService struct {
	sessions   repository.SessionRepository
	sales      repository.SaleRepository
	thresholds money.Thresholds
}

func NewReconcileService(sessions repository.SessionRepository, sales repository.SaleRepository, thresholds money.Thresholds) ReconcileService {
	return &reconcileService{sessions: sessions, sales: sales, thresholds: thresholds}
}

// ledgerTotals is what a full replay of a session's sales yields.
type ledgerTotals struct {
	// totals holds net per-method amounts (refund payments are negative).
	totals map[string]decimal.Decimal
	// cashSales / cashRefunds are the gross cash components of expected cash.
	cashSales   decimal.Decimal
	cashRefunds decimal.Decimal
	// grossSales / grossRefunds cover all tender kinds, for revenue summaries.
	grossSales   decimal.Decimal
	grossRefunds decimal.Decimal
}

// ledgerFromSales replays the authoritative sale ledger. Payment rows on
// refund sales carry negative amounts, so net per-method totals are a plain
// sum; the gross split is recovered from the sign.
func ledgerFromSales(sales []model.Sale) ledgerTotals {
	lt := ledgerTotals{
		totals:       money.AggregateByMethod(nil),
		cashSales:    decimal.Zero,
		cashRefunds:  decimal.Zero,
		grossSales:   decimal.Zero,
		grossRefunds: decimal.Zero,
	}
	for i := range sales {
		for _, p := range sales[i].Payments {
			method := p.Method
			if _, known := lt.totals[method]; !known {
				method = money.MethodOther
			}
			lt.totals[method] = lt.totals[method].Add(p.Amount)

			if p.Amount.IsNegative() {
				lt.grossRefunds = lt.grossRefunds.Add(p.Amount.Abs())
				if method == money.MethodCash {
					lt.cashRefunds = lt.cashRefunds.Add(p.Amount.Abs())
				}
			} else {
				lt.grossSales = lt.grossSales.Add(p.Amount)
				if method == money.MethodCash {
					lt.cashSales = lt.cashSales.Add(p.Amount)
				}
			}
		}
	}
	return lt
}

func (s *reconcileService) Reconcile(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.ReconciliationReport, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	// Sessions of other tenants read as not found.
	if err != nil || session.TenantID != tenantID {
		return nil, apperr.NewInvalidState("cash session not found")
	}
	sales, err := s.sales.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.build(session, sales), nil
}

// build assembles one session's report from its replayed ledger. For closed
// sessions the frozen closing figures are reported verbatim; the recomputed
// expected cash is still derived from the ledger so drift is visible.
func (s *reconcileService) build(session *model.CashSession, sales []model.Sale) *dto.ReconciliationReport {
	lt := ledgerFromSales(sales)
	expected := money.ExpectedCash(session.OpeningFloat, lt.cashSales, lt.cashRefunds)

	report := &dto.ReconciliationReport{
		SessionID:    session.ID.String(),
		FacilityID:   session.FacilityID.String(),
		FacilityName: session.FacilityName,
		Status:       session.Status,
		Provisional:  session.IsOpen(),
		OpeningFloat: session.OpeningFloat,
		ExpectedCash: expected,
		Totals:       lt.totals,
		Summary: dto.RevenueSummary{
			TotalSales:   lt.grossSales,
			TotalRefunds: lt.grossRefunds,
			NetSales:     lt.grossSales.Sub(lt.grossRefunds),
		},
		Ledger: dto.CashFlowLedger{
			Opening:  session.OpeningFloat,
			Sales:    lt.cashSales,
			Refunds:  lt.cashRefunds,
			Expected: expected,
		},
	}

	if !session.IsOpen() && session.ClosingCount != nil {
		actual := *session.ClosingCount
		variance := money.Variance(actual, expected)
		severity := money.ClassifySeverity(variance, s.thresholds)
		report.ActualCash = &actual
		report.Variance = &variance
		report.Severity = &severity
		report.Ledger.Actual = &actual
		report.Ledger.Variance = &variance
	}
	return report
}

func (s *reconcileService) PeriodReport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*dto.PeriodReport, error) {
	if !to.After(from) {
		return nil, apperr.NewValidation("to", "must be after from")
	}
	sessions, err := s.sessions.ListOpenedBetween(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	report := &dto.PeriodReport{
		From:               from.UTC().Format(time.RFC3339),
		To:                 to.UTC().Format(time.RFC3339),
		TotalSessionCount:  len(sessions),
		TotalOpeningFloat:  decimal.Zero,
		TotalExpectedCash:  decimal.Zero,
		TotalActualCash:    decimal.Zero,
		TotalVariance:      decimal.Zero,
		VariancePercentage: decimal.Zero,
		Sessions:           make([]dto.ReconciliationReport, 0, len(sessions)),
	}

	for i := range sessions {
		sales, err := s.sales.ListBySession(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		one := s.build(&sessions[i], sales)
		report.Sessions = append(report.Sessions, *one)

		report.TotalOpeningFloat = report.TotalOpeningFloat.Add(one.OpeningFloat)
		report.TotalExpectedCash = report.TotalExpectedCash.Add(one.ExpectedCash)
		if one.ActualCash != nil {
			report.TotalActualCash = report.TotalActualCash.Add(*one.ActualCash)
		}
		if one.Variance != nil {
			report.TotalVariance = report.TotalVariance.Add(*one.Variance)
		}
	}

	// Ratio guards the zero denominator: a period of empty sessions reports
	// 0% rather than dividing by zero.
	report.VariancePercentage = money.Ratio(report.TotalVariance, report.TotalExpectedCash)
	return report, nil
}
