package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowzen/internal/apperr"
	"flowzen/internal/model"
	"flowzen/internal/money"
)

func seedClosedSession(t *testing.T, repo *fakeSessionRepo, tenantID uuid.UUID, openedAt time.Time, openingFloat, closingCount string) *model.CashSession {
	t.Helper()
	count := dec(closingCount)
	now := openedAt.Add(8 * time.Hour)
	s := &model.CashSession{
		TenantID:     tenantID,
		FacilityID:   uuid.New(),
		FacilityName: "Main Salon",
		OpenedBy:     uuid.New(),
		OpenedAt:     openedAt,
		OpeningFloat: dec(openingFloat),
		Status:       model.SessionClosed,
		ClosedAt:     &now,
		ClosingCount: &count,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestReconcileClosedSession(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	s := seedClosedSession(t, sessions, uuid.New(), time.Now().Add(-10*time.Hour), "5000", "6150")
	require.NoError(t, sales.Create(context.Background(), nil, &model.Sale{
		SessionID:  s.ID,
		Status:     model.SaleFinal,
		GrandTotal: dec("1500"),
		Payments: []model.SalePayment{
			{Method: money.MethodCash, Amount: dec("1200")},
			{Method: money.MethodCard, Amount: dec("300")},
		},
	}))
	require.NoError(t, sales.Create(context.Background(), nil, &model.Sale{
		SessionID:  s.ID,
		Status:     model.SaleFinal,
		RefundFor:  &s.ID, // any non-nil link marks it a refund
		GrandTotal: dec("-100"),
		Payments: []model.SalePayment{
			{Method: money.MethodCash, Amount: dec("-100")},
		},
	}))

	report, err := svc.Reconcile(context.Background(), s.TenantID, s.ID)
	require.NoError(t, err)

	assert.False(t, report.Provisional)
	assert.Equal(t, "6100", report.ExpectedCash.String()) // 5000 + 1200 - 100
	require.NotNil(t, report.ActualCash)
	assert.Equal(t, "6150", report.ActualCash.String())
	assert.Equal(t, "50", report.Variance.String())
	assert.Equal(t, money.SeverityAcceptable, *report.Severity)

	assert.Equal(t, "1100", report.Totals[money.MethodCash].String())
	assert.Equal(t, "300", report.Totals[money.MethodCard].String())

	assert.Equal(t, "1500", report.Summary.TotalSales.String())
	assert.Equal(t, "100", report.Summary.TotalRefunds.String())
	assert.Equal(t, "1400", report.Summary.NetSales.String())

	assert.Equal(t, "5000", report.Ledger.Opening.String())
	assert.Equal(t, "1200", report.Ledger.Sales.String())
	assert.Equal(t, "100", report.Ledger.Refunds.String())
}

// Reconciliation is read-only: running it twice over the same closed
// session yields identical reports.
func TestReconcileIdempotent(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	s := seedClosedSession(t, sessions, uuid.New(), time.Now().Add(-10*time.Hour), "2000", "2050")
	require.NoError(t, sales.Create(context.Background(), nil, &model.Sale{
		SessionID:  s.ID,
		Status:     model.SaleFinal,
		GrandTotal: dec("75"),
		Payments:   []model.SalePayment{{Method: money.MethodCash, Amount: dec("75")}},
	}))

	first, err := svc.Reconcile(context.Background(), s.TenantID, s.ID)
	require.NoError(t, err)
	second, err := svc.Reconcile(context.Background(), s.TenantID, s.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// A session belonging to another tenant reads as not found.
func TestReconcileScopedToTenant(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	s := seedClosedSession(t, sessions, uuid.New(), time.Now().Add(-10*time.Hour), "2000", "2000")

	_, err := svc.Reconcile(context.Background(), uuid.New(), s.ID)
	assert.True(t, apperr.IsInvalidState(err))
}

func TestReconcileOpenSessionIsProvisional(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	s := &model.CashSession{
		TenantID:     uuid.New(),
		FacilityID:   uuid.New(),
		FacilityName: "Main Salon",
		OpenedBy:     uuid.New(),
		OpenedAt:     time.Now(),
		OpeningFloat: dec("500"),
		Status:       model.SessionOpen,
	}
	require.NoError(t, sessions.Create(context.Background(), s))

	report, err := svc.Reconcile(context.Background(), s.TenantID, s.ID)
	require.NoError(t, err)

	assert.True(t, report.Provisional)
	assert.Nil(t, report.ActualCash)
	assert.Nil(t, report.Variance)
	assert.Nil(t, report.Ledger.Actual)
	assert.Equal(t, "500", report.ExpectedCash.String())
}

func TestPeriodReportAggregates(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())
	tenantID := uuid.New()

	from := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	// Two sessions: expected 1000 and 2000, counted 990 and 2050.
	seedClosedSession(t, sessions, tenantID, from.Add(1*time.Hour), "1000", "990")
	seedClosedSession(t, sessions, tenantID, from.Add(2*time.Hour), "2000", "2050")
	// Outside the period — must not contribute.
	seedClosedSession(t, sessions, tenantID, from.Add(-3*time.Hour), "9999", "9999")

	report, err := svc.PeriodReport(context.Background(), tenantID, from, to)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalSessionCount)
	assert.Equal(t, "3000", report.TotalOpeningFloat.String())
	assert.Equal(t, "3000", report.TotalExpectedCash.String())
	assert.Equal(t, "3040", report.TotalActualCash.String())
	assert.Equal(t, "40", report.TotalVariance.String())
	assert.Equal(t, "1.33", report.VariancePercentage.String())
	assert.Len(t, report.Sessions, 2)
}

func TestPeriodReportZeroExpected(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	from := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	report, err := svc.PeriodReport(context.Background(), uuid.New(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalSessionCount)
	assert.True(t, report.VariancePercentage.IsZero())
}

func TestPeriodReportInvalidRange(t *testing.T) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewReconcileService(sessions, sales, money.DefaultThresholds())

	now := time.Now()
	_, err := svc.PeriodReport(context.Background(), uuid.New(), now, now)
	assert.Error(t, err)
}
