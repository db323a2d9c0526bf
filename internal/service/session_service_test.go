package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowzen/internal/apperr"
	"flowzen/internal/dto"
	"flowzen/internal/model"
	"flowzen/internal/money"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newSessionFixture() (SessionService, *fakeSessionRepo, *fakeSaleRepo) {
	sessions := newFakeSessionRepo()
	sales := newFakeSaleRepo()
	svc := NewSessionService(sessions, sales, money.DefaultThresholds())
	return svc, sessions, sales
}

func openSession(t *testing.T, svc SessionService, tenantID uuid.UUID, openingFloat string) *dto.SessionResponse {
	t.Helper()
	resp, err := svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID:   uuid.NewString(),
		FacilityName: "Main Salon",
		OpeningFloat: dec(openingFloat),
	})
	require.NoError(t, err)
	return resp
}

func TestOpenSession(t *testing.T) {
	svc, _, _ := newSessionFixture()

	resp := openSession(t, svc, uuid.New(), "5000")

	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.Equal(t, "5000", resp.OpeningFloat.String())
	assert.True(t, resp.Totals[money.MethodCash].IsZero())
}

func TestOpenSessionNegativeFloat(t *testing.T) {
	svc, _, _ := newSessionFixture()

	_, err := svc.Open(context.Background(), uuid.New(), uuid.New(), dto.OpenSessionRequest{
		FacilityID:   uuid.NewString(),
		FacilityName: "Main Salon",
		OpeningFloat: dec("-1"),
	})

	assert.True(t, apperr.IsValidation(err))
}

func TestOpenSessionConflict(t *testing.T) {
	svc, _, _ := newSessionFixture()
	tenantID := uuid.New()
	facilityID := uuid.NewString()

	_, err := svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID: facilityID, FacilityName: "Main Salon", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)

	// Second open for the same tenant/facility must conflict.
	_, err = svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID: facilityID, FacilityName: "Main Salon", OpeningFloat: dec("100"),
	})
	assert.True(t, apperr.IsConflict(err))

	// A different facility of the same tenant opens fine.
	_, err = svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID: uuid.NewString(), FacilityName: "Annex", OpeningFloat: dec("100"),
	})
	assert.NoError(t, err)
}

func TestCountCashExactMatch(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")
	sessionID := uuid.MustParse(resp.ID)

	require.NoError(t, svc.PostSaleTx(nil, sessionID, []money.PaymentAmount{
		{Method: money.MethodCash, Amount: dec("1200")},
	}))

	result, err := svc.CountCash(context.Background(), dto.CountCashRequest{
		SessionID: resp.ID, CountedCash: dec("6200"),
	})
	require.NoError(t, err)

	assert.Equal(t, "6200", result.ExpectedCash.String())
	assert.True(t, result.Variance.IsZero())
	assert.Equal(t, money.SeverityAcceptable, result.Severity)
}

func TestCountCashShortage(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")
	sessionID := uuid.MustParse(resp.ID)

	require.NoError(t, svc.PostSaleTx(nil, sessionID, []money.PaymentAmount{
		{Method: money.MethodCash, Amount: dec("1200")},
	}))

	result, err := svc.CountCash(context.Background(), dto.CountCashRequest{
		SessionID: resp.ID, CountedCash: dec("5600"),
	})
	require.NoError(t, err)

	assert.Equal(t, "-600", result.Variance.String())
	assert.Equal(t, money.SeverityCritical, result.Severity)
}

// Counting is a probe: it never mutates the session, so it can run any
// number of times before closing with identical results.
func TestCountCashIsNonMutating(t *testing.T) {
	svc, repo, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")
	sessionID := uuid.MustParse(resp.ID)

	for i := 0; i < 3; i++ {
		result, err := svc.CountCash(context.Background(), dto.CountCashRequest{
			SessionID: resp.ID, CountedCash: dec("4000"),
		})
		require.NoError(t, err)
		assert.Equal(t, "-1000", result.Variance.String())
	}

	stored := repo.sessions[sessionID]
	assert.Equal(t, model.SessionOpen, stored.Status)
	assert.Empty(t, repo.audits)
}

func TestVerifyRecordsAuditEntry(t *testing.T) {
	svc, _, _ := newSessionFixture()
	tenantID := uuid.New()
	resp := openSession(t, svc, tenantID, "5000")
	sessionID := uuid.MustParse(resp.ID)

	result, err := svc.VerifyCashCount(context.Background(), uuid.New(), dto.VerifyCountRequest{
		SessionID: resp.ID, ActualCash: dec("5000"),
	})
	require.NoError(t, err)
	assert.True(t, result.Variance.IsZero())

	trail, err := svc.AuditTrail(context.Background(), tenantID, sessionID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.AuditVerify, trail[0].Kind)
}

func TestHandleVarianceRequiresDisposition(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")

	// 800 short: beyond the acceptable threshold, so action and reason
	// are mandatory.
	_, err := svc.HandleVariance(context.Background(), uuid.New(), dto.HandleVarianceRequest{
		SessionID: resp.ID, ActualCash: dec("4200"),
	})
	assert.True(t, apperr.IsValidation(err))

	result, err := svc.HandleVariance(context.Background(), uuid.New(), dto.HandleVarianceRequest{
		SessionID:  resp.ID,
		ActualCash: dec("4200"),
		Action:     model.VarianceEscalate,
		Reason:     "drawer shortage pending investigation",
	})
	require.NoError(t, err)
	assert.Equal(t, money.SeverityCritical, result.Severity)
	assert.Equal(t, model.VarianceEscalate, result.Action)
}

func TestHandleVarianceAcceptableNeedsNoReason(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")

	result, err := svc.HandleVariance(context.Background(), uuid.New(), dto.HandleVarianceRequest{
		SessionID: resp.ID, ActualCash: dec("4950"),
	})
	require.NoError(t, err)
	assert.Equal(t, money.SeverityAcceptable, result.Severity)
	assert.Equal(t, model.VarianceAccept, result.Action)
}

func TestCloseComputesFromLedger(t *testing.T) {
	svc, repo, sales := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")
	sessionID := uuid.MustParse(resp.ID)

	// One cash sale in the ledger; the cache is deliberately left stale to
	// prove close recomputes from sales, not from the running totals.
	require.NoError(t, sales.Create(context.Background(), nil, &model.Sale{
		SessionID:  sessionID,
		Status:     model.SaleFinal,
		GrandTotal: dec("1200"),
		Payments:   []model.SalePayment{{Method: money.MethodCash, Amount: dec("1200")}},
	}))

	closed, err := svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("6150"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionClosed, closed.Status)
	require.NotNil(t, closed.ExpectedCash)
	assert.Equal(t, "6200", closed.ExpectedCash.String())
	assert.Equal(t, "-50", closed.Variance.String())
	assert.Equal(t, money.SeverityAcceptable, *closed.VarianceSeverity)
	assert.Equal(t, model.SessionClosed, repo.sessions[sessionID].Status)
}

func TestCloseTwiceFails(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "1000")

	_, err := svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("1000"),
	})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("1000"),
	})
	assert.True(t, apperr.IsInvalidState(err))
}

func TestCloseCriticalVarianceNeedsNote(t *testing.T) {
	svc, _, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "5000")

	_, err := svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("4000"),
	})
	assert.True(t, apperr.IsValidation(err))

	note := "till lifted for evening deposit, discrepancy reported"
	closed, err := svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("4000"), Note: &note,
	})
	require.NoError(t, err)
	assert.Equal(t, money.SeverityCritical, *closed.VarianceSeverity)
}

func TestPostToClosedSessionFails(t *testing.T) {
	svc, repo, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "1000")
	sessionID := uuid.MustParse(resp.ID)

	_, err := svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: resp.ID, ClosingCount: dec("1000"),
	})
	require.NoError(t, err)

	err = svc.PostSaleTx(nil, sessionID, []money.PaymentAmount{
		{Method: money.MethodCash, Amount: dec("300")},
	})
	assert.True(t, apperr.IsInvalidState(err))

	// Totals must be untouched by the rejected posting.
	assert.True(t, repo.sessions[sessionID].TotalCash.IsZero())
}

func TestPostRefundAccumulatesCashRefunds(t *testing.T) {
	svc, repo, _ := newSessionFixture()
	resp := openSession(t, svc, uuid.New(), "1000")
	sessionID := uuid.MustParse(resp.ID)

	require.NoError(t, svc.PostSaleTx(nil, sessionID, []money.PaymentAmount{
		{Method: money.MethodCash, Amount: dec("500")},
		{Method: money.MethodCard, Amount: dec("200")},
	}))
	require.NoError(t, svc.PostRefundTx(nil, sessionID, []money.PaymentAmount{
		{Method: money.MethodCash, Amount: dec("150")},
	}))

	stored := repo.sessions[sessionID]
	assert.Equal(t, "350", stored.TotalCash.String()) // net of the refund
	assert.Equal(t, "150", stored.CashRefunds.String())
	assert.Equal(t, "200", stored.TotalCard.String())

	// Cache-based probe: expected = 1000 + 500 - 150.
	result, err := svc.CountCash(context.Background(), dto.CountCashRequest{
		SessionID: resp.ID, CountedCash: dec("1350"),
	})
	require.NoError(t, err)
	assert.True(t, result.Variance.IsZero())
}

func TestActiveAndHistory(t *testing.T) {
	svc, _, _ := newSessionFixture()
	tenantID := uuid.New()
	facilityID := uuid.NewString()

	opened, err := svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID: facilityID, FacilityName: "Main Salon", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)

	active, err := svc.Active(context.Background(), tenantID, uuid.MustParse(facilityID))
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, opened.ID, active.ID)

	_, err = svc.Close(context.Background(), uuid.New(), dto.CloseSessionRequest{
		SessionID: opened.ID, ClosingCount: dec("100"),
	})
	require.NoError(t, err)

	active, err = svc.Active(context.Background(), tenantID, uuid.MustParse(facilityID))
	require.NoError(t, err)
	assert.Nil(t, active)

	history, err := svc.History(context.Background(), tenantID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), history.Total)
	require.Len(t, history.Data, 1)
	assert.Equal(t, opened.ID, history.Data[0].ID)
}

// A repository failure must surface as an error, not read as "no open
// session": collapsing it to nil would let a duplicate session be opened.
func TestActiveRepoErrorPropagates(t *testing.T) {
	svc, repo, _ := newSessionFixture()
	tenantID := uuid.New()
	facilityID := uuid.New()

	repo.openErr = errors.New("connection refused")
	_, err := svc.Active(context.Background(), tenantID, facilityID)
	require.Error(t, err)

	_, err = svc.Open(context.Background(), tenantID, uuid.New(), dto.OpenSessionRequest{
		FacilityID: facilityID.String(), FacilityName: "Main Salon", OpeningFloat: dec("100"),
	})
	require.Error(t, err)
	assert.False(t, apperr.IsConflict(err))

	repo.openErr = nil
	active, err := svc.Active(context.Background(), tenantID, facilityID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

// Sessions of other tenants read as not found rather than leaking.
func TestReportAndAuditTrailScopedToTenant(t *testing.T) {
	svc, _, _ := newSessionFixture()
	tenantID := uuid.New()
	resp := openSession(t, svc, tenantID, "5000")
	sessionID := uuid.MustParse(resp.ID)

	report, err := svc.Report(context.Background(), tenantID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, report.ID)

	_, err = svc.Report(context.Background(), uuid.New(), sessionID)
	assert.True(t, apperr.IsInvalidState(err))

	_, err = svc.AuditTrail(context.Background(), uuid.New(), sessionID)
	assert.True(t, apperr.IsInvalidState(err))
}
