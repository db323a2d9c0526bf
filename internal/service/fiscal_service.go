package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flowzen/internal/apperr"
	"flowzen/internal/dto"
	"flowzen/internal/infra"
	"flowzen/internal/model"
	"flowzen/internal/repository"
)

// The fiscal submission protocol is a per-sale state machine:
//
//	idle → resetting → settling → submitting → done
//	                      ^            |
//	                      └── retry ───┘ (budget: exactly one)
//
// Reset always precedes submit: the authority holds an exclusive per-sale
// lock that a crashed prior attempt can leave stuck, and reset clears it.
// Transitions are pure (fiscalMachine.step) so the protocol is testable
// without real delays; the driver loop owns the side effects.

type fiscalPhase int

const (
	phaseIdle fiscalPhase = iota
	phaseResetting
	phaseSettling
	phaseSubmitting
	phaseDone
	phaseFailed
)

type fiscalEvent int

const (
	evStart fiscalEvent = iota
	evResetOK
	evResetFailed
	evSettled
	evSubmitOK
	evSubmitInProgress
	evSubmitFailed
)

// retryBudget is the number of extra attempts allowed for the "submission
// in progress" condition only. All other failures are terminal.
const retryBudget = 1

type fiscalMachine struct {
	phase   fiscalPhase
	retries int
}

// step is the pure transition function. Unexpected events leave the machine
// unchanged rather than panicking; the driver never emits them.
func (m fiscalMachine) step(ev fiscalEvent) fiscalMachine {
	switch {
	case m.phase == phaseIdle && ev == evStart:
		m.phase = phaseResetting
	case m.phase == phaseResetting && ev == evResetOK:
		m.phase = phaseSettling
	case m.phase == phaseResetting && ev == evResetFailed:
		m.phase = phaseFailed
	case m.phase == phaseSettling && ev == evSettled:
		m.phase = phaseSubmitting
	case m.phase == phaseSubmitting && ev == evSubmitOK:
		m.phase = phaseDone
	case m.phase == phaseSubmitting && ev == evSubmitInProgress:
		if m.retries < retryBudget {
			m.retries++
			m.phase = phaseResetting
		} else {
			m.phase = phaseFailed
		}
	case m.phase == phaseSubmitting && ev == evSubmitFailed:
		m.phase = phaseFailed
	}
	return m
}

// SleepFunc abstracts the settle delay so tests run without real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FiscalService drives the two-phase submission of finalized sales to the
// external fiscal authority. It mutates only the sale's fiscal sub-record;
// fiscal failures never block session closing.
type FiscalService interface {
	// Fiscalize runs the full protocol for one sale. Idempotent: a sale
	// already fiscalized returns its current status without resubmitting.
	Fiscalize(ctx context.Context, saleID uuid.UUID) (*dto.FiscalStatusResponse, error)
	Status(ctx context.Context, saleID uuid.UUID) (*dto.FiscalStatusResponse, error)
}

type fiscalService struct {
	sales   repository.SaleRepository
	gateway infra.FiscalGateway
	settle  time.Duration
	sleep   SleepFunc
	now     func() time.Time
	log     zerolog.Logger
}

// NewFiscalService wires the controller. A nil sleep uses the real clock.
func NewFiscalService(sales repository.SaleRepository, gateway infra.FiscalGateway, settle time.Duration, sleep SleepFunc, log zerolog.Logger) FiscalService {
	if sleep == nil {
		sleep = realSleep
	}
	return &fiscalService{
		sales:   sales,
		gateway: gateway,
		settle:  settle,
		sleep:   sleep,
		now:     time.Now,
		log:     log,
	}
}

func (s *fiscalService) Fiscalize(ctx context.Context, saleID uuid.UUID) (*dto.FiscalStatusResponse, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, apperr.NewInvalidState("sale not found")
	}
	if sale.Fiscal.Status == model.FiscalSuccess {
		return fiscalToResponse(sale), nil
	}

	fiscal := sale.Fiscal
	m := fiscalMachine{phase: phaseIdle}.step(evStart)
	var lastErr error

	for m.phase != phaseDone && m.phase != phaseFailed {
		switch m.phase {
		case phaseResetting:
			err := s.gateway.Reset(ctx, sale.ID)
			if err != nil && !errors.Is(err, infra.ErrNothingToReset) {
				lastErr = apperr.NewExternal(err.Error())
				m = m.step(evResetFailed)
				continue
			}
			m = m.step(evResetOK)

		case phaseSettling:
			if err := s.sleep(ctx, s.settle); err != nil {
				lastErr = apperr.NewExternal(err.Error())
				m.phase = phaseFailed
				continue
			}
			m = m.step(evSettled)

		case phaseSubmitting:
			result, err := s.gateway.Submit(ctx, sale.ID, sale.FacilityID)
			switch {
			case err == nil:
				if fiscal.Number == nil {
					// Set exactly once; never overwritten on later calls.
					fiscal.Number = &result.FiscalNumber
				}
				m = m.step(evSubmitOK)
			case errors.Is(err, infra.ErrSubmissionInProgress):
				lastErr = apperr.NewTransientExternal(err.Error())
				m = m.step(evSubmitInProgress)
				if m.phase == phaseResetting {
					// Mark the retry so a crash mid-retry is visible to
					// the sweep instead of looking freshly pending.
					fiscal.Status = model.FiscalRetry
					fiscal.RetryCount = m.retries
					if uerr := s.sales.UpdateFiscal(ctx, sale.ID, fiscal); uerr != nil {
						return nil, uerr
					}
					s.log.Warn().
						Str("sale_id", sale.ID.String()).
						Int("retry", m.retries).
						Msg("fiscal submission in progress, retrying after reset")
				}
			default:
				lastErr = apperr.NewExternal(err.Error())
				m = m.step(evSubmitFailed)
			}
		}
	}

	now := s.now().UTC()
	fiscal.ProcessedAt = &now
	fiscal.RetryCount = m.retries

	if m.phase == phaseDone {
		fiscal.Status = model.FiscalSuccess
		fiscal.Error = nil
		if err := s.sales.UpdateFiscal(ctx, sale.ID, fiscal); err != nil {
			return nil, err
		}
		sale.Fiscal = fiscal
		s.log.Info().
			Str("sale_id", sale.ID.String()).
			Str("fiscal_number", *fiscal.Number).
			Msg("sale fiscalized")
		return fiscalToResponse(sale), nil
	}

	// Terminal failure: record it and surface the typed error so the caller
	// can distinguish the exhausted-retry case from a hard gateway failure.
	msg := lastErr.Error()
	fiscal.Status = model.FiscalError
	fiscal.Error = &msg
	if err := s.sales.UpdateFiscal(ctx, sale.ID, fiscal); err != nil {
		return nil, err
	}
	s.log.Error().
		Str("sale_id", sale.ID.String()).
		Int("retries", m.retries).
		Str("reason", msg).
		Msg("fiscalization failed")
	return nil, lastErr
}

func (s *fiscalService) Status(ctx context.Context, saleID uuid.UUID) (*dto.FiscalStatusResponse, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, apperr.NewInvalidState("sale not found")
	}
	return fiscalToResponse(sale), nil
}

func fiscalToResponse(sale *model.Sale) *dto.FiscalStatusResponse {
	resp := &dto.FiscalStatusResponse{
		SaleID:     sale.ID.String(),
		Status:     sale.Fiscal.Status,
		Number:     sale.Fiscal.Number,
		Error:      sale.Fiscal.Error,
		RetryCount: sale.Fiscal.RetryCount,
	}
	if sale.Fiscal.ProcessedAt != nil {
		v := sale.Fiscal.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &v
	}
	return resp
}
