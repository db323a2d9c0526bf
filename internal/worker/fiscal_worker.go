package worker

// Processes fiscal submission jobs from QueueFiscal. Drives the fiscal
// controller for one sale, then generates the PDF receipt and optionally
// enqueues a customer email.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"flowzen/internal/apperr"
	"flowzen/internal/infra"
	"flowzen/internal/repository"
	"flowzen/internal/service"
)

// FiscalJobPayload is the job envelope sent to QueueFiscal.
type FiscalJobPayload struct {
	SaleID        string  `json:"sale_id"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

type FiscalWorker struct {
	fiscal         service.FiscalService
	sales          repository.SaleRepository
	breaker        *infra.Breaker
	dispatcher     *Dispatcher
	rdb            *redis.Client
	pdfStoragePath string
}

func NewFiscalWorker(
	fiscal service.FiscalService,
	sales repository.SaleRepository,
	breaker *infra.Breaker,
	dispatcher *Dispatcher,
	rdb *redis.Client,
	pdfStoragePath string,
) *FiscalWorker {
	return &FiscalWorker{
		fiscal:         fiscal,
		sales:          sales,
		breaker:        breaker,
		dispatcher:     dispatcher,
		rdb:            rdb,
		pdfStoragePath: pdfStoragePath,
	}
}

// Process handles a single fiscal job:
//  1. Parse FiscalJobPayload from the job envelope
//  2. Run the fiscal controller through the circuit breaker
//  3. On terminal failure, park the job in the DLQ (the sale's fiscal
//     status is already 'error'; re-invoking fiscalize retries manually)
//  4. Generate the PDF receipt
//  5. Optionally enqueue an email job with the receipt attached
func (w *FiscalWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload FiscalJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("fiscal_worker: invalid payload")
		return
	}
	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil {
		log.Error().Str("sale_id", payload.SaleID).Msg("fiscal_worker: invalid sale_id")
		return
	}

	ferr := w.breaker.Do(func() error {
		_, err := w.fiscal.Fiscalize(ctx, saleID)
		return err
	})

	if ferr != nil {
		if apperr.IsTransientExternal(ferr) || apperr.IsExternal(ferr) {
			// The controller already recorded fiscal_status=error with the
			// gateway message; park the job for operator inspection.
			SendToDLQ(ctx, w.rdb, QueueFiscal, "fiscal", raw, ferr.Error(), 1)
		} else {
			log.Error().Err(ferr).Str("sale_id", payload.SaleID).Msg("fiscal_worker: fiscalization failed")
		}
		return
	}

	sale, err := w.sales.FindByID(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("fiscal_worker: sale not found after fiscalization")
		return
	}

	pdfPath, pdfErr := infra.GenerateReceiptPDF(sale, w.pdfStoragePath)
	if pdfErr != nil {
		log.Warn().Err(pdfErr).Str("sale_id", payload.SaleID).Msg("fiscal_worker: PDF generation failed")
		return
	}
	log.Info().Str("pdf", pdfPath).Str("sale_id", payload.SaleID).Msg("fiscal_worker: receipt generated")

	if payload.CustomerEmail != nil && *payload.CustomerEmail != "" {
		emailJob := EmailJobPayload{
			ToEmail: *payload.CustomerEmail,
			Subject: fmt.Sprintf("Your receipt — #%d", sale.Number),
			Body:    fmt.Sprintf("Thank you for your purchase.\nTotal: %s", sale.GrandTotal.StringFixed(2)),
			PDFPath: pdfPath,
		}
		if err := w.dispatcher.EnqueueEmail(ctx, emailJob); err != nil {
			log.Warn().Err(err).Str("email", *payload.CustomerEmail).Msg("fiscal_worker: failed to enqueue email")
		}
	}
}
