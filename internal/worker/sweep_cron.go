package worker

// Background goroutine that periodically re-drives fiscalization for sales
// stuck in fiscal_status pending/retry — typically sales whose enqueue was
// lost or whose worker crashed mid-protocol. Gated by the circuit breaker
// so a downed fiscal sidecar is not hammered.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"flowzen/internal/infra"
	"flowzen/internal/repository"
	"flowzen/internal/service"
)

const (
	sweepTickInterval = 60 * time.Second
	sweepBatchSize    = 10
	// sweepMinAge keeps the cron away from sales a live worker is still
	// actively processing.
	sweepMinAge = 5 * time.Minute
)

// SweepCronConfig holds the dependencies of the sweep goroutine.
type SweepCronConfig struct {
	Sales   repository.SaleRepository
	Fiscal  service.FiscalService
	Breaker *infra.Breaker
}

// StartSweepCron launches a goroutine that ticks every minute, queries
// stuck sales and re-invokes the fiscal controller through the breaker.
// Respects the context for graceful shutdown.
func StartSweepCron(ctx context.Context, cfg SweepCronConfig) {
	go func() {
		ticker := time.NewTicker(sweepTickInterval)
		defer ticker.Stop()

		log.Info().Msg("sweep_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sweep_cron: shutting down")
				return
			case <-ticker.C:
				sweep(ctx, cfg)
			}
		}
	}()
}

func sweep(ctx context.Context, cfg SweepCronConfig) {
	if cfg.Breaker.State() == infra.BreakerOpen {
		log.Debug().Msg("sweep_cron: circuit breaker is open, skipping tick")
		return
	}

	cutoff := time.Now().Add(-sweepMinAge)
	stuck, err := cfg.Sales.ListStuckFiscal(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("sweep_cron: failed to query stuck sales")
		return
	}
	if len(stuck) == 0 {
		return
	}

	log.Info().Int("count", len(stuck)).Msg("sweep_cron: re-driving stuck fiscalizations")

	for i := range stuck {
		// The breaker may have tripped mid-batch.
		if cfg.Breaker.State() == infra.BreakerOpen {
			log.Debug().Msg("sweep_cron: circuit breaker opened mid-batch, stopping")
			return
		}

		saleID := stuck[i].ID
		err := cfg.Breaker.Do(func() error {
			_, err := cfg.Fiscal.Fiscalize(ctx, saleID)
			return err
		})
		if err != nil {
			// Fiscalize already moved the sale to a terminal-for-now state;
			// nothing further to do here besides logging.
			log.Warn().Err(err).Str("sale_id", saleID.String()).Msg("sweep_cron: fiscalization still failing")
			continue
		}
		log.Info().Str("sale_id", saleID.String()).Msg("sweep_cron: sale fiscalized")
	}
}
