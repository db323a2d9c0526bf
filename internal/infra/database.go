package infra

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flowzen/internal/model"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate
// to create / update all tables, then applies idempotent SQL patches that
// GORM cannot express (sequences, partial unique indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the schema. Also used by integration tests against
// a containerized postgres.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CashSession{},
		&model.CashAuditEntry{},
		&model.Sale{},
		&model.SaleItem{},
		&model.SalePayment{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot fully
// handle. Each statement uses IF NOT EXISTS semantics so re-running on an
// already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// Ticket numbering for sales.
		`CREATE SEQUENCE IF NOT EXISTS sale_number_seq`,

		// One open session per tenant/facility — the DB-level backstop for
		// the service guard, so a race between two opens cannot leave two
		// open rows.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uni_open_session_per_facility') THEN
		    CREATE UNIQUE INDEX uni_open_session_per_facility
		        ON cash_sessions (tenant_id, facility_id)
		        WHERE status = 'open';
		  END IF;
		END $$`,

		// Partial index for the fiscal sweep cron query.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_sales_fiscal_stuck') THEN
		    CREATE INDEX idx_sales_fiscal_stuck
		        ON sales (updated_at)
		        WHERE fiscal_status IN ('pending', 'retry');
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("schema patch: %w", err)
		}
	}
	return nil
}
