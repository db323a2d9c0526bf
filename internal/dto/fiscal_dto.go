package dto

// FiscalStatusResponse mirrors a sale's fiscal sub-record.
// Status: pending | success | error | retry.
type FiscalStatusResponse struct {
	SaleID      string  `json:"sale_id"`
	Status      string  `json:"status"`
	Number      *string `json:"fiscal_number,omitempty"`
	Error       *string `json:"error,omitempty"`
	ProcessedAt *string `json:"processed_at,omitempty"`
	RetryCount  int     `json:"retry_count"`
}
