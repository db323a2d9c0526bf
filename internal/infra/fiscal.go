package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel conditions the fiscal submission controller branches on. The
// gateway distinguishes them so the controller never sniffs response shapes.
var (
	// ErrNothingToReset: no stale in-flight marker existed. Non-fatal.
	ErrNothingToReset = errors.New("fiscal: nothing to reset")
	// ErrSubmissionInProgress: the authority holds an exclusive per-sale
	// lock, usually left by a half-completed prior attempt.
	ErrSubmissionInProgress = errors.New("fiscal: submission in progress")
)

// SubmitResult is the authority's answer to a successful submission.
type SubmitResult struct {
	FiscalNumber string `json:"fiscal_number"`
}

// FiscalGateway is the external tax-authority integration boundary.
type FiscalGateway interface {
	// Reset clears any stale in-flight submission marker for the sale.
	// Returns ErrNothingToReset when there was nothing to clear.
	Reset(ctx context.Context, saleID uuid.UUID) error
	// Submit sends the finalized sale and returns its legal fiscal number.
	// Returns ErrSubmissionInProgress when the per-sale lock is held.
	Submit(ctx context.Context, saleID, facilityID uuid.UUID) (*SubmitResult, error)
}

// FiscalClient talks HTTP to the fiscal sidecar, which handles the
// authority's session/signing protocol and returns plain JSON.
type FiscalClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewFiscalClient(baseURL string) *FiscalClient {
	return &FiscalClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type fiscalErrorBody struct {
	Detail string `json:"detail"`
}

func (c *FiscalClient) Reset(ctx context.Context, saleID uuid.UUID) error {
	body, _ := json.Marshal(map[string]string{"sale_id": saleID.String()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reset", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fiscal: create reset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fiscal: gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNothingToReset
	default:
		return fmt.Errorf("fiscal: reset returned %d: %s", resp.StatusCode, decodeDetail(resp))
	}
}

func (c *FiscalClient) Submit(ctx context.Context, saleID, facilityID uuid.UUID) (*SubmitResult, error) {
	body, _ := json.Marshal(map[string]string{
		"sale_id":     saleID.String(),
		"facility_id": facilityID.String(),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fiscal: create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fiscal: gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var result SubmitResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("fiscal: decode submit response: %w", err)
		}
		return &result, nil
	}

	detail := decodeDetail(resp)
	// The sidecar signals the per-sale lock with 409; older deployments
	// only set the message, so match both.
	if resp.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(detail), "submission in progress") {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionInProgress, detail)
	}
	return nil, fmt.Errorf("fiscal: submit returned %d: %s", resp.StatusCode, detail)
}

func decodeDetail(resp *http.Response) string {
	var b fiscalErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil || b.Detail == "" {
		return resp.Status
	}
	return b.Detail
}
