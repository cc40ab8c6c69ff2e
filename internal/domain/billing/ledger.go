package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ledger is the billing system boundary. CreateInvoice returns the ledger's
// invoice identifier; any error is retryable from this core's point of view.
type Ledger interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (string, error)
}

// HTTPLedger posts invoice requests to the external billing service.
type HTTPLedger struct {
	endpoint string
	client   *http.Client
}

func NewHTTPLedger(endpoint string) *HTTPLedger {
	return &HTTPLedger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *HTTPLedger) CreateInvoice(ctx context.Context, req InvoiceRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/invoices", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post invoice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ledger returned %d: %s", resp.StatusCode, snippet)
	}

	var out struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ledger response: %w", err)
	}
	if out.InvoiceID == "" {
		return "", fmt.Errorf("ledger response missing invoice_id")
	}
	return out.InvoiceID, nil
}
