// Package notify pushes settlement notifications to external webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/openmatch/nftx/internal/domain"
)

// WebhookSender posts executed settlements to a configured webhook URL.
// Delivery is best effort: a failed post is logged, never retried, and never
// affects the settlement itself.
type WebhookSender struct {
	url      string
	minPrice *big.Int
	client   *http.Client
	logger   *slog.Logger
}

// NewWebhookSender creates a WebhookSender. Settlements priced below
// minPrice are skipped; a nil or zero minPrice notifies on everything.
func NewWebhookSender(url string, minPrice *big.Int, timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:      url,
		minPrice: minPrice,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// NotifySettlement posts the settlement as JSON when it clears the price
// threshold.
func (s *WebhookSender) NotifySettlement(ctx context.Context, settlement domain.Settlement) {
	if s.minPrice != nil && s.minPrice.Sign() > 0 && settlement.Price.Cmp(s.minPrice) < 0 {
		return
	}

	if err := s.post(ctx, settlement); err != nil {
		s.logger.Warn("settlement webhook failed",
			slog.String("settlement_id", settlement.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WebhookSender) post(ctx context.Context, settlement domain.Settlement) error {
	payload := map[string]any{
		"event":         "settlement.executed",
		"id":            settlement.ID,
		"kind":          string(settlement.Kind),
		"seller":        settlement.Seller.Hex(),
		"buyer":         settlement.Buyer.Hex(),
		"price":         settlement.Price.String(),
		"currency":      settlement.Currency.Hex(),
		"curator_fee":   settlement.CuratorFee.String(),
		"net_to_seller": settlement.NetToSeller.String(),
		"executed_at":   settlement.ExecutedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
