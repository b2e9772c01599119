package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmatch/nftx/internal/domain"
)

// SettlementArchiveStore is the read surface the archiver needs. The
// Postgres settlement store satisfies it through ListRecent.
type SettlementArchiveStore interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error)
}

// archivePageSize bounds each store read while draining a month.
const archivePageSize = 500

// Archiver uploads executed settlements as newline-delimited JSON, one
// object per calendar month. Records stay in the primary store; the archive
// is an append-only export, not a migration.
type Archiver struct {
	writer domain.BlobWriter
	store  SettlementArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, store SettlementArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{writer: writer, store: store, logger: logger}
}

// settlementRecord is the archived shape: amounts as decimal strings so the
// JSONL survives tooling that mangles large integers.
type settlementRecord struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	SellOrderID string            `json:"sell_order_id"`
	BuyOrderID  string            `json:"buy_order_id"`
	Seller      string            `json:"seller"`
	Buyer       string            `json:"buyer"`
	Price       string            `json:"price"`
	Currency    string            `json:"currency"`
	CuratorFee  string            `json:"curator_fee"`
	CreatorFees map[string]string `json:"creator_fees"`
	NetToSeller string            `json:"net_to_seller"`
	ExecutedAt  time.Time         `json:"executed_at"`
}

func recordOf(s domain.Settlement) settlementRecord {
	creator := make(map[string]string, len(s.CreatorFees))
	for _, a := range s.CreatorFees {
		creator[a.Recipient.Hex()] = a.Amount.String()
	}
	return settlementRecord{
		ID:          s.ID,
		Kind:        string(s.Kind),
		SellOrderID: s.SellOrderID,
		BuyOrderID:  s.BuyOrderID,
		Seller:      s.Seller.Hex(),
		Buyer:       s.Buyer.Hex(),
		Price:       s.Price.String(),
		Currency:    s.Currency.Hex(),
		CuratorFee:  s.CuratorFee.String(),
		CreatorFees: creator,
		NetToSeller: s.NetToSeller.String(),
		ExecutedAt:  s.ExecutedAt,
	}
}

// ArchiveMonth exports every settlement executed inside the month containing
// ref to archive/settlements/YYYY-MM.jsonl and returns the record count.
// An empty month uploads nothing.
func (a *Archiver) ArchiveMonth(ctx context.Context, ref time.Time) (int64, error) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var records []settlementRecord
	offset := 0
	for {
		page, err := a.store.ListRecent(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive query: %w", err)
		}
		for _, s := range page {
			records = append(records, recordOf(s))
		}
		if len(page) < archivePageSize {
			break
		}
		offset += len(page)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := ArchivePath(start)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("settlements archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
	)
	return int64(len(records)), nil
}

// Run re-exports the previous month on every tick until ctx is cancelled.
// Re-uploading is idempotent: the partition key depends only on the month.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			prev := time.Now().UTC().AddDate(0, -1, 0)
			if _, err := a.ArchiveMonth(ctx, prev); err != nil {
				a.logger.Error("settlement archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchivePath is the object key for a month's settlement export.
func ArchivePath(month time.Time) string {
	return fmt.Sprintf("archive/settlements/%s.jsonl", month.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
