package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	w.types[path] = contentType
	return nil
}

type memStore struct {
	settlements []domain.Settlement
}

func (s *memStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, st := range s.settlements {
		if opts.Since != nil && st.ExecutedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !st.ExecutedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, st)
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func testSettlement(id string, executedAt time.Time) domain.Settlement {
	return domain.Settlement{
		ID:          id,
		Kind:        domain.SettlementKindTake,
		Seller:      common.HexToAddress("0x01"),
		Buyer:       common.HexToAddress("0x02"),
		Price:       big.NewInt(1_000_000),
		Currency:    common.HexToAddress("0x03"),
		CuratorFee:  big.NewInt(25_000),
		NetToSeller: big.NewInt(975_000),
		ExecutedAt:  executedAt,
	}
}

func TestArchiveMonthUploadsJSONL(t *testing.T) {
	jan := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	store := &memStore{settlements: []domain.Settlement{
		testSettlement("a", jan),
		testSettlement("b", jan.Add(24*time.Hour)),
		// Outside the month, must not be exported.
		testSettlement("c", jan.AddDate(0, 1, 3)),
	}}
	writer := newMemWriter()
	arch := NewArchiver(writer, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveMonth(context.Background(), jan)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	body, ok := writer.objects["archive/settlements/2026-01.jsonl"]
	require.True(t, ok)
	require.Equal(t, "application/x-ndjson", writer.types["archive/settlements/2026-01.jsonl"])

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"id":"a"`)
	require.Contains(t, lines[0], `"price":"1000000"`)
	require.False(t, bytes.Contains(body, []byte(`"id":"c"`)))
}

func TestArchiveMonthEmptySkipsUpload(t *testing.T) {
	writer := newMemWriter()
	arch := NewArchiver(writer, &memStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveMonth(context.Background(), time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, writer.objects)
}

func TestArchivePathPartitionsByMonth(t *testing.T) {
	month := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "archive/settlements/2025-12.jsonl", ArchivePath(month))
}
