package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmatch/nftx/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. Item
// sets and creator-fee allocations are stored as JSONB; monetary amounts as
// NUMERIC(78,0).
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// itemRow and allocRow are the JSONB shapes for the nested settlement fields.
type itemRow struct {
	Collection string     `json:"collection"`
	Tokens     []tokenRow `json:"tokens"`
}

type tokenRow struct {
	TokenID   string `json:"token_id"`
	NumTokens string `json:"num_tokens"`
}

type allocRow struct {
	Recipient  string `json:"recipient"`
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
}

func encodeItems(items []domain.OrderItem) ([]byte, error) {
	rows := make([]itemRow, 0, len(items))
	for _, it := range items {
		r := itemRow{Collection: addrKey(it.Collection)}
		for _, tok := range it.Tokens {
			r.Tokens = append(r.Tokens, tokenRow{
				TokenID:   tok.TokenID.String(),
				NumTokens: tok.NumTokens.String(),
			})
		}
		rows = append(rows, r)
	}
	return json.Marshal(rows)
}

func decodeItems(data []byte) ([]domain.OrderItem, error) {
	var rows []itemRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(rows))
	for _, r := range rows {
		it := domain.OrderItem{Collection: common.HexToAddress(r.Collection)}
		for _, tok := range r.Tokens {
			id, err := parseNumeric(tok.TokenID)
			if err != nil {
				return nil, err
			}
			num, err := parseNumeric(tok.NumTokens)
			if err != nil {
				return nil, err
			}
			it.Tokens = append(it.Tokens, domain.TokenInfo{TokenID: id, NumTokens: num})
		}
		items = append(items, it)
	}
	return items, nil
}

func encodeAllocs(allocs []domain.FeeAllocation) ([]byte, error) {
	rows := make([]allocRow, 0, len(allocs))
	for _, a := range allocs {
		rows = append(rows, allocRow{
			Recipient:  addrKey(a.Recipient),
			Collection: addrKey(a.Collection),
			Amount:     a.Amount.String(),
		})
	}
	return json.Marshal(rows)
}

func decodeAllocs(data []byte) ([]domain.FeeAllocation, error) {
	var rows []allocRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	allocs := make([]domain.FeeAllocation, 0, len(rows))
	for _, r := range rows {
		amount, err := parseNumeric(r.Amount)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, domain.FeeAllocation{
			Recipient:  common.HexToAddress(r.Recipient),
			Collection: common.HexToAddress(r.Collection),
			Amount:     amount,
		})
	}
	return allocs, nil
}

// Insert persists one settlement.
func (s *SettlementStore) Insert(ctx context.Context, st domain.Settlement) error {
	items, err := encodeItems(st.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode settlement items: %w", err)
	}
	allocs, err := encodeAllocs(st.CreatorFees)
	if err != nil {
		return fmt.Errorf("postgres: encode creator fees: %w", err)
	}

	const query = `
		INSERT INTO settlements (
			id, kind, sell_order_id, buy_order_id, seller, buyer,
			items, price, currency, curator_fee, creator_fees,
			net_to_seller, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::numeric, $9, $10::numeric, $11,
			$12::numeric, $13
		)`
	_, err = s.pool.Exec(ctx, query,
		st.ID, string(st.Kind), st.SellOrderID, st.BuyOrderID,
		addrKey(st.Seller), addrKey(st.Buyer),
		items, st.Price.String(), addrKey(st.Currency),
		st.CuratorFee.String(), allocs,
		st.NetToSeller.String(), st.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", st.ID, err)
	}
	return nil
}

const settlementSelectCols = `id, kind, sell_order_id, buy_order_id, seller, buyer,
	items, price::text, currency, curator_fee::text, creator_fees,
	net_to_seller::text, executed_at`

func scanSettlement(row pgx.Row) (domain.Settlement, error) {
	var (
		st                             domain.Settlement
		kind, seller, buyer, currency  string
		items, allocs                  []byte
		price, curatorFee, netToSeller string
		executedAt                     time.Time
	)
	err := row.Scan(
		&st.ID, &kind, &st.SellOrderID, &st.BuyOrderID, &seller, &buyer,
		&items, &price, &currency, &curatorFee, &allocs,
		&netToSeller, &executedAt,
	)
	if err != nil {
		return domain.Settlement{}, err
	}

	st.Kind = domain.SettlementKind(kind)
	st.Seller = common.HexToAddress(seller)
	st.Buyer = common.HexToAddress(buyer)
	st.Currency = common.HexToAddress(currency)
	st.ExecutedAt = executedAt

	if st.Items, err = decodeItems(items); err != nil {
		return domain.Settlement{}, err
	}
	if st.CreatorFees, err = decodeAllocs(allocs); err != nil {
		return domain.Settlement{}, err
	}
	if st.Price, err = parseNumeric(price); err != nil {
		return domain.Settlement{}, err
	}
	if st.CuratorFee, err = parseNumeric(curatorFee); err != nil {
		return domain.Settlement{}, err
	}
	if st.NetToSeller, err = parseNumeric(netToSeller); err != nil {
		return domain.Settlement{}, err
	}
	return st, nil
}

// GetByID returns one settlement, domain.ErrNotFound when absent.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements WHERE id = $1`

	st, err := scanSettlement(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Settlement{}, fmt.Errorf("postgres: settlement %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: settlement %s: %w", id, err)
	}
	return st, nil
}

// Delete removes a settlement record, domain.ErrNotFound when absent.
func (s *SettlementStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settlements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete settlement %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete settlement %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns settlements newest first with optional time bounds.
func (s *SettlementStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements WHERE TRUE`
	args := []any{}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND executed_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND executed_at <= $%d", len(args))
	}
	query += " ORDER BY executed_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
