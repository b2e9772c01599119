package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/match"
)

// plan is a fully validated, priced and fee-computed pair, ready to execute.
// Planning performs no effects, so an atomic batch can plan every pair before
// touching any balance.
type plan struct {
	kind domain.SettlementKind
	sell domain.Order
	buy  domain.Order
	res  domain.MatchResult
	fb   domain.FeeBreakdown
}

// TakeOrders settles takers[i] against makers[i] for every i. In the default
// atomic mode the whole batch is planned up front, any bad pair fails the
// call before the first transfer, and a transfer failing mid-batch unwinds
// every applied effect so nothing lands. With opts.BestEffort each pair
// stands alone and failures are reported per index.
func (e *Exchange) TakeOrders(ctx context.Context, makers, takers []domain.Order, opts Opts) ([]domain.Settlement, []domain.BatchFailure, error) {
	if len(makers) != len(takers) {
		return nil, nil, fmt.Errorf("exchange: %d makers vs %d takers: %w", len(makers), len(takers), domain.ErrInvalidOrder)
	}
	planOne := func(ctx context.Context, i int) (plan, error) {
		return e.planTake(ctx, makers[i], takers[i], opts)
	}
	return e.runBatch(ctx, len(makers), planOne, opts)
}

// MatchOrders settles sells[i] against buys[i] using constructed[i] to pin
// down concrete items. The constructed orders are relayer-built and unsigned;
// they are constrained by both signed orders during matching.
func (e *Exchange) MatchOrders(ctx context.Context, sells, buys, constructed []domain.Order, opts Opts) ([]domain.Settlement, []domain.BatchFailure, error) {
	if len(sells) != len(buys) || len(sells) != len(constructed) {
		return nil, nil, fmt.Errorf("exchange: mismatched batch lengths %d/%d/%d: %w",
			len(sells), len(buys), len(constructed), domain.ErrInvalidOrder)
	}
	planOne := func(ctx context.Context, i int) (plan, error) {
		return e.planMatch(ctx, sells[i], buys[i], constructed[i], opts)
	}
	return e.runBatch(ctx, len(sells), planOne, opts)
}

func (e *Exchange) runBatch(ctx context.Context, n int, planOne func(context.Context, int) (plan, error), opts Opts) ([]domain.Settlement, []domain.BatchFailure, error) {
	if opts.BestEffort {
		var settled []domain.Settlement
		var failures []domain.BatchFailure
		for i := 0; i < n; i++ {
			p, err := planOne(ctx, i)
			if err == nil {
				var s domain.Settlement
				s, err = e.execute(ctx, p, opts)
				if err == nil {
					settled = append(settled, s)
					continue
				}
			}
			failures = append(failures, domain.BatchFailure{Index: i, Err: err})
		}
		return settled, failures, nil
	}

	plans := make([]plan, 0, n)
	for i := 0; i < n; i++ {
		p, err := planOne(ctx, i)
		if err != nil {
			return nil, nil, fmt.Errorf("exchange: pair %d: %w", i, err)
		}
		plans = append(plans, p)
	}

	// Every pair's asset legs run first, journaled together: a failure on
	// any pair compensates all pairs and the batch lands nothing.
	j := &journal{}
	for i, p := range plans {
		if err := e.transfer(ctx, p, opts, j); err != nil {
			e.unwind(ctx, j)
			return nil, nil, fmt.Errorf("exchange: pair %d: %w", i, err)
		}
	}

	settled := make([]domain.Settlement, 0, n)
	for i, p := range plans {
		s, err := e.record(ctx, p, opts, j)
		if err != nil {
			e.unwind(ctx, j)
			return nil, nil, fmt.Errorf("exchange: pair %d: %w", i, err)
		}
		settled = append(settled, s)
	}

	// Announcements only after the whole batch is committed, so observers
	// never hear about a settlement that unwinds.
	for _, s := range settled {
		e.announce(ctx, s)
	}
	return settled, nil, nil
}

func (e *Exchange) planTake(ctx context.Context, maker, taker domain.Order, opts Opts) (plan, error) {
	now := uint64(e.now().Unix())
	if err := e.deps.Validator.Validate(ctx, maker, now); err != nil {
		return plan{}, err
	}
	if err := e.deps.Validator.Validate(ctx, taker, now); err != nil {
		return plan{}, err
	}

	res, err := e.deps.Matcher.Take(maker, taker, now)
	if err != nil {
		return plan{}, err
	}

	sell, buy := maker, taker
	if !maker.IsSellOrder {
		sell, buy = taker, maker
	}
	return e.finishPlan(ctx, domain.SettlementKindTake, sell, buy, res, opts)
}

func (e *Exchange) planMatch(ctx context.Context, sell, buy, constructed domain.Order, opts Opts) (plan, error) {
	now := uint64(e.now().Unix())
	if err := e.deps.Validator.Validate(ctx, sell, now); err != nil {
		return plan{}, err
	}
	if err := e.deps.Validator.Validate(ctx, buy, now); err != nil {
		return plan{}, err
	}

	res, err := e.deps.Matcher.Match(sell, buy, constructed, now)
	if err != nil {
		return plan{}, err
	}
	return e.finishPlan(ctx, domain.SettlementKindMatch, sell, buy, res, opts)
}

func (e *Exchange) finishPlan(ctx context.Context, kind domain.SettlementKind, sell, buy domain.Order, res domain.MatchResult, opts Opts) (plan, error) {
	fb, err := e.deps.Fees.Compute(ctx, res.Items, res.Price, sell.Signer, opts.UseStakeDiscount)
	if err != nil {
		return plan{}, err
	}

	net := fb.NetToSeller
	if !opts.FeesInCurrency {
		// Fees on top: the seller receives the full clearing price.
		net = res.Price
	}
	if !match.SlippageOK(net, res.Price, sell.MinBpsToSeller) {
		return plan{}, fmt.Errorf("exchange: seller floor %d bps on order %s: %w",
			sell.MinBpsToSeller, sell.ID, domain.ErrSlippageExceeded)
	}
	if !match.SlippageOK(net, res.Price, buy.MinBpsToSeller) {
		return plan{}, fmt.Errorf("exchange: buyer floor %d bps on order %s: %w",
			buy.MinBpsToSeller, buy.ID, domain.ErrSlippageExceeded)
	}

	return plan{kind: kind, sell: sell, buy: buy, res: res, fb: fb}, nil
}

// journal accumulates compensation steps for effects already applied, so a
// failed settlement can restore the pre-settlement balances and ownership.
type journal struct {
	undos []func(context.Context) error
}

func (j *journal) add(fn func(context.Context) error) { j.undos = append(j.undos, fn) }

// unwind compensates every journaled effect, newest first. A failed
// compensation step is logged and skipped so the remaining steps still run.
func (e *Exchange) unwind(ctx context.Context, j *journal) {
	for i := len(j.undos) - 1; i >= 0; i-- {
		if err := j.undos[i](ctx); err != nil {
			e.deps.Logger.Error("settlement unwind step failed", slog.String("error", err.Error()))
		}
	}
}

// settlementAmounts returns what the buyer pays into escrow and what the
// seller nets for one planned pair.
func settlementAmounts(p plan, opts Opts) (buyerPays, netOut *big.Int) {
	buyerPays = new(big.Int).Set(p.res.Price)
	netOut = p.fb.NetToSeller
	if !opts.FeesInCurrency {
		buyerPays.Add(buyerPays, p.fb.CuratorFee)
		buyerPays.Add(buyerPays, p.fb.TotalCreatorFee())
		netOut = p.res.Price
	}
	return buyerPays, netOut
}

// execute settles one planned pair in isolation: the asset legs and ledger
// writes either all land or are all compensated.
func (e *Exchange) execute(ctx context.Context, p plan, opts Opts) (domain.Settlement, error) {
	j := &journal{}
	if err := e.transfer(ctx, p, opts, j); err != nil {
		e.unwind(ctx, j)
		return domain.Settlement{}, err
	}
	s, err := e.record(ctx, p, opts, j)
	if err != nil {
		e.unwind(ctx, j)
		return domain.Settlement{}, err
	}
	e.announce(ctx, s)
	return s, nil
}

// transfer runs the asset legs of one pair, journaling a compensation for
// each applied effect: escrow the buyer's funds, book the fees, move the
// items, pay the seller.
func (e *Exchange) transfer(ctx context.Context, p plan, opts Opts, j *journal) error {
	seller := p.sell.Signer
	buyer := p.buy.Signer
	escrow := e.deps.Treasury.Escrow()
	currency := p.res.Currency
	buyerPays, netOut := settlementAmounts(p, opts)

	if err := e.deps.Assets.TransferFungible(ctx, currency, buyer, escrow, buyerPays); err != nil {
		return fmt.Errorf("exchange: escrow %s from %s: %v: %w",
			buyerPays, buyer.Hex(), err, domain.ErrTransferFailed)
	}
	j.add(func(ctx context.Context) error {
		return e.deps.Assets.TransferFungible(ctx, currency, escrow, buyer, buyerPays)
	})

	if err := e.deps.Treasury.CollectFees(ctx, p.fb, currency); err != nil {
		return err
	}
	j.add(func(ctx context.Context) error {
		return e.deps.Treasury.ReverseFees(ctx, p.fb, currency)
	})

	for _, item := range p.res.Items {
		for _, tok := range item.Tokens {
			if err := e.deps.Assets.TransferNonFungible(ctx, item.Collection, tok.TokenID, seller, buyer); err != nil {
				return fmt.Errorf("exchange: transfer %s/%s: %v: %w",
					item.Collection.Hex(), tok.TokenID, err, domain.ErrTransferFailed)
			}
			coll, id := item.Collection, tok.TokenID
			j.add(func(ctx context.Context) error {
				return e.deps.Assets.TransferNonFungible(ctx, coll, id, buyer, seller)
			})
		}
	}

	if err := e.deps.Assets.TransferFungible(ctx, currency, escrow, seller, netOut); err != nil {
		return fmt.Errorf("exchange: pay seller %s: %v: %w",
			seller.Hex(), err, domain.ErrTransferFailed)
	}
	j.add(func(ctx context.Context) error {
		return e.deps.Assets.TransferFungible(ctx, currency, seller, escrow, netOut)
	})
	return nil
}

// record retires both nonces and persists the settlement. The insert joins
// the journal; a retired nonce has no inverse and stays burned if a later
// failure unwinds the batch, which fails safe: the order can be re-signed
// under a fresh nonce but never replayed.
func (e *Exchange) record(ctx context.Context, p plan, opts Opts, j *journal) (domain.Settlement, error) {
	if err := e.deps.Nonces.Invalidate(ctx, p.sell.Signer, p.sell.Nonce); err != nil {
		return domain.Settlement{}, fmt.Errorf("exchange: retire sell nonce %d: %w", p.sell.Nonce, err)
	}
	if err := e.deps.Nonces.Invalidate(ctx, p.buy.Signer, p.buy.Nonce); err != nil {
		return domain.Settlement{}, fmt.Errorf("exchange: retire buy nonce %d: %w", p.buy.Nonce, err)
	}

	_, netOut := settlementAmounts(p, opts)
	s := domain.Settlement{
		ID:          uuid.NewString(),
		Kind:        p.kind,
		SellOrderID: p.sell.ID,
		BuyOrderID:  p.buy.ID,
		Seller:      p.sell.Signer,
		Buyer:       p.buy.Signer,
		Items:       p.res.Items,
		Price:       p.res.Price,
		Currency:    p.res.Currency,
		CuratorFee:  p.fb.CuratorFee,
		CreatorFees: p.fb.CreatorFees,
		NetToSeller: netOut,
		ExecutedAt:  e.now().UTC(),
	}
	if err := e.deps.Settlements.Insert(ctx, s); err != nil {
		return domain.Settlement{}, fmt.Errorf("exchange: record settlement %s: %w", s.ID, err)
	}
	j.add(func(ctx context.Context) error {
		return e.deps.Settlements.Delete(ctx, s.ID)
	})
	return s, nil
}

// announce publishes a committed settlement to the log, the signal bus and
// the optional notifier.
func (e *Exchange) announce(ctx context.Context, s domain.Settlement) {
	e.deps.Logger.Info("settlement executed",
		slog.String("settlement_id", s.ID),
		slog.String("kind", string(s.Kind)),
		slog.String("seller", s.Seller.Hex()),
		slog.String("buyer", s.Buyer.Hex()),
		slog.String("price", s.Price.String()),
		slog.String("currency", s.Currency.Hex()),
	)
	e.publishEvent(ctx, "settlements", settlementEvent(s))
	if e.deps.Notifier != nil {
		e.deps.Notifier.NotifySettlement(ctx, s)
	}
}

// settlementEvent flattens a settlement into the wire shape published to the
// signal bus.
func settlementEvent(s domain.Settlement) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"kind":          string(s.Kind),
		"sell_order_id": s.SellOrderID,
		"buy_order_id":  s.BuyOrderID,
		"seller":        s.Seller.Hex(),
		"buyer":         s.Buyer.Hex(),
		"price":         s.Price.String(),
		"currency":      s.Currency.Hex(),
		"curator_fee":   s.CuratorFee.String(),
		"net_to_seller": s.NetToSeller.String(),
		"executed_at":   s.ExecutedAt,
	}
}

func (e *Exchange) publishEvent(ctx context.Context, channel string, event map[string]any) {
	if e.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.deps.Bus.Publish(ctx, channel, payload); err != nil {
		e.deps.Logger.Warn("event publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
	if err := e.deps.Bus.StreamAppend(ctx, "stream:"+channel, payload); err != nil {
		e.deps.Logger.Warn("event stream append failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
