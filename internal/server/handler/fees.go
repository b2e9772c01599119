package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// FeeService is the fee and treasury surface consumed by the handler.
type FeeService interface {
	SetupCollectionFeeSplit(ctx context.Context, caller, collection common.Address, shares []domain.FeeShare) error
	ClaimCreatorFees(ctx context.Context, caller, currency common.Address) (*big.Int, error)
	ClaimCuratorFees(ctx context.Context, caller, currency common.Address) (*big.Int, error)
}

// FeeGovernor mutates the runtime fee schedule.
type FeeGovernor interface {
	UpdateCuratorFeeBps(bps uint64) error
	UpdateEffectiveFeeBps(level domain.StakeLevel, bps uint64) error
	CuratorFeeBps() uint64
}

// FeeHandler serves fee balances, claims, split configuration and the
// governance knobs of the fee schedule.
type FeeHandler struct {
	fees     FeeService
	governor FeeGovernor
	treasury domain.TreasuryStore
	splits   domain.FeeSplitStore
	logger   *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(fees FeeService, governor FeeGovernor, treasury domain.TreasuryStore, splits domain.FeeSplitStore, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{fees: fees, governor: governor, treasury: treasury, splits: splits, logger: logger}
}

// GetBalance reads an accrued fee balance.
// GET /api/fees/balance?bucket=creator&recipient=0x..&currency=0x..
func (h *FeeHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bucket := domain.FeeBucket(q.Get("bucket"))
	if bucket != domain.FeeBucketCurator && bucket != domain.FeeBucketCreator {
		writeError(w, http.StatusBadRequest, "bucket must be curator or creator")
		return
	}
	recipient := q.Get("recipient")
	currency := q.Get("currency")
	if recipient == "" || currency == "" {
		writeError(w, http.StatusBadRequest, "recipient and currency are required")
		return
	}

	balance, err := h.treasury.Balance(r.Context(), bucket, common.HexToAddress(recipient), common.HexToAddress(currency))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "balance read failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":    bucket,
		"recipient": common.HexToAddress(recipient).Hex(),
		"currency":  common.HexToAddress(currency).Hex(),
		"balance":   balance.String(),
	})
}

type claimRequest struct {
	Bucket   string `json:"bucket"`
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
}

// Claim drains the caller's fee balance in one currency and pays it out.
// POST /api/fees/claim
func (h *FeeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" || req.Currency == "" {
		writeError(w, http.StatusBadRequest, "caller and currency are required")
		return
	}

	caller := common.HexToAddress(req.Caller)
	currency := common.HexToAddress(req.Currency)

	var paid *big.Int
	var err error
	switch domain.FeeBucket(req.Bucket) {
	case domain.FeeBucketCurator:
		paid, err = h.fees.ClaimCuratorFees(r.Context(), caller, currency)
	case domain.FeeBucketCreator:
		paid, err = h.fees.ClaimCreatorFees(r.Context(), caller, currency)
	default:
		writeError(w, http.StatusBadRequest, "bucket must be curator or creator")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "fee claim failed",
			slog.String("bucket", req.Bucket),
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":   req.Bucket,
		"caller":   caller.Hex(),
		"currency": currency.Hex(),
		"paid":     paid.String(),
	})
}

type feeShareWire struct {
	Recipient string `json:"recipient"`
	Bps       uint64 `json:"bps"`
}

type feeSplitRequest struct {
	Caller string         `json:"caller"`
	Shares []feeShareWire `json:"shares"`
}

// SetupFeeSplit creates or replaces a collection's creator-fee override.
// POST /api/collections/{collection}/fee-split
func (h *FeeHandler) SetupFeeSplit(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}

	var req feeSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	shares := make([]domain.FeeShare, 0, len(req.Shares))
	for _, s := range req.Shares {
		shares = append(shares, domain.FeeShare{
			Recipient: common.HexToAddress(s.Recipient),
			Bps:       s.Bps,
		})
	}

	if err := h.fees.SetupCollectionFeeSplit(r.Context(), common.HexToAddress(req.Caller), common.HexToAddress(collection), shares); err != nil {
		h.logger.ErrorContext(r.Context(), "fee split setup failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": common.HexToAddress(collection).Hex(),
		"shares":     len(shares),
	})
}

// GetFeeSplit reads a collection's configured creator-fee override.
// GET /api/collections/{collection}/fee-split
func (h *FeeHandler) GetFeeSplit(w http.ResponseWriter, r *http.Request) {
	collection := common.HexToAddress(r.PathValue("collection"))

	split, err := h.splits.Get(r.Context(), collection)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	shares := make([]feeShareWire, 0, len(split.Shares))
	for _, s := range split.Shares {
		shares = append(shares, feeShareWire{Recipient: s.Recipient.Hex(), Bps: s.Bps})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": split.Collection.Hex(),
		"setter":     split.Setter.Hex(),
		"shares":     shares,
		"total_bps":  split.TotalBps(),
	})
}

type scheduleRequest struct {
	CuratorFeeBps *uint64 `json:"curator_fee_bps,omitempty"`
	StakeLevel    *int    `json:"stake_level,omitempty"`
	EffectiveBps  *uint64 `json:"effective_bps,omitempty"`
}

// UpdateSchedule mutates the runtime fee schedule: the base curator fee or a
// stake tier's effective multiplier.
// POST /api/fees/schedule
func (h *FeeHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.CuratorFeeBps != nil {
		if err := h.governor.UpdateCuratorFeeBps(*req.CuratorFeeBps); err != nil {
			writeDomainError(w, err)
			return
		}
		h.logger.InfoContext(r.Context(), "curator fee updated", slog.Uint64("bps", *req.CuratorFeeBps))
	}
	if req.StakeLevel != nil && req.EffectiveBps != nil {
		if err := h.governor.UpdateEffectiveFeeBps(domain.StakeLevel(*req.StakeLevel), *req.EffectiveBps); err != nil {
			writeDomainError(w, err)
			return
		}
		h.logger.InfoContext(r.Context(), "tier discount updated",
			slog.Int("level", *req.StakeLevel),
			slog.Uint64("effective_bps", *req.EffectiveBps),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"curator_fee_bps": h.governor.CuratorFeeBps(),
	})
}
