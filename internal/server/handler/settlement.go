package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/exchange"
)

// SettlementService is the settlement surface the handler consumes.
type SettlementService interface {
	TakeOrders(ctx context.Context, makers, takers []domain.Order, opts exchange.Opts) ([]domain.Settlement, []domain.BatchFailure, error)
	MatchOrders(ctx context.Context, sells, buys, constructed []domain.Order, opts exchange.Opts) ([]domain.Settlement, []domain.BatchFailure, error)
}

// SettlementHandler serves batch settlement submission and settlement history.
type SettlementHandler struct {
	settle SettlementService
	store  domain.SettlementStore
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settle SettlementService, store domain.SettlementStore, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settle: settle, store: store, logger: logger}
}

type optsWire struct {
	FeesInCurrency   bool `json:"fees_in_currency"`
	UseStakeDiscount bool `json:"use_stake_discount"`
	BestEffort       bool `json:"best_effort"`
}

func (o optsWire) toOpts() exchange.Opts {
	return exchange.Opts{
		FeesInCurrency:   o.FeesInCurrency,
		UseStakeDiscount: o.UseStakeDiscount,
		BestEffort:       o.BestEffort,
	}
}

type takeRequest struct {
	Makers []orderWire `json:"makers"`
	Takers []orderWire `json:"takers"`
	Opts   optsWire    `json:"opts"`
}

type matchRequest struct {
	Sells       []orderWire `json:"sells"`
	Buys        []orderWire `json:"buys"`
	Constructed []orderWire `json:"constructed"`
	Opts        optsWire    `json:"opts"`
}

type failureWire struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type batchResponse struct {
	Settlements []settlementWire `json:"settlements"`
	Failures    []failureWire    `json:"failures,omitempty"`
}

func failuresToWire(failures []domain.BatchFailure) []failureWire {
	out := make([]failureWire, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureWire{Index: f.Index, Error: f.Err.Error()})
	}
	return out
}

// TakeOrders settles maker/taker pairs.
// POST /api/settlements/take
func (h *SettlementHandler) TakeOrders(w http.ResponseWriter, r *http.Request) {
	var req takeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	makers, err := ordersFromWire(req.Makers)
	if err != nil {
		writeError(w, http.StatusBadRequest, "makers: "+err.Error())
		return
	}
	takers, err := ordersFromWire(req.Takers)
	if err != nil {
		writeError(w, http.StatusBadRequest, "takers: "+err.Error())
		return
	}

	settled, failures, err := h.settle.TakeOrders(r.Context(), makers, takers, req.Opts.toOpts())
	h.writeBatch(w, r, settled, failures, err)
}

// MatchOrders settles sell/buy pairs pinned down by relayer-constructed
// orders.
// POST /api/settlements/match
func (h *SettlementHandler) MatchOrders(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sells, err := ordersFromWire(req.Sells)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sells: "+err.Error())
		return
	}
	buys, err := ordersFromWire(req.Buys)
	if err != nil {
		writeError(w, http.StatusBadRequest, "buys: "+err.Error())
		return
	}
	constructed, err := ordersFromWire(req.Constructed)
	if err != nil {
		writeError(w, http.StatusBadRequest, "constructed: "+err.Error())
		return
	}

	settled, failures, err := h.settle.MatchOrders(r.Context(), sells, buys, constructed, req.Opts.toOpts())
	h.writeBatch(w, r, settled, failures, err)
}

// writeBatch renders a batch outcome. A failed atomic batch is fully
// unwound before the call returns, so an error always means nothing
// settled.
func (h *SettlementHandler) writeBatch(w http.ResponseWriter, r *http.Request, settled []domain.Settlement, failures []domain.BatchFailure, err error) {
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch settlement failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Settlements: settlementsToWire(settled),
		Failures:    failuresToWire(failures),
	})
}

// GetSettlement returns one settlement by id.
// GET /api/settlements/{id}
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "settlement id is required")
		return
	}

	s, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "settlement lookup failed", slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementToWire(s))
}

// ListSettlements returns recent settlements, newest first.
// GET /api/settlements
func (h *SettlementHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "settlement list failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": settlementsToWire(list),
		"count":       len(list),
	})
}
