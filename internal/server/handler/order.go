package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// OrderService is what the order handler needs from the exchange.
type OrderService interface {
	VerifyOrderSignature(o domain.Order) bool
	IsNonceValid(ctx context.Context, signer common.Address, nonce uint64) (bool, error)
	CancelOrders(ctx context.Context, signer common.Address, nonces []uint64) error
	CancelAllOrders(ctx context.Context, signer common.Address, minNonce uint64) error
}

// OrderHandler serves order verification and cancellation endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// VerifyOrder checks an order's signature against its claimed signer.
// POST /api/orders/verify
func (h *OrderHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var wire orderWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := orderFromWire(wire)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"valid":    h.orders.VerifyOrderSignature(order),
	})
}

// GetNonce reports whether a (signer, nonce) pair may still authorize an
// order.
// GET /api/nonces/{signer}/{nonce}
func (h *OrderHandler) GetNonce(w http.ResponseWriter, r *http.Request) {
	signer := common.HexToAddress(r.PathValue("signer"))
	nonce, err := strconv.ParseUint(r.PathValue("nonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid nonce")
		return
	}

	active, err := h.orders.IsNonceValid(r.Context(), signer, nonce)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "nonce lookup failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signer": signer.Hex(),
		"nonce":  nonce,
		"active": active,
	})
}

type cancelRequest struct {
	Signer   string   `json:"signer"`
	Nonces   []uint64 `json:"nonces"`
	MinNonce uint64   `json:"min_nonce"`
}

// CancelOrders invalidates individual nonces for a signer.
// POST /api/orders/cancel
func (h *OrderHandler) CancelOrders(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Signer == "" || len(req.Nonces) == 0 {
		writeError(w, http.StatusBadRequest, "signer and nonces are required")
		return
	}

	if err := h.orders.CancelOrders(r.Context(), common.HexToAddress(req.Signer), req.Nonces); err != nil {
		h.logger.ErrorContext(r.Context(), "cancel orders failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": len(req.Nonces)})
}

// CancelAllOrders raises a signer's minimum-nonce floor.
// POST /api/orders/cancel-all
func (h *OrderHandler) CancelAllOrders(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Signer == "" || req.MinNonce == 0 {
		writeError(w, http.StatusBadRequest, "signer and min_nonce are required")
		return
	}

	if err := h.orders.CancelAllOrders(r.Context(), common.HexToAddress(req.Signer), req.MinNonce); err != nil {
		h.logger.ErrorContext(r.Context(), "cancel all failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"min_nonce": req.MinNonce})
}
