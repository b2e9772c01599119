// Package validate decides whether a single signed order is currently
// executable: structurally sound, unexpired, allow-listed, nonce-active and
// carrying a valid signature.
package validate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmatch/nftx/internal/crypto"
	"github.com/openmatch/nftx/internal/domain"
)

// Validator composes the codec verifier, nonce ledger and allow-list checks.
// Sell-side ownership is deliberately not checked here: it is re-checked
// atomically by the asset-transfer collaborator at settlement time, so a
// validator-time read could only ever be stale.
type Validator struct {
	verifier *crypto.Verifier
	nonces   domain.NonceStore
	allow    domain.AllowListRegistry
	logger   *slog.Logger
}

// New creates a Validator.
func New(verifier *crypto.Verifier, nonces domain.NonceStore, allow domain.AllowListRegistry, logger *slog.Logger) *Validator {
	return &Validator{verifier: verifier, nonces: nonces, allow: allow, logger: logger}
}

// Validate checks the order against the current time. It short-circuits on
// the first failure with the specific error kind; no partial validation
// state is retained.
func (v *Validator) Validate(ctx context.Context, o domain.Order, nowUnix uint64) error {
	// Structural checks first; they need no I/O.
	if o.StartTime > o.EndTime {
		return fmt.Errorf("validate: start %d after end %d: %w", o.StartTime, o.EndTime, domain.ErrInvalidOrder)
	}
	if nowUnix > o.EndTime {
		return fmt.Errorf("validate: order %s ended at %d: %w", o.ID, o.EndTime, domain.ErrExpired)
	}
	if o.NumItems < 1 {
		return fmt.Errorf("validate: zero item constraint: %w", domain.ErrInvalidOrder)
	}
	if o.StartPrice == nil || o.EndPrice == nil || o.StartPrice.Sign() < 0 || o.EndPrice.Sign() < 0 {
		return fmt.Errorf("validate: malformed price bounds: %w", domain.ErrInvalidOrder)
	}

	currencyOK, err := v.allow.IsCurrencyAllowed(ctx, o.ExecParams.Currency)
	if err != nil {
		return fmt.Errorf("validate: currency allow-list: %w", err)
	}
	complicationOK, err := v.allow.IsComplicationAllowed(ctx, o.ExecParams.Complication)
	if err != nil {
		return fmt.Errorf("validate: complication allow-list: %w", err)
	}
	if !currencyOK || !complicationOK {
		return fmt.Errorf("validate: order %s: %w", o.ID, domain.ErrUnsupportedExecParams)
	}

	active, err := v.nonces.IsActive(ctx, o.Signer, o.Nonce)
	if err != nil {
		return fmt.Errorf("validate: nonce lookup: %w", err)
	}
	if !active {
		return fmt.Errorf("validate: order %s nonce %d: %w", o.ID, o.Nonce, domain.ErrNonceInactive)
	}

	if !v.verifier.VerifyOrder(o) {
		v.logger.Debug("order signature rejected",
			slog.String("order_id", o.ID),
			slog.String("signer", o.Signer.Hex()),
		)
		return fmt.Errorf("validate: order %s: %w", o.ID, domain.ErrInvalidSignature)
	}

	return nil
}
