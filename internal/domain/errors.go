package domain

import "errors"

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrExpired                = errors.New("order expired")
	ErrNonceInactive          = errors.New("nonce inactive")
	ErrUnsupportedExecParams  = errors.New("unsupported currency or complication")
	ErrPriceNoOverlap         = errors.New("no price overlap")
	ErrItemConstraintViolated = errors.New("item constraint violation")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrBpsTooHigh             = errors.New("bps too high")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNoFeesToClaim          = errors.New("no fees to claim")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrInvalidOrder           = errors.New("invalid order parameters")
	ErrNotFound               = errors.New("not found")
	ErrLockHeld               = errors.New("lock already held")
)
