// Package chain holds the on-chain collaborators: asset transfers executed
// by the relayer key, royalty lookups and staking-tier reads. Everything here
// speaks raw ABI over an ethclient; no generated bindings.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	txGasLimit     = uint64(300_000)
	receiptTimeout = 120 * time.Second
	receiptPoll    = 2 * time.Second
)

// CallerConfig configures the on-chain caller.
type CallerConfig struct {
	RPCURL        string
	PrivateKeyHex string
	ChainID       uint64
}

// Caller wraps an ethclient with the relayer key and packs/unpacks ABI calls
// for the contract collaborators built on top of it.
type Caller struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
}

// NewCaller dials the RPC endpoint and loads the relayer key.
func NewCaller(cfg CallerConfig) (*Caller, error) {
	loadABIs()

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: invalid relayer key: %w", err)
	}

	return &Caller{
		client:     client,
		privateKey: pk,
		from:       ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    new(big.Int).SetUint64(cfg.ChainID),
	}, nil
}

// From returns the relayer's address.
func (c *Caller) From() common.Address {
	return c.from
}

// Close closes the underlying RPC connection.
func (c *Caller) Close() {
	c.client.Close()
}

// call performs a read-only contract call and unpacks the result values.
func (c *Caller) call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, contract.Hex(), err)
	}

	values, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return values, nil
}

// transact signs and sends a state-changing call from the relayer key and
// waits for the receipt. A reverted receipt is an error.
func (c *Caller) transact(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...any) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("chain: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), txGasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("chain: send %s to %s: %w", method, contract.Hex(), err)
	}

	receipt, err := c.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: tx %s reverted", signedTx.Hash().Hex())
	}
	return nil
}

func (c *Caller) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	for {
		receipt, err := c.client.TransactionReceipt(timeoutCtx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("chain: timeout waiting for receipt %s", txHash.Hex())
		case <-time.After(receiptPoll):
		}
	}
}
