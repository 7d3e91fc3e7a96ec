// Package evm talks to asset and payment-token contracts on an EVM chain.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// Backend is what transactions need from a node; *ethclient.Client is one.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// OptsSigner produces signing options for the operator account.
type OptsSigner interface {
	Address() common.Address
	TransactOpts(chainID *big.Int) (*bind.TransactOpts, error)
}

// Client bundles a node connection with the operator's signing identity.
type Client struct {
	caller  bind.ContractCaller
	backend Backend
	signer  OptsSigner
	chainID *big.Int
	timeout time.Duration
}

// Dial connects to rpcURL and reads the chain id. signer may be nil for a
// read-only client.
func Dial(ctx context.Context, rpcURL string, signer OptsSigner, txTimeout time.Duration) (*Client, func(), error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("evm: chain id: %w", err)
	}
	return NewClient(eth, eth, signer, chainID, txTimeout), eth.Close, nil
}

// NewClient builds a Client over explicit backends. backend may be nil when
// only reads are needed.
func NewClient(caller bind.ContractCaller, backend Backend, signer OptsSigner, chainID *big.Int, txTimeout time.Duration) *Client {
	if txTimeout <= 0 {
		txTimeout = 2 * time.Minute
	}
	return &Client{caller: caller, backend: backend, signer: signer, chainID: chainID, timeout: txTimeout}
}

// Operator is the account whose approvals and allowances the marketplace uses.
func (c *Client) Operator() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) call(ctx context.Context, parsed abi.ABI, contract common.Address, method string, args ...any) ([]any, error) {
	bound := bind.NewBoundContract(contract, parsed, c.caller, nil, nil)
	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("evm: call %s on %s: %w", method, contract.Hex(), err)
	}
	return out, nil
}

// transact sends method from the operator account and waits for a
// successful receipt. Any failure maps to domain.ErrTransferFailed.
func (c *Client) transact(ctx context.Context, parsed abi.ABI, contract common.Address, method string, args ...any) error {
	if c.backend == nil || c.signer == nil {
		return fmt.Errorf("%w: evm client is read-only", domain.ErrTransferFailed)
	}
	opts, err := c.signer.TransactOpts(c.chainID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	opts.Context = ctx

	bound := bind.NewBoundContract(contract, parsed, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		return fmt.Errorf("%w: send %s: %w", domain.ErrTransferFailed, method, err)
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return fmt.Errorf("%w: wait %s %s: %w", domain.ErrTransferFailed, method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s reverted in %s", domain.ErrTransferFailed, method, tx.Hash().Hex())
	}
	return nil
}

func outAddress(out []any) (common.Address, error) {
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("evm: empty result")
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("evm: unexpected result %T", out[0])
	}
	return a, nil
}

func outBigInt(out []any, i int) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("evm: missing result %d", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: unexpected result %T", out[i])
	}
	return v, nil
}

func outBool(out []any) (bool, error) {
	if len(out) == 0 {
		return false, fmt.Errorf("evm: empty result")
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("evm: unexpected result %T", out[0])
	}
	return b, nil
}
