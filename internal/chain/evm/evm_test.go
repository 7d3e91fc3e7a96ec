package evm

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	holder   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	contract = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

type staticSigner struct{}

func (staticSigner) Address() common.Address { return operator }

func (staticSigner) TransactOpts(*big.Int) (*bind.TransactOpts, error) {
	return nil, errors.New("not used")
}

// fakeCaller answers eth_call by method selector with pre-packed outputs.
type fakeCaller struct {
	t       *testing.T
	parsed  abi.ABI
	replies map[string][]any
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for name, m := range f.parsed.Methods {
		if !bytes.Equal(call.Data[:4], m.ID) {
			continue
		}
		vals, ok := f.replies[name]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		out, err := m.Outputs.Pack(vals...)
		require.NoError(f.t, err)
		return out, nil
	}
	return nil, errors.New("unknown selector")
}

func TestAssetGatewayReads(t *testing.T) {
	caller := &fakeCaller{t: t, parsed: erc721, replies: map[string][]any{
		"ownerOf":          {holder},
		"getApproved":      {operator},
		"isApprovedForAll": {true},
		"royaltyInfo":      {receiver, big.NewInt(250)},
	}}
	g := NewAssetGateway(NewClient(caller, nil, staticSigner{}, big.NewInt(1), 0))
	ctx := context.Background()

	owner, err := g.OwnerOf(ctx, contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, holder, owner)

	approved, err := g.GetApproved(ctx, contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, operator, approved)

	all, err := g.IsApprovedForAll(ctx, contract, holder, operator)
	require.NoError(t, err)
	require.True(t, all)

	to, amt, err := g.RoyaltyInfo(ctx, contract, big.NewInt(1), big.NewInt(2500))
	require.NoError(t, err)
	require.Equal(t, receiver, to)
	require.Equal(t, int64(250), amt.Int64())

	delete(caller.replies, "royaltyInfo")
	_, _, err = g.RoyaltyInfo(ctx, contract, big.NewInt(1), big.NewInt(2500))
	require.Error(t, err)
}

func TestTokenGatewayAvailableIsMinOfAllowanceAndBalance(t *testing.T) {
	testCases := []struct {
		name      string
		allowance int64
		balance   int64
		expected  int64
	}{
		{"allowance bound", 10, 50, 10},
		{"balance bound", 100, 40, 40},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{t: t, parsed: erc20, replies: map[string][]any{
				"allowance": {big.NewInt(tc.allowance)},
				"balanceOf": {big.NewInt(tc.balance)},
			}}
			g := NewTokenGateway(NewClient(caller, nil, staticSigner{}, big.NewInt(1), 0))
			avail, err := g.Available(context.Background(), contract, holder)
			require.NoError(t, err)
			require.Equal(t, tc.expected, avail.Int64())
		})
	}
}

func TestReadOnlyClientRefusesTransfers(t *testing.T) {
	caller := &fakeCaller{t: t, parsed: erc20, replies: map[string][]any{
		"allowance": {big.NewInt(100)},
		"balanceOf": {big.NewInt(100)},
	}}
	g := NewTokenGateway(NewClient(caller, nil, staticSigner{}, big.NewInt(1), 0))

	err := g.Pull(context.Background(), contract, holder, big.NewInt(101))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = g.Pull(context.Background(), contract, holder, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrTransferFailed)
}
