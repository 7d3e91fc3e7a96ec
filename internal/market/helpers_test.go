package market_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

var (
	admin    = common.HexToAddress("0xad00000000000000000000000000000000000001")
	operator = common.HexToAddress("0x0900000000000000000000000000000000000001")
	custody  = common.HexToAddress("0xc500000000000000000000000000000000000001")
	seller   = common.HexToAddress("0x5e00000000000000000000000000000000000001")
	alice    = common.HexToAddress("0xa100000000000000000000000000000000000001")
	bob      = common.HexToAddress("0xb000000000000000000000000000000000000001")
	creator  = common.HexToAddress("0xc400000000000000000000000000000000000001")
	nft      = common.HexToAddress("0x7100000000000000000000000000000000000721")
	multi    = common.HexToAddress("0x7100000000000000000000000000000000001155")
	usdc     = common.HexToAddress("0x7500000000000000000000000000000000000020")
)

var errTransferRejected = errors.New("transfer rejected")

func amt(v int64) *big.Int { return big.NewInt(v) }

// testClock is a manually advanced clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeAssets is an in-memory asset registry covering both asset kinds.
type fakeAssets struct {
	mu          sync.Mutex
	owners      map[string]common.Address
	balances    map[string]*big.Int
	approvedAll map[string]bool
	approved    map[string]common.Address

	royaltyReceiver common.Address
	royaltyBps      int64

	// TransferErr, when set, is returned by every transfer.
	TransferErr error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		owners:      make(map[string]common.Address),
		balances:    make(map[string]*big.Int),
		approvedAll: make(map[string]bool),
		approved:    make(map[string]common.Address),
	}
}

func tokenKey(contract common.Address, id *big.Int) string {
	return contract.Hex() + "#" + id.String()
}

func balanceKey(contract, holder common.Address, id *big.Int) string {
	return contract.Hex() + "#" + id.String() + "@" + holder.Hex()
}

func approvalKey(contract, holder, op common.Address) string {
	return contract.Hex() + ":" + holder.Hex() + ":" + op.Hex()
}

func (f *fakeAssets) mint(contract common.Address, id int64, owner common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[tokenKey(contract, amt(id))] = owner
}

func (f *fakeAssets) mintBalance(contract common.Address, id int64, holder common.Address, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey(contract, holder, amt(id))] = amt(n)
}

func (f *fakeAssets) approveAll(contract, holder, op common.Address, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvedAll[approvalKey(contract, holder, op)] = ok
}

func (f *fakeAssets) owner(contract common.Address, id int64) common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[tokenKey(contract, amt(id))]
}

func (f *fakeAssets) balance(contract, holder common.Address, id int64) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[balanceKey(contract, holder, amt(id))]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (f *fakeAssets) OwnerOf(_ context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.owners[tokenKey(contract, id)]
	if !ok {
		return common.Address{}, fmt.Errorf("token %s: %w", tokenKey(contract, id), domain.ErrNotFound)
	}
	return o, nil
}

func (f *fakeAssets) BalanceOf(_ context.Context, contract, holder common.Address, id *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[balanceKey(contract, holder, id)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeAssets) IsApprovedForAll(_ context.Context, contract, holder, op common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approvedAll[approvalKey(contract, holder, op)], nil
}

func (f *fakeAssets) GetApproved(_ context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved[tokenKey(contract, id)], nil
}

func (f *fakeAssets) TransferSingle(_ context.Context, contract, from, to common.Address, id *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return f.TransferErr
	}
	k := tokenKey(contract, id)
	if f.owners[k] != from {
		return errTransferRejected
	}
	f.owners[k] = to
	delete(f.approved, k)
	return nil
}

func (f *fakeAssets) TransferBalance(_ context.Context, contract, from, to common.Address, id, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return f.TransferErr
	}
	fk := balanceKey(contract, from, id)
	cur, ok := f.balances[fk]
	if !ok || cur.Cmp(amount) < 0 {
		return errTransferRejected
	}
	cur.Sub(cur, amount)
	tk := balanceKey(contract, to, id)
	if _, ok := f.balances[tk]; !ok {
		f.balances[tk] = new(big.Int)
	}
	f.balances[tk].Add(f.balances[tk], amount)
	return nil
}

func (f *fakeAssets) RoyaltyInfo(_ context.Context, _ common.Address, _ *big.Int, price *big.Int) (common.Address, *big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.royaltyBps == 0 {
		return common.Address{}, new(big.Int), nil
	}
	due := new(big.Int).Mul(price, big.NewInt(f.royaltyBps))
	due.Quo(due, big.NewInt(10_000))
	return f.royaltyReceiver, due, nil
}

// flakyPayments wraps a gateway and fails pushes to selected accounts.
type flakyPayments struct {
	domain.PaymentGateway

	mu       sync.Mutex
	failPush map[common.Address]bool
}

func (p *flakyPayments) setFailPush(account common.Address, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPush[account] = fail
}

func (p *flakyPayments) Push(ctx context.Context, medium, to common.Address, amount *big.Int) error {
	p.mu.Lock()
	fail := p.failPush[to]
	p.mu.Unlock()
	if fail {
		return errTransferRejected
	}
	return p.PaymentGateway.Push(ctx, medium, to, amount)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingPublisher) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
