package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Book partitions the balance ledger.
type Book string

const (
	// BookPayable holds funds the marketplace owes to an account: queued
	// outbid refunds and payouts whose immediate delivery failed.
	BookPayable Book = "payable"
	// BookWallet holds custodial wallet balances used by the custodial
	// payment gateway.
	BookWallet Book = "wallet"
)

// Credit is a balance increase on one ledger entry.
type Credit struct {
	Book    Book
	Account common.Address
	Medium  common.Address
	Amount  *big.Int
	Reason  string
	OrderID uint64
}

// Balance is the current amount held for (book, account, medium).
type Balance struct {
	Book    Book           `json:"book"`
	Account common.Address `json:"account"`
	Medium  common.Address `json:"medium"`
	Amount  *big.Int       `json:"amount"`
}
