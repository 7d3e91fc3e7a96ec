package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeMedium is the sentinel address identifying the native currency.
var NativeMedium = common.Address{}

// IsNative reports whether medium identifies the native currency.
func IsNative(medium common.Address) bool {
	return medium == NativeMedium
}

// Medium is an entry of the accepted-payment registry.
type Medium struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int32          `json:"decimals"`
	Enabled  bool           `json:"enabled"`
}

// Units converts a base-unit amount into whole units of the medium.
func (m Medium) Units(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -m.Decimals)
}

// Display renders amount as "<units> <symbol>", e.g. "1.5 USDC".
func (m Medium) Display(amount *big.Int) string {
	s := m.Units(amount).String()
	if m.Symbol == "" {
		return s
	}
	return s + " " + m.Symbol
}
