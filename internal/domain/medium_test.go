package domain_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

func TestMediumDisplay(t *testing.T) {
	usdc := domain.Medium{Symbol: "USDC", Decimals: 6}
	native := domain.Medium{Symbol: "NATIVE", Decimals: 18}

	testCases := []struct {
		name     string
		medium   domain.Medium
		amount   *big.Int
		expected string
	}{
		{"fractional", usdc, big.NewInt(1_500_000), "1.5 USDC"},
		{"whole", usdc, big.NewInt(2_000_000), "2 USDC"},
		{"sub unit", native, big.NewInt(1), "0.000000000000000001 NATIVE"},
		{"nil", usdc, nil, "0 USDC"},
		{"no symbol", domain.Medium{Decimals: 2}, big.NewInt(1234), "12.34"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.medium.Display(tc.amount))
		})
	}
}
