package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

func TestPaged(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	testCases := []struct {
		name          string
		opts          domain.ListOpts
		expectedQuery string
		expectedArgs  int
	}{
		{
			name:          "no options",
			expectedQuery: "SELECT 1 WHERE TRUE ORDER BY id ASC",
		},
		{
			name:          "window and paging",
			opts:          domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20},
			expectedQuery: "SELECT 1 WHERE TRUE AND listed_at >= $1 AND listed_at <= $2 ORDER BY id ASC LIMIT $3 OFFSET $4",
			expectedArgs:  4,
		},
		{
			name:          "limit only",
			opts:          domain.ListOpts{Limit: 5},
			expectedQuery: "SELECT 1 WHERE TRUE ORDER BY id ASC LIMIT $1",
			expectedArgs:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := paged("SELECT 1 WHERE TRUE", nil, "listed_at", "id ASC", tc.opts)
			require.Equal(t, tc.expectedQuery, query)
			require.Len(t, args, tc.expectedArgs)
		})
	}
}

func TestAddressAndNumericEncoding(t *testing.T) {
	a := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	require.Equal(t, "0xabcdef0000000000000000000000000000000001", hexAddr(a))
	require.Equal(t, a, parseAddr(hexAddr(a)))
	require.Equal(t, "", optAddr(common.Address{}))
	require.Equal(t, common.Address{}, parseAddr(""))

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)
	back, err := parseNumeric(numeric(huge))
	require.NoError(t, err)
	require.Equal(t, 0, huge.Cmp(back))

	_, err = parseNumeric("12.5")
	require.Error(t, err)

	v, err := parseOptNumeric(nil)
	require.NoError(t, err)
	require.Nil(t, v)
}
