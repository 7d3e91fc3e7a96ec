package postgres

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// hexAddr is the stored form of an address.
func hexAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// optAddr stores the zero address as an empty string.
func optAddr(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return hexAddr(a)
}

func parseAddr(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// numeric renders an amount for a $n::TEXT::NUMERIC parameter.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optNumeric(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", s)
	}
	return v, nil
}

func parseOptNumeric(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseNumeric(*s)
}

// paged appends the time window of opts on column, the ordering and the
// limit/offset of opts to a query whose WHERE clause already holds args.
func paged(query string, args []any, column, orderBy string, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", column, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", column, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + orderBy

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
