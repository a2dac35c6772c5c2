package blockchain

import (
	"math/big"
	"strings"

	"lvlup-backend/apperr"

	"github.com/ethereum/go-ethereum/common"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseAtomicAmount parses an integer amount in atomic token units. Decimal
// separators are rejected outright because signatures commit to exact integers.
func ParseAtomicAmount(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, apperr.Newf(apperr.ErrInvalidAmountFormat, "amount is required")
	}
	if strings.ContainsAny(s, ".,") {
		return nil, apperr.Newf(apperr.ErrInvalidAmountFormat,
			"amount %q must be an integer in atomic units, decimal separators are not allowed", raw)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, apperr.Newf(apperr.ErrInvalidAmountFormat, "amount %q is not a non-negative integer", raw)
		}
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Cmp(maxUint256) > 0 {
		return nil, apperr.Newf(apperr.ErrInvalidAmountFormat, "amount %q does not fit in uint256", raw)
	}
	return amount, nil
}

// ParseWallet validates a hex wallet address and returns it in checksum form.
func ParseWallet(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !common.IsHexAddress(s) {
		return common.Address{}, apperr.Newf(apperr.ErrInvalidWallet, "invalid wallet address %q", raw)
	}
	return common.HexToAddress(s), nil
}
