package blockchain

import (
	"testing"

	"lvlup-backend/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtomicAmount(t *testing.T) {
	amount, err := ParseAtomicAmount("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", amount.String())

	amount, err = ParseAtomicAmount(" 0 ")
	require.NoError(t, err)
	assert.Zero(t, amount.Sign())

	for _, raw := range []string{"1.5", "1,000", "", "  ", "-1", "1e18", "0x10", "12a"} {
		_, err := ParseAtomicAmount(raw)
		assert.ErrorIs(t, err, apperr.ErrInvalidAmountFormat, raw)
	}
}

func TestParseAtomicAmountRejectsOverflow(t *testing.T) {
	_, err := ParseAtomicAmount("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	assert.ErrorIs(t, err, apperr.ErrInvalidAmountFormat)

	_, err = ParseAtomicAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	assert.NoError(t, err)
}

func TestParseWallet(t *testing.T) {
	addr, err := ParseWallet("0x71c7656ec7ab88b098defb751b7401b5f6d8976f")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testWallet), addr)

	_, err = ParseWallet("0x123")
	assert.ErrorIs(t, err, apperr.ErrInvalidWallet)
}
