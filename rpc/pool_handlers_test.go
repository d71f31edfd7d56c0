package rpc

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmountBoundsDigits(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.Len(t, maxUint256.String(), maxAmountDigits)

	got, err := parseAmount(maxUint256.String())
	require.NoError(t, err)
	require.Zero(t, got.Cmp(maxUint256))

	got, err = parseAmount(" -5 ")
	require.NoError(t, err)
	require.Equal(t, int64(-5), got.Int64())

	_, err = parseAmount(strings.Repeat("9", maxAmountDigits+1))
	require.ErrorContains(t, err, "exceeds")
	_, err = parseAmount(strings.Repeat("1", 1<<16))
	require.Error(t, err)
	_, err = parseAmount("12abc")
	require.Error(t, err)
	_, err = parseAmount("  ")
	require.Error(t, err)
}
