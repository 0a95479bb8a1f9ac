package numeric

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPositiveNumber(t *testing.T) {
	require.True(t, IsPositiveNumber("1000"))
	require.False(t, IsPositiveNumber(""))
	require.False(t, IsPositiveNumber("10.0"))
	require.False(t, IsPositiveNumber("-1"))
}

func TestIsPositiveNumberWithDot(t *testing.T) {
	require.True(t, IsPositiveNumberWithDot("10.5"))
	require.True(t, IsPositiveNumberWithDot("10"))
	require.False(t, IsPositiveNumberWithDot(".5"))
	require.False(t, IsPositiveNumberWithDot("5."))
	require.False(t, IsPositiveNumberWithDot("5.5.5"))
	require.False(t, IsPositiveNumberWithDot(""))
}

func TestToFixedPointWholeNumber(t *testing.T) {
	n := ToFixedPoint("1000", 18)
	require.NotNil(t, n)
	require.Equal(t, new(big.Int).Mul(big.NewInt(1000), ten18).String(), n.String())
}

func TestToFixedPointFractional(t *testing.T) {
	n := ToFixedPoint("5.25", 18)
	require.NotNil(t, n)
	require.Equal(t, "5250000000000000000", n.String())
}

func TestToFixedPointRejectsOverflowFraction(t *testing.T) {
	require.Nil(t, ToFixedPoint("1.123", 2))
}

func TestToFixedPointRejectsEmptyFraction(t *testing.T) {
	require.Nil(t, ToFixedPoint("1.", 2))
}

func TestInRange(t *testing.T) {
	require.True(t, InRange(big.NewInt(1), false))
	require.False(t, InRange(big.NewInt(0), false))
	require.True(t, InRange(big.NewInt(0), true))
	require.False(t, InRange(new(big.Int).Neg(big.NewInt(1)), true))
	require.True(t, InRange(MaxFixedPoint, false))
	over := new(big.Int).Add(MaxFixedPoint, big.NewInt(1))
	require.False(t, InRange(over, false))
}

func TestFixNumStrDecimalsFullPrecision(t *testing.T) {
	n := new(big.Int).Mul(big.NewInt(1000), ten18)
	require.Equal(t, "1000", FixNumStrDecimals(n, 18))
}

func TestFixNumStrDecimalsTrimsToDisplayPrecision(t *testing.T) {
	n := ToFixedPoint("5.25", 18)
	require.Equal(t, "5.25", FixNumStrDecimals(n, 18))
}

func TestFixNumStrDecimalsZeroDecimalsDropsDot(t *testing.T) {
	n := new(big.Int).Mul(big.NewInt(5), ten18)
	require.Equal(t, "5", FixNumStrDecimals(n, 0))
}

func TestFixNumStrDecimalsSmallValue(t *testing.T) {
	n := big.NewInt(1)
	require.Equal(t, "0.000000000000000001", FixNumStrDecimals(n, 18))
}
