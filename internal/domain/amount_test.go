package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountZeroValue(t *testing.T) {
	var a Amount
	require.True(t, a.IsZero())
	require.True(t, a.Equal(NewAmount(0)))

	sum := a.Add(NewAmount(5))
	require.True(t, NewAmount(5).Equal(sum))
}

func TestAmountSubUnderflow(t *testing.T) {
	_, ok := NewAmount(3).Sub(NewAmount(5))
	require.False(t, ok)

	v, ok := NewAmount(5).Sub(NewAmount(3))
	require.True(t, ok)
	require.True(t, NewAmount(2).Equal(v))
}

func TestAmountBytesRoundTrip(t *testing.T) {
	a := NewAmount(1_000_000)
	word, err := a.Bytes()
	require.NoError(t, err)
	require.True(t, a.Equal(AmountFromBytes(word[:])))
}

func TestAmountBytesOverflow(t *testing.T) {
	huge := AmountFromBytes(make33())
	_, err := huge.Bytes()
	require.ErrorIs(t, err, ErrAmountTooLarge)
}

func make33() []byte {
	b := make([]byte, 33)
	b[0] = 1
	return b
}

func TestMin(t *testing.T) {
	require.True(t, NewAmount(2).Equal(Min(NewAmount(2), NewAmount(3))))
	require.True(t, NewAmount(2).Equal(Min(NewAmount(3), NewAmount(2))))
	require.True(t, NewAmount(2).Equal(Min(NewAmount(2), NewAmount(2))))
}

func TestMulUint64(t *testing.T) {
	require.True(t, NewAmount(6).Equal(NewAmount(2).MulUint64(3)))
	require.True(t, NewAmount(2).MulUint64(0).IsZero())
}
