package domain

import (
	"errors"
	"math/big"
)

// AmountWordSize is the fixed width of an amount on the wire.
const AmountWordSize = 32

var ErrAmountTooLarge = errors.New("amount exceeds 256 bits")

// Amount is an unsigned token amount. It wraps big.Int as a value type so
// amounts can be compared, copied and serialized without aliasing the
// underlying integer. The zero value is a valid zero amount.
type Amount struct {
	i *big.Int
}

// NewAmount creates an amount from a uint64.
func NewAmount(v uint64) Amount {
	return Amount{i: new(big.Int).SetUint64(v)}
}

// AmountFromBytes interprets b as a big-endian unsigned integer.
func AmountFromBytes(b []byte) Amount {
	return Amount{i: new(big.Int).SetBytes(b)}
}

func (a Amount) big() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// Bytes returns the amount as a fixed 32-byte big-endian word.
func (a Amount) Bytes() ([AmountWordSize]byte, error) {
	var out [AmountWordSize]byte
	b := a.big().Bytes()
	if len(b) > AmountWordSize {
		return out, ErrAmountTooLarge
	}
	copy(out[AmountWordSize-len(b):], b)
	return out, nil
}

// Add returns a+b. Amounts are arbitrary precision so addition never wraps.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a-b and reports whether the subtraction was possible without
// going negative. On underflow it returns the zero amount and false.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.Cmp(b) < 0 {
		return Amount{}, false
	}
	return Amount{i: new(big.Int).Sub(a.big(), b.big())}, true
}

// MulUint64 returns a*v.
func (a Amount) MulUint64(v uint64) Amount {
	return Amount{i: new(big.Int).Mul(a.big(), new(big.Int).SetUint64(v))}
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a Amount) String() string {
	return a.big().String()
}

// Equal reports whether two amounts have the same value.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}
