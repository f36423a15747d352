package safemath

import (
	"errors"
	"math/bits"
)

var ErrOverflow = errors.New("number overflow")

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

func Sub64(a, b uint64) (uint64, bool) {
	v, borrow := bits.Sub64(a, b, 0)
	return v, borrow == 0
}

func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
