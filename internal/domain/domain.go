package domain

import (
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// AddressSize is the size of an account address in bytes.
	AddressSize = 20

	// WithdrawalDelay is how long a pending withdrawal must age before it
	// can be finalized. The delay gives other parties time to settle
	// outstanding claims against the balance before funds leave.
	WithdrawalDelay = 7 * 24 * time.Hour
)

// ID identifies one execution domain participating in cross-domain messaging.
type ID uint64

// Address is an account address on a domain.
type Address [AddressSize]byte

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// AddressFromBytes converts a byte slice to an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("invalid address length %d", len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
