package testutils

import (
	"sync"

	"github.com/crosslane/crosslane/internal/domain"
)

// Wallet is a map-backed payable-transfer capability. Payments either land
// in the map or the call errors; there is no partial delivery.
type Wallet struct {
	mu    sync.Mutex
	paid  map[domain.Address]domain.Amount
	Fail  bool
	Calls int
}

func NewWallet() *Wallet {
	return &Wallet{paid: make(map[domain.Address]domain.Amount)}
}

func (w *Wallet) Pay(to domain.Address, amount domain.Amount) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Calls++
	if w.Fail {
		return errPayRejected
	}
	w.paid[to] = w.paid[to].Add(amount)
	return nil
}

// PaidTo returns the total paid to an address so far.
func (w *Wallet) PaidTo(to domain.Address) domain.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paid[to]
}

// Environment is a domain execution environment with a hand-cranked gas
// meter and a fixed base fee.
type Environment struct {
	mu    sync.Mutex
	used  uint64
	price domain.Amount
}

func NewEnvironment(baseFee uint64) *Environment {
	return &Environment{price: domain.NewAmount(baseFee)}
}

func (e *Environment) GasUsed() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.used
}

func (e *Environment) BaseFee() domain.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price
}

// Consume advances the meter, standing in for work the environment measured.
func (e *Environment) Consume(units uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.used += units
}

// FlatFeeEstimator charges a fixed price per input byte, the shape of a
// data-publication fee.
type FlatFeeEstimator struct {
	PerByte uint64
}

func (f FlatFeeEstimator) EstimateFee(input []byte) domain.Amount {
	return domain.NewAmount(f.PerByte).MulUint64(uint64(len(input)))
}
