// Package ledger implements the gas-provider balance ledger: deposits and
// the two-phase delayed withdrawal machine. Balances only grow through
// Deposit and only shrink through withdrawal finalization or claim
// settlement, both of which go through checked subtraction.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/store"
	"github.com/crosslane/crosslane/pkg/log"
	"github.com/crosslane/crosslane/pkg/metrics"
)

var (
	// ErrWithdrawPending is returned when finalization is attempted before
	// the withdrawal delay has elapsed.
	ErrWithdrawPending = errors.New("withdrawal delay has not elapsed")
	// ErrNoWithdrawal is returned when there is nothing to finalize.
	ErrNoWithdrawal = errors.New("no pending withdrawal")
)

// now is swapped out by tests to advance the withdrawal clock.
var now = time.Now

// Payer is the payable-transfer capability: funds either reach the target
// address or the call reports an explicit failure.
type Payer interface {
	Pay(to domain.Address, amount domain.Amount) error
}

// Ledger owns the balance and pending-withdrawal tables of one domain
// instance.
type Ledger struct {
	state *store.Ledger
	payer Payer
}

func New(state *store.Ledger, payer Payer) *Ledger {
	return &Ledger{state: state, payer: payer}
}

// Balance returns the provider's current balance.
func (l *Ledger) Balance(provider domain.Address) (domain.Amount, error) {
	return l.state.Balance(provider)
}

// Deposit adds amount to the provider's balance.
func (l *Ledger) Deposit(to domain.Address, amount domain.Amount) error {
	balance, err := l.state.Balance(to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(l.state.Direct(), to, balance.Add(amount)); err != nil {
		return err
	}
	log.Ledger.Info().
		Stringer("provider", to).
		Stringer("amount", amount).
		Msg("deposit")
	return nil
}

// InitiateWithdrawal records the provider's intent to withdraw amount. A
// new request overwrites the prior one and resets the delay clock. No
// funds move until FinalizeWithdrawal.
func (l *Ledger) InitiateWithdrawal(provider domain.Address, amount domain.Amount) error {
	wd := store.Withdrawal{RequestedAt: now().Unix(), Amount: amount}
	if err := l.state.SetPendingWithdrawal(l.state.Direct(), provider, wd); err != nil {
		return err
	}
	log.Ledger.Info().
		Stringer("provider", provider).
		Stringer("amount", amount).
		Msg("withdrawal initiated")
	return nil
}

// FinalizeWithdrawal pays out the provider's pending withdrawal to the
// given address once the delay has elapsed. The payout is clamped to the
// current balance: a claim settling during the delay may have shrunk it,
// and a request must never withdraw more than is available. A payout
// clamped to zero clears the request without a transfer. Returns the
// amount paid.
func (l *Ledger) FinalizeWithdrawal(provider, to domain.Address) (domain.Amount, error) {
	wd, ok, err := l.state.PendingWithdrawal(provider)
	if err != nil {
		return domain.Amount{}, err
	}
	if !ok {
		return domain.Amount{}, ErrNoWithdrawal
	}
	if now().Unix() < wd.RequestedAt+int64(domain.WithdrawalDelay/time.Second) {
		return domain.Amount{}, ErrWithdrawPending
	}

	balance, err := l.state.Balance(provider)
	if err != nil {
		return domain.Amount{}, err
	}
	payout := domain.Min(balance, wd.Amount)
	remaining, ok := balance.Sub(payout)
	if !ok {
		// Unreachable: payout is clamped to balance.
		return domain.Amount{}, fmt.Errorf("balance underflow for %s", provider)
	}

	if !payout.IsZero() {
		if err := l.payer.Pay(to, payout); err != nil {
			return domain.Amount{}, fmt.Errorf("pay withdrawal: %w", err)
		}
	}

	batch := l.state.NewBatch()
	defer batch.Close()
	if err := l.state.SetBalance(batch, provider, remaining); err != nil {
		return domain.Amount{}, err
	}
	if err := l.state.ClearPendingWithdrawal(batch, provider); err != nil {
		return domain.Amount{}, err
	}
	if err := batch.Commit(); err != nil {
		return domain.Amount{}, fmt.Errorf("commit withdrawal: %w", err)
	}

	metrics.WithdrawalsFinalized.Inc()
	log.Ledger.Info().
		Stringer("provider", provider).
		Stringer("to", to).
		Stringer("amount", payout).
		Msg("withdrawal finalized")
	return payout, nil
}
