// Package store persists the ledger's per-domain state tables: balances,
// pending withdrawals, authorizations and the claimed set. Only the ledger
// components mutate these tables; everything else reads through them.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/pkg/db"
	"github.com/crosslane/crosslane/pkg/db/pebble"
)

// Key prefixes for the state tables.
const (
	prefixBalance byte = iota + 1
	prefixPendingWithdrawal
	prefixAuthorization
	prefixClaimed
)

// RW is the write surface shared by the raw store and an open batch, so
// mutations can be staged atomically or applied directly.
type RW interface {
	db.Writer
	Delete(key []byte) error
}

// Withdrawal is a pending two-phase withdrawal request.
type Withdrawal struct {
	RequestedAt int64 // unix seconds
	Amount      domain.Amount
}

// Ledger is the state-table view over a KV store.
type Ledger struct {
	db db.KVStore
}

func NewLedger(kv db.KVStore) *Ledger {
	return &Ledger{db: kv}
}

// NewBatch opens an atomic write batch against the underlying store.
func (l *Ledger) NewBatch() db.Batch {
	return l.db.NewBatch()
}

// Direct returns the write surface for unbatched mutations.
func (l *Ledger) Direct() RW {
	return l.db
}

func makeKey(prefix byte, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, prefix)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Balance returns the provider's balance; a missing entry is zero.
func (l *Ledger) Balance(provider domain.Address) (domain.Amount, error) {
	raw, err := l.db.Get(makeKey(prefixBalance, provider[:]))
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, fmt.Errorf("get balance: %w", err)
	}
	return domain.AmountFromBytes(raw), nil
}

// SetBalance writes the provider's balance through w, which may be the
// store itself or an open batch.
func (l *Ledger) SetBalance(w RW, provider domain.Address, amount domain.Amount) error {
	word, err := amount.Bytes()
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	if err := w.Put(makeKey(prefixBalance, provider[:]), word[:]); err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}

// PendingWithdrawal returns the provider's pending request, if any.
func (l *Ledger) PendingWithdrawal(provider domain.Address) (Withdrawal, bool, error) {
	raw, err := l.db.Get(makeKey(prefixPendingWithdrawal, provider[:]))
	if errors.Is(err, pebble.ErrNotFound) {
		return Withdrawal{}, false, nil
	}
	if err != nil {
		return Withdrawal{}, false, fmt.Errorf("get pending withdrawal: %w", err)
	}
	if len(raw) < 8 {
		return Withdrawal{}, false, fmt.Errorf("corrupt withdrawal record: %d bytes", len(raw))
	}
	return Withdrawal{
		RequestedAt: int64(binary.BigEndian.Uint64(raw[:8])),
		Amount:      domain.AmountFromBytes(raw[8:]),
	}, true, nil
}

// SetPendingWithdrawal records the provider's request, overwriting any
// prior one.
func (l *Ledger) SetPendingWithdrawal(w RW, provider domain.Address, wd Withdrawal) error {
	word, err := wd.Amount.Bytes()
	if err != nil {
		return fmt.Errorf("encode withdrawal amount: %w", err)
	}
	raw := make([]byte, 0, 8+len(word))
	raw = binary.BigEndian.AppendUint64(raw, uint64(wd.RequestedAt))
	raw = append(raw, word[:]...)
	if err := w.Put(makeKey(prefixPendingWithdrawal, provider[:]), raw); err != nil {
		return fmt.Errorf("store pending withdrawal: %w", err)
	}
	return nil
}

// ClearPendingWithdrawal removes the provider's pending request.
func (l *Ledger) ClearPendingWithdrawal(w RW, provider domain.Address) error {
	if err := w.Delete(makeKey(prefixPendingWithdrawal, provider[:])); err != nil {
		return fmt.Errorf("clear pending withdrawal: %w", err)
	}
	return nil
}

// IsAuthorized reports whether the provider has authorized the message hash.
func (l *Ledger) IsAuthorized(provider domain.Address, hash crypto.Hash) (bool, error) {
	ok, err := l.db.Has(makeKey(prefixAuthorization, provider[:], hash[:]))
	if err != nil {
		return false, fmt.Errorf("get authorization: %w", err)
	}
	return ok, nil
}

// Authorize marks the message hash reimbursable from the provider's balance.
func (l *Ledger) Authorize(w RW, provider domain.Address, hash crypto.Hash) error {
	if err := w.Put(makeKey(prefixAuthorization, provider[:], hash[:]), []byte{1}); err != nil {
		return fmt.Errorf("store authorization: %w", err)
	}
	return nil
}

// IsClaimed reports whether the message hash was already settled.
func (l *Ledger) IsClaimed(hash crypto.Hash) (bool, error) {
	ok, err := l.db.Has(makeKey(prefixClaimed, hash[:]))
	if err != nil {
		return false, fmt.Errorf("get claimed flag: %w", err)
	}
	return ok, nil
}

// MarkClaimed sets the claimed flag for the message hash. Set exactly once,
// at successful settlement.
func (l *Ledger) MarkClaimed(w RW, hash crypto.Hash) error {
	if err := w.Put(makeKey(prefixClaimed, hash[:]), []byte{1}); err != nil {
		return fmt.Errorf("store claimed flag: %w", err)
	}
	return nil
}
