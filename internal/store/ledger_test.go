package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/testutils"
	"github.com/crosslane/crosslane/pkg/db/pebble"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, kv.Close())
	})
	return NewLedger(kv)
}

func TestBalanceDefaultsToZero(t *testing.T) {
	ledger := newTestLedger(t)

	balance, err := ledger.Balance(testutils.RandomAddress(t))
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestSetGetBalance(t *testing.T) {
	ledger := newTestLedger(t)
	provider := testutils.RandomAddress(t)

	err := ledger.SetBalance(ledger.Direct(), provider, domain.NewAmount(1_000_000))
	require.NoError(t, err)

	balance, err := ledger.Balance(provider)
	require.NoError(t, err)
	require.True(t, domain.NewAmount(1_000_000).Equal(balance))
}

func TestPendingWithdrawalLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	provider := testutils.RandomAddress(t)

	_, ok, err := ledger.PendingWithdrawal(provider)
	require.NoError(t, err)
	require.False(t, ok)

	wd := Withdrawal{RequestedAt: 1_700_000_000, Amount: domain.NewAmount(500)}
	require.NoError(t, ledger.SetPendingWithdrawal(ledger.Direct(), provider, wd))

	got, ok, err := ledger.PendingWithdrawal(provider)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wd.RequestedAt, got.RequestedAt)
	require.True(t, wd.Amount.Equal(got.Amount))

	require.NoError(t, ledger.ClearPendingWithdrawal(ledger.Direct(), provider))
	_, ok, err = ledger.PendingWithdrawal(provider)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizationKeyedPerProvider(t *testing.T) {
	ledger := newTestLedger(t)
	p1 := testutils.RandomAddress(t)
	p2 := testutils.RandomAddress(t)
	hash := testutils.RandomHash(t)

	require.NoError(t, ledger.Authorize(ledger.Direct(), p1, hash))

	ok, err := ledger.IsAuthorized(p1, hash)
	require.NoError(t, err)
	require.True(t, ok)

	// Same hash under a different provider is not authorized.
	ok, err = ledger.IsAuthorized(p2, hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClaimedFlag(t *testing.T) {
	ledger := newTestLedger(t)
	hash := testutils.RandomHash(t)

	ok, err := ledger.IsClaimed(hash)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, ledger.MarkClaimed(ledger.Direct(), hash))

	ok, err = ledger.IsClaimed(hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatchedSettlementWrites(t *testing.T) {
	ledger := newTestLedger(t)
	provider := testutils.RandomAddress(t)
	hash := testutils.RandomHash(t)
	nested := testutils.RandomHash(t)

	require.NoError(t, ledger.SetBalance(ledger.Direct(), provider, domain.NewAmount(100)))

	batch := ledger.NewBatch()
	require.NoError(t, ledger.SetBalance(batch, provider, domain.NewAmount(40)))
	require.NoError(t, ledger.MarkClaimed(batch, hash))
	require.NoError(t, ledger.Authorize(batch, provider, nested))

	// Nothing visible until commit.
	claimed, err := ledger.IsClaimed(hash)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, batch.Commit())
	require.NoError(t, batch.Close())

	balance, err := ledger.Balance(provider)
	require.NoError(t, err)
	require.True(t, domain.NewAmount(40).Equal(balance))

	claimed, err = ledger.IsClaimed(hash)
	require.NoError(t, err)
	require.True(t, claimed)

	authorized, err := ledger.IsAuthorized(provider, nested)
	require.NoError(t, err)
	require.True(t, authorized)

	var zero crypto.Hash
	require.NotEqual(t, zero, nested)
}
