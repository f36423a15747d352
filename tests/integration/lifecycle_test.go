package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane/internal/authorization"
	"github.com/crosslane/crosslane/internal/claim"
	"github.com/crosslane/crosslane/internal/cost"
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/ledger"
	"github.com/crosslane/crosslane/internal/message"
	"github.com/crosslane/crosslane/internal/receipt"
	"github.com/crosslane/crosslane/internal/relay"
	"github.com/crosslane/crosslane/internal/store"
	"github.com/crosslane/crosslane/internal/testutils"
	"github.com/crosslane/crosslane/pkg/db/pebble"
	"github.com/crosslane/crosslane/pkg/log"
)

func init() {
	log.Init(log.Options{LogLevel: zerolog.WarnLevel})
}

const (
	homeDomain domain.ID = 1
	awayDomain domain.ID = 2

	homeBaseFee uint64 = 2
	awayBaseFee uint64 = 1
)

// lifecycle wires a full two-domain deployment in memory: the provider's
// home domain holds the ledger state and the settler, the away domain
// hosts delivery and metering.
type lifecycle struct {
	net  *message.Network
	home *message.MemMessenger
	away *message.MemMessenger

	state    *store.Ledger
	funds    *ledger.Ledger
	registry *authorization.Registry
	relayer  *relay.Relayer
	settler  *claim.Settler

	wallet  *testutils.Wallet
	awayEnv *testutils.Environment
	oracle  *recordingOracle

	ledgerAddr domain.Address
}

// recordingOracle attests every payload and remembers the digests it saw.
// Set Reject to simulate a source domain that cannot prove the emission.
type recordingOracle struct {
	Digests []crypto.Hash
	Reject  bool
}

func (o *recordingOracle) Attest(_ context.Context, _ message.Identifier, digest crypto.Hash) error {
	if o.Reject {
		return fmt.Errorf("no emission proof for %s", digest)
	}
	o.Digests = append(o.Digests, digest)
	return nil
}

func newLifecycle(t *testing.T) *lifecycle {
	t.Helper()

	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, kv.Close()) })

	net := message.NewNetwork()
	state := store.NewLedger(kv)
	wallet := testutils.NewWallet()
	oracle := &recordingOracle{}
	ledgerAddr := testutils.RandomAddress(t)
	away := net.Join(awayDomain)
	awayEnv := testutils.NewEnvironment(awayBaseFee)

	return &lifecycle{
		net:        net,
		home:       net.Join(homeDomain),
		away:       away,
		state:      state,
		funds:      ledger.New(state, wallet),
		registry:   authorization.New(state),
		relayer:    relay.New(away, awayEnv, nil),
		settler:    claim.New(state, oracle, wallet, testutils.NewEnvironment(homeBaseFee), nil, homeDomain, ledgerAddr),
		wallet:     wallet,
		awayEnv:    awayEnv,
		oracle:     oracle,
		ledgerAddr: ledgerAddr,
	}
}

// claimIdentifier wraps a receipt emitted on the away domain into the
// provenance tuple its delivery on the home domain would carry.
func (lc *lifecycle) claimIdentifier() message.Identifier {
	return message.Identifier{
		Origin:       lc.ledgerAddr,
		BlockNumber:  77,
		LogIndex:     3,
		Timestamp:    1_700_000_000,
		SourceDomain: awayDomain,
	}
}

// dump renders the ledger tables for the given addresses and hashes into a
// stable textual snapshot.
func (lc *lifecycle) dump(t *testing.T, providers []domain.Address, hashes []crypto.Hash) string {
	t.Helper()
	var b strings.Builder

	sorted := append([]domain.Address(nil), providers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	for _, p := range sorted {
		balance, err := lc.state.Balance(p)
		require.NoError(t, err)
		fmt.Fprintf(&b, "balance %s = %s\n", p, balance)

		wd, ok, err := lc.state.PendingWithdrawal(p)
		require.NoError(t, err)
		if ok {
			fmt.Fprintf(&b, "withdrawal %s = %s at %d\n", p, wd.Amount, wd.RequestedAt)
		}
		for _, h := range hashes {
			authorized, err := lc.state.IsAuthorized(p, h)
			require.NoError(t, err)
			fmt.Fprintf(&b, "authorized %s %s = %t\n", p, h, authorized)
		}
	}
	for _, h := range hashes {
		claimed, err := lc.state.IsClaimed(h)
		require.NoError(t, err)
		fmt.Fprintf(&b, "claimed %s = %t\n", h, claimed)
	}
	return b.String()
}

// requireEqualDumps compares two ledger snapshots and fails with a unified
// diff on mismatch. Similar to testify's require.Equal, but the diff makes
// the divergent table row obvious.
func requireEqualDumps(t *testing.T, expected, actual string) {
	t.Helper()
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	if diff != "" {
		t.Fatalf("Ledger state mismatch:\n%s", diff)
	}
}

func TestLifecycleSponsoredRelayAndClaim(t *testing.T) {
	lc := newLifecycle(t)
	ctx := context.Background()

	provider := testutils.RandomAddress(t)
	user := testutils.RandomAddress(t)
	app := testutils.RandomAddress(t)
	relayerAddr := testutils.RandomAddress(t)
	claimant := testutils.RandomAddress(t)

	deposit := domain.NewAmount(1_000_000)
	require.NoError(t, lc.funds.Deposit(provider, deposit))

	// The sponsored message: user calls app on the away domain, and app
	// responds with one message back home.
	sent := message.SentMessage{
		Destination: awayDomain,
		Nonce:       0,
		Sender:      user,
		Target:      app,
		Body:        []byte("swap 40 for 2"),
	}
	payload := sent.Encode()
	msgHash := sent.Hash(homeDomain)
	require.NoError(t, lc.registry.Authorize(provider, msgHash))

	const handlerGas = 40_000
	var nestedHash crypto.Hash
	lc.away.Register(app, func(ctx context.Context, source domain.ID, sender domain.Address, body []byte) error {
		lc.awayEnv.Consume(handlerGas)
		h, err := lc.away.Send(ctx, homeDomain, user, []byte("swap done"))
		nestedHash = h
		return err
	})

	sendID := message.Identifier{
		Origin:       lc.ledgerAddr,
		BlockNumber:  12,
		LogIndex:     0,
		Timestamp:    1_699_999_000,
		SourceDomain: homeDomain,
	}
	rcpt, err := lc.relayer.Relay(ctx, sendID, payload, relayerAddr, provider, homeDomain)
	require.NoError(t, err)

	require.Equal(t, msgHash, rcpt.MessageHash)
	require.Equal(t, []crypto.Hash{nestedHash}, rcpt.Nested)
	wantRelayCost := domain.NewAmount(handlerGas + cost.ReceiptEmission(1)).MulUint64(awayBaseFee)
	require.True(t, rcpt.RelayCost.Equal(wantRelayCost))

	encoded, err := rcpt.Encode()
	require.NoError(t, err)
	settled, err := lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
	require.NoError(t, err)

	require.True(t, settled.RelayCost.Equal(wantRelayCost))
	wantClaimCost := domain.NewAmount(cost.ClaimOverhead(1)).MulUint64(homeBaseFee)
	require.True(t, settled.ClaimCost.Equal(wantClaimCost),
		"claim cost %s, want %s", settled.ClaimCost, wantClaimCost)

	// Payouts landed with the relayer and the third-party claimant.
	require.True(t, lc.wallet.PaidTo(relayerAddr).Equal(wantRelayCost))
	require.True(t, lc.wallet.PaidTo(claimant).Equal(wantClaimCost))

	// The provider's balance shrank by exactly what was paid out.
	balance, err := lc.funds.Balance(provider)
	require.NoError(t, err)
	spent := wantRelayCost.Add(wantClaimCost)
	remaining, ok := deposit.Sub(spent)
	require.True(t, ok)
	require.True(t, balance.Equal(remaining))

	// Settlement propagated sponsorship to the response message and
	// retired the original hash.
	authorized, err := lc.registry.IsAuthorized(provider, nestedHash)
	require.NoError(t, err)
	require.True(t, authorized)
	claimed, err := lc.registry.IsClaimed(msgHash)
	require.NoError(t, err)
	require.True(t, claimed)

	// The oracle saw exactly the announced payload.
	require.Equal(t, []crypto.Hash{crypto.HashData(encoded)}, lc.oracle.Digests)
}

func TestLifecycleDoubleClaimLeavesStateUntouched(t *testing.T) {
	lc := newLifecycle(t)
	ctx := context.Background()

	provider := testutils.RandomAddress(t)
	relayerAddr := testutils.RandomAddress(t)
	claimant := testutils.RandomAddress(t)

	require.NoError(t, lc.funds.Deposit(provider, domain.NewAmount(1_000_000)))

	sent := message.SentMessage{
		Destination: awayDomain,
		Sender:      testutils.RandomAddress(t),
		Target:      testutils.RandomAddress(t),
		Body:        []byte("ping"),
	}
	msgHash := sent.Hash(homeDomain)
	require.NoError(t, lc.registry.Authorize(provider, msgHash))

	rcpt := receipt.Receipt{
		MessageHash:       msgHash,
		Relayer:           relayerAddr,
		GasProvider:       provider,
		GasProviderDomain: homeDomain,
		RelayCost:         domain.NewAmount(50_000),
	}
	encoded, err := rcpt.Encode()
	require.NoError(t, err)

	_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
	require.NoError(t, err)
	paidRelayer := lc.wallet.PaidTo(relayerAddr)
	paidClaimant := lc.wallet.PaidTo(claimant)

	watched := []domain.Address{provider, relayerAddr, claimant}
	before := lc.dump(t, watched, []crypto.Hash{msgHash})

	// A replay of the same receipt, and a replay by a different claimant,
	// both bounce off the claimed flag without moving a single row.
	_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
	require.ErrorIs(t, err, claim.ErrAlreadyClaimed)
	_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, testutils.RandomAddress(t))
	require.ErrorIs(t, err, claim.ErrAlreadyClaimed)

	requireEqualDumps(t, before, lc.dump(t, watched, []crypto.Hash{msgHash}))
	require.True(t, lc.wallet.PaidTo(relayerAddr).Equal(paidRelayer))
	require.True(t, lc.wallet.PaidTo(claimant).Equal(paidClaimant))
}

func TestLifecycleRejectedClaimsMutateNothing(t *testing.T) {
	lc := newLifecycle(t)
	ctx := context.Background()

	provider := testutils.RandomAddress(t)
	claimant := testutils.RandomAddress(t)
	require.NoError(t, lc.funds.Deposit(provider, domain.NewAmount(1_000_000)))

	sent := message.SentMessage{
		Destination: awayDomain,
		Sender:      testutils.RandomAddress(t),
		Target:      testutils.RandomAddress(t),
		Body:        []byte("ping"),
	}
	msgHash := sent.Hash(homeDomain)
	require.NoError(t, lc.registry.Authorize(provider, msgHash))

	rcpt := receipt.Receipt{
		MessageHash:       msgHash,
		Relayer:           testutils.RandomAddress(t),
		GasProvider:       provider,
		GasProviderDomain: homeDomain,
		RelayCost:         domain.NewAmount(50_000),
	}

	watched := []domain.Address{provider, claimant, rcpt.Relayer}
	before := lc.dump(t, watched, []crypto.Hash{msgHash})

	check := func(t *testing.T) {
		t.Helper()
		requireEqualDumps(t, before, lc.dump(t, watched, []crypto.Hash{msgHash}))
		require.Equal(t, 0, lc.wallet.Calls)
	}

	t.Run("wrong origin", func(t *testing.T) {
		id := lc.claimIdentifier()
		id.Origin = testutils.RandomAddress(t)
		encoded, err := rcpt.Encode()
		require.NoError(t, err)
		_, err = lc.settler.Settle(ctx, id, encoded, claimant)
		require.ErrorIs(t, err, claim.ErrInvalidOrigin)
		check(t)
	})

	t.Run("attestation rejected", func(t *testing.T) {
		lc.oracle.Reject = true
		defer func() { lc.oracle.Reject = false }()
		encoded, err := rcpt.Encode()
		require.NoError(t, err)
		_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
		require.ErrorIs(t, err, claim.ErrAttestationFailed)
		check(t)
	})

	t.Run("wrong settlement domain", func(t *testing.T) {
		foreign := rcpt
		foreign.GasProviderDomain = 99
		encoded, err := foreign.Encode()
		require.NoError(t, err)
		_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
		require.ErrorIs(t, err, claim.ErrInvalidChainID)
		check(t)
	})

	t.Run("unauthorized message", func(t *testing.T) {
		stranger := rcpt
		stranger.MessageHash = testutils.RandomHash(t)
		encoded, err := stranger.Encode()
		require.NoError(t, err)
		_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
		require.ErrorIs(t, err, claim.ErrMessageNotAuthorized)
		check(t)
	})

	t.Run("cost above balance", func(t *testing.T) {
		greedy := rcpt
		greedy.RelayCost = domain.NewAmount(2_000_000)
		encoded, err := greedy.Encode()
		require.NoError(t, err)
		_, err = lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
		require.ErrorIs(t, err, claim.ErrInsufficientBalance)
		check(t)
	})
}

func TestLifecycleWithdrawalGuardsSponsoredFunds(t *testing.T) {
	lc := newLifecycle(t)
	ctx := context.Background()

	provider := testutils.RandomAddress(t)
	claimant := testutils.RandomAddress(t)
	deposit := domain.NewAmount(1_000_000)
	require.NoError(t, lc.funds.Deposit(provider, deposit))

	// The provider asks for everything back, but the delay keeps the funds
	// claimable for sponsored messages already in flight.
	require.NoError(t, lc.funds.InitiateWithdrawal(provider, deposit))
	_, err := lc.funds.FinalizeWithdrawal(provider, provider)
	require.ErrorIs(t, err, ledger.ErrWithdrawPending)

	sent := message.SentMessage{
		Destination: awayDomain,
		Sender:      testutils.RandomAddress(t),
		Target:      testutils.RandomAddress(t),
		Body:        []byte("in flight"),
	}
	msgHash := sent.Hash(homeDomain)
	require.NoError(t, lc.registry.Authorize(provider, msgHash))

	rcpt := receipt.Receipt{
		MessageHash:       msgHash,
		Relayer:           testutils.RandomAddress(t),
		GasProvider:       provider,
		GasProviderDomain: homeDomain,
		RelayCost:         domain.NewAmount(50_000),
	}
	encoded, err := rcpt.Encode()
	require.NoError(t, err)
	settled, err := lc.settler.Settle(ctx, lc.claimIdentifier(), encoded, claimant)
	require.NoError(t, err)

	// The claim settled against the balance even though a full withdrawal
	// is pending, so the eventual payout will be clamped below the request.
	balance, err := lc.funds.Balance(provider)
	require.NoError(t, err)
	spent := settled.RelayCost.Add(settled.ClaimCost)
	want, ok := deposit.Sub(spent)
	require.True(t, ok)
	require.True(t, balance.Equal(want))

	wd, pending, err := lc.state.PendingWithdrawal(provider)
	require.NoError(t, err)
	require.True(t, pending)
	require.True(t, wd.Amount.Equal(deposit))
}
