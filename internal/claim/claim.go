// Package claim implements receipt settlement on the gas provider's
// domain: verify a delivered receipt's provenance, authorization and
// freshness, propagate sponsorship to nested messages, and pay the relayer
// and the claim submitter out of the provider's balance.
package claim

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosslane/crosslane/internal/cost"
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/ledger"
	"github.com/crosslane/crosslane/internal/message"
	"github.com/crosslane/crosslane/internal/receipt"
	"github.com/crosslane/crosslane/internal/store"
	"github.com/crosslane/crosslane/pkg/log"
	"github.com/crosslane/crosslane/pkg/metrics"
)

var (
	// ErrInvalidOrigin means the receipt was not emitted by this ledger's
	// own instance on the source domain.
	ErrInvalidOrigin = errors.New("receipt origin is not the ledger")
	// ErrAttestationFailed means the oracle could not attest the payload
	// was emitted at the claimed position.
	ErrAttestationFailed = errors.New("receipt attestation failed")
	// ErrInvalidPayload means the payload does not decode as a receipt.
	ErrInvalidPayload = errors.New("invalid receipt payload")
	// ErrInvalidChainID means the claim was submitted on a domain other
	// than the one holding the provider's funds.
	ErrInvalidChainID = errors.New("claim submitted on wrong domain")
	// ErrMessageNotAuthorized means the provider never sponsored the hash.
	ErrMessageNotAuthorized = errors.New("message not authorized by gas provider")
	// ErrAlreadyClaimed means the hash was settled before. Permanent.
	ErrAlreadyClaimed = errors.New("message already claimed")
	// ErrInsufficientBalance means the provider's balance cannot cover the
	// relay cost. Transient: resolvable by a further deposit.
	ErrInsufficientBalance = errors.New("insufficient gas provider balance")
)

// Oracle attests that a payload was genuinely emitted at the given
// position on the source domain.
type Oracle interface {
	Attest(ctx context.Context, id message.Identifier, payloadDigest crypto.Hash) error
}

// Settlement is the outcome of a successful claim.
type Settlement struct {
	Receipt   receipt.Receipt
	RelayCost domain.Amount
	ClaimCost domain.Amount
}

// Settler consumes delivered receipts on one domain instance.
type Settler struct {
	state  *store.Ledger
	oracle Oracle
	payer  ledger.Payer
	env    cost.Environment
	fees   cost.FeeEstimator

	localDomain domain.ID
	ledgerAddr  domain.Address // this ledger's address, identical on every domain
}

func New(
	state *store.Ledger,
	oracle Oracle,
	payer ledger.Payer,
	env cost.Environment,
	fees cost.FeeEstimator,
	localDomain domain.ID,
	ledgerAddr domain.Address,
) *Settler {
	return &Settler{
		state:       state,
		oracle:      oracle,
		payer:       payer,
		env:         env,
		fees:        fees,
		localDomain: localDomain,
		ledgerAddr:  ledgerAddr,
	}
}

// Settle verifies and pays out one receipt. caller is the claim submitter,
// who receives the claim-cost reimbursement and need not be the relayer.
//
// The check order is fixed: provenance (origin, attestation, decoding)
// precedes authorization and replay checks, which precede balance checks,
// so failure reasons are unambiguous. No state is written until every
// check has passed; the writes then commit as one atomic batch.
func (s *Settler) Settle(ctx context.Context, id message.Identifier, payload []byte, caller domain.Address) (Settlement, error) {
	if id.Origin != s.ledgerAddr {
		return Settlement{}, reject(ErrInvalidOrigin)
	}

	if err := s.oracle.Attest(ctx, id, crypto.HashData(payload)); err != nil {
		return Settlement{}, reject(fmt.Errorf("%w: %w", ErrAttestationFailed, err))
	}

	rcpt, err := receipt.Decode(payload)
	if err != nil {
		return Settlement{}, reject(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	if rcpt.GasProviderDomain != s.localDomain {
		return Settlement{}, reject(fmt.Errorf("%w: receipt names domain %d, settling on %d",
			ErrInvalidChainID, rcpt.GasProviderDomain, s.localDomain))
	}

	authorized, err := s.state.IsAuthorized(rcpt.GasProvider, rcpt.MessageHash)
	if err != nil {
		return Settlement{}, err
	}
	if !authorized {
		return Settlement{}, reject(ErrMessageNotAuthorized)
	}

	claimed, err := s.state.IsClaimed(rcpt.MessageHash)
	if err != nil {
		return Settlement{}, err
	}
	if claimed {
		return Settlement{}, reject(ErrAlreadyClaimed)
	}

	balance, err := s.state.Balance(rcpt.GasProvider)
	if err != nil {
		return Settlement{}, err
	}
	afterRelay, ok := balance.Sub(rcpt.RelayCost)
	if !ok {
		return Settlement{}, reject(fmt.Errorf("%w: balance %s, relay cost %s",
			ErrInsufficientBalance, balance, rcpt.RelayCost))
	}

	// The submitter's own reimbursement: the modeled settlement overhead
	// plus this call's data-publication fee, capped at whatever is left
	// after the relay cost is reserved.
	modeled := cost.Total(cost.ClaimOverhead(len(rcpt.Nested)), s.env.BaseFee()).
		Add(cost.EstimateOrZero(s.fees, append(id.Encode(), payload...)))
	claimCost := domain.Min(afterRelay, modeled)
	remaining, ok := afterRelay.Sub(claimCost)
	if !ok {
		// Unreachable: claimCost is capped at afterRelay.
		return Settlement{}, fmt.Errorf("balance underflow settling %s", rcpt.MessageHash)
	}

	batch := s.state.NewBatch()
	defer batch.Close()

	// Nested messages inherit the provider's sponsorship, so downstream
	// relayers need no separate authorization step.
	for _, nested := range rcpt.Nested {
		if err := s.state.Authorize(batch, rcpt.GasProvider, nested); err != nil {
			return Settlement{}, err
		}
	}
	if err := s.state.SetBalance(batch, rcpt.GasProvider, remaining); err != nil {
		return Settlement{}, err
	}
	if err := s.state.MarkClaimed(batch, rcpt.MessageHash); err != nil {
		return Settlement{}, err
	}
	if err := batch.Commit(); err != nil {
		return Settlement{}, fmt.Errorf("commit settlement: %w", err)
	}

	if err := s.pay(rcpt.Relayer, rcpt.RelayCost); err != nil {
		return Settlement{}, fmt.Errorf("pay relayer: %w", err)
	}
	if err := s.pay(caller, claimCost); err != nil {
		return Settlement{}, fmt.Errorf("pay claimant: %w", err)
	}

	metrics.ClaimsSettled.Inc()
	log.Ledger.Info().
		Stringer("message", rcpt.MessageHash).
		Stringer("gasProvider", rcpt.GasProvider).
		Stringer("relayer", rcpt.Relayer).
		Stringer("claimant", caller).
		Stringer("relayCost", rcpt.RelayCost).
		Stringer("claimCost", claimCost).
		Int("nested", len(rcpt.Nested)).
		Msg("claim settled")

	return Settlement{Receipt: rcpt, RelayCost: rcpt.RelayCost, ClaimCost: claimCost}, nil
}

func (s *Settler) pay(to domain.Address, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}
	return s.payer.Pay(to, amount)
}

// reject tags the rejection metric with the sentinel behind err.
func reject(err error) error {
	reason := "internal"
	switch {
	case errors.Is(err, ErrInvalidOrigin):
		reason = "invalid_origin"
	case errors.Is(err, ErrAttestationFailed):
		reason = "attestation_failed"
	case errors.Is(err, ErrInvalidPayload):
		reason = "invalid_payload"
	case errors.Is(err, ErrInvalidChainID):
		reason = "invalid_chain_id"
	case errors.Is(err, ErrMessageNotAuthorized):
		reason = "not_authorized"
	case errors.Is(err, ErrAlreadyClaimed):
		reason = "already_claimed"
	case errors.Is(err, ErrInsufficientBalance):
		reason = "insufficient_balance"
	}
	metrics.ClaimsRejected.WithLabelValues(reason).Inc()
	return err
}
