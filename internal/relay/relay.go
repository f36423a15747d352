// Package relay implements the relay-and-meter operation on the
// destination domain: wrap a raw transport delivery, measure what it cost,
// discover the messages it triggered, and emit the receipt the relayer
// will later redeem on the gas provider's domain.
package relay

import (
	"context"
	"fmt"

	"github.com/crosslane/crosslane/internal/cost"
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/message"
	"github.com/crosslane/crosslane/internal/receipt"
	"github.com/crosslane/crosslane/internal/safemath"
	"github.com/crosslane/crosslane/pkg/log"
	"github.com/crosslane/crosslane/pkg/metrics"
)

// Relayer wraps one domain's transport delivery entry point.
type Relayer struct {
	messenger message.Messenger
	env       cost.Environment
	fees      cost.FeeEstimator // nil when the domain has no data-publication fee
}

func New(messenger message.Messenger, env cost.Environment, fees cost.FeeEstimator) *Relayer {
	return &Relayer{messenger: messenger, env: env, fees: fees}
}

// Relay delivers a message and emits the metered receipt.
//
// The relay cost is the measured execution cost of the delivery priced at
// the domain's base fee, plus the modeled cost of emitting the receipt
// itself (that bookkeeping cannot be measured from inside the call that
// performs it), plus the data-publication fee for the call's input. Any
// failure inside delivery is fatal; there is no partial credit.
func (r *Relayer) Relay(
	ctx context.Context,
	id message.Identifier,
	sentPayload []byte,
	relayer domain.Address,
	gasProvider domain.Address,
	gasProviderDomain domain.ID,
) (receipt.Receipt, error) {
	gasStart := r.env.GasUsed()

	sent, err := message.DecodeSentMessage(sentPayload)
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("decode sent message: %w", err)
	}
	msgHash := sent.Hash(id.SourceDomain)

	seqBefore := r.messenger.SentCount()
	if err := r.messenger.Deliver(ctx, id, sentPayload); err != nil {
		return receipt.Receipt{}, fmt.Errorf("deliver message %s: %w", msgHash, err)
	}
	seqAfter := r.messenger.SentCount()

	// Everything the delivery sent is a nested message of this relay,
	// collected in emission order.
	nestedList, err := r.collectNested(seqBefore, seqAfter)
	if err != nil {
		return receipt.Receipt{}, err
	}

	measured, ok := safemath.Sub64(r.env.GasUsed(), gasStart)
	if !ok {
		return receipt.Receipt{}, fmt.Errorf("gas meter regressed during delivery of %s: %w",
			msgHash, safemath.ErrOverflow)
	}
	units, ok := safemath.Add64(measured, cost.ReceiptEmission(len(nestedList)))
	if !ok {
		return receipt.Receipt{}, fmt.Errorf("metered units for %s: %w", msgHash, safemath.ErrOverflow)
	}
	relayCost := cost.Total(units, r.env.BaseFee()).
		Add(cost.EstimateOrZero(r.fees, callInput(id, sentPayload)))

	rcpt := receipt.Receipt{
		MessageHash:       msgHash,
		Relayer:           relayer,
		GasProvider:       gasProvider,
		GasProviderDomain: gasProviderDomain,
		RelayCost:         relayCost,
		Nested:            nestedList,
	}

	metrics.RelaysMetered.Inc()
	log.Relay.Info().
		Stringer("message", msgHash).
		Stringer("relayer", relayer).
		Stringer("gasProvider", gasProvider).
		Uint64("gasProviderDomain", uint64(gasProviderDomain)).
		Stringer("relayCost", relayCost).
		Int("nested", len(nestedList)).
		Msg("message relayed")
	return rcpt, nil
}

func (r *Relayer) collectNested(from, to uint64) ([]crypto.Hash, error) {
	if from == to {
		return nil, nil
	}
	nested := make([]crypto.Hash, 0, to-from)
	for seq := from; seq < to; seq++ {
		hash, err := r.messenger.SentHash(seq)
		if err != nil {
			return nil, fmt.Errorf("read nested message %d: %w", seq, err)
		}
		nested = append(nested, hash)
	}
	return nested, nil
}

func callInput(id message.Identifier, sentPayload []byte) []byte {
	return append(id.Encode(), sentPayload...)
}
