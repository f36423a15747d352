// Package cost converts measured execution work into reimbursement amounts
// and models the two fixed overheads the ledger itself introduces: emitting
// a receipt and settling a claim. Those cannot be measured from inside the
// call that incurs them, so they are modeled.
//
// The unit constants are calibrated for this implementation's storage and
// hashing costs; a deployment against a different execution environment
// should re-derive them rather than reuse these figures.
package cost

import (
	"math"

	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/safemath"
)

const (
	// receiptBase is the flat work of emitting a receipt record.
	receiptBase = 24_000
	// receiptPerNested is the marginal work per nested hash in the trailer.
	receiptPerNested = 1_100
	// receiptSpillStep is added once the trailer no longer fits in the
	// first storage unit alongside the header.
	receiptSpillStep = 8_000
	// receiptFirstUnitHashes is how many nested hashes fit in that unit.
	receiptFirstUnitHashes = 4

	// claimBase is the flat work of verifying and settling a claim.
	claimBase = 68_000
	// claimPerNested is the work of one propagated authorization write.
	claimPerNested = 21_000
)

// Total prices units of execution work at the given per-unit price.
func Total(units uint64, price domain.Amount) domain.Amount {
	return price.MulUint64(units)
}

// ReceiptEmission models the work of emitting a receipt whose trailer
// carries nested hashes. Tiered: flat base, a per-hash term, and a step
// once the trailer spills past the first storage unit. Unit totals
// saturate at the uint64 ceiling rather than wrapping.
func ReceiptEmission(nested int) uint64 {
	perHash, ok := safemath.Mul64(uint64(nested), receiptPerNested)
	if !ok {
		return math.MaxUint64
	}
	units, ok := safemath.Add64(receiptBase, perHash)
	if !ok {
		return math.MaxUint64
	}
	if nested > receiptFirstUnitHashes {
		units, ok = safemath.Add64(units, receiptSpillStep)
		if !ok {
			return math.MaxUint64
		}
	}
	return units
}

// ClaimOverhead models the work of submitting and settling a claim whose
// receipt carries nested hashes, dominated by the per-hash authorization
// writes the settlement performs. Saturates like ReceiptEmission.
func ClaimOverhead(nested int) uint64 {
	perHash, ok := safemath.Mul64(uint64(nested), claimPerNested)
	if !ok {
		return math.MaxUint64
	}
	units, ok := safemath.Add64(claimBase, perHash)
	if !ok {
		return math.MaxUint64
	}
	return units
}

// Environment is the execution environment of one domain: a monotone gas
// meter for the current call context and the domain's current base fee.
type Environment interface {
	GasUsed() uint64
	BaseFee() domain.Amount
}

// FeeEstimator prices the data-publication cost of a call's input on
// domains that charge for it. Optional: a nil estimator means no such fee.
type FeeEstimator interface {
	EstimateFee(input []byte) domain.Amount
}

// EstimateOrZero applies the estimator if one is configured.
func EstimateOrZero(e FeeEstimator, input []byte) domain.Amount {
	if e == nil {
		return domain.Amount{}
	}
	return e.EstimateFee(input)
}
