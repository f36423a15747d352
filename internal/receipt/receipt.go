// Package receipt defines the relay receipt record and its wire format.
//
// A receipt is emitted on the destination domain after a relay and consumed
// exactly once by claim settlement on the gas provider's domain. The wire
// format is versioned by the leading discriminator tag; version 1 is the
// only version this implementation accepts. The legacy layout without the
// gas-provider domain field is rejected, never parsed.
package receipt

import (
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

// TagV1 discriminates a version-1 relay receipt payload.
var TagV1 = crypto.KeccakData([]byte("crosslane/receipt/v1"))

// Receipt is the record a relayer emits after delivering a message.
// Immutable once emitted.
type Receipt struct {
	MessageHash       crypto.Hash
	Relayer           domain.Address
	GasProvider       domain.Address
	GasProviderDomain domain.ID
	RelayCost         domain.Amount
	Nested            []crypto.Hash
}
