// Package authorization implements the claim authorization registry.
//
// An authorization is a capability grant: once a provider marks a message
// hash, anyone who relays that exact message may claim reimbursement
// against the provider's balance. Providers must therefore only authorize
// hashes of messages they intend to sponsor. Claim settlement additionally
// propagates authorization to nested hashes, so a chain of triggered
// messages inherits sponsorship without a separate grant per hop.
package authorization

import (
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/store"
	"github.com/crosslane/crosslane/pkg/log"
)

// Registry is the provider-facing surface over the authorization and
// claimed tables.
type Registry struct {
	state *store.Ledger
}

func New(state *store.Ledger) *Registry {
	return &Registry{state: state}
}

// Authorize marks one message hash as reimbursable from the provider's
// balance.
func (r *Registry) Authorize(provider domain.Address, hash crypto.Hash) error {
	return r.AuthorizeAll(provider, []crypto.Hash{hash})
}

// AuthorizeAll marks a batch of message hashes in one atomic write.
func (r *Registry) AuthorizeAll(provider domain.Address, hashes []crypto.Hash) error {
	batch := r.state.NewBatch()
	defer batch.Close()

	for _, hash := range hashes {
		if err := r.state.Authorize(batch, provider, hash); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	for _, hash := range hashes {
		log.Ledger.Debug().
			Stringer("provider", provider).
			Stringer("message", hash).
			Msg("claim authorized")
	}
	return nil
}

// IsAuthorized reports whether the provider sponsors the message hash.
func (r *Registry) IsAuthorized(provider domain.Address, hash crypto.Hash) (bool, error) {
	return r.state.IsAuthorized(provider, hash)
}

// IsClaimed reports whether the message hash was already settled.
func (r *Registry) IsClaimed(hash crypto.Hash) (bool, error) {
	return r.state.IsClaimed(hash)
}
