package message

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

var (
	ErrTruncatedPayload = errors.New("sent-message payload too short")
)

// Identifier is the provenance tuple a delivered payload is checked
// against: who emitted it, where, and at what position.
type Identifier struct {
	Origin       domain.Address
	BlockNumber  uint64
	LogIndex     uint64
	Timestamp    uint64
	SourceDomain domain.ID
}

// IdentifierSize is the width of an encoded identifier.
const IdentifierSize = domain.AddressSize + 8 + 8 + 8 + 8

// Encode serializes the identifier into its fixed-width form.
func (id Identifier) Encode() []byte {
	out := make([]byte, 0, IdentifierSize)
	out = append(out, id.Origin[:]...)
	out = binary.BigEndian.AppendUint64(out, id.BlockNumber)
	out = binary.BigEndian.AppendUint64(out, id.LogIndex)
	out = binary.BigEndian.AppendUint64(out, id.Timestamp)
	out = binary.BigEndian.AppendUint64(out, uint64(id.SourceDomain))
	return out
}

// DecodeIdentifier parses a fixed-width identifier.
func DecodeIdentifier(b []byte) (Identifier, error) {
	if len(b) != IdentifierSize {
		return Identifier{}, fmt.Errorf("invalid identifier length %d", len(b))
	}
	var id Identifier
	copy(id.Origin[:], b[:domain.AddressSize])
	off := domain.AddressSize
	id.BlockNumber = binary.BigEndian.Uint64(b[off : off+8])
	id.LogIndex = binary.BigEndian.Uint64(b[off+8 : off+16])
	id.Timestamp = binary.BigEndian.Uint64(b[off+16 : off+24])
	id.SourceDomain = domain.ID(binary.BigEndian.Uint64(b[off+24 : off+32]))
	return id, nil
}

// SentMessage is the structured form of the payload the transport emits
// when a message is sent. Its encoding is the transport's own, so the
// layout here must match what the transport produces byte for byte.
type SentMessage struct {
	Destination domain.ID
	Nonce       uint64
	Sender      domain.Address
	Target      domain.Address
	Body        []byte
}

const sentMessageHeaderSize = 8 + 8 + domain.AddressSize + domain.AddressSize

// Encode serializes the sent message into its transport payload form.
func (m SentMessage) Encode() []byte {
	out := make([]byte, 0, sentMessageHeaderSize+len(m.Body))
	out = binary.BigEndian.AppendUint64(out, uint64(m.Destination))
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	out = append(out, m.Sender[:]...)
	out = append(out, m.Target[:]...)
	out = append(out, m.Body...)
	return out
}

// DecodeSentMessage parses a transport payload back into its structured form.
func DecodeSentMessage(payload []byte) (SentMessage, error) {
	if len(payload) < sentMessageHeaderSize {
		return SentMessage{}, fmt.Errorf("%w: %d bytes", ErrTruncatedPayload, len(payload))
	}
	var m SentMessage
	m.Destination = domain.ID(binary.BigEndian.Uint64(payload[0:8]))
	m.Nonce = binary.BigEndian.Uint64(payload[8:16])
	copy(m.Sender[:], payload[16:16+domain.AddressSize])
	copy(m.Target[:], payload[16+domain.AddressSize:sentMessageHeaderSize])
	m.Body = append([]byte(nil), payload[sentMessageHeaderSize:]...)
	return m, nil
}

// Hash computes the canonical message hash: keccak-256 over the fixed-width
// concatenation of destination, source, nonce, sender, target and body. This
// is the transport's addressing scheme; it names the same physical message
// on both domains, so every component that refers to a message uses it.
func (m SentMessage) Hash(source domain.ID) crypto.Hash {
	buf := make([]byte, 0, 8+8+8+domain.AddressSize+domain.AddressSize+len(m.Body))
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Destination))
	buf = binary.BigEndian.AppendUint64(buf, uint64(source))
	buf = binary.BigEndian.AppendUint64(buf, m.Nonce)
	buf = append(buf, m.Sender[:]...)
	buf = append(buf, m.Target[:]...)
	buf = append(buf, m.Body...)
	return crypto.KeccakData(buf)
}

// Messenger is the cross-domain message transport as seen from one domain
// instance. The transport itself is an external collaborator; the ledger
// only needs delivery, plus the monotonic per-sender sequence counter it
// uses to discover messages a delivery triggered.
type Messenger interface {
	// Send queues a message to a target on another domain and returns its
	// canonical hash.
	Send(ctx context.Context, dest domain.ID, target domain.Address, body []byte) (crypto.Hash, error)

	// Deliver executes a message on this domain. It fails if the identifier
	// or payload is malformed or the message was already delivered.
	Deliver(ctx context.Context, id Identifier, sentPayload []byte) error

	// SentCount returns the number of messages sent from this domain so far.
	SentCount() uint64

	// SentHash returns the hash of the seq-th sent message (zero based).
	SentHash(seq uint64) (crypto.Hash, error)
}
