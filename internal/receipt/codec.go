package receipt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

var (
	ErrUnknownTag       = errors.New("payload discriminator is not a known receipt tag")
	ErrTruncatedPayload = errors.New("receipt payload truncated")
	ErrTrailingBytes    = errors.New("receipt payload has trailing bytes")
)

// Wire layout, version 1:
//
//	tag(32) | messageHash(32) | relayer(20) | gasProvider(20) | domain(8)
//	| relayCost(32, big endian) | nestedCount(4) | nested hash(32) ...
const (
	headerSize  = crypto.HashSize + crypto.HashSize + 2*domain.AddressSize + 8
	trailerMin  = domain.AmountWordSize + 4
	minimumSize = headerSize + trailerMin
)

// Encode serializes the receipt into its version-1 payload form.
func (r Receipt) Encode() ([]byte, error) {
	cost, err := r.RelayCost.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode relay cost: %w", err)
	}

	out := make([]byte, 0, minimumSize+len(r.Nested)*crypto.HashSize)
	out = append(out, TagV1[:]...)
	out = append(out, r.MessageHash[:]...)
	out = append(out, r.Relayer[:]...)
	out = append(out, r.GasProvider[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(r.GasProviderDomain))
	out = append(out, cost[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(r.Nested)))
	for _, h := range r.Nested {
		out = append(out, h[:]...)
	}
	return out, nil
}

// Decode parses a version-1 receipt payload. It rejects any payload whose
// discriminator does not match TagV1 and any length mismatch, so a payload
// in the legacy layout (no gas-provider domain field) fails here rather
// than decoding into garbage.
func Decode(payload []byte) (Receipt, error) {
	if len(payload) < crypto.HashSize {
		return Receipt{}, fmt.Errorf("%w: %d bytes", ErrTruncatedPayload, len(payload))
	}
	if !bytes.Equal(payload[:crypto.HashSize], TagV1[:]) {
		return Receipt{}, ErrUnknownTag
	}
	if len(payload) < minimumSize {
		return Receipt{}, fmt.Errorf("%w: %d bytes", ErrTruncatedPayload, len(payload))
	}

	var r Receipt
	off := crypto.HashSize
	copy(r.MessageHash[:], payload[off:off+crypto.HashSize])
	off += crypto.HashSize
	copy(r.Relayer[:], payload[off:off+domain.AddressSize])
	off += domain.AddressSize
	copy(r.GasProvider[:], payload[off:off+domain.AddressSize])
	off += domain.AddressSize
	r.GasProviderDomain = domain.ID(binary.BigEndian.Uint64(payload[off : off+8]))
	off += 8
	r.RelayCost = domain.AmountFromBytes(payload[off : off+domain.AmountWordSize])
	off += domain.AmountWordSize
	count := binary.BigEndian.Uint32(payload[off : off+4])
	off += 4

	want := off + int(count)*crypto.HashSize
	if len(payload) < want {
		return Receipt{}, fmt.Errorf("%w: %d nested hashes announced, %d bytes left",
			ErrTruncatedPayload, count, len(payload)-off)
	}
	if len(payload) > want {
		return Receipt{}, ErrTrailingBytes
	}

	if count > 0 {
		r.Nested = make([]crypto.Hash, count)
		for i := range r.Nested {
			copy(r.Nested[i][:], payload[off:off+crypto.HashSize])
			off += crypto.HashSize
		}
	}
	return r, nil
}
